package level1

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/KyungWonPark/featmodel/internal/contrast"
	"github.com/KyungWonPark/featmodel/internal/errs"
	"github.com/KyungWonPark/featmodel/internal/fsf"
	"github.com/KyungWonPark/featmodel/internal/image"
	fio "github.com/KyungWonPark/featmodel/internal/io"
	"github.com/KyungWonPark/featmodel/internal/logging"
	"github.com/KyungWonPark/featmodel/internal/session"
)

// #region helpers
func newTestGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()
	if opts.Bases.Kind == "" {
		opts.Bases.Kind = DoubleGamma
	}
	if opts.InterscanInterval == 0 {
		opts.InterscanInterval = 2
	}
	return &Generator{
		Dir:       t.TempDir(),
		Options:   opts,
		Templates: fsf.Default(),
		Images:    image.Fixed(100),
		Log:       logging.Discard(),
	}
}

func twoConditionRun() session.Run {
	return session.Run{
		Conditions: []session.Condition{
			{Name: "A", Onsets: []float64{0, 10}, Durations: []float64{2}},
			{Name: "B", Onsets: []float64{5}, Durations: []float64{1}},
		},
		HighPass: 128,
		Scans:    []string{"func.nii,1"},
	}
}

func describe(runs ...session.Run) *session.Description {
	return &session.Description{Runs: session.Runs(runs)}
}

func aMinusB() contrast.Contrast {
	return contrast.Contrast{Name: "A-B", Kind: contrast.T, Conditions: []string{"A", "B"}, Weights: []float64{1, -1}}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(raw)
}

func generate(t *testing.T, g *Generator, desc *session.Description) (*Outputs, string) {
	t.Helper()
	out, err := g.Generate(desc)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return out, readFile(t, out.FSFFiles[0])
}

// elements returns the "set fmri(con_<ctype><cnum>.<k>) <val>" values of one
// contrast row, in order.
func elements(doc, ctype string, cnum int) []string {
	prefix := "set fmri(con_" + ctype + itoa(cnum) + "."
	var vals []string
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, prefix) {
			fields := strings.Fields(line)
			vals = append(vals, fields[len(fields)-1])
		}
	}
	return vals
}

func itoa(i int) string { return fsf.FormatValue(i) }

// #endregion helpers

// #region scenarios
func TestGenerate_TwoConditionsNoDerivative(t *testing.T) {
	g := newTestGenerator(t, Options{Contrasts: []contrast.Contrast{aMinusB()}})
	out, doc := generate(t, g, describe(twoConditionRun()))

	if !strings.Contains(doc, "set fmri(evs_orig) 2\n") || !strings.Contains(doc, "set fmri(evs_real) 2\n") {
		t.Errorf("EV counts missing from header")
	}

	timing := readFile(t, filepath.Join(g.Dir, "ev_A_0_1.txt"))
	if timing != "0.000000 2.000000 1.000000\n10.000000 2.000000 1.000000\n" {
		t.Errorf("timing file for A:\n%q", timing)
	}

	for _, ctype := range []string{"real", "orig"} {
		got := elements(doc, ctype, 1)
		if !reflect.DeepEqual(got, []string{"1.0", "-1.0"}) {
			t.Errorf("%s row = %v, want [1.0 -1.0]", ctype, got)
		}
	}

	if n := strings.Count(doc, "set fmri(ortho"); n != 6 {
		t.Errorf("orthogonalisation directives = %d, want 6", n)
	}
	if n := strings.Count(doc, "# Mask real contrast/F-test"); n != 0 {
		t.Errorf("mask elements = %d, want 0", n)
	}

	want := []string{filepath.Join(g.Dir, "ev_A_0_1.txt"), filepath.Join(g.Dir, "ev_B_0_2.txt")}
	if !reflect.DeepEqual(out.EVFiles, want) {
		t.Errorf("EVFiles = %v, want %v", out.EVFiles, want)
	}
}

func TestGenerate_TwoConditionsWithDerivative(t *testing.T) {
	g := newTestGenerator(t, Options{
		Bases:     Bases{Kind: DoubleGamma, UseDerivative: true},
		Contrasts: []contrast.Contrast{aMinusB()},
	})
	out, doc := generate(t, g, describe(twoConditionRun()))

	if !strings.Contains(doc, "set fmri(evs_orig) 2\n") {
		t.Errorf("evs_orig should stay 2")
	}
	if !strings.Contains(doc, "set fmri(evs_real) 4\n") {
		t.Errorf("evs_real should be 4")
	}

	if got := elements(doc, "orig", 1); !reflect.DeepEqual(got, []string{"1.0", "-1.0"}) {
		t.Errorf("orig row = %v", got)
	}
	if got := elements(doc, "real", 1); !reflect.DeepEqual(got, []string{"1.0", "0.0", "-1.0", "0.0"}) {
		t.Errorf("real row = %v", got)
	}
	if !strings.Contains(doc, "set fmri(deriv_yn1) 1\n") {
		t.Errorf("derivative flag not set on EV 1")
	}
	if n := strings.Count(doc, "set fmri(ortho"); n != 6 {
		t.Errorf("orthogonalisation covers primary EVs only, got %d directives", n)
	}

	// Derivative EVs take a column, so B's ordinal is 3.
	want := []string{filepath.Join(g.Dir, "ev_A_0_1.txt"), filepath.Join(g.Dir, "ev_B_0_3.txt")}
	if !reflect.DeepEqual(out.EVFiles, want) {
		t.Errorf("EVFiles = %v, want %v", out.EVFiles, want)
	}
	for _, f := range want {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("listed timing file was not written: %v", err)
		}
	}
}

// #endregion scenarios

// #region properties
func TestTimingFile_Durations(t *testing.T) {
	run := session.Run{
		Conditions: []session.Condition{
			{Name: "shared", Onsets: []float64{1, 2, 3}, Durations: []float64{4}},
			{Name: "paired", Onsets: []float64{1, 2, 3}, Durations: []float64{4, 5, 6}},
			{Name: "empty"},
		},
		Regressors: []session.Regressor{{Name: "motion", Values: []float64{0.5, -0.25}}},
		Scans:      []string{"f.nii"},
	}
	g := newTestGenerator(t, Options{})
	generate(t, g, describe(run))

	tests := []struct {
		file string
		want string
	}{
		{"ev_shared_0_1.txt", "1.000000 4.000000 1.000000\n2.000000 4.000000 1.000000\n3.000000 4.000000 1.000000\n"},
		{"ev_paired_0_2.txt", "1.000000 4.000000 1.000000\n2.000000 5.000000 1.000000\n3.000000 6.000000 1.000000\n"},
		{"ev_empty_0_3.txt", ""},
		{"ev_motion_0_4.txt", "0.500000\n-0.250000\n"},
	}
	for _, tt := range tests {
		if got := readFile(t, filepath.Join(g.Dir, tt.file)); got != tt.want {
			t.Errorf("%s:\n%q\nwant\n%q", tt.file, got, tt.want)
		}
	}
}

func TestAllocateEVs_Counts(t *testing.T) {
	run := twoConditionRun()
	run.Regressors = []session.Regressor{{Name: "R1"}, {Name: "R2"}}

	for _, usetd := range []bool{false, true} {
		table := AllocateEVs("/w", 0, run, usetd)
		if table.Counts.Primary != 4 {
			t.Errorf("usetd=%v: Primary = %d", usetd, table.Counts.Primary)
		}
		wantDiff := 0
		if usetd {
			wantDiff = len(run.Conditions)
		}
		if d := table.Counts.Real - table.Counts.Primary; d != wantDiff {
			t.Errorf("usetd=%v: Real-Primary = %d, want %d", usetd, d, wantDiff)
		}
	}

	table := AllocateEVs("/w", 2, run, true)
	if got := table.Names(); !reflect.DeepEqual(got, []string{"A", "ATD", "B", "BTD", "R1", "R2"}) {
		t.Errorf("Names = %v", got)
	}
	if ev := table.EVs[4]; ev.Index != 3 || ev.Column != 5 || ev.TimingFile != "/w/ev_R1_2_5.txt" {
		t.Errorf("R1 = %+v", ev)
	}
}

func TestContrastMask_Count(t *testing.T) {
	for n := 0; n <= 4; n++ {
		var cons []contrast.Contrast
		for i := 0; i < n; i++ {
			c := aMinusB()
			c.Name = "c" + itoa(i)
			cons = append(cons, c)
		}
		g := newTestGenerator(t, Options{Contrasts: cons})
		_, doc := generate(t, g, describe(twoConditionRun()))

		if got := strings.Count(doc, "# Mask real contrast/F-test"); got != n*(n-1) {
			t.Errorf("n=%d: mask elements = %d, want %d", n, got, n*(n-1))
		}
	}
}

func TestOrthogonalisation_Count(t *testing.T) {
	run := twoConditionRun()
	run.Regressors = []session.Regressor{{Name: "R", Values: []float64{1}}}
	g := newTestGenerator(t, Options{Bases: Bases{Kind: Gamma, UseDerivative: true}})
	_, doc := generate(t, g, describe(run))

	if n := strings.Count(doc, "set fmri(ortho"); n != 3*4 {
		t.Errorf("orthogonalisation directives = %d, want 12", n)
	}
	if !strings.Contains(doc, "set fmri(ortho3.0) 0\n") || strings.Contains(doc, "set fmri(ortho0.") {
		t.Errorf("orthogonalisation indices out of range")
	}
	if !strings.Contains(doc, "set fmri(convolve1) 2\n") {
		t.Errorf("gamma basis should convolve with code 2")
	}
}

func TestContrastRows_ColumnsPerPass(t *testing.T) {
	run := twoConditionRun()
	run.Regressors = []session.Regressor{{Name: "R", Values: []float64{1}}}
	cons := []contrast.Contrast{
		aMinusB(),
		{Name: "R", Kind: contrast.T, Conditions: []string{"R"}, Weights: []float64{0.5}},
	}
	g := newTestGenerator(t, Options{Bases: Bases{Kind: DoubleGamma, UseDerivative: true}, Contrasts: cons})
	_, doc := generate(t, g, describe(run))

	for cnum := 1; cnum <= 2; cnum++ {
		if got := len(elements(doc, "real", cnum)); got != 5 {
			t.Errorf("real row %d has %d elements, want 5", cnum, got)
		}
		if got := len(elements(doc, "orig", cnum)); got != 3 {
			t.Errorf("orig row %d has %d elements, want 3", cnum, got)
		}
	}
	if got := elements(doc, "real", 2); !reflect.DeepEqual(got, []string{"0.0", "0.0", "0.0", "0.0", "0.5"}) {
		t.Errorf("real row 2 = %v", got)
	}
	if got := elements(doc, "orig", 2); !reflect.DeepEqual(got, []string{"0.0", "0.0", "0.5"}) {
		t.Errorf("orig row 2 = %v", got)
	}
}

func TestZeroContrasts_Markers(t *testing.T) {
	g := newTestGenerator(t, Options{})
	_, doc := generate(t, g, describe(twoConditionRun()))

	for _, marker := range []string{
		"# Contrast & F-tests mode",
		"# Contrast masking - use >0 instead of thresholding?",
		"# Do contrast masking at all?",
		"set fmri(overwrite_yn) 1",
	} {
		if !strings.Contains(doc, marker) {
			t.Errorf("missing marker %q", marker)
		}
	}
	for _, absent := range []string{"set fmri(conpic_", "set fmri(con_real", "# Mask real contrast/F-test"} {
		if strings.Contains(doc, absent) {
			t.Errorf("unexpected %q with no contrasts", absent)
		}
	}

	header := strings.Index(doc, "# Contrast masking - use >0")
	footer := strings.Index(doc, "# Do contrast masking at all?")
	if header > footer {
		t.Errorf("mask header after footer")
	}
}

// #endregion properties

// #region contrasts
func TestFContrastGrouping(t *testing.T) {
	cons := []contrast.Contrast{
		{Name: "A", Kind: contrast.T, Conditions: []string{"A"}, Weights: []float64{1}},
		{Name: "B", Kind: contrast.T, Conditions: []string{"B"}, Weights: []float64{1}},
		{Name: "A|B", Kind: contrast.F, Contrasts: []contrast.Contrast{{Name: "A", Kind: contrast.T}, {Name: "B", Kind: contrast.T}}},
	}
	g := newTestGenerator(t, Options{Contrasts: cons})
	_, doc := generate(t, g, describe(twoConditionRun()))

	for _, want := range []string{
		"set fmri(ncon_orig) 2\n",
		"set fmri(nftests_orig) 1\n",
		"set fmri(ftest_real1.1) 1\n",
		"set fmri(ftest_real1.2) 1\n",
		"set fmri(ftest_orig1.1) 1\n",
		"set fmri(ftest_orig1.2) 1\n",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("missing %q", want)
		}
	}
	if got := elements(doc, "real", 3); !reflect.DeepEqual(got, []string{"0.0", "0.0"}) {
		t.Errorf("F row should carry no EV weights, got %v", got)
	}
	if got := strings.Count(doc, "# Mask real contrast/F-test"); got != 6 {
		t.Errorf("mask elements = %d, want 6", got)
	}
}

func TestFContrastBeforeItsMembers(t *testing.T) {
	cons := []contrast.Contrast{
		{Name: "F", Kind: contrast.F, Contrasts: []contrast.Contrast{{Name: "A", Kind: contrast.T}}},
		{Name: "A", Kind: contrast.T, Conditions: []string{"A"}, Weights: []float64{1}},
	}
	g := newTestGenerator(t, Options{Contrasts: cons})
	_, err := g.Generate(describe(twoConditionRun()))
	if !errors.Is(err, errs.ErrMalformedDescription) {
		t.Fatalf("expected ErrMalformedDescription, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(g.Dir, "run0.fsf")); !os.IsNotExist(statErr) {
		t.Errorf("no design should be written for an invalid contrast list")
	}
}

// Unknown kinds are rendered in the body but left out of the header counts.
func TestUnknownContrastKind_HeaderCountsOnlyTF(t *testing.T) {
	cons := []contrast.Contrast{
		aMinusB(),
		{Name: "odd", Kind: "Z", Conditions: []string{"A"}, Weights: []float64{2}},
	}
	g := newTestGenerator(t, Options{Contrasts: cons})
	_, doc := generate(t, g, describe(twoConditionRun()))

	if !strings.Contains(doc, "set fmri(ncon_real) 1\n") || !strings.Contains(doc, "set fmri(nftests_real) 0\n") {
		t.Errorf("header should count only T/F contrasts")
	}
	if !strings.Contains(doc, "set fmri(conname_real.2) \"odd\"") {
		t.Errorf("unknown-kind contrast should still be rendered")
	}
	if got := elements(doc, "real", 2); !reflect.DeepEqual(got, []string{"2.0", "0.0"}) {
		t.Errorf("odd row = %v", got)
	}
	if got := strings.Count(doc, "# Mask real contrast/F-test"); got != 2 {
		t.Errorf("mask covers all contrasts, got %d elements", got)
	}
}

// #endregion contrasts

// #region header
type fakeStandard struct {
	path string
	err  error
}

func (f fakeStandard) StandardImage(name string) (string, error) {
	return filepath.Join(f.path, name), f.err
}

func TestHeaderFields(t *testing.T) {
	g := newTestGenerator(t, Options{InterscanInterval: 2.5, SerialCorrelations: "AR(1)"})
	_, doc := generate(t, g, describe(twoConditionRun()))

	for _, want := range []string{
		"set fmri(tr) 2.5\n",
		"set fmri(npts) 100\n",
		"set fmri(paradigm_hp) 128.0\n",
		"set fmri(prewhiten_yn) 1\n",
		"set fmri(regstandard_yn) 0\n",
		"set feat_files(1) \"func.nii\"\n",
		"set fmri(outputdir) \"run0\"\n",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("header missing %q", want)
		}
	}
	if !strings.HasPrefix(doc, "# FEAT version number") {
		t.Errorf("document should start with the header")
	}
	if !strings.HasSuffix(doc, "set fmri(overwrite_yn) 1\n") {
		t.Errorf("document should end with the closing directive")
	}
}

func TestRegistration(t *testing.T) {
	t.Run("standard fallback", func(t *testing.T) {
		g := newTestGenerator(t, Options{Register: true, RegDOF: 12})
		g.Standard = fakeStandard{path: "/fsl/data/standard"}
		_, doc := generate(t, g, describe(twoConditionRun()))
		if !strings.Contains(doc, "set fmri(regstandard_yn) 1\n") ||
			!strings.Contains(doc, "set fmri(regstandard) \"/fsl/data/standard/MNI152_T1_2mm_brain.nii.gz\"") ||
			!strings.Contains(doc, "set fmri(regstandard_dof) 12\n") {
			t.Errorf("registration header not filled")
		}
	})

	t.Run("explicit image", func(t *testing.T) {
		ref := filepath.Join(t.TempDir(), "ref.nii.gz")
		if err := os.WriteFile(ref, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		g := newTestGenerator(t, Options{Register: true, RegImage: ref, RegDOF: 6})
		_, doc := generate(t, g, describe(twoConditionRun()))
		if !strings.Contains(doc, "set fmri(regstandard) \""+ref+"\"") {
			t.Errorf("explicit reference not used")
		}
	})

	tests := []struct {
		name string
		opts Options
		std  StandardImages
		kind error
	}{
		{"no source", Options{Register: true, RegDOF: 12}, nil, errs.ErrMissingRegistrationReference},
		{"standard unresolved", Options{Register: true, RegDOF: 12}, fakeStandard{err: errors.New("FSLDIR is not set")}, errs.ErrMissingRegistrationReference},
		{"explicit missing", Options{Register: true, RegDOF: 12, RegImage: "/no/such/ref.nii"}, fakeStandard{path: "/fsl"}, errs.ErrMissingRegistrationReference},
		{"bad dof", Options{Register: true, RegDOF: 7}, fakeStandard{path: "/fsl"}, errs.ErrMalformedDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, tt.opts)
			g.Standard = tt.std
			_, err := g.Generate(describe(twoConditionRun()))
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

// #endregion header

// #region driver
func TestGenerate_MultipleRunsAndListing(t *testing.T) {
	run1 := twoConditionRun()
	run1.Scans = []string{"func1.nii"}
	run1.Regressors = []session.Regressor{{Name: "motion", Values: []float64{1, 2}}}

	g := newTestGenerator(t, Options{
		Bases:          Bases{Kind: DoubleGamma, UseDerivative: true},
		Contrasts:      []contrast.Contrast{aMinusB()},
		ExportMatrices: true,
	})
	desc := describe(twoConditionRun(), run1)
	out, err := g.Generate(desc)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !reflect.DeepEqual(out, g.ListOutputs(desc)) {
		t.Errorf("Generate and ListOutputs disagree")
	}
	if len(out.FSFFiles) != 2 || filepath.Base(out.FSFFiles[1]) != "run1.fsf" {
		t.Errorf("FSFFiles = %v", out.FSFFiles)
	}

	written, err := filepath.Glob(filepath.Join(g.Dir, "ev_*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	listed := append([]string{}, out.EVFiles...)
	sort.Strings(listed)
	if !reflect.DeepEqual(written, listed) {
		t.Errorf("written timing files %v, listed %v", written, listed)
	}

	m, err := fio.NpytoMat64(out.MatrixFiles[1])
	if err != nil {
		t.Fatalf("read contrast matrix: %v", err)
	}
	r, c := m.Dims()
	if r != 1 || c != 5 {
		t.Errorf("contrast matrix dims = %dx%d, want 1x5", r, c)
	}
	if m.At(0, 0) != 1 || m.At(0, 1) != 0 || m.At(0, 2) != -1 {
		t.Errorf("contrast matrix row = %v, %v, %v", m.At(0, 0), m.At(0, 1), m.At(0, 2))
	}
}

func TestGenerate_IOFailure(t *testing.T) {
	g := newTestGenerator(t, Options{})
	g.Dir = filepath.Join(g.Dir, "missing", "dir")
	_, err := g.Generate(describe(twoConditionRun()))
	if !errors.Is(err, errs.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

type failingImages struct{}

func (failingImages) Volumes(path string) (int, error) {
	return 0, errs.IO("test", path, os.ErrNotExist)
}

func TestGenerate_ImageFailureAborts(t *testing.T) {
	g := newTestGenerator(t, Options{})
	g.Images = failingImages{}
	if _, err := g.Generate(describe(twoConditionRun())); !errors.Is(err, errs.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestGenerate_UnknownBasis(t *testing.T) {
	g := newTestGenerator(t, Options{})
	g.Options.Bases.Kind = "fir"
	if _, err := g.Generate(describe(twoConditionRun())); !errors.Is(err, errs.ErrMalformedDescription) {
		t.Fatalf("expected ErrMalformedDescription, got %v", err)
	}
}

// #endregion driver
