package level2

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KyungWonPark/featmodel/internal/errs"
	"github.com/KyungWonPark/featmodel/internal/fsf"
	fio "github.com/KyungWonPark/featmodel/internal/io"
	"github.com/KyungWonPark/featmodel/internal/logging"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	return &Writer{Dir: t.TempDir(), Templates: fsf.Default(), Log: logging.Discard()}
}

func read(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(raw)
}

func TestL2Model(t *testing.T) {
	w := newTestWriter(t)
	out, err := w.L2Model(3)
	if err != nil {
		t.Fatalf("L2Model failed: %v", err)
	}

	wantMat := "/NumWaves       1\n/NumPoints      3\n/PPheights      1.000000e+00\n\n/Matrix\n1.000000e+00\n1.000000e+00\n1.000000e+00"
	if got := read(t, out.DesignMat); got != wantMat {
		t.Errorf("design.mat:\n%q\nwant\n%q", got, wantMat)
	}

	wantCon := "/ContrastName1   group mean\n/NumWaves       1\n/NumContrasts   1\n/PPheights          1.000000e+00\n/RequiredEffect     100.0\n\n/Matrix\n1.000000e+00"
	if got := read(t, out.DesignCon); got != wantCon {
		t.Errorf("design.con:\n%q\nwant\n%q", got, wantCon)
	}

	wantGrp := "/NumWaves       1\n/NumPoints      3\n\n/Matrix\n1\n1\n1"
	if got := read(t, out.DesignGrp); got != wantGrp {
		t.Errorf("design.grp:\n%q\nwant\n%q", got, wantGrp)
	}

	if n, err := fio.VestNumWaves(out.DesignMat); err != nil || n != 1 {
		t.Errorf("design.mat NumWaves = %d, %v", n, err)
	}
}

func TestL2Model_NoCopes(t *testing.T) {
	if _, err := newTestWriter(t).L2Model(0); !errors.Is(err, errs.ErrMalformedDescription) {
		t.Fatalf("expected ErrMalformedDescription, got %v", err)
	}
}

func TestFixedEffects(t *testing.T) {
	w := newTestWriter(t)
	dirs := []string{"/data/run0.feat", "/data/run1.feat"}

	path, err := w.FixedEffects(dirs, 2)
	if err != nil {
		t.Fatalf("FixedEffects failed: %v", err)
	}
	if filepath.Base(path) != FixedEffectsFile {
		t.Errorf("path = %q", path)
	}

	doc := read(t, path)
	for _, want := range []string{
		"set fmri(multiple) 2\n",
		"set fmri(ncopeinputs) 2\n",
		"set fmri(copeinput.1) 1\n",
		"set fmri(copeinput.2) 1\n",
		"set feat_files(1) \"/data/run0.feat\"\n",
		"set feat_files(2) \"/data/run1.feat\"\n",
		"set fmri(evg2.1) 1\n",
		"set fmri(groupmem.2) 1\n",
		"set fmri(overwrite_yn) 1\n",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("missing %q", want)
		}
	}
	if strings.Contains(doc, "copeinput.3") || strings.Contains(doc, "evg3.1") {
		t.Errorf("design lists more inputs than given")
	}
}

func TestFixedEffects_Invalid(t *testing.T) {
	w := newTestWriter(t)
	if _, err := w.FixedEffects(nil, 1); !errors.Is(err, errs.ErrMalformedDescription) {
		t.Errorf("no directories: %v", err)
	}
	if _, err := w.FixedEffects([]string{"a.feat"}, 0); !errors.Is(err, errs.ErrMalformedDescription) {
		t.Errorf("no copes: %v", err)
	}
}

func TestRegister(t *testing.T) {
	w := newTestWriter(t)
	ref := filepath.Join(t.TempDir(), "template.nii.gz")
	if err := os.WriteFile(ref, nil, 0644); err != nil {
		t.Fatal(err)
	}

	path, err := w.Register([]string{"/data/run0.feat"}, ref, 9)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	doc := read(t, path)
	for _, want := range []string{
		"set fmri(multiple) 1\n",
		"set fmri(regstandard) \"" + ref + "\"\n",
		"set fmri(regstandard_dof) 9\n",
		"set feat_files(1) \"/data/run0.feat\"\n",
		"set fmri(overwrite_yn) 1\n",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("missing %q", want)
		}
	}

	tests := []struct {
		name string
		ref  string
		dof  int
		kind error
	}{
		{"missing reference", "/no/such/ref.nii.gz", 12, errs.ErrMissingRegistrationReference},
		{"bad dof", ref, 5, errs.ErrMalformedDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := w.Register([]string{"a.feat"}, tt.ref, tt.dof); !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}
