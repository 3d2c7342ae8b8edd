package fsl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/featmodel/internal/errs"
	fio "github.com/KyungWonPark/featmodel/internal/io"
)

// Tool is what every wrapper needs to run: the runner, the toolkit
// description and the working directory the tool runs in and writes to.
type Tool struct {
	Runner Runner
	Info   Info
	Dir    string
}

func (t Tool) run(ctx context.Context, args []string) error {
	if t.Runner == nil {
		return errs.Malformedf("fsl", "%s: no runner", args[0])
	}
	_, err := t.Runner.Run(ctx, Command{Args: args, Dir: t.Dir})
	return err
}

func (t Tool) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(t.Dir, p)
}

func required(op string, fields map[string]string) error {
	for name, v := range fields {
		if v == "" {
			return errs.Malformedf(op, "%s is required", name)
		}
	}
	return nil
}

// #region feat

// Feat runs a full FEAT analysis from a design file.
type Feat struct {
	Tool
	FSFFile string
}

type FeatOutputs struct {
	FeatDir string
}

func (f Feat) Cmdline() []string {
	return []string{"feat", f.FSFFile}
}

// Run starts feat and returns the first *feat directory of the working
// directory.
func (f Feat) Run(ctx context.Context) (*FeatOutputs, error) {
	if err := required("fsl.Feat", map[string]string{"fsf file": f.FSFFile}); err != nil {
		return nil, err
	}
	if err := f.run(ctx, f.Cmdline()); err != nil {
		return nil, err
	}
	dirs, err := Glob(f.path("*feat"), 1, Unbounded)
	if err != nil {
		return nil, err
	}
	return &FeatOutputs{FeatDir: dirs[0]}, nil
}

// #endregion feat

// #region feat_model

// FeatModel builds design.mat and design.con style files from a design file.
type FeatModel struct {
	Tool
	FSFFile string
}

type FeatModelOutputs struct {
	DesignFile string
	ConFile    string
}

// designRoot is the file name up to its first dot.
func designRoot(fsf string) string {
	return strings.SplitN(filepath.Base(fsf), ".", 2)[0]
}

func (f FeatModel) Cmdline() []string {
	return []string{"feat_model", designRoot(f.FSFFile)}
}

// Run expects exactly one <root>*.mat and one <root>*.con file afterwards.
func (f FeatModel) Run(ctx context.Context) (*FeatModelOutputs, error) {
	if err := required("fsl.FeatModel", map[string]string{"fsf file": f.FSFFile}); err != nil {
		return nil, err
	}
	if err := f.run(ctx, f.Cmdline()); err != nil {
		return nil, err
	}

	root := designRoot(f.FSFFile)
	mat, err := globOne(f.path(root + "*.mat"))
	if err != nil {
		return nil, err
	}
	con, err := globOne(f.path(root + "*.con"))
	if err != nil {
		return nil, err
	}
	return &FeatModelOutputs{DesignFile: mat, ConFile: con}, nil
}

// #endregion feat_model

// #region film_gls

// DefaultFilmThreshold is film_gls' default brightness threshold.
const DefaultFilmThreshold = 1000

// FilmGLS fits a design matrix to voxel time series. Integer options are
// left out of the command line when zero.
type FilmGLS struct {
	Tool
	InFile     string
	DesignFile string
	Threshold  float64

	SmoothAutocorr      bool
	MaskSize            int
	BrightnessThreshold int
	FullData            bool
	AutocorrEstimate    bool
	FitARModel          bool
	TukeyWindow         int
	MultitaperProduct   int
	UsePAVA             bool
	AutocorrNoEstimate  bool
	OutputPWData        bool
	ResultsDir          string
}

type FilmGLSOutputs struct {
	ResultsDir     string
	ParamEstimates []string
	Residual4D     string
	DOFFile        string
	SigmaSquareds  string
}

// NewFilmGLS returns a FilmGLS with the default threshold and results
// directory.
func NewFilmGLS(t Tool, infile, design string) *FilmGLS {
	return &FilmGLS{
		Tool:       t,
		InFile:     infile,
		DesignFile: design,
		Threshold:  DefaultFilmThreshold,
		ResultsDir: "results",
	}
}

func (f FilmGLS) resultsDir() string {
	if f.ResultsDir == "" {
		return "results"
	}
	return f.ResultsDir
}

func (f FilmGLS) Cmdline() []string {
	args := []string{"film_gls"}
	flag := func(on bool, s string) {
		if on {
			args = append(args, s)
		}
	}
	num := func(v int, s string) {
		if v != 0 {
			args = append(args, s, fmt.Sprint(v))
		}
	}

	flag(f.SmoothAutocorr, "-sa")
	num(f.MaskSize, "-ms")
	num(f.BrightnessThreshold, "-epith")
	flag(f.FullData, "-v")
	flag(f.AutocorrEstimate, "-ac")
	flag(f.FitARModel, "-ar")
	num(f.TukeyWindow, "-tukey")
	num(f.MultitaperProduct, "-mt")
	flag(f.UsePAVA, "-pava")
	flag(f.AutocorrNoEstimate, "-noest")
	flag(f.OutputPWData, "-output_pwdata")
	args = append(args, "-rn", f.resultsDir())

	return append(args, f.InFile, f.DesignFile, fmt.Sprintf("%f", f.Threshold))
}

func (f FilmGLS) validate() error {
	if err := required("fsl.FilmGLS", map[string]string{"input file": f.InFile, "design file": f.DesignFile}); err != nil {
		return err
	}
	if f.AutocorrEstimate && f.AutocorrNoEstimate {
		return errs.Malformedf("fsl.FilmGLS", "-ac and -noest are mutually exclusive")
	}
	if f.Threshold < 0 {
		return errs.Malformedf("fsl.FilmGLS", "negative threshold %v", f.Threshold)
	}
	return nil
}

// Run fits the model and lists one parameter estimate per design column
// (the design file's /NumWaves) in the results directory.
func (f FilmGLS) Run(ctx context.Context) (*FilmGLSOutputs, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if err := f.run(ctx, f.Cmdline()); err != nil {
		return nil, err
	}
	return f.outputs()
}

func (f FilmGLS) outputs() (*FilmGLSOutputs, error) {
	dir := f.path(f.resultsDir())
	out := &FilmGLSOutputs{
		ResultsDir: dir,
		DOFFile:    filepath.Join(dir, "dof"),
	}

	waves, err := fio.VestNumWaves(f.path(f.DesignFile))
	if err != nil {
		return nil, errs.IO("fsl.FilmGLS", f.DesignFile, err)
	}
	for k := 1; k <= waves; k++ {
		pe, err := f.Info.GenFname(dir, fmt.Sprintf("pe%d", k))
		if err != nil {
			return nil, err
		}
		out.ParamEstimates = append(out.ParamEstimates, pe)
	}

	if out.Residual4D, err = f.Info.GenFname(dir, "res4d"); err != nil {
		return nil, err
	}
	if out.SigmaSquareds, err = f.Info.GenFname(dir, "sigmasquareds"); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion film_gls

// #region flameo

// Run modes of flameo.
var flameoModes = map[string]bool{"fe": true, "ols": true, "flame1": true, "flame12": true}

// Flameo runs higher-level mixed-effects estimation.
type Flameo struct {
	Tool
	CopeFile       string
	VarCopeFile    string
	DOFVarCopeFile string
	MaskFile       string
	DesignFile     string
	TConFile       string
	FConFile       string
	CovSplitFile   string
	RunMode        string

	NJumps        int
	BurnIn        int
	SampleEvery   int
	FixMean       bool
	InferOutliers bool
	NoPEOutput    bool
	SigmaDOFs     int
	OutlierIter   int
	// StatsDir defaults to "stats" under the working directory.
	StatsDir string
	// Flags are passed through verbatim.
	Flags string
}

type FlameoOutputs struct {
	StatsDir string
	PEs      []string
	Res4D    string
	Copes    []string
	VarCopes []string
	ZStats   []string
	TStats   []string
	MREFs    []string
	TDOF     []string
	Weights  []string
}

func (f Flameo) statsDir() string {
	if f.StatsDir == "" {
		return "stats"
	}
	return f.StatsDir
}

func (f Flameo) Cmdline() []string {
	args := []string{"flameo"}
	str := func(v, name string) {
		if v != "" {
			args = append(args, "--"+name+"="+v)
		}
	}
	num := func(v int, name string) {
		if v != 0 {
			args = append(args, fmt.Sprintf("--%s=%d", name, v))
		}
	}
	flag := func(on bool, name string) {
		if on {
			args = append(args, "--"+name)
		}
	}

	str(f.CopeFile, "copefile")
	str(f.VarCopeFile, "varcopefile")
	str(f.DOFVarCopeFile, "dofvarcopefile")
	str(f.MaskFile, "maskfile")
	str(f.DesignFile, "designfile")
	str(f.TConFile, "tcontrastsfile")
	str(f.FConFile, "fcontrastsfile")
	str(f.CovSplitFile, "covsplitfile")
	str(f.RunMode, "runmode")
	num(f.NJumps, "njumps")
	num(f.BurnIn, "burnin")
	num(f.SampleEvery, "sampleevery")
	flag(f.FixMean, "fixmean")
	flag(f.InferOutliers, "inferoutliers")
	flag(f.NoPEOutput, "nopeoutput")
	num(f.SigmaDOFs, "sigma_dofs")
	num(f.OutlierIter, "ioni")
	str(f.statsDir(), "ld")

	return append(args, strings.Fields(f.Flags)...)
}

func (f Flameo) validate() error {
	if err := required("fsl.Flameo", map[string]string{
		"cope file":      f.CopeFile,
		"mask file":      f.MaskFile,
		"design file":    f.DesignFile,
		"t contrasts":    f.TConFile,
		"cov split file": f.CovSplitFile,
	}); err != nil {
		return err
	}
	if !flameoModes[f.RunMode] {
		return errs.Malformedf("fsl.Flameo", "unknown run mode %q", f.RunMode)
	}
	return nil
}

// Run removes a stale stats directory, runs flameo and collects its
// volumes. Every group except F statistics must be present.
func (f Flameo) Run(ctx context.Context) (*FlameoOutputs, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	dir := f.path(f.statsDir())
	if err := os.RemoveAll(dir); err != nil {
		return nil, errs.IO("fsl.Flameo", dir, err)
	}
	if err := f.run(ctx, f.Cmdline()); err != nil {
		return nil, err
	}
	return harvestFlameo(dir)
}

func harvestFlameo(dir string) (*FlameoOutputs, error) {
	out := &FlameoOutputs{StatsDir: dir}
	h := harvest{dir: dir}

	out.PEs = h.many("pe[0-9]*.*")
	out.Res4D = h.one("res4d.*")
	out.Copes = h.many("cope[0-9]*.*")
	out.VarCopes = h.many("varcope[0-9]*.*")
	out.ZStats = h.many("zstat[0-9]*.*")
	out.TStats = h.many("tstat[0-9]*.*")
	out.MREFs = h.many("mean_random_effects_var[0-9]*.*")
	out.TDOF = h.many("tdof_t[0-9]*.*")
	out.Weights = h.many("weights[0-9]*.*")

	if h.err != nil {
		return nil, h.err
	}
	return out, nil
}

// #endregion flameo

// #region contrast_mgr

// ContrastMgr evaluates contrasts on an existing stats directory.
type ContrastMgr struct {
	Tool
	TConFile string
	FConFile string
	StatsDir string
	// ContrastNum > 0 adds -cope.
	ContrastNum int
	Suffix      string
}

type ContrastMgrOutputs struct {
	Copes    []string
	VarCopes []string
	ZStats   []string
	TStats   []string
	FStats   []string
	Neffs    []string
}

func (c ContrastMgr) Cmdline() []string {
	args := []string{"contrast_mgr"}
	if c.FConFile != "" {
		args = append(args, "-f", c.FConFile)
	}
	if c.ContrastNum > 0 {
		args = append(args, "-cope")
	}
	if c.Suffix != "" {
		args = append(args, "-suffix", c.Suffix)
	}
	return append(args, c.StatsDir, c.TConFile)
}

// Run collects the contrast volumes from the stats directory. F statistics
// are optional.
func (c ContrastMgr) Run(ctx context.Context) (*ContrastMgrOutputs, error) {
	if err := required("fsl.ContrastMgr", map[string]string{"t contrasts": c.TConFile, "stats dir": c.StatsDir}); err != nil {
		return nil, err
	}
	if err := c.run(ctx, c.Cmdline()); err != nil {
		return nil, err
	}

	h := harvest{dir: c.path(c.StatsDir)}
	out := &ContrastMgrOutputs{
		Copes:    h.many("cope[0-9]*.*"),
		VarCopes: h.many("varcope[0-9]*.*"),
		ZStats:   h.many("zstat[0-9]*.*"),
		TStats:   h.many("tstat[0-9]*.*"),
		FStats:   h.optional("fstat[0-9]*.*"),
		Neffs:    h.many("neff[0-9]*.*"),
	}
	if h.err != nil {
		return nil, h.err
	}
	return out, nil
}

// #endregion contrast_mgr

// #region mm

// SMMLogDir is where mm writes its maps, relative to the working directory.
const SMMLogDir = "logdir"

// SMM runs spatial mixture modelling on a statistic map.
type SMM struct {
	Tool
	SpatialDataFile string
	Mask            string
	// ZFStatMode enforces no deactivation class.
	ZFStatMode bool
}

type SMMOutputs struct {
	NullPMap         string
	ActivationPMap   string
	DeactivationPMap string
}

func (s SMM) Cmdline() []string {
	args := []string{"mm", "--ld=" + SMMLogDir, "--sdf=" + s.SpatialDataFile, "--mask=" + s.Mask}
	if s.ZFStatMode {
		args = append(args, "--zfstatmode")
	}
	return args
}

// Run lists the probability maps mm writes into its log directory.
func (s SMM) Run(ctx context.Context) (*SMMOutputs, error) {
	if err := required("fsl.SMM", map[string]string{"spatial data file": s.SpatialDataFile, "mask": s.Mask}); err != nil {
		return nil, err
	}
	if err := s.run(ctx, s.Cmdline()); err != nil {
		return nil, err
	}
	return s.outputs()
}

func (s SMM) outputs() (*SMMOutputs, error) {
	dir := s.path(SMMLogDir)
	out := &SMMOutputs{}
	var err error
	if out.NullPMap, err = s.Info.GenFname(dir, "w1_mean"); err != nil {
		return nil, err
	}
	if out.ActivationPMap, err = s.Info.GenFname(dir, "w2_mean"); err != nil {
		return nil, err
	}
	if !s.ZFStatMode {
		if out.DeactivationPMap, err = s.Info.GenFname(dir, "w3_mean"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// #endregion mm

// harvest globs several output groups in one directory and keeps the first
// failure.
type harvest struct {
	dir string
	err error
}

func (h *harvest) glob(pattern string, min, max int) []string {
	if h.err != nil {
		return nil
	}
	m, err := Glob(filepath.Join(h.dir, pattern), min, max)
	if err != nil {
		h.err = err
		return nil
	}
	return m
}

func (h *harvest) many(pattern string) []string { return h.glob(pattern, 1, Unbounded) }

func (h *harvest) optional(pattern string) []string { return h.glob(pattern, 0, Unbounded) }

func (h *harvest) one(pattern string) string {
	m := h.glob(pattern, 1, 1)
	if len(m) == 0 {
		return ""
	}
	return m[0]
}
