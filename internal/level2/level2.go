// Package level2 writes the design files of higher-level FEAT analyses: the
// one-group mean model, the fixed-effects design combining lower-level runs
// and the registration-only design.
package level2

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gonum/matrix/mat64"
	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/featmodel/internal/errs"
	"github.com/KyungWonPark/featmodel/internal/fsf"
	fio "github.com/KyungWonPark/featmodel/internal/io"
)

// Output file names, relative to the writer's directory.
const (
	DesignMat        = "design.mat"
	DesignCon        = "design.con"
	DesignGrp        = "design.grp"
	FixedEffectsFile = "fixedeffects.fsf"
	RegisterFile     = "register.fsf"
)

// Writer renders higher-level designs into Dir.
type Writer struct {
	Dir       string
	Templates fsf.Renderer
	Log       *log.Entry
}

// New returns a Writer for dir with the embedded templates.
func New(dir string) (*Writer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.IO("level2.New", dir, err)
	}
	return &Writer{Dir: abs, Templates: fsf.Default(), Log: log.NewEntry(log.StandardLogger())}, nil
}

func (w *Writer) logger() *log.Entry {
	if w.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return w.Log
}

// #region l2model

// ModelFiles are the three files of the group-mean model.
type ModelFiles struct {
	DesignMat string
	DesignCon string
	DesignGrp string
}

// ones is an n x 1 column of ones.
func ones(n int) *mat64.Dense {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return mat64.NewDense(n, 1, v)
}

// L2Model writes the single-EV group-mean design over numCopes inputs.
func (w *Writer) L2Model(numCopes int) (*ModelFiles, error) {
	if numCopes < 1 {
		return nil, errs.Malformedf("level2.L2Model", "need at least one cope, got %d", numCopes)
	}

	out := &ModelFiles{
		DesignMat: filepath.Join(w.Dir, DesignMat),
		DesignCon: filepath.Join(w.Dir, DesignCon),
		DesignGrp: filepath.Join(w.Dir, DesignGrp),
	}

	files := []struct {
		path   string
		header []string
		m      *mat64.Dense
		format string
	}{
		{out.DesignMat, []string{
			"/NumWaves       1",
			fmt.Sprintf("/NumPoints      %d", numCopes),
			fmt.Sprintf("/PPheights      %e", 1.0),
			"",
		}, ones(numCopes), "%e"},
		{out.DesignCon, []string{
			"/ContrastName1   group mean",
			"/NumWaves       1",
			"/NumContrasts   1",
			fmt.Sprintf("/PPheights          %e", 1.0),
			"/RequiredEffect     100.0",
			"",
		}, ones(1), "%e"},
		{out.DesignGrp, []string{
			"/NumWaves       1",
			fmt.Sprintf("/NumPoints      %d", numCopes),
			"",
		}, ones(numCopes), "%.0f"},
	}

	for _, f := range files {
		if err := fio.Mat64toVest(f.path, f.header, f.m, f.format); err != nil {
			return nil, errs.IO("level2.L2Model", f.path, err)
		}
	}

	w.logger().WithField("copes", numCopes).Info("[level2] wrote group mean model")
	return out, nil
}

// #endregion l2model

// #region fsf
type document struct {
	r   fsf.Renderer
	b   []byte
	err error
}

func (d *document) add(name string, params fsf.Params) {
	if d.err != nil {
		return
	}
	s, err := d.r.Render(name, params)
	if err != nil {
		d.err = err
		return
	}
	d.b = append(d.b, s...)
}

func (w *Writer) featDirs(d *document, dirs []string) error {
	for i, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return errs.IO("level2", dir, err)
		}
		d.add(fsf.FEFeatDirs, fsf.Params{"runno": i + 1, "rundir": abs})
	}
	return nil
}

func (w *Writer) write(name string, d *document) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	path := filepath.Join(w.Dir, name)
	if err := os.WriteFile(path, d.b, 0644); err != nil {
		return "", errs.IO("level2", path, err)
	}
	return path, nil
}

// FixedEffects writes the fixed-effects design combining numCopes copes of
// every lower-level FEAT directory.
func (w *Writer) FixedEffects(dirs []string, numCopes int) (string, error) {
	if len(dirs) == 0 {
		return "", errs.Malformedf("level2.FixedEffects", "no FEAT directories")
	}
	if numCopes < 1 {
		return "", errs.Malformedf("level2.FixedEffects", "need at least one cope, got %d", numCopes)
	}

	d := &document{r: w.Templates}
	d.add(fsf.FEHeader, fsf.Params{"num_runs": len(dirs), "num_copes": numCopes})
	for i := 1; i <= numCopes; i++ {
		d.add(fsf.FECopes, fsf.Params{"copeno": i})
	}
	if err := w.featDirs(d, dirs); err != nil {
		return "", err
	}
	d.add(fsf.FEEVHeader, nil)
	for i := 1; i <= len(dirs); i++ {
		d.add(fsf.FEEVElement, fsf.Params{"input": i})
	}
	d.add(fsf.FEFooter, fsf.Params{"overwrite": 1})

	path, err := w.write(FixedEffectsFile, d)
	if err != nil {
		return "", err
	}
	w.logger().WithFields(log.Fields{
		"runs":  len(dirs),
		"copes": numCopes,
		"fsf":   path,
	}).Info("[level2] wrote fixed effects design")
	return path, nil
}

// Register writes a registration-only design taking every FEAT directory
// to regImage with regDOF degrees of freedom.
func (w *Writer) Register(dirs []string, regImage string, regDOF int) (string, error) {
	if len(dirs) == 0 {
		return "", errs.Malformedf("level2.Register", "no FEAT directories")
	}
	switch regDOF {
	case 3, 6, 9, 12:
	default:
		return "", errs.Malformedf("level2.Register", "registration degrees of freedom must be 3, 6, 9 or 12, got %d", regDOF)
	}
	if _, err := os.Stat(regImage); err != nil {
		return "", errs.Wrap(errs.ErrMissingRegistrationReference, "level2.Register", err, "%s", regImage)
	}

	d := &document{r: w.Templates}
	d.add(fsf.RegHeader, fsf.Params{"num_runs": len(dirs), "regimage": regImage, "regdof": regDOF})
	if err := w.featDirs(d, dirs); err != nil {
		return "", err
	}
	d.add(fsf.NonGUI, fsf.Params{"overwrite": 1})

	path, err := w.write(RegisterFile, d)
	if err != nil {
		return "", err
	}
	w.logger().WithFields(log.Fields{
		"runs":     len(dirs),
		"regimage": regImage,
		"fsf":      path,
	}).Info("[level2] wrote registration design")
	return path, nil
}

// #endregion fsf
