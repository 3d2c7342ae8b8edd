// Package level1 generates FEAT first-level design files. For every run of a
// session description it writes one timing file per EV and a run<i>.fsf
// design document that cross-references them: EV blocks, the
// orthogonalisation table, T/F contrasts and the contrast mask.
//
// Runs are processed one after the other and the first failure aborts the
// whole generation. Files already written stay on disk.
package level1

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/featmodel/internal/contrast"
	"github.com/KyungWonPark/featmodel/internal/errs"
	"github.com/KyungWonPark/featmodel/internal/fsf"
	"github.com/KyungWonPark/featmodel/internal/image"
	fio "github.com/KyungWonPark/featmodel/internal/io"
	"github.com/KyungWonPark/featmodel/internal/session"
)

// DefaultStandardImage is the registration target when none is given.
const DefaultStandardImage = "MNI152_T1_2mm_brain.nii.gz"

// BasisKind is the haemodynamic response basis of condition EVs.
type BasisKind string

const (
	Gamma       BasisKind = "gamma"
	DoubleGamma BasisKind = "dgamma"
)

// Bases selects the response basis and whether condition EVs get a
// temporal-derivative companion.
type Bases struct {
	Kind          BasisKind `json:"kind" yaml:"kind" jsonschema:"enum=gamma,enum=dgamma"`
	UseDerivative bool      `json:"derivs" yaml:"derivs"`
}

// Convolution is the FEAT convolve code of the basis.
func (b Bases) Convolution() int {
	if b.Kind == DoubleGamma {
		return 3
	}
	return 2
}

// Options are the model settings shared by every run.
type Options struct {
	InterscanInterval float64
	Bases             Bases
	// SerialCorrelations is "AR(1)" to prewhiten, "none" or empty otherwise.
	SerialCorrelations string
	Contrasts          []contrast.Contrast

	Register bool
	RegImage string
	RegDOF   int

	// ExportMatrices also writes run<i>_con.npy with the contrast weights.
	ExportMatrices bool
}

// StandardImages resolves toolkit-provided standard images by file name.
type StandardImages interface {
	StandardImage(name string) (string, error)
}

// Generator writes first-level designs into Dir.
type Generator struct {
	Dir       string
	Options   Options
	Templates fsf.Renderer
	Images    image.VolumeCounter
	Standard  StandardImages
	Log       *log.Entry
}

// Outputs lists the files a generation produced.
type Outputs struct {
	FSFFiles    []string
	EVFiles     []string
	MatrixFiles []string
}

// New returns a Generator writing into dir with the embedded templates and
// the NIfTI header reader.
func New(dir string, opts Options) (*Generator, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.IO("level1.New", dir, err)
	}
	return &Generator{
		Dir:       abs,
		Options:   opts,
		Templates: fsf.Default(),
		Images:    image.NiftiHeader{},
		Log:       log.NewEntry(log.StandardLogger()),
	}, nil
}

type registration struct {
	enabled bool
	image   string
	dof     int
}

// registration resolves the reference image when registration is on.
func (g *Generator) registration() (registration, error) {
	o := g.Options
	if !o.Register {
		return registration{}, nil
	}

	switch o.RegDOF {
	case 3, 6, 9, 12:
	default:
		return registration{}, errs.Malformedf("level1", "registration degrees of freedom must be 3, 6, 9 or 12, got %d", o.RegDOF)
	}

	ref := o.RegImage
	if ref != "" {
		if _, err := os.Stat(ref); err != nil {
			return registration{}, errs.Wrap(errs.ErrMissingRegistrationReference, "level1", err, "%s", ref)
		}
		return registration{enabled: true, image: ref, dof: o.RegDOF}, nil
	}

	if g.Standard == nil {
		return registration{}, errs.New(errs.ErrMissingRegistrationReference, "level1", "no reference image and no standard image source")
	}
	ref, err := g.Standard.StandardImage(DefaultStandardImage)
	if err != nil {
		return registration{}, errs.Wrap(errs.ErrMissingRegistrationReference, "level1", err, "%s", DefaultStandardImage)
	}
	return registration{enabled: true, image: ref, dof: o.RegDOF}, nil
}

func (g *Generator) prewhiten() bool {
	return g.Options.SerialCorrelations == "AR(1)"
}

func (g *Generator) logger() *log.Entry {
	if g.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return g.Log
}

// Generate writes the timing files and the design document of every run of
// desc, in run order.
func (g *Generator) Generate(desc *session.Description) (*Outputs, error) {
	switch g.Options.Bases.Kind {
	case Gamma, DoubleGamma:
	default:
		return nil, errs.Malformedf("level1", "unknown basis %q", g.Options.Bases.Kind)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if err := contrast.Validate(g.Options.Contrasts, g.logger()); err != nil {
		return nil, err
	}

	reg, err := g.registration()
	if err != nil {
		return nil, err
	}
	nTcon, nFcon := contrast.Count(g.Options.Contrasts)

	for i, run := range desc.Runs {
		funcFile := run.FuncFile()
		nvols, err := g.Images.Volumes(funcFile)
		if err != nil {
			return nil, err
		}

		table, body, err := g.assemble(i, run)
		if err != nil {
			return nil, err
		}

		d := &document{r: g.Templates}
		d.add(fsf.HeaderL1, fsf.Params{
			"run_num":                 i,
			"interscan_interval":      g.Options.InterscanInterval,
			"num_vols":                nvols,
			"prewhiten":               g.prewhiten(),
			"num_evs":                 table.Counts.Primary,
			"num_evs_real":            table.Counts.Real,
			"num_tcon":                nTcon,
			"num_fcon":                nFcon,
			"high_pass_filter_cutoff": run.HighPass,
			"func_file":               funcFile,
			"register":                reg.enabled,
			"reg_image":               reg.image,
			"reg_dof":                 reg.dof,
		})
		d.b.WriteString(body)
		d.add(fsf.NonGUI, fsf.Params{"overwrite": 1})
		if d.err != nil {
			return nil, d.err
		}

		fsfPath := filepath.Join(g.Dir, DesignFileName(i))
		if err := os.WriteFile(fsfPath, []byte(d.b.String()), 0644); err != nil {
			return nil, errs.IO("level1.Generate", fsfPath, err)
		}

		if g.exportsMatrix(table) {
			m := contrast.Matrix(g.Options.Contrasts, table.Names())
			npyPath := filepath.Join(g.Dir, MatrixFileName(i))
			if err := fio.Mat64toNpy(npyPath, m); err != nil {
				return nil, errs.IO("level1.Generate", npyPath, err)
			}
		}

		g.logger().WithFields(log.Fields{
			"run":          i,
			"fsf":          fsfPath,
			"volumes":      nvols,
			"evs":          table.Counts.Primary,
			"evs_real":     table.Counts.Real,
			"t_contrasts":  nTcon,
			"f_contrasts":  nFcon,
			"registration": reg.enabled,
		}).Info("[level1] wrote design")
	}

	return g.ListOutputs(desc), nil
}

func (g *Generator) exportsMatrix(table EVTable) bool {
	return g.Options.ExportMatrices && len(g.Options.Contrasts) > 0 && table.Counts.Real > 0
}

// ListOutputs re-derives the paths Generate writes for desc without touching
// the file system.
func (g *Generator) ListOutputs(desc *session.Description) *Outputs {
	out := &Outputs{}
	for i, run := range desc.Runs {
		out.FSFFiles = append(out.FSFFiles, filepath.Join(g.Dir, DesignFileName(i)))

		table := AllocateEVs(g.Dir, i, run, g.Options.Bases.UseDerivative)
		out.EVFiles = append(out.EVFiles, table.TimingFiles()...)

		if g.exportsMatrix(table) {
			out.MatrixFiles = append(out.MatrixFiles, filepath.Join(g.Dir, MatrixFileName(i)))
		}
	}
	return out
}
