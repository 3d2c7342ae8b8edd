package level1

import (
	"strings"

	"github.com/KyungWonPark/featmodel/internal/contrast"
	"github.com/KyungWonPark/featmodel/internal/fsf"
	"github.com/KyungWonPark/featmodel/internal/session"
)

// Contrast pass tags of the FEAT contrast section.
const (
	passReal = "real"
	passOrig = "orig"
)

// document accumulates rendered fragments and keeps the first error.
type document struct {
	r   fsf.Renderer
	b   strings.Builder
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
	d.b.WriteString(s)
}

func (d *document) newline() {
	if d.err == nil {
		d.b.WriteString("\n")
	}
}

// assemble allocates the EVs of one run, writes their timing files and
// renders the design body: EV blocks, orthogonalisation table, contrasts and
// the contrast mask.
func (g *Generator) assemble(runIdx int, run session.Run) (EVTable, string, error) {
	usetd := g.Options.Bases.UseDerivative
	table := AllocateEVs(g.Dir, runIdx, run, usetd)
	d := &document{r: g.Templates}

	for _, ev := range table.EVs {
		if ev.Source == FromDerivative {
			continue
		}
		if err := writeTimingFile(ev, run); err != nil {
			return table, "", err
		}

		switch ev.Source {
		case FromCondition:
			d.add(fsf.EVHRF, fsf.Params{
				"ev_num":        ev.Index,
				"ev_name":       ev.Name,
				"temporalderiv": usetd,
				"convolve":      g.Options.Bases.Convolution(),
				"cond_file":     ev.TimingFile,
			})
		case FromRegressor:
			d.add(fsf.EVNone, fsf.Params{
				"ev_num":    ev.Index,
				"ev_name":   ev.Name,
				"cond_file": ev.TimingFile,
			})
		}
		d.newline()
	}

	renderOrthogonalisation(d, table.Counts)
	renderContrasts(d, table, g.Options.Contrasts)
	renderContrastMask(d, len(g.Options.Contrasts))

	if d.err != nil {
		return table, "", d.err
	}
	return table, d.b.String(), nil
}

// renderOrthogonalisation emits the full EV x (baseline + EV) table.
func renderOrthogonalisation(d *document, counts EVCounts) {
	for i := 1; i <= counts.Primary; i++ {
		for j := 0; j <= counts.Primary; j++ {
			d.add(fsf.EVOrtho, fsf.Params{"c0": i, "c1": j})
			d.newline()
		}
	}
}

// renderContrasts emits one weight row per contrast in the real pass (all
// EVs) and the orig pass (derivative EVs skipped), each pass followed by the
// F-test membership of its T contrasts.
func renderContrasts(d *document, table EVTable, contrasts []contrast.Contrast) {
	positions := contrast.Positions(contrasts)

	d.add(fsf.ContrastHeader, nil)
	for _, ctype := range []string{passReal, passOrig} {
		for j, con := range contrasts {
			d.add(fsf.ContrastProlog, fsf.Params{
				"cnum":  j + 1,
				"ctype": ctype,
				"cname": con.Name,
			})

			element := 0
			for _, ev := range table.EVs {
				if ctype == passOrig && isDerivativeName(ev.Name) {
					continue
				}
				element++
				d.add(fsf.ContrastElement, fsf.Params{
					"cnum":    j + 1,
					"element": element,
					"ctype":   ctype,
					"val":     con.WeightOf(ev.Name),
				})
				d.newline()
			}
		}

		fnum := 0
		for _, con := range contrasts {
			if con.Kind != contrast.F {
				continue
			}
			fnum++
			for _, member := range con.Contrasts {
				d.add(fsf.ContrastFTest, fsf.Params{
					"ctype": ctype,
					"fnum":  fnum,
					"cnum":  positions[member.Name],
				})
				d.newline()
			}
		}
	}
}

// renderContrastMask marks every ordered pair of distinct contrasts.
func renderContrastMask(d *document, n int) {
	d.add(fsf.ContrastMaskHeader, nil)
	for j := 0; j < n; j++ {
		for k := 0; k < n; k++ {
			if j != k {
				d.add(fsf.ContrastMaskElement, fsf.Params{"c1": j + 1, "c2": k + 1})
			}
		}
	}
	d.add(fsf.ContrastMaskFooter, nil)
}
