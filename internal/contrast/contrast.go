// Package contrast holds T and F contrast definitions and the checks the
// design generator relies on before rendering them.
package contrast

import (
	"github.com/gonum/matrix/mat64"
	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/featmodel/internal/errs"
)

// Kind is the statistic of a contrast.
type Kind string

const (
	T Kind = "T"
	F Kind = "F"
)

// Contrast is a named linear combination of EVs (T) or a group of earlier T
// contrasts (F). Sessions is accepted for compatibility and applies to all
// sessions.
type Contrast struct {
	Name       string     `json:"name" yaml:"name" jsonschema:"required"`
	Kind       Kind       `json:"kind" yaml:"kind" jsonschema:"required,enum=T,enum=F"`
	Conditions []string   `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Weights    []float64  `json:"weights,omitempty" yaml:"weights,omitempty"`
	Sessions   []int      `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	Contrasts  []Contrast `json:"contrasts,omitempty" yaml:"contrasts,omitempty"`
}

// WeightOf returns the declared weight of ev, or 0 when the contrast does not
// mention it. The first mention wins.
func (c Contrast) WeightOf(ev string) float64 {
	for i, name := range c.Conditions {
		if name == ev && i < len(c.Weights) {
			return c.Weights[i]
		}
	}
	return 0.0
}

// Count returns the number of T and F contrasts. Other kinds are not counted.
func Count(list []Contrast) (nT, nF int) {
	for _, c := range list {
		switch c.Kind {
		case T:
			nT++
		case F:
			nF++
		}
	}
	return nT, nF
}

// Validate checks weight lists and that every F contrast only groups T
// contrasts defined earlier in the list. Unknown kinds are reported on
// logger and left in place.
func Validate(list []Contrast, logger *log.Entry) error {
	seenT := make(map[string]bool)
	names := make(map[string]bool)

	for i, c := range list {
		if c.Name == "" {
			return errs.Malformedf("contrast", "contrast %d has no name", i+1)
		}
		if names[c.Name] {
			return errs.Malformedf("contrast", "duplicate contrast name %q", c.Name)
		}
		names[c.Name] = true

		switch c.Kind {
		case T:
			if len(c.Conditions) != len(c.Weights) {
				return errs.Malformedf("contrast", "%q: %d conditions for %d weights", c.Name, len(c.Conditions), len(c.Weights))
			}
			seenT[c.Name] = true
		case F:
			if len(c.Contrasts) == 0 {
				return errs.Malformedf("contrast", "F contrast %q groups no T contrasts", c.Name)
			}
			for _, member := range c.Contrasts {
				if !seenT[member.Name] {
					return errs.Malformedf("contrast", "F contrast %q refers to %q, which is not an earlier T contrast", c.Name, member.Name)
				}
			}
		default:
			logger.WithFields(log.Fields{
				"contrast": c.Name,
				"kind":     c.Kind,
			}).Warn(errs.New(errs.ErrUnknownContrastKind, "contrast", "%q", c.Kind))
		}
	}
	return nil
}

// Positions maps contrast names to their 1-based list position.
func Positions(list []Contrast) map[string]int {
	pos := make(map[string]int, len(list))
	for i, c := range list {
		pos[c.Name] = i + 1
	}
	return pos
}

// Matrix lays out the contrast weights as a contrasts x EVs matrix, one row
// per contrast in list order and one column per name in evNames.
func Matrix(list []Contrast, evNames []string) *mat64.Dense {
	if len(list) == 0 || len(evNames) == 0 {
		return nil
	}
	m := mat64.NewDense(len(list), len(evNames), nil)
	for i, c := range list {
		for j, ev := range evNames {
			m.Set(i, j, c.WeightOf(ev))
		}
	}
	return m
}
