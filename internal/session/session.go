// Package session reads the per-run analysis description produced by the
// upstream model setup step: conditions, nuisance regressors, the
// high-pass cutoff and the functional scans of every run.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/KyungWonPark/featmodel/internal/errs"
)

// Condition is one experimental condition of a run.
type Condition struct {
	Name      string    `json:"name" yaml:"name" jsonschema:"required"`
	Onsets    []float64 `json:"onset" yaml:"onset"`
	Durations []float64 `json:"duration" yaml:"duration"`
}

// Duration returns the duration paired with the k-th onset.
func (c Condition) Duration(k int) float64 {
	if len(c.Durations) > 1 {
		return c.Durations[k]
	}
	return c.Durations[0]
}

// Regressor is a nuisance regressor sampled once per volume.
type Regressor struct {
	Name   string    `json:"name" yaml:"name" jsonschema:"required"`
	Values []float64 `json:"val" yaml:"val"`
}

// Run holds everything the generator needs for one scanning run.
type Run struct {
	Conditions []Condition `json:"cond" yaml:"cond"`
	Regressors []Regressor `json:"regress" yaml:"regress"`
	HighPass   float64     `json:"hpf" yaml:"hpf"`
	Scans      []string    `json:"scans" yaml:"scans" jsonschema:"required,minItems=1"`
}

// FuncFile is the functional image of the run: the first scan, without any
// ",<volume>" selector.
func (r Run) FuncFile() string {
	if len(r.Scans) == 0 {
		return ""
	}
	return strings.SplitN(r.Scans[0], ",", 2)[0]
}

// Description is the whole session: one Run per scanning run, in order.
type Description struct {
	Runs Runs `json:"session_info" yaml:"session_info" jsonschema:"required"`
}

// Runs accepts either a single run object or a list of them.
type Runs []Run

func (rs *Runs) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "{") {
		var one Run
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*rs = Runs{one}
		return nil
	}
	var many []Run
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*rs = many
	return nil
}

func (rs *Runs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var one Run
		if err := node.Decode(&one); err != nil {
			return err
		}
		*rs = Runs{one}
		return nil
	}
	var many []Run
	if err := node.Decode(&many); err != nil {
		return err
	}
	*rs = many
	return nil
}

// Load reads a description from a .json, .yaml or .yml file and validates it.
func Load(path string) (*Description, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.IO("session.Load", path, err)
	}

	var desc Description
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &desc)
	default:
		err = json.Unmarshal(raw, &desc)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrMalformedDescription, "session.Load", err, "%s", path)
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Validate checks the duration invariant, name uniqueness and that every run
// names a functional image.
func (d *Description) Validate() error {
	if len(d.Runs) == 0 {
		return errs.Malformedf("session", "no runs")
	}
	for i, run := range d.Runs {
		if err := run.validate(); err != nil {
			return errs.Wrap(errs.ErrMalformedDescription, "session", err, "run %d", i)
		}
	}
	return nil
}

// DerivativeSuffix is appended to a condition name to name its temporal
// derivative, so it is reserved in user-supplied names.
const DerivativeSuffix = "TD"

func (r Run) validate() error {
	if r.FuncFile() == "" {
		return errs.Malformedf("run", "no functional scan")
	}

	seen := make(map[string]bool)
	for _, c := range r.Conditions {
		if c.Name == "" {
			return errs.Malformedf("run", "condition without a name")
		}
		if seen[c.Name] {
			return errs.Malformedf("run", "duplicate name %q", c.Name)
		}
		if strings.HasSuffix(c.Name, DerivativeSuffix) {
			return errs.Malformedf("run", "condition %q ends in the reserved suffix %q", c.Name, DerivativeSuffix)
		}
		seen[c.Name] = true

		switch {
		case len(c.Onsets) == 0:
		case len(c.Durations) == 1:
		case len(c.Durations) == len(c.Onsets):
		default:
			return errs.Malformedf("run", "condition %q: %d durations for %d onsets", c.Name, len(c.Durations), len(c.Onsets))
		}
	}
	for _, reg := range r.Regressors {
		if reg.Name == "" {
			return errs.Malformedf("run", "regressor without a name")
		}
		if seen[reg.Name] {
			return errs.Malformedf("run", "duplicate name %q", reg.Name)
		}
		if strings.HasSuffix(reg.Name, DerivativeSuffix) {
			return errs.Malformedf("run", "regressor %q ends in the reserved suffix %q", reg.Name, DerivativeSuffix)
		}
		seen[reg.Name] = true
	}
	return nil
}
