// Package config loads the level-1 model settings shared by all runs of a
// session and publishes JSON schemas of the input documents.
package config

import (
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/KyungWonPark/featmodel/internal/contrast"
	"github.com/KyungWonPark/featmodel/internal/errs"
	"github.com/KyungWonPark/featmodel/internal/level1"
)

// Serial correlation models.
const (
	AR1  = "AR(1)"
	None = "none"
)

// Level1 is the YAML form of the first-level model settings.
type Level1 struct {
	InterscanInterval       float64             `json:"interscan_interval" yaml:"interscan_interval" jsonschema:"required,exclusiveMinimum=0"`
	Bases                   level1.Bases        `json:"bases" yaml:"bases"`
	ModelSerialCorrelations string              `json:"model_serial_correlations" yaml:"model_serial_correlations" jsonschema:"enum=AR(1),enum=none"`
	Contrasts               []contrast.Contrast `json:"contrasts,omitempty" yaml:"contrasts,omitempty"`

	Register bool   `json:"register" yaml:"register"`
	RegImage string `json:"reg_image,omitempty" yaml:"reg_image,omitempty"`
	RegDOF   int    `json:"reg_dof" yaml:"reg_dof" jsonschema:"enum=3,enum=6,enum=9,enum=12"`

	ExportMatrices bool `json:"export_matrices" yaml:"export_matrices"`

	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogJSON  bool   `json:"log_json" yaml:"log_json"`
}

// DefaultLevel1 returns the settings used for anything the file leaves out.
// Prewhitening is off unless model_serial_correlations asks for AR(1).
func DefaultLevel1() Level1 {
	return Level1{
		Bases:                   level1.Bases{Kind: level1.DoubleGamma},
		ModelSerialCorrelations: None,
		RegDOF:                  12,
		LogLevel:                "info",
	}
}

func (c Level1) Validate() error {
	if c.InterscanInterval <= 0 {
		return errs.Malformedf("config", "interscan_interval must be > 0, got %v", c.InterscanInterval)
	}
	switch c.Bases.Kind {
	case level1.Gamma, level1.DoubleGamma:
	default:
		return errs.Malformedf("config", "unknown basis %q", c.Bases.Kind)
	}
	switch c.ModelSerialCorrelations {
	case AR1, None, "":
	default:
		return errs.Malformedf("config", "model_serial_correlations must be %q or %q, got %q", AR1, None, c.ModelSerialCorrelations)
	}
	if c.Register {
		switch c.RegDOF {
		case 3, 6, 9, 12:
		default:
			return errs.Malformedf("config", "reg_dof must be 3, 6, 9 or 12, got %d", c.RegDOF)
		}
	}
	return nil
}

// Options converts the settings into generator options.
func (c Level1) Options() level1.Options {
	return level1.Options{
		InterscanInterval:  c.InterscanInterval,
		Bases:              c.Bases,
		SerialCorrelations: c.ModelSerialCorrelations,
		Contrasts:          c.Contrasts,
		Register:           c.Register,
		RegImage:           c.RegImage,
		RegDOF:             c.RegDOF,
		ExportMatrices:     c.ExportMatrices,
	}
}

// Logging resolves the log settings: command-line values win when set,
// the file's values apply otherwise.
func (c Level1) Logging(flagLevel string, levelSet bool, flagJSON, jsonSet bool) (level string, asJSON bool) {
	level, asJSON = c.LogLevel, c.LogJSON
	if levelSet || level == "" {
		level = flagLevel
	}
	if jsonSet {
		asJSON = flagJSON
	}
	return level, asJSON
}

// LoadLevel1 reads a YAML settings file over the defaults. Unknown keys are
// rejected. The result is not validated, so flags can still fill it in.
func LoadLevel1(path string) (Level1, error) {
	cfg := DefaultLevel1()

	f, err := os.Open(path)
	if err != nil {
		return cfg, errs.IO("config.LoadLevel1", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errs.Wrap(errs.ErrMalformedDescription, "config.LoadLevel1", err, "%s", path)
	}
	return cfg, nil
}
