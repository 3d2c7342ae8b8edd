package level1

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/featmodel/internal/session"
)

// DerivativeSuffix names the temporal-derivative EV of a condition.
const DerivativeSuffix = session.DerivativeSuffix

// Source tells where an EV's values come from.
type Source int

const (
	FromCondition Source = iota
	FromRegressor
	FromDerivative
)

// EV is one explanatory variable of a run's design.
type EV struct {
	// Index is the primary EV number, shared by a condition and its
	// derivative.
	Index int
	// Column is the position among all EVs, derivatives included.
	Column int
	Name   string
	Source Source
	// Item indexes run.Conditions or run.Regressors.
	Item int
	// TimingFile is empty for derivative EVs.
	TimingFile string
}

// EVCounts are the two EV totals of a run: Primary counts one EV per
// condition and regressor, Real adds the derivative EVs.
type EVCounts struct {
	Primary int
	Real    int
}

// EVTable is the result of EV allocation for one run.
type EVTable struct {
	EVs    []EV
	Counts EVCounts
}

// Names returns every EV name in allocation order.
func (t EVTable) Names() []string {
	names := make([]string, len(t.EVs))
	for i, ev := range t.EVs {
		names[i] = ev.Name
	}
	return names
}

// TimingFiles returns the timing file paths in allocation order.
func (t EVTable) TimingFiles() []string {
	var files []string
	for _, ev := range t.EVs {
		if ev.TimingFile != "" {
			files = append(files, ev.TimingFile)
		}
	}
	return files
}

// TimingFileName is ev_<name>_<run>_<ordinal>.txt. The ordinal is the EV's
// column, so names stay unique even when two EVs share a name.
func TimingFileName(name string, runIdx, ordinal int) string {
	return fmt.Sprintf("ev_%s_%d_%d.txt", name, runIdx, ordinal)
}

// DesignFileName is run<i>.fsf.
func DesignFileName(runIdx int) string {
	return fmt.Sprintf("run%d.fsf", runIdx)
}

// MatrixFileName is run<i>_con.npy.
func MatrixFileName(runIdx int) string {
	return fmt.Sprintf("run%d_con.npy", runIdx)
}

// AllocateEVs numbers the EVs of run: conditions first, then regressors, a
// derivative EV right after each condition when usetd is set. It touches no
// files, so generation and output listing share it.
func AllocateEVs(dir string, runIdx int, run session.Run, usetd bool) EVTable {
	var t EVTable

	for i, cond := range run.Conditions {
		t.Counts.Primary++
		t.Counts.Real++
		t.EVs = append(t.EVs, EV{
			Index:      t.Counts.Primary,
			Column:     t.Counts.Real,
			Name:       cond.Name,
			Source:     FromCondition,
			Item:       i,
			TimingFile: filepath.Join(dir, TimingFileName(cond.Name, runIdx, t.Counts.Real)),
		})

		if usetd {
			t.Counts.Real++
			t.EVs = append(t.EVs, EV{
				Index:  t.Counts.Primary,
				Column: t.Counts.Real,
				Name:   cond.Name + DerivativeSuffix,
				Source: FromDerivative,
				Item:   i,
			})
		}
	}

	for i, reg := range run.Regressors {
		t.Counts.Primary++
		t.Counts.Real++
		t.EVs = append(t.EVs, EV{
			Index:      t.Counts.Primary,
			Column:     t.Counts.Real,
			Name:       reg.Name,
			Source:     FromRegressor,
			Item:       i,
			TimingFile: filepath.Join(dir, TimingFileName(reg.Name, runIdx, t.Counts.Real)),
		})
	}

	return t
}

func isDerivativeName(name string) bool {
	return strings.HasSuffix(name, DerivativeSuffix)
}
