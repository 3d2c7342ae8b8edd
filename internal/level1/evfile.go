package level1

import (
	"bufio"
	"fmt"
	"os"

	"github.com/KyungWonPark/featmodel/internal/errs"
	"github.com/KyungWonPark/featmodel/internal/session"
)

// eventAmplitude marks an unmodulated event in 3-column timing files.
const eventAmplitude = 1.0

// writeTimingFile writes the timing file of ev: "onset duration amplitude"
// per event for conditions, one value per line for regressors.
func writeTimingFile(ev EV, run session.Run) error {
	f, err := os.Create(ev.TimingFile)
	if err != nil {
		return errs.IO("level1.writeTimingFile", ev.TimingFile, err)
	}

	w := bufio.NewWriter(f)
	switch ev.Source {
	case FromCondition:
		cond := run.Conditions[ev.Item]
		for k, onset := range cond.Onsets {
			fmt.Fprintf(w, "%f %f %f\n", onset, cond.Duration(k), eventAmplitude)
		}
	case FromRegressor:
		for _, v := range run.Regressors[ev.Item].Values {
			fmt.Fprintf(w, "%f\n", v)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return errs.IO("level1.writeTimingFile", ev.TimingFile, err)
	}
	if err := f.Close(); err != nil {
		return errs.IO("level1.writeTimingFile", ev.TimingFile, err)
	}
	return nil
}
