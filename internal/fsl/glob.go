package fsl

import (
	"path/filepath"
	"sort"
	"strconv"

	"github.com/KyungWonPark/featmodel/internal/errs"
)

// Unbounded disables the upper limit of Glob.
const Unbounded = -1

// Glob returns the matches of pattern in numeric order (cope2 before
// cope10) and fails with ErrUnexpectedOutputs unless there are at least min
// and, when max is not Unbounded, at most max of them.
func Glob(pattern string, min, max int) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errs.Malformedf("fsl.Glob", "bad pattern %q: %v", pattern, err)
	}
	sort.SliceStable(matches, func(i, j int) bool { return numericLess(matches[i], matches[j]) })

	if len(matches) < min || (max != Unbounded && len(matches) > max) {
		return nil, errs.New(errs.ErrUnexpectedOutputs, "fsl.Glob", "%s: found %d files", pattern, len(matches))
	}
	return matches, nil
}

// globOne is Glob for exactly one match.
func globOne(pattern string) (string, error) {
	m, err := Glob(pattern, 1, 1)
	if err != nil {
		return "", err
	}
	return m[0], nil
}

// numericLess orders a before b comparing runs of digits by value and
// everything else bytewise.
func numericLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := digitRun(a), digitRun(b)
		if da > 0 && db > 0 {
			na, _ := strconv.ParseUint(a[:da], 10, 64)
			nb, _ := strconv.ParseUint(b[:db], 10, 64)
			if na != nb {
				return na < nb
			}
			if da != db {
				return da < db
			}
			a, b = a[da:], b[db:]
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func digitRun(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}
