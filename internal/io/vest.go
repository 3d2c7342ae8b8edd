package io

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gonum/matrix/mat64"
)

// Mat64toVest saves Mat64 as an FSL VEST text file: the header lines, a
// /Matrix marker, then one line per row with every element printed by
// format. Lines are joined by newlines without a trailing one.
func Mat64toVest(path string, header []string, matrix *mat64.Dense, format string) error {
	lines := append([]string{}, header...)
	lines = append(lines, "/Matrix")

	rows, cols := matrix.Dims()
	for row := 0; row < rows; row++ {
		parsed := make([]string, cols)
		for col := 0; col < cols; col++ {
			parsed[col] = fmt.Sprintf(format, matrix.At(row, col))
		}
		lines = append(lines, strings.Join(parsed, " "))
	}

	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("[Mat64toVest] failed to write %s: %w", path, err)
	}
	return nil
}

// VestNumWaves returns the /NumWaves value of a VEST file, or 0 when the
// file has none.
func VestNumWaves(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("[VestNumWaves] failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "/NumWaves") {
			continue
		}
		fields := strings.Fields(line)
		n, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil {
			return 0, fmt.Errorf("[VestNumWaves] %s: bad /NumWaves line %q", path, line)
		}
		return n, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("[VestNumWaves] failed to read %s: %w", path, err)
	}
	return 0, nil
}
