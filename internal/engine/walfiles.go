package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// logFileNamePattern matches the fixed "<number>.log" directory layout
// (a decimal 6-digit id), the same naming convention
// original_source/cowbpt uses for its numbered WAL segments.
var logFileNamePattern = regexp.MustCompile(`^(\d{6})\.log$`)

// logFileName formats number as the on-disk WAL file name.
func logFileName(number uint64) string {
	return fmt.Sprintf("%06d.log", number)
}

func logFilePath(dir string, number uint64) string {
	return filepath.Join(dir, logFileName(number))
}

// parseLogFileNumber extracts the numeric id from a log file's base
// name, or ok=false if name isn't a 6-digit-decimal ".log" file.
func parseLogFileNumber(name string) (number uint64, ok bool) {
	m := logFileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// listLogFiles returns every log file number present under dir, sorted
// ascending. A missing directory reports no files rather than an error,
// mirroring the "create if absent" tolerance the rest of Open extends
// to a brand-new database.
func listLogFiles(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var numbers []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := parseLogFileNumber(e.Name()); ok {
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, nil
}
