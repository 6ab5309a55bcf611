package fileio

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// RejectedSuffix names the file that collects lines which could not be
// parsed as tasks.
const RejectedSuffix = ".rejected"

// Quarantine appends lines to path+".rejected" under a timestamped header
// and syncs the file. It returns the quarantine file path.
func Quarantine(path string, lines []string, now time.Time) (string, error) {
	if len(lines) == 0 {
		return "", nil
	}
	qPath := path + RejectedSuffix

	f, err := os.OpenFile(qPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("open quarantine: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# rejected from %s at %s\n", path, now.Format(time.RFC3339))
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write quarantine: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync quarantine: %w", err)
	}
	return qPath, nil
}
