package fileio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestQuarantine_AppendsWithHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.txt")
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	q, err := Quarantine(path, []string{"garbage (((", "x 2024-13-01 bad"}, now)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if q != path+RejectedSuffix {
		t.Errorf("path: got %q", q)
	}
	if _, err := Quarantine(path, []string{"(a) again"}, now.Add(time.Hour)); err != nil {
		t.Fatalf("second Quarantine: %v", err)
	}

	data, err := os.ReadFile(q)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := string(data)
	for _, want := range []string{
		"# rejected from " + path + " at 2024-01-05T09:00:00Z\n",
		"garbage (((\n",
		"x 2024-13-01 bad\n",
		"at 2024-01-05T10:00:00Z\n(a) again\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("quarantine file missing %q:\n%s", want, got)
		}
	}
}

func TestQuarantine_NothingToDo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.txt")
	q, err := Quarantine(path, nil, time.Now())
	if err != nil || q != "" {
		t.Fatalf("got %q, %v", q, err)
	}
	if _, err := os.Stat(path + RejectedSuffix); !os.IsNotExist(err) {
		t.Error("no file should be created")
	}
}
