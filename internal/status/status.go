// Package status summarises a task list for `tasktxt status`.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/msageha/tasktxt/internal/fileio"
	"github.com/msageha/tasktxt/internal/tasklist"
	"github.com/msageha/tasktxt/internal/todotxt"
)

type Summary struct {
	Files    FilesStatus     `json:"files" yaml:"files"`
	Total    int             `json:"total" yaml:"total"`
	Open     int             `json:"open" yaml:"open"`
	Done     int             `json:"done" yaml:"done"`
	Overdue  int             `json:"overdue" yaml:"overdue"`
	DueToday int             `json:"due_today" yaml:"due_today"`
	Deferred int             `json:"deferred" yaml:"deferred"`
	Hidden   int             `json:"hidden" yaml:"hidden"`
	Flagged  int             `json:"flagged" yaml:"flagged"`
	Rejected int             `json:"rejected" yaml:"rejected"`
	Projects []ProjectStatus `json:"projects,omitempty" yaml:"projects,omitempty"`
}

type FilesStatus struct {
	Todo       string `json:"todo" yaml:"todo"`
	Done       string `json:"done" yaml:"done"`
	TodoBackup bool   `json:"todo_backup" yaml:"todo_backup"`
	DoneBackup bool   `json:"done_backup" yaml:"done_backup"`
	Rejected   bool   `json:"rejected_file" yaml:"rejected_file"`
}

type ProjectStatus struct {
	Name string `json:"name" yaml:"name"`
	Open int    `json:"open" yaml:"open"`
	Done int    `json:"done" yaml:"done"`
}

// Compute counts the tasks of l as of today.
func Compute(l *tasklist.List, today todotxt.Date) Summary {
	s := Summary{
		Files: FilesStatus{
			Todo:       l.TodoPath(),
			Done:       l.DonePath(),
			TodoBackup: exists(l.TodoPath() + fileio.BackupSuffix),
			DoneBackup: exists(l.DonePath() + fileio.BackupSuffix),
			Rejected: exists(l.TodoPath()+fileio.RejectedSuffix) ||
				exists(l.DonePath()+fileio.RejectedSuffix),
		},
		Rejected: len(l.Rejected()),
	}

	projects := map[string]*ProjectStatus{}
	for _, t := range l.Tasks() {
		s.Total++
		if t.Finished {
			s.Done++
		} else {
			s.Open++
			switch {
			case t.Overdue(today):
				s.Overdue++
			case !t.DueDate.IsZero() && t.DueDate.Equal(today):
				s.DueToday++
			}
			if t.Deferred(today) {
				s.Deferred++
			}
		}
		if t.Hidden {
			s.Hidden++
		}
		if t.Flagged {
			s.Flagged++
		}
		for _, name := range t.Projects() {
			p, ok := projects[name]
			if !ok {
				p = &ProjectStatus{Name: name}
				projects[name] = p
			}
			if t.Finished {
				p.Done++
			} else {
				p.Open++
			}
		}
	}

	for _, p := range projects {
		s.Projects = append(s.Projects, *p)
	}
	slices.SortFunc(s.Projects, func(a, b ProjectStatus) int {
		return strings.Compare(a.Name, b.Name)
	})
	return s
}

// Write prints s as text, json or yaml.
func Write(w io.Writer, s Summary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
		printSummary(w, s)
		return nil
	default:
		return fmt.Errorf("unknown status format %q", format)
	}
}

func printSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "Todo: %s\n", s.Files.Todo)
	fmt.Fprintf(w, "Done: %s\n", s.Files.Done)

	fmt.Fprintf(w, "\nTasks: %d open, %d done\n", s.Open, s.Done)
	fmt.Fprintf(w, "  overdue   %4d\n", s.Overdue)
	fmt.Fprintf(w, "  due today %4d\n", s.DueToday)
	fmt.Fprintf(w, "  deferred  %4d\n", s.Deferred)
	fmt.Fprintf(w, "  hidden    %4d\n", s.Hidden)
	fmt.Fprintf(w, "  flagged   %4d\n", s.Flagged)
	if s.Rejected > 0 {
		fmt.Fprintf(w, "\n%d unreadable line(s) will be moved to %s on the next save\n", s.Rejected, fileio.RejectedSuffix)
	}

	if len(s.Projects) > 0 {
		fmt.Fprintln(w, "\nProjects:")
		fmt.Fprintf(w, "  %-20s  %5s  %5s\n", "NAME", "OPEN", "DONE")
		for _, p := range s.Projects {
			fmt.Fprintf(w, "  %-20s  %5d  %5d\n", p.Name, p.Open, p.Done)
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
