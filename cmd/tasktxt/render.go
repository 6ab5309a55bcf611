package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/msageha/tasktxt/internal/todotxt"
	"github.com/msageha/tasktxt/internal/view"
)

var colors = struct {
	PriorityA lipgloss.Color
	PriorityB lipgloss.Color
	PriorityC lipgloss.Color
	Muted     lipgloss.Color
	Overdue   lipgloss.Color
	Today     lipgloss.Color
	Project   lipgloss.Color
	Context   lipgloss.Color
	Header    lipgloss.Color
}{
	PriorityA: lipgloss.Color("#D63031"),
	PriorityB: lipgloss.Color("#FDCB6E"),
	PriorityC: lipgloss.Color("#00B894"),
	Muted:     lipgloss.Color("#636E72"),
	Overdue:   lipgloss.Color("#D63031"),
	Today:     lipgloss.Color("#FDCB6E"),
	Project:   lipgloss.Color("#A29BFE"),
	Context:   lipgloss.Color("#74B9FF"),
	Header:    lipgloss.Color("#6C5CE7"),
}

// styles are bound to the output writer so colour is dropped when it is
// not a terminal.
type styles struct {
	id       lipgloss.Style
	priority map[todotxt.Priority]lipgloss.Style
	done     lipgloss.Style
	overdue  lipgloss.Style
	dueToday lipgloss.Style
	project  lipgloss.Style
	context  lipgloss.Style
	header   lipgloss.Style
	muted    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		id: r.NewStyle().Foreground(colors.Muted).Width(4).Align(lipgloss.Right),
		priority: map[todotxt.Priority]lipgloss.Style{
			todotxt.PriorityA:     r.NewStyle().Foreground(colors.PriorityA).Bold(true),
			todotxt.PriorityA + 1: r.NewStyle().Foreground(colors.PriorityB),
			todotxt.PriorityA + 2: r.NewStyle().Foreground(colors.PriorityC),
		},
		done:     r.NewStyle().Foreground(colors.Muted).Strikethrough(true),
		overdue:  r.NewStyle().Foreground(colors.Overdue).Bold(true),
		dueToday: r.NewStyle().Foreground(colors.Today),
		project:  r.NewStyle().Foreground(colors.Project),
		context:  r.NewStyle().Foreground(colors.Context),
		header:   r.NewStyle().Foreground(colors.Header).Bold(true).Underline(true),
		muted:    r.NewStyle().Foreground(colors.Muted),
	}
}

// task renders one line: the id, then the task as it is stored.
func (s styles) task(t *todotxt.Task, today todotxt.Date) string {
	id := s.id.Render(fmt.Sprint(t.ID))
	if t.Finished {
		return id + " " + s.done.Render(t.Line())
	}

	words := strings.Fields(t.Line())
	for i, w := range words {
		switch {
		case i == 0 && !t.Priority.IsNone():
			if st, ok := s.priority[t.Priority]; ok {
				words[i] = st.Render(w)
			}
		case strings.HasPrefix(w, "+") && len(w) > 1:
			words[i] = s.project.Render(w)
		case strings.HasPrefix(w, "@") && len(w) > 1:
			words[i] = s.context.Render(w)
		case strings.HasPrefix(w, "due:"):
			switch {
			case t.Overdue(today):
				words[i] = s.overdue.Render(w)
			case t.DueDate.Equal(today):
				words[i] = s.dueToday.Render(w)
			}
		}
	}
	return id + " " + strings.Join(words, " ")
}

func (s styles) list(w io.Writer, tasks []*todotxt.Task, today todotxt.Date) {
	for _, t := range tasks {
		fmt.Fprintln(w, s.task(t, today))
	}
}

func (s styles) agenda(w io.Writer, tasks []*todotxt.Task, today todotxt.Date) {
	for i, b := range view.AgendaBuckets(tasks, today) {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, s.header.Render(b.Title))
		s.list(w, b.Tasks, today)
	}
}

func (s styles) summary(w io.Writer, shown, total int) {
	fmt.Fprintln(w, s.muted.Render(fmt.Sprintf("--\n%d of %d task(s) shown", shown, total)))
}
