// Package view projects a task snapshot onto one display surface.
package view

import (
	"slices"
	"strings"

	"github.com/msageha/tasktxt/internal/todotxt"
)

// Policy holds the visibility toggles. It decides what is displayed,
// never what is stored.
type Policy struct {
	Done     bool `yaml:"show_done" json:"show_done"`
	Deferred bool `yaml:"show_deferred" json:"show_deferred"`
	Hidden   bool `yaml:"show_hidden" json:"show_hidden"`
}

// Visible reports whether policy lets t through.
func (p Policy) Visible(t *todotxt.Task, today todotxt.Date) bool {
	return (p.Done || !t.Finished) &&
		(p.Hidden || !t.Hidden) &&
		(p.Deferred || !t.Deferred(today))
}

// View selects the tasks one display surface shows. Implementations must
// not modify the snapshot.
type View interface {
	Name() string
	Tasks(snapshot []*todotxt.Task, policy Policy, today todotxt.Date) []*todotxt.Task
}

// Render applies v and sorts the result for display.
func Render(v View, snapshot []*todotxt.Task, policy Policy, today todotxt.Date) []*todotxt.Task {
	tasks := v.Tasks(snapshot, policy, today)
	todotxt.SortForDisplay(tasks)
	return tasks
}

func filter(snapshot []*todotxt.Task, keep func(*todotxt.Task) bool) []*todotxt.Task {
	var out []*todotxt.Task
	for _, t := range snapshot {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Inbox shows visible tasks that are not yet filed under a project or a
// context.
type Inbox struct{}

func (Inbox) Name() string { return "inbox" }

func (Inbox) Tasks(snapshot []*todotxt.Task, p Policy, today todotxt.Date) []*todotxt.Task {
	return filter(snapshot, func(t *todotxt.Task) bool {
		return p.Visible(t, today) && len(t.Projects()) == 0 && len(t.Contexts()) == 0
	})
}

// Flag shows flagged tasks.
type Flag struct{}

func (Flag) Name() string { return "flag" }

func (Flag) Tasks(snapshot []*todotxt.Task, p Policy, today todotxt.Date) []*todotxt.Task {
	return filter(snapshot, func(t *todotxt.Task) bool {
		return t.Flagged && p.Visible(t, today)
	})
}

// Done shows finished tasks whatever the Done toggle says. Only the
// Hidden toggle applies.
type Done struct{}

func (Done) Name() string { return "done" }

func (Done) Tasks(snapshot []*todotxt.Task, p Policy, _ todotxt.Date) []*todotxt.Task {
	return filter(snapshot, func(t *todotxt.Task) bool {
		return t.Finished && (p.Hidden || !t.Hidden)
	})
}

// Search matches Query against the subject, ignoring case. The policy
// does not apply: a search looks through everything.
type Search struct {
	Query string
}

func (Search) Name() string { return "search" }

func (s Search) Tasks(snapshot []*todotxt.Task, _ Policy, _ todotxt.Date) []*todotxt.Task {
	q := strings.ToLower(s.Query)
	return filter(snapshot, func(t *todotxt.Task) bool {
		return strings.Contains(strings.ToLower(t.Subject), q)
	})
}

// Project shows visible tasks carrying the +project v.
type Project string

func (v Project) Name() string { return "project:" + string(v) }

func (v Project) Tasks(snapshot []*todotxt.Task, p Policy, today todotxt.Date) []*todotxt.Task {
	return tagged(snapshot, p, today, string(v), (*todotxt.Task).Projects)
}

// Context shows visible tasks carrying the @context v.
type Context string

func (v Context) Name() string { return "context:" + string(v) }

func (v Context) Tasks(snapshot []*todotxt.Task, p Policy, today todotxt.Date) []*todotxt.Task {
	return tagged(snapshot, p, today, string(v), (*todotxt.Task).Contexts)
}

// Hashtag shows visible tasks carrying the #hashtag v.
type Hashtag string

func (v Hashtag) Name() string { return "hashtag:" + string(v) }

func (v Hashtag) Tasks(snapshot []*todotxt.Task, p Policy, today todotxt.Date) []*todotxt.Task {
	return tagged(snapshot, p, today, string(v), (*todotxt.Task).Hashtags)
}

func tagged(snapshot []*todotxt.Task, p Policy, today todotxt.Date, name string, words func(*todotxt.Task) []string) []*todotxt.Task {
	return filter(snapshot, func(t *todotxt.Task) bool {
		return p.Visible(t, today) && slices.Contains(words(t), name)
	})
}
