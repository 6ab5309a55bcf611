// Package todotxt reads and writes tasks in the todo.txt line format and
// computes recurrence dates.
package todotxt

import (
	"fmt"
	"slices"
	"strings"
)

// Task is one todo.txt line plus its note. ID is the position in the
// loaded list and is never written to disk.
type Task struct {
	ID            int
	Subject       string
	Priority      Priority
	CreateDate    Date
	DueDate       Date
	ThresholdDate Date
	FinishDate    Date
	Finished      bool
	Flagged       bool
	Hidden        bool
	Tags          Tags
	Recurrence    *Recurrence
	Note          Note

	noteTag string
}

// New returns an empty, unprioritised task.
func New(subject string) *Task {
	return &Task{Subject: subject, Priority: PriorityNone}
}

// Line serialises t. The note marker is appended only when the note is
// backed by a file, so an empty note never leaves a trailing space.
func (t *Task) Line() string {
	parts := make([]string, 0, 8+len(t.Tags))
	if t.Finished {
		parts = append(parts, "x", t.FinishDate.String())
	}
	if !t.Priority.IsNone() {
		parts = append(parts, "("+t.Priority.String()+")")
	}
	if !t.CreateDate.IsZero() {
		parts = append(parts, t.CreateDate.String())
	}
	if t.Subject != "" {
		parts = append(parts, t.Subject)
	}
	for _, tag := range t.Tags {
		parts = append(parts, tag.String())
	}
	if !t.DueDate.IsZero() {
		parts = append(parts, tagDue+":"+t.DueDate.String())
	}
	if !t.ThresholdDate.IsZero() {
		parts = append(parts, tagThreshold+":"+t.ThresholdDate.String())
	}
	if t.Recurrence != nil {
		parts = append(parts, tagRecur+":"+t.Recurrence.String())
	}
	if t.Hidden {
		parts = append(parts, tagHidden+":1")
	}
	if t.Flagged {
		parts = append(parts, tagFlagged+":1")
	}
	if ref := t.Note.Ref(); ref != "" {
		parts = append(parts, t.NoteTag()+":"+ref)
	}
	return strings.Join(parts, " ")
}

func (t *Task) String() string { return t.Line() }

// NoteTag is the tag name this task's note is written under.
func (t *Task) NoteTag() string {
	if t.noteTag == "" {
		return ParseOptions{}.noteTag()
	}
	return t.noteTag
}

// SetTag sets the first key tag to value, adding it when missing. Keys
// with a field of their own (due, t, rec, h, f and the note tag) are
// refused; edit the line to change those.
func (t *Task) SetTag(key, value string) error {
	if err := t.checkTagKey(key); err != nil {
		return err
	}
	tag, ok := splitTag(key + ":" + value)
	if !ok || tag.Value != value || strings.ContainsAny(value, " \t\n") {
		return fmt.Errorf("invalid tag value %q", value)
	}
	t.Tags.Set(key, value)
	return nil
}

// DeleteTag removes every key tag.
func (t *Task) DeleteTag(key string) error {
	if err := t.checkTagKey(key); err != nil {
		return err
	}
	if _, ok := t.Tags.Get(key); !ok {
		return fmt.Errorf("task has no %s: tag", key)
	}
	t.Tags.Delete(key)
	return nil
}

func (t *Task) checkTagKey(key string) error {
	if !isTagKey(key) {
		return fmt.Errorf("invalid tag key %q", key)
	}
	if t.reserved(key) {
		return fmt.Errorf("%s: is a task field; edit the task to change it", key)
	}
	return nil
}

// Complete marks t done on today.
func (t *Task) Complete(today Date) {
	t.Finished = true
	t.FinishDate = today
}

func (t *Task) Uncomplete() {
	t.Finished = false
	t.FinishDate = Date{}
}

// Deferred reports whether t has a threshold date after today.
func (t *Task) Deferred(today Date) bool {
	return !t.ThresholdDate.IsZero() && t.ThresholdDate.After(today)
}

func (t *Task) Overdue(today Date) bool {
	return !t.Finished && !t.DueDate.IsZero() && t.DueDate.Before(today)
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	c.Tags = t.Tags.Clone()
	if t.Recurrence != nil {
		r := *t.Recurrence
		c.Recurrence = &r
	}
	return &c
}

// Next builds the successor of a recurring task completed on today, or
// returns nil when t does not recur. A strict recurrence with a due date is
// anchored on that due date, everything else on today. The threshold date,
// when set, moves by the same period from its own value.
func (t *Task) Next(today Date) *Task {
	if t.Recurrence == nil {
		return nil
	}
	rec := *t.Recurrence

	anchor := today
	if rec.Strict && !t.DueDate.IsZero() {
		anchor = t.DueDate
	}

	next := t.Clone()
	next.Uncomplete()
	next.CreateDate = today
	next.DueDate = rec.Apply(anchor)
	if !t.ThresholdDate.IsZero() {
		next.ThresholdDate = rec.Apply(t.ThresholdDate)
	}
	return next
}

// Projects lists the +project words of the subject, in order, without the prefix.
func (t *Task) Projects() []string { return t.words('+') }

// Contexts lists the @context words of the subject.
func (t *Task) Contexts() []string { return t.words('@') }

// Hashtags lists the #hashtag words of the subject.
func (t *Task) Hashtags() []string { return t.words('#') }

func (t *Task) words(prefix byte) []string {
	var out []string
	for _, w := range strings.Fields(t.Subject) {
		if len(w) < 2 || w[0] != prefix {
			continue
		}
		if name := w[1:]; !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Compare orders tasks for display: due date ascending with undated tasks
// first, then priority with A ranking highest, then subject.
func Compare(a, b *Task) int {
	if c := a.DueDate.Compare(b.DueDate); c != 0 {
		return c
	}
	if c := a.Priority.Compare(b.Priority); c != 0 {
		return c
	}
	return strings.Compare(a.Subject, b.Subject)
}

// SortForDisplay sorts tasks ascending by Compare and then reverses the
// slice, which is the order task lists are shown in.
func SortForDisplay(tasks []*Task) {
	slices.SortStableFunc(tasks, Compare)
	slices.Reverse(tasks)
}
