package todotxt

import "fmt"

// Priority is the ordinal of a todo.txt priority letter: A is 0, Z is 25.
// PriorityNone (26) marks a task without priority.
type Priority uint8

const (
	PriorityA    Priority = 0
	PriorityZ    Priority = 25
	PriorityNone Priority = 26
)

func ParsePriority(s string) (Priority, error) {
	if len(s) != 1 || s[0] < 'A' || s[0] > 'Z' {
		return PriorityNone, fmt.Errorf("invalid priority %q: want a single letter A-Z", s)
	}
	return Priority(s[0] - 'A'), nil
}

func (p Priority) IsNone() bool { return p >= PriorityNone }

func (p Priority) String() string {
	if p.IsNone() {
		return ""
	}
	return string(rune('A' + p))
}

// Compare ranks priorities by importance: it returns +1 when p outranks o,
// so A compares greater than B and any letter greater than PriorityNone.
func (p Priority) Compare(o Priority) int {
	switch {
	case p == o:
		return 0
	case p < o:
		return 1
	default:
		return -1
	}
}
