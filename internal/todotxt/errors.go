package todotxt

import "fmt"

// ParseError reports a line that is not a valid task. No partial task is
// ever returned alongside it.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse task %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse task %q: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
