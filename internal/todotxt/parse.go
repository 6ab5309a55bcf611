package todotxt

import (
	"os"
	"strings"
)

const (
	DefaultNoteTag = "note"
	// NoteTagEnv overrides the note tag name.
	NoteTagEnv = "TODO_NOTE_TAG"

	tagDue       = "due"
	tagThreshold = "t"
	tagRecur     = "rec"
	tagHidden    = "h"
	tagFlagged   = "f"
)

// ParseOptions tunes how lines are read.
type ParseOptions struct {
	// NoteTag is the tag holding the note file name. Empty means
	// $TODO_NOTE_TAG, then "note".
	NoteTag string
	// NotesDir resolves relative note file names.
	NotesDir string
}

func (o ParseOptions) noteTag() string {
	if o.NoteTag != "" {
		return o.NoteTag
	}
	if tag := os.Getenv(NoteTagEnv); tag != "" {
		return tag
	}
	return DefaultNoteTag
}

// Parse reads one todo.txt line:
//
//	["x" finish_date] ["(" priority ")"] [create_date] subject_tokens...
//
// key:value tokens are pulled out of the subject; due, t, rec, h, f and the
// note tag become typed fields, every other tag is kept in order.
func Parse(line string, opts ParseOptions) (*Task, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, &ParseError{Line: line, Reason: "empty line"}
	}

	t := &Task{Priority: PriorityNone, noteTag: opts.noteTag()}
	i := 0

	if fields[0] == "x" && len(fields) > 1 && looksLikeDate(fields[1]) {
		d, err := ParseDate(fields[1])
		if err != nil {
			return nil, &ParseError{Line: line, Reason: "invalid finish date", Err: err}
		}
		t.Finished = true
		t.FinishDate = d
		i = 2
	}

	if i < len(fields) && isPriorityToken(fields[i]) {
		p, err := ParsePriority(fields[i][1:2])
		if err != nil {
			return nil, &ParseError{Line: line, Reason: "invalid priority", Err: err}
		}
		t.Priority = p
		i++
	}

	if i < len(fields) && looksLikeDate(fields[i]) {
		d, err := ParseDate(fields[i])
		if err != nil {
			return nil, &ParseError{Line: line, Reason: "invalid creation date", Err: err}
		}
		t.CreateDate = d
		i++
	}

	// A reserved key given more than once takes its last value; the earlier
	// tokens are kept as ordinary tags so that nothing is lost on write.
	last := make(map[string]int)
	for j := i; j < len(fields); j++ {
		if tag, ok := splitTag(fields[j]); ok && t.reserved(tag.Key) {
			last[tag.Key] = j
		}
	}

	var words []string
	var noteRef string
	for ; i < len(fields); i++ {
		f := fields[i]
		if isParenthesesRun(f) {
			return nil, &ParseError{Line: line, Reason: "malformed priority token " + f}
		}
		tag, ok := splitTag(f)
		if !ok {
			words = append(words, f)
			continue
		}
		if t.reserved(tag.Key) && last[tag.Key] != i {
			t.Tags = append(t.Tags, tag)
			continue
		}
		switch tag.Key {
		case tagDue:
			d, err := ParseDate(tag.Value)
			if err != nil {
				return nil, &ParseError{Line: line, Reason: "invalid due date", Err: err}
			}
			t.DueDate = d
		case tagThreshold:
			d, err := ParseDate(tag.Value)
			if err != nil {
				return nil, &ParseError{Line: line, Reason: "invalid threshold date", Err: err}
			}
			t.ThresholdDate = d
		case tagRecur:
			r, err := ParseRecurrence(tag.Value)
			if err != nil {
				return nil, &ParseError{Line: line, Reason: "invalid recurrence", Err: err}
			}
			t.Recurrence = &r
		case tagHidden, tagFlagged:
			if tag.Value != "0" && tag.Value != "1" {
				t.Tags = append(t.Tags, tag)
				continue
			}
			if tag.Key == tagHidden {
				t.Hidden = tag.Value == "1"
			} else {
				t.Flagged = tag.Value == "1"
			}
		case t.noteTag:
			noteRef = tag.Value
		default:
			t.Tags = append(t.Tags, tag)
		}
	}
	t.Subject = strings.Join(words, " ")
	t.Note = NoteFromFile(opts.NotesDir, noteRef)

	return t, nil
}

// MustParse is Parse for literals in tests and examples; it panics on error.
func MustParse(line string) *Task {
	t, err := Parse(line, ParseOptions{})
	if err != nil {
		panic(err)
	}
	return t
}

func isPriorityToken(f string) bool {
	return len(f) == 3 && f[0] == '(' && f[2] == ')'
}

// isParenthesesRun matches tokens such as "((" or "(((": two or more
// characters, all parentheses. A lone "(" or ")" is subject text.
func isParenthesesRun(f string) bool {
	if len(f) < 2 {
		return false
	}
	for i := 0; i < len(f); i++ {
		if f[i] != '(' && f[i] != ')' {
			return false
		}
	}
	return true
}

func (t *Task) reserved(key string) bool {
	switch key {
	case tagDue, tagThreshold, tagRecur, tagHidden, tagFlagged:
		return true
	}
	return key == t.NoteTag()
}
