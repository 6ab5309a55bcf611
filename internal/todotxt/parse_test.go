package todotxt

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParse_Fields(t *testing.T) {
	task, err := Parse("x 2024-01-06 (B) 2024-01-01 Call Bob +work @phone #q1 due:2024-01-05 t:2024-01-02 rec:+2w h:1 f:1 pri:high note:bob.txt", ParseOptions{NotesDir: "/notes"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !task.Finished || task.FinishDate != NewDate(2024, time.January, 6) {
		t.Errorf("finish: got %v %v", task.Finished, task.FinishDate)
	}
	if task.Priority.String() != "B" {
		t.Errorf("priority: got %q, want B", task.Priority)
	}
	if task.CreateDate != NewDate(2024, time.January, 1) {
		t.Errorf("create: got %v", task.CreateDate)
	}
	if task.Subject != "Call Bob +work @phone #q1" {
		t.Errorf("subject: got %q", task.Subject)
	}
	if task.DueDate != NewDate(2024, time.January, 5) {
		t.Errorf("due: got %v", task.DueDate)
	}
	if task.ThresholdDate != NewDate(2024, time.January, 2) {
		t.Errorf("threshold: got %v", task.ThresholdDate)
	}
	if task.Recurrence == nil || *task.Recurrence != (Recurrence{Count: 2, Period: Week, Strict: true}) {
		t.Errorf("recurrence: got %+v", task.Recurrence)
	}
	if !task.Hidden || !task.Flagged {
		t.Errorf("hidden/flagged: got %v/%v", task.Hidden, task.Flagged)
	}
	if !reflect.DeepEqual(task.Tags, Tags{{Key: "pri", Value: "high"}}) {
		t.Errorf("tags: got %v", task.Tags)
	}
	if _, ok := task.Tags.Get("note"); ok {
		t.Error("note tag must be removed from tags")
	}
	if task.Note.Kind() != NoteLong || task.Note.Path() != "/notes/bob.txt" {
		t.Errorf("note: got kind=%v path=%q", task.Note.Kind(), task.Note.Path())
	}
	if got := task.Projects(); !reflect.DeepEqual(got, []string{"work"}) {
		t.Errorf("projects: got %v", got)
	}
	if got := task.Contexts(); !reflect.DeepEqual(got, []string{"phone"}) {
		t.Errorf("contexts: got %v", got)
	}
	if got := task.Hashtags(); !reflect.DeepEqual(got, []string{"q1"}) {
		t.Errorf("hashtags: got %v", got)
	}
}

func TestParse_LoneParenthesisIsSubject(t *testing.T) {
	for _, line := range []string{"Call Bob ( re: invoice )", "smile :)", "list items ) and ("} {
		task, err := Parse(line, ParseOptions{})
		if err != nil {
			t.Fatalf("Parse(%q): %v", line, err)
		}
		if task.Subject != line {
			t.Errorf("subject: got %q, want %q", task.Subject, line)
		}
		if got := task.Line(); got != line {
			t.Errorf("Line() = %q, want %q", got, line)
		}
	}
	if _, err := Parse("call () later", ParseOptions{}); err == nil {
		t.Error("a run of parentheses must still be rejected")
	}
}

func TestParse_RepeatedReservedTagLastWins(t *testing.T) {
	line := "pay rent due:2024-01-01 x:1 due:2024-02-01 rec:1w rec:1m"
	task, err := Parse(line, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if task.DueDate != NewDate(2024, time.February, 1) {
		t.Errorf("due: got %v, want the last due: value", task.DueDate)
	}
	if task.Recurrence == nil || task.Recurrence.Period != Month {
		t.Errorf("recurrence: got %+v, want the last rec: value", task.Recurrence)
	}
	want := Tags{{Key: "due", Value: "2024-01-01"}, {Key: "x", Value: "1"}, {Key: "rec", Value: "1w"}}
	if !reflect.DeepEqual(task.Tags, want) {
		t.Errorf("tags: got %v, want %v", task.Tags, want)
	}

	written := task.Line()
	if written != "pay rent due:2024-01-01 x:1 rec:1w due:2024-02-01 rec:1m" {
		t.Errorf("Line() = %q", written)
	}
	again, err := Parse(written, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse(Line()): %v", err)
	}
	if again.Line() != written {
		t.Errorf("second round trip changed the line: %q", again.Line())
	}

	// An earlier malformed copy is kept verbatim rather than failing the line.
	task, err = Parse("call due:soon due:2024-03-01", ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if task.DueDate != NewDate(2024, time.March, 1) || task.Tags[0] != (Tag{Key: "due", Value: "soon"}) {
		t.Errorf("got due=%v tags=%v", task.DueDate, task.Tags)
	}
}

func TestParse_RoundTripExact(t *testing.T) {
	lines := []string{
		"(A) 2024-01-01 Buy milk +errand @store due:2024-01-05",
		"x 2024-01-06 2024-01-01 Pay rent rec:+1m",
		"Read https://example.com/page later",
		"Meeting at 10:30 with team",
		"(Z) Plan trip url:x y:z due:2024-03-01 t:2024-02-01 rec:1y h:1 f:1",
		"x 2024-02-02 Done thing note:abc.txt",
		"call mom (re: dinner)",
	}
	for _, line := range lines {
		task, err := Parse(line, ParseOptions{})
		if err != nil {
			t.Fatalf("Parse(%q): %v", line, err)
		}
		if got := task.Line(); got != line {
			t.Errorf("round trip:\n got %q\nwant %q", got, line)
		}
	}
}

func TestParse_RoundTripReordersTags(t *testing.T) {
	line := "Water plants due:2024-01-05 @home color:green"
	task, err := Parse(line, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := task.Line()
	if out != "Water plants @home color:green due:2024-01-05" {
		t.Errorf("Line: got %q", out)
	}

	again, err := Parse(out, ParseOptions{})
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !reflect.DeepEqual(task, again) {
		t.Errorf("reparsed task differs:\n got %+v\nwant %+v", again, task)
	}
}

func TestParse_UnknownTagsKeepOrderAndDuplicates(t *testing.T) {
	task, err := Parse("Sort out b:2 a:1 b:3", ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Tags{{"b", "2"}, {"a", "1"}, {"b", "3"}}
	if !reflect.DeepEqual(task.Tags, want) {
		t.Errorf("tags: got %v, want %v", task.Tags, want)
	}
	if task.Line() != "Sort out b:2 a:1 b:3" {
		t.Errorf("Line: got %q", task.Line())
	}
}

func TestParse_NoteTagOverride(t *testing.T) {
	t.Setenv(NoteTagEnv, "memo")

	task, err := Parse("Write report memo:r.txt note:stays", ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if task.Note.Ref() != "r.txt" {
		t.Errorf("note ref: got %q", task.Note.Ref())
	}
	if v, _ := task.Tags.Get("note"); v != "stays" {
		t.Errorf("note: tag should be an ordinary tag under override, got %v", task.Tags)
	}
	if task.Line() != "Write report note:stays memo:r.txt" {
		t.Errorf("Line: got %q", task.Line())
	}
}

func TestParse_NoNoteNoTrailingSpace(t *testing.T) {
	task := MustParse("Plain task")
	if task.Note.Kind() != NoteNone {
		t.Fatalf("note kind: got %v", task.Note.Kind())
	}
	if got := task.Line(); got != "Plain task" {
		t.Errorf("Line: got %q", got)
	}

	task.Note = NewNote("unsaved text")
	if got := task.Line(); got != "Plain task" {
		t.Errorf("short note must not emit a marker: got %q", got)
	}
}

func TestParse_XWithoutDateIsSubject(t *testing.T) {
	task := MustParse("x marks the spot")
	if task.Finished {
		t.Error("x without finish date must not complete the task")
	}
	if task.Subject != "x marks the spot" {
		t.Errorf("subject: got %q", task.Subject)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"blank", "   \t "},
		{"paren token", "garbage((( ((("},
		{"quick add garbage", "garbage ((("},
		{"lowercase priority", "(a) lower"},
		{"digit priority", "(1) digit"},
		{"bad finish date", "x 2024-13-01 done"},
		{"bad create date", "(A) 2024-02-30 nope"},
		{"bad due", "task due:tomorrow"},
		{"bad due day", "task due:2024-04-31"},
		{"bad threshold", "task t:2024-1-1"},
		{"bad recurrence", "task rec:3x"},
		{"empty recurrence count", "task rec:+m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := Parse(tt.line, ParseOptions{})
			if err == nil {
				t.Fatalf("Parse(%q) succeeded with %q", tt.line, task.Line())
			}
			if task != nil {
				t.Error("no partial task may be returned on error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("want *ParseError, got %T", err)
			}
		})
	}
}
