// Package tasklist loads a task list from a todo file and a done file and
// writes it back, keeping a .bak of each file before it is overwritten.
package tasklist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/msageha/tasktxt/internal/fileio"
	"github.com/msageha/tasktxt/internal/lock"
	"github.com/msageha/tasktxt/internal/logging"
	"github.com/msageha/tasktxt/internal/todotxt"
)

type Options struct {
	Parse  todotxt.ParseOptions
	Logger *logging.Logger
	// Lock, when set, is held for the whole of Write.
	Lock *lock.FileLock
	Now  func() time.Time
}

// Rejected is a line that could not be parsed during Load. It is kept so
// the next Write can move it to <file>.rejected instead of dropping it.
type Rejected struct {
	Path   string
	LineNo int
	Text   string
	Err    error
}

// List is an ordered task collection. A task's ID is its index. Unfinished
// tasks belong to the todo file and finished ones to the done file.
type List struct {
	tasks    []*todotxt.Task
	todoPath string
	donePath string
	rejected []Rejected
	// unreadable holds files that failed part way through Load. Write
	// leaves them alone.
	unreadable map[string]error
	opts       Options
}

func New(todoPath, donePath string, opts Options) *List {
	return &List{todoPath: todoPath, donePath: donePath, opts: opts}
}

// Load reads the todo file then the done file. Ids follow file order,
// todo tasks first; blank lines do not take an id. A file that cannot be
// opened loads as empty. Lines that fail to parse are skipped, logged and
// remembered in Rejected.
func Load(todoPath, donePath string, opts Options) *List {
	l := New(todoPath, donePath, opts)
	_ = l.load(false)
	return l
}

// LoadStrict is Load, but fails on the first line that does not parse.
func LoadStrict(todoPath, donePath string, opts Options) (*List, error) {
	l := New(todoPath, donePath, opts)
	if err := l.load(true); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *List) load(strict bool) error {
	for _, path := range []string{l.todoPath, l.donePath} {
		tasks, rejected, err := l.loadFile(path, len(l.tasks), strict)
		var ioErr *IOError
		if err != nil && !strict && errors.As(err, &ioErr) {
			l.logger().Errorf("%v; %s will not be overwritten", err, path)
			if l.unreadable == nil {
				l.unreadable = make(map[string]error)
			}
			l.unreadable[path] = err
			continue
		}
		if err != nil {
			return err
		}
		l.tasks = append(l.tasks, tasks...)
		l.rejected = append(l.rejected, rejected...)
	}
	return nil
}

func (l *List) loadFile(path string, firstID int, strict bool) ([]*todotxt.Task, []Rejected, error) {
	log := l.logger()

	f, err := os.Open(path)
	if err != nil {
		log.Warnf("unable to open %q: %v", path, err)
		return nil, nil, nil
	}
	defer f.Close()

	var tasks []*todotxt.Task
	var rejected []Rejected
	id := firstID
	lineNo := 0

	// bufio.Reader rather than Scanner: a line of any length must be read,
	// or everything after it would be lost on the next Write.
	r := bufio.NewReader(f)
	for {
		raw, readErr := r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, nil, &IOError{Op: "read", Path: path, Err: readErr}
		}
		if raw != "" {
			lineNo++
			line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
			if strings.TrimSpace(line) != "" {
				task, err := todotxt.Parse(line, l.opts.Parse)
				switch {
				case err != nil && strict:
					return nil, nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
				case err != nil:
					log.Errorf("%s:%d: skipping unreadable line: %v", path, lineNo, err)
					rejected = append(rejected, Rejected{Path: path, LineNo: lineNo, Text: line, Err: err})
				default:
					task.ID = id
					id++
					tasks = append(tasks, task)
				}
			}
		}
		if readErr != nil {
			break
		}
	}
	return tasks, rejected, nil
}

func (l *List) TodoPath() string { return l.todoPath }
func (l *List) DonePath() string { return l.donePath }

func (l *List) Len() int { return len(l.tasks) }

// Tasks returns the tasks in id order. The slice is a copy; the tasks are not.
func (l *List) Tasks() []*todotxt.Task {
	return slices.Clone(l.tasks)
}

func (l *List) Get(id int) (*todotxt.Task, error) {
	if id < 0 || id >= len(l.tasks) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return l.tasks[id], nil
}

// Rejected lists lines skipped by Load that have not been quarantined yet.
func (l *List) Rejected() []Rejected {
	return slices.Clone(l.rejected)
}

// Clone deep-copies the list so it can be changed without affecting
// readers of l.
func (l *List) Clone() *List {
	c := *l
	c.tasks = make([]*todotxt.Task, len(l.tasks))
	for i, t := range l.tasks {
		c.tasks[i] = t.Clone()
	}
	c.rejected = slices.Clone(l.rejected)
	c.unreadable = maps.Clone(l.unreadable)
	return &c
}

// Append gives t the next id and adds it to the end of the list.
func (l *List) Append(t *todotxt.Task) {
	t.ID = len(l.tasks)
	l.tasks = append(l.tasks, t)
}

// Replace swaps the task at id for t.
func (l *List) Replace(id int, t *todotxt.Task) error {
	if _, err := l.Get(id); err != nil {
		return err
	}
	t.ID = id
	l.tasks[id] = t
	return nil
}

// Insert parses line, stamps today's creation date and appends the task
// without writing. A parse error leaves the list unchanged.
func (l *List) Insert(line string) (*todotxt.Task, error) {
	t, err := todotxt.Parse(line, l.opts.Parse)
	if err != nil {
		return nil, err
	}
	t.CreateDate = l.Today()
	l.Append(t)
	return t, nil
}

// Add inserts line and writes both files. A write error leaves the task
// appended in memory but not on disk; reload to resync.
func (l *List) Add(line string) (*todotxt.Task, error) {
	t, err := l.Insert(line)
	if err != nil {
		return nil, err
	}
	return t, l.Write()
}

// Edit replaces task id with the parse of line. The task keeps its note
// when line names none.
func (l *List) Edit(id int, line string) (*todotxt.Task, error) {
	old, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	t, err := todotxt.Parse(line, l.opts.Parse)
	if err != nil {
		return nil, err
	}
	if t.Note.IsNone() {
		t.Note = old.Note
	}
	return t, l.Replace(id, t)
}

// Complete toggles the completion of task id. Completing a recurring task
// appends its successor, which is returned. Nothing is written; call Write
// once to persist both changes together.
func (l *List) Complete(id int) (*todotxt.Task, error) {
	t, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	if t.Finished {
		t.Uncomplete()
		return nil, nil
	}

	today := l.Today()
	t.Complete(today)
	next := t.Next(today)
	if next != nil {
		l.Append(next)
	}
	return next, nil
}

func (l *List) Today() todotxt.Date {
	now := time.Now
	if l.opts.Now != nil {
		now = l.opts.Now
	}
	return todotxt.Today(now())
}

// Projects lists the distinct projects of open, non-deferred tasks, sorted.
func (l *List) Projects() []string {
	return l.collect((*todotxt.Task).Projects)
}

func (l *List) Contexts() []string {
	return l.collect((*todotxt.Task).Contexts)
}

func (l *List) Hashtags() []string {
	return l.collect((*todotxt.Task).Hashtags)
}

func (l *List) collect(words func(*todotxt.Task) []string) []string {
	today := l.Today()
	var out []string
	for _, t := range l.tasks {
		if t.Finished || t.Deferred(today) {
			continue
		}
		out = append(out, words(t)...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Write splits the tasks by completion and rewrites the todo and done
// files concurrently. Each file is backed up first; if the backup fails
// that file is left untouched. The two writes do not depend on each other
// and the returned error joins both outcomes.
//
// With Options.Lock set, Write fails at once if another process holds the
// lock; WriteContext waits for it instead.
func (l *List) Write() error {
	return l.write(func(fl *lock.FileLock) error { return fl.TryLock() })
}

// WriteContext is Write, but waits for the lock until ctx is done.
func (l *List) WriteContext(ctx context.Context) error {
	return l.write(func(fl *lock.FileLock) error { return fl.Lock(ctx) })
}

func (l *List) write(acquire func(*lock.FileLock) error) error {
	if fl := l.opts.Lock; fl != nil {
		if err := acquire(fl); err != nil {
			return &IOError{Op: "lock", Path: fl.Path(), Err: err}
		}
		defer fl.Unlock()
	}

	var todo, done []int
	for i, t := range l.tasks {
		if t.Finished {
			done = append(done, i)
		} else {
			todo = append(todo, i)
		}
	}

	targets := []struct {
		path string
		idx  []int
	}{
		{l.todoPath, todo},
		{l.donePath, done},
	}
	errs := make([]error, len(targets))
	quarantined := make([]bool, len(targets))

	var g errgroup.Group
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			quarantined[i], errs[i] = l.writeTasks(target.path, target.idx)
			return errs[i]
		})
	}
	_ = g.Wait()

	l.dropRejected(func(path string) bool {
		for i, target := range targets {
			if target.path == path {
				return quarantined[i]
			}
		}
		return false
	})

	return errors.Join(errs...)
}

// writeTasks reports whether the rejected lines of path were moved to the
// quarantine file, even when a later step fails.
func (l *List) writeTasks(path string, idx []int) (bool, error) {
	log := l.logger()

	if err := l.unreadable[path]; err != nil {
		return false, &IOError{Op: "write", Path: path, Err: fmt.Errorf("file was not fully read: %w", err)}
	}

	var lines []string
	for _, r := range l.rejected {
		if r.Path == path {
			lines = append(lines, r.Text)
		}
	}
	if len(lines) > 0 {
		q, err := fileio.Quarantine(path, lines, l.now())
		if err != nil {
			return false, &IOError{Op: "quarantine", Path: path, Err: err}
		}
		log.Warnf("moved %d unreadable line(s) from %q to %q", len(lines), path, q)
	}
	quarantined := len(lines) > 0

	if _, err := fileio.Backup(path); err != nil {
		return quarantined, &BackupError{Path: path, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return quarantined, &IOError{Op: "create", Path: path, Err: err}
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, i := range idx {
		t := l.tasks[i]
		line, err := l.lineWithNote(t)
		if err != nil {
			log.Errorf("unable to save note of task %d: %v", t.ID, err)
		}
		if _, err := w.WriteString(line + "\n"); err != nil {
			return quarantined, &IOError{Op: "write", Path: path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return quarantined, &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return quarantined, &IOError{Op: "sync", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return quarantined, &IOError{Op: "close", Path: path, Err: err}
	}
	return quarantined, nil
}

// lineWithNote flushes the note of t and returns the line to write. When
// the note cannot be written the line carries no note marker and t keeps
// its note.
func (l *List) lineWithNote(t *todotxt.Task) (string, error) {
	note := t.Note
	if err := note.Write(l.opts.Parse.NotesDir); err != nil {
		bare := *t
		bare.Note = todotxt.Note{}
		return bare.Line(), err
	}
	t.Note = note
	return t.Line(), nil
}

func (l *List) dropRejected(done func(path string) bool) {
	kept := l.rejected[:0]
	for _, r := range l.rejected {
		if !done(r.Path) {
			kept = append(kept, r)
		}
	}
	l.rejected = kept
}

func (l *List) now() time.Time {
	if l.opts.Now != nil {
		return l.opts.Now()
	}
	return time.Now()
}

func (l *List) logger() *logging.Logger {
	return l.opts.Logger.With("tasklist")
}
