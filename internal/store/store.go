// Package store owns the current task snapshot. Reads never block on
// file I/O; mutations copy the snapshot, write it with the file watch
// suspended and publish the reloaded result.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/msageha/tasktxt/internal/events"
	"github.com/msageha/tasktxt/internal/fileio"
	"github.com/msageha/tasktxt/internal/lock"
	"github.com/msageha/tasktxt/internal/logging"
	"github.com/msageha/tasktxt/internal/tasklist"
	"github.com/msageha/tasktxt/internal/todotxt"
	"github.com/msageha/tasktxt/internal/view"
	"github.com/msageha/tasktxt/internal/watch"
)

// DefaultLockWait is used when Options.LockWait is zero.
const DefaultLockWait = 2 * time.Second

type Options struct {
	TodoPath string
	DonePath string
	Parse    todotxt.ParseOptions
	// Lock guards writes with a lock file next to the todo file.
	Lock bool
	// LockWait bounds how long a write waits for another process to
	// release the lock. Zero means DefaultLockWait.
	LockWait time.Duration
	// Strict makes Reload fail on an unreadable line instead of skipping it.
	Strict   bool
	Debounce time.Duration
	Settle   time.Duration
	Policy   view.Policy
	Logger   *logging.Logger
	Bus      *events.Bus
	Now      func() time.Time
}

// Snapshot is a loaded task list. It is never modified once published.
type Snapshot struct {
	List     *tasklist.List
	LoadedAt time.Time
}

func (s *Snapshot) Tasks() []*todotxt.Task { return s.List.Tasks() }

// Result is delivered by the async operations.
type Result struct {
	Snapshot *Snapshot
	Task     *todotxt.Task
	Err      error
}

type Store struct {
	opts   Options
	logger *logging.Logger
	bus    *events.Bus
	bridge *watch.Bridge
	lock   *lock.FileLock

	snapshot atomic.Pointer[Snapshot]
	policy   atomic.Pointer[view.Policy]
	group    singleflight.Group

	// mu serialises mutations.
	mu sync.Mutex
}

// New returns a store holding an empty snapshot. Call Reload to read the
// files and Watch to follow external edits. A mutation issued before the
// first Reload loads the files itself.
func New(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	s := &Store{
		opts:   opts,
		logger: opts.Logger.With("store"),
		bus:    opts.Bus,
	}
	var bridgeOpts []watch.Option
	if opts.Debounce > 0 {
		bridgeOpts = append(bridgeOpts, watch.WithDebounce(opts.Debounce))
	}
	if opts.Settle > 0 {
		bridgeOpts = append(bridgeOpts, watch.WithSettle(opts.Settle))
	}
	s.bridge = watch.New(opts.Bus, opts.Logger, bridgeOpts...)
	if opts.Lock {
		s.lock = lock.ForTaskFile(opts.TodoPath)
	}

	policy := opts.Policy
	s.policy.Store(&policy)
	s.snapshot.Store(&Snapshot{List: tasklist.New(opts.TodoPath, opts.DonePath, s.listOptions())})
	return s
}

func (s *Store) listOptions() tasklist.Options {
	return tasklist.Options{
		Parse:  s.opts.Parse,
		Logger: s.opts.Logger,
		Lock:   s.lock,
		Now:    s.opts.Now,
	}
}

func (s *Store) Current() *Snapshot { return s.snapshot.Load() }

func (s *Store) Policy() view.Policy { return *s.policy.Load() }

func (s *Store) SetPolicy(p view.Policy) { s.policy.Store(&p) }

func (s *Store) Today() todotxt.Date { return todotxt.Today(s.opts.Now()) }

// View projects the current snapshot through v under the current policy.
func (s *Store) View(v view.View) []*todotxt.Task {
	return view.Render(v, s.Current().Tasks(), s.Policy(), s.Today())
}

// Watch starts reporting external edits of both task files.
func (s *Store) Watch() error {
	var errs []error
	for _, p := range []string{s.opts.TodoPath, s.opts.DonePath} {
		if err := s.bridge.Start(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Changes delivers external edits reported by the watch.
func (s *Store) Changes() (<-chan watch.Change, func()) {
	return s.bridge.Subscribe()
}

func (s *Store) Close() {
	s.bridge.Close()
}

// Reload reads both files and publishes the result. Concurrent calls
// share one load. A reload never runs while a mutation is writing, so it
// cannot publish files read before that write.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	ch := s.group.DoChan("reload", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.load()
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// load reads the files and publishes the snapshot. Callers hold mu.
func (s *Store) load() (*Snapshot, error) {
	var list *tasklist.List
	if s.opts.Strict {
		var err error
		list, err = tasklist.LoadStrict(s.opts.TodoPath, s.opts.DonePath, s.listOptions())
		if err != nil {
			s.logger.Errorf("strict load: %v", err)
			return nil, err
		}
	} else {
		list = tasklist.Load(s.opts.TodoPath, s.opts.DonePath, s.listOptions())
	}
	snap := &Snapshot{List: list, LoadedAt: s.opts.Now()}
	s.snapshot.Store(snap)

	if n := len(list.Rejected()); n > 0 {
		s.logger.Warnf("%d unreadable line(s) will move to %s on the next save", n, fileio.RejectedSuffix)
	}
	s.logger.Debugf("loaded %d task(s)", list.Len())
	s.publish(events.EventReloaded, s.opts.TodoPath, map[string]any{"op": "reload", "tasks": list.Len()})
	return snap, nil
}

// Add appends a task parsed from line, stamped with today's date.
func (s *Store) Add(ctx context.Context, line string) (*todotxt.Task, error) {
	return s.mutate(ctx, "add", func(l *tasklist.List) (*todotxt.Task, error) {
		return l.Insert(line)
	})
}

// Complete toggles task id. Completing a recurring task also adds its
// successor; both reach disk in one write. The returned task is the
// successor, or nil.
func (s *Store) Complete(ctx context.Context, id int) (*todotxt.Task, error) {
	return s.mutate(ctx, "complete", func(l *tasklist.List) (*todotxt.Task, error) {
		return l.Complete(id)
	})
}

// Edit replaces task id with the parse of line.
func (s *Store) Edit(ctx context.Context, id int, line string) (*todotxt.Task, error) {
	return s.mutate(ctx, "edit", func(l *tasklist.List) (*todotxt.Task, error) {
		return l.Edit(id, line)
	})
}

// SetNote replaces the note text of task id. Empty text on a task without
// a note file removes the note.
func (s *Store) SetNote(ctx context.Context, id int, text string) (*todotxt.Task, error) {
	return s.mutate(ctx, "note", func(l *tasklist.List) (*todotxt.Task, error) {
		t, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		t.Note.SetContent(text)
		return t, nil
	})
}

// SetTag sets key:value on task id, or removes every key tag when value is
// empty. Reserved keys such as due: are changed with Edit.
func (s *Store) SetTag(ctx context.Context, id int, key, value string) (*todotxt.Task, error) {
	return s.mutate(ctx, "tag", func(l *tasklist.List) (*todotxt.Task, error) {
		t, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		if value == "" {
			return t, t.DeleteTag(key)
		}
		return t, t.SetTag(key, value)
	})
}

// Restore puts the .bak copies of the task files back and reloads. A file
// without a backup is left alone.
func (s *Store) Restore(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.suspend()
	var errs []error
	restored := 0
	for _, p := range []string{s.opts.TodoPath, s.opts.DonePath} {
		if _, err := os.Stat(p + fileio.BackupSuffix); err != nil {
			continue
		}
		if err := fileio.RestoreFromBackup(p); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", p, err))
			continue
		}
		restored++
		s.logger.Infof("restored %s from backup", p)
	}
	s.resume()

	if restored == 0 && len(errs) == 0 {
		errs = append(errs, errors.New("no backup to restore"))
	}
	snap, _ := s.load()
	s.publish(events.EventSaved, s.opts.TodoPath, map[string]any{"op": "restore", "files": restored})
	return snap, errors.Join(errs...)
}

// mutate applies fn to a copy of the current list and writes it. On
// failure the published snapshot is left as it was.
func (s *Store) mutate(ctx context.Context, op string, fn func(*tasklist.List) (*todotxt.Task, error)) (*todotxt.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current := s.Current()
	if current.LoadedAt.IsZero() {
		loaded, err := s.load()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		current = loaded
	}

	list := current.List.Clone()
	task, err := fn(list)
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	s.suspend()
	err = list.WriteContext(writeCtx)
	s.resume()
	cancel()
	if err != nil {
		s.logger.Errorf("%s: %v", op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	data := map[string]any{"op": op}
	if task != nil {
		data["id"] = task.ID
		data["line"] = task.Line()
	}
	s.publish(events.EventSaved, s.opts.TodoPath, data)

	if _, err := s.load(); err != nil {
		return task, err
	}
	return task, nil
}

func (s *Store) suspend() {
	s.bridge.Suspend(s.opts.TodoPath)
	s.bridge.Suspend(s.opts.DonePath)
}

func (s *Store) resume() {
	s.bridge.Resume(s.opts.TodoPath)
	s.bridge.Resume(s.opts.DonePath)
}

func (s *Store) publish(t events.EventType, path string, data map[string]any) {
	if s.bus != nil {
		s.bus.Publish(t, path, data)
	}
}

func (s *Store) ReloadAsync(ctx context.Context) <-chan Result {
	return async(func() Result {
		snap, err := s.Reload(ctx)
		return Result{Snapshot: snap, Err: err}
	})
}

func (s *Store) AddAsync(ctx context.Context, line string) <-chan Result {
	return async(func() Result {
		t, err := s.Add(ctx, line)
		return Result{Snapshot: s.Current(), Task: t, Err: err}
	})
}

func (s *Store) CompleteAsync(ctx context.Context, id int) <-chan Result {
	return async(func() Result {
		t, err := s.Complete(ctx, id)
		return Result{Snapshot: s.Current(), Task: t, Err: err}
	})
}

func (s *Store) EditAsync(ctx context.Context, id int, line string) <-chan Result {
	return async(func() Result {
		t, err := s.Edit(ctx, id, line)
		return Result{Snapshot: s.Current(), Task: t, Err: err}
	})
}

func async(fn func() Result) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		ch <- fn()
	}()
	return ch
}
