package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/tasktxt/internal/events"
	"github.com/msageha/tasktxt/internal/logging"
	"github.com/msageha/tasktxt/internal/tasklist"
	"github.com/msageha/tasktxt/internal/todotxt"
	"github.com/msageha/tasktxt/internal/view"
)

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local)

type fixture struct {
	store *Store
	todo  string
	done  string
	bus   *events.Bus
}

func newFixture(t *testing.T, todoContent, doneContent string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		todo: filepath.Join(dir, "todo.txt"),
		done: filepath.Join(dir, "done.txt"),
		bus:  events.NewBus(32),
	}
	if todoContent != "" {
		require.NoError(t, os.WriteFile(f.todo, []byte(todoContent), 0644))
	}
	if doneContent != "" {
		require.NoError(t, os.WriteFile(f.done, []byte(doneContent), 0644))
	}
	f.store = New(Options{
		TodoPath: f.todo,
		DonePath: f.done,
		Parse:    todotxt.ParseOptions{NoteTag: "note", NotesDir: filepath.Join(dir, "notes")},
		Lock:     true,
		Debounce: 20 * time.Millisecond,
		Settle:   100 * time.Millisecond,
		Logger:   logging.Discard(),
		Bus:      f.bus,
		Now:      func() time.Time { return fixedNow },
	})
	t.Cleanup(func() {
		f.store.Close()
		f.bus.Close()
	})
	return f
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestStore_EmptyBeforeReload(t *testing.T) {
	f := newFixture(t, "a\n", "")
	assert.Equal(t, 0, f.store.Current().List.Len())
}

func TestStore_MutationBeforeReloadKeepsFileContents(t *testing.T) {
	f := newFixture(t, "keep me\nand me\n", "x 2024-01-01 old\n")

	task, err := f.store.Add(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, 3, task.ID)
	assert.Equal(t, "keep me\nand me\n2024-03-10 new\n", read(t, f.todo))
	assert.Equal(t, "x 2024-01-01 old\n", read(t, f.done))
	assert.Equal(t, 4, f.store.Current().List.Len())
}

func TestStore_ReloadDuringMutationsNeverGoesBack(t *testing.T) {
	f := newFixture(t, "", "")
	ctx := context.Background()
	_, err := f.store.Reload(ctx)
	require.NoError(t, err)

	const adds = 20
	stop := make(chan struct{})
	reloads := make(chan error, 1)
	go func() {
		defer close(reloads)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := f.store.Reload(ctx); err != nil {
				reloads <- err
				return
			}
		}
	}()

	for i := 0; i < adds; i++ {
		_, err := f.store.Add(ctx, fmt.Sprintf("task %d", i))
		require.NoError(t, err)
		assert.Equal(t, i+1, f.store.Current().List.Len(), "snapshot after add %d", i)
	}
	close(stop)
	require.NoError(t, <-reloads)
	assert.Equal(t, adds, f.store.Current().List.Len())
}

func TestStore_StrictReloadFails(t *testing.T) {
	dir := t.TempDir()
	todo := filepath.Join(dir, "todo.txt")
	require.NoError(t, os.WriteFile(todo, []byte("fine\n(((\n"), 0644))
	s := New(Options{
		TodoPath: todo,
		DonePath: filepath.Join(dir, "done.txt"),
		Strict:   true,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return fixedNow },
	})
	t.Cleanup(s.Close)

	_, err := s.Reload(context.Background())
	var perr *todotxt.ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorContains(t, err, "todo.txt:2")
	assert.True(t, s.Current().LoadedAt.IsZero(), "failed load must not be published")

	_, err = s.Add(context.Background(), "refused")
	require.Error(t, err)
	assert.Equal(t, "fine\n(((\n", read(t, todo))
}

func TestStore_SetTag(t *testing.T) {
	f := newFixture(t, "pack bags\n", "")
	ctx := context.Background()

	task, err := f.store.SetTag(ctx, 0, "trip", "rome")
	require.NoError(t, err)
	assert.Equal(t, "pack bags trip:rome", task.Line())
	assert.Equal(t, "pack bags trip:rome\n", read(t, f.todo))

	_, err = f.store.SetTag(ctx, 0, "trip", "")
	require.NoError(t, err)
	assert.Equal(t, "pack bags\n", read(t, f.todo))

	_, err = f.store.SetTag(ctx, 0, "due", "2024-04-01")
	assert.Error(t, err)
	_, err = f.store.SetTag(ctx, 9, "trip", "rome")
	assert.ErrorIs(t, err, tasklist.ErrNotFound)
}

func TestStore_Reload(t *testing.T) {
	f := newFixture(t, "a\nb\n", "x 2024-01-01 c\n")
	reloaded := make(chan events.Event, 1)
	defer f.bus.Subscribe(events.EventReloaded, func(e events.Event) { reloaded <- e })()

	snap, err := f.store.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.List.Len())
	assert.Same(t, snap, f.store.Current())
	assert.Equal(t, fixedNow, snap.LoadedAt)

	select {
	case e := <-reloaded:
		assert.Equal(t, 3, e.Data["tasks"])
	case <-time.After(time.Second):
		t.Fatal("no reload event")
	}
}

func TestStore_ReloadHonoursContext(t *testing.T) {
	f := newFixture(t, "", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.store.Add(ctx, "never")
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(f.todo)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_Add(t *testing.T) {
	f := newFixture(t, "existing\n", "")
	ctx := context.Background()
	_, err := f.store.Reload(ctx)
	require.NoError(t, err)

	saved := make(chan events.Event, 1)
	defer f.bus.Subscribe(events.EventSaved, func(e events.Event) { saved <- e })()

	task, err := f.store.Add(ctx, "(A) new thing +proj")
	require.NoError(t, err)
	assert.Equal(t, 1, task.ID)
	assert.Equal(t, "existing\n(A) 2024-03-10 new thing +proj\n", read(t, f.todo))
	assert.Equal(t, 2, f.store.Current().List.Len())

	select {
	case e := <-saved:
		assert.Equal(t, "add", e.Data["op"])
		assert.Equal(t, 1, e.Data["id"])
	case <-time.After(time.Second):
		t.Fatal("no saved event")
	}
}

func TestStore_AddParseErrorKeepsSnapshot(t *testing.T) {
	f := newFixture(t, "existing\n", "")
	ctx := context.Background()
	before, err := f.store.Reload(ctx)
	require.NoError(t, err)

	_, err = f.store.Add(ctx, "garbage (((")
	var perr *todotxt.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Same(t, before, f.store.Current())
	assert.Equal(t, "existing\n", read(t, f.todo))
}

func TestStore_WriteFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t, "existing\n", "")
	ctx := context.Background()
	before, err := f.store.Reload(ctx)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(f.todo+".bak", 0755))

	_, err = f.store.Add(ctx, "blocked")
	var berr *tasklist.BackupError
	require.ErrorAs(t, err, &berr)
	assert.Same(t, before, f.store.Current())
	assert.Equal(t, 1, f.store.Current().List.Len())
	assert.Equal(t, "existing\n", read(t, f.todo))
}

func TestStore_CompleteRecurring(t *testing.T) {
	f := newFixture(t, "water plants due:2024-03-08 rec:1w\nother\n", "")
	ctx := context.Background()
	_, err := f.store.Reload(ctx)
	require.NoError(t, err)

	next, err := f.store.Complete(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "2024-03-17", next.DueDate.String())

	assert.Equal(t, "other\n2024-03-10 water plants due:2024-03-17 rec:1w\n", read(t, f.todo))
	assert.Equal(t, "x 2024-03-10 water plants due:2024-03-08 rec:1w\n", read(t, f.done))

	// Ids follow the files after the reload: open tasks first.
	tasks := f.store.Current().Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "other", tasks[0].Subject)
	assert.True(t, tasks[2].Finished)
}

func TestStore_Edit(t *testing.T) {
	f := newFixture(t, "typo taks\n", "")
	ctx := context.Background()
	_, err := f.store.Reload(ctx)
	require.NoError(t, err)

	_, err = f.store.Edit(ctx, 0, "typo task due:2024-03-11")
	require.NoError(t, err)
	assert.Equal(t, "typo task due:2024-03-11\n", read(t, f.todo))

	_, err = f.store.Edit(ctx, 9, "nope")
	assert.ErrorIs(t, err, tasklist.ErrNotFound)
}

func TestStore_SetNote(t *testing.T) {
	f := newFixture(t, "with note\n", "")
	ctx := context.Background()
	_, err := f.store.Reload(ctx)
	require.NoError(t, err)

	_, err = f.store.SetNote(ctx, 0, "details")
	require.NoError(t, err)

	task := f.store.Current().Tasks()[0]
	require.Equal(t, todotxt.NoteLong, task.Note.Kind())
	content, err := task.Note.Content()
	require.NoError(t, err)
	assert.Equal(t, "details", content)
	assert.Contains(t, read(t, f.todo), "note:"+task.Note.Ref())
}

func TestStore_OwnWritesAreNotExternalChanges(t *testing.T) {
	f := newFixture(t, "a\n", "")
	ctx := context.Background()
	_, err := f.store.Reload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Watch())

	changes, unsub := f.store.Changes()
	defer unsub()

	_, err = f.store.Add(ctx, "ours")
	require.NoError(t, err)
	select {
	case c := <-changes:
		t.Fatalf("own write reported as external change: %+v", c)
	case <-time.After(400 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(f.todo, []byte("theirs\n"), 0644))
	select {
	case c := <-changes:
		want, _ := filepath.Abs(f.todo)
		assert.Equal(t, want, c.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("external edit not reported")
	}
}

func TestStore_ViewAndPolicy(t *testing.T) {
	f := newFixture(t, "(B) open\nlater t:2099-01-01\n", "x 2024-03-01 closed\n")
	_, err := f.store.Reload(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.store.View(view.Inbox{}), 1)

	f.store.SetPolicy(view.Policy{Done: true, Deferred: true})
	assert.True(t, f.store.Policy().Done)
	assert.Len(t, f.store.View(view.Inbox{}), 3)
}

func TestStore_Async(t *testing.T) {
	f := newFixture(t, "a\n", "")
	ctx := context.Background()

	res := <-f.store.ReloadAsync(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Snapshot.List.Len())

	res = <-f.store.AddAsync(ctx, "b")
	require.NoError(t, res.Err)
	assert.Equal(t, "b", res.Task.Subject)
	assert.Equal(t, 2, res.Snapshot.List.Len())

	res = <-f.store.CompleteAsync(ctx, 0)
	require.NoError(t, res.Err)
	assert.Nil(t, res.Task)

	res = <-f.store.EditAsync(ctx, 0, "(((")
	assert.Error(t, res.Err)
}

func TestStore_ConcurrentReloadsShareSnapshot(t *testing.T) {
	f := newFixture(t, "a\n", "")
	ctx := context.Background()

	results := make([]<-chan Result, 8)
	for i := range results {
		results[i] = f.store.ReloadAsync(ctx)
	}
	for _, ch := range results {
		res := <-ch
		require.NoError(t, res.Err)
		assert.Equal(t, 1, res.Snapshot.List.Len())
	}
}

func TestStore_Restore(t *testing.T) {
	f := newFixture(t, "original\n", "x 2024-01-01 old\n")
	ctx := context.Background()
	_, err := f.store.Reload(ctx)
	require.NoError(t, err)

	_, err = f.store.Add(ctx, "added")
	require.NoError(t, err)

	snap, err := f.store.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.List.Len())
	assert.Equal(t, "original\n", read(t, f.todo))
}

func TestStore_RestoreWithoutBackup(t *testing.T) {
	f := newFixture(t, "only\n", "")
	snap, err := f.store.Restore(context.Background())
	assert.Error(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.List.Len())
}
