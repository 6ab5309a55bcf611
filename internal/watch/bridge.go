// Package watch reports external changes to task files. Writes made by
// this process are hidden by suspending the watch around them.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/tasktxt/internal/events"
	"github.com/msageha/tasktxt/internal/logging"
)

const (
	DefaultDebounce = 100 * time.Millisecond
	DefaultSettle   = 250 * time.Millisecond

	subscriberBuffer = 16
)

type State int

const (
	Stopped State = iota
	Watching
	Suspended
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case Suspended:
		return "suspended"
	default:
		return "stopped"
	}
}

// Change reports that Path was modified by someone else.
type Change struct {
	Path string
	At   time.Time
}

type Option func(*Bridge)

// WithDebounce sets how long a burst of events must be quiet before one
// Change is reported.
func WithDebounce(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.debounce = d
		}
	}
}

// WithSettle sets how long after Resume events are still attributed to
// our own write.
func WithSettle(d time.Duration) Option {
	return func(b *Bridge) {
		if d >= 0 {
			b.settle = d
		}
	}
}

type watchedFile struct {
	suspends    int
	settleUntil time.Time
	pending     *time.Timer
}

// Bridge watches task files through their parent directories, since
// editors often save by renaming a new file over the old one.
type Bridge struct {
	bus      *events.Bus
	logger   *logging.Logger
	debounce time.Duration
	settle   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	files   map[string]*watchedFile
	dirs    map[string]int
	subs    map[int]chan Change
	nextSub int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a bridge publishing EventExternalChange on bus. bus may be nil.
func New(bus *events.Bus, logger *logging.Logger, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		bus:      bus,
		logger:   logger.With("watch"),
		debounce: DefaultDebounce,
		settle:   DefaultSettle,
		now:      time.Now,
		files:    make(map[string]*watchedFile),
		dirs:     make(map[string]int),
		subs:     make(map[int]chan Change),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Start begins watching path. Starting a watched path is a no-op.
func (b *Bridge) Start(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("watch %s: bridge closed", path)
	}
	k := key(path)
	if _, ok := b.files[k]; ok {
		return nil
	}

	if b.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create fsnotify watcher: %w", err)
		}
		b.watcher = w
		b.wg.Add(1)
		go b.loop(w)
	}

	dir := filepath.Dir(k)
	if b.dirs[dir] == 0 {
		if err := b.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	b.dirs[dir]++
	b.files[k] = &watchedFile{}
	b.logger.Debugf("watching %s", k)
	return nil
}

// Stop ends the watch on path. Errors are logged.
func (b *Bridge) Stop(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := key(path)
	f, ok := b.files[k]
	if !ok {
		return
	}
	if f.pending != nil {
		f.pending.Stop()
	}
	delete(b.files, k)

	dir := filepath.Dir(k)
	b.dirs[dir]--
	if b.dirs[dir] <= 0 {
		delete(b.dirs, dir)
		if b.watcher != nil {
			if err := b.watcher.Remove(dir); err != nil {
				b.logger.Warnf("unwatch %s: %v", dir, err)
			}
		}
	}
	b.logger.Debugf("stopped watching %s", k)
}

// Suspend hides changes to path until the matching Resume. Calls nest.
// A change already waiting out its debounce is discarded.
func (b *Bridge) Suspend(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.files[key(path)]
	if !ok {
		return
	}
	f.suspends++
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
}

// Resume undoes one Suspend. When the last one is undone, events arriving
// within the settle window are still ignored.
func (b *Bridge) Resume(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.files[key(path)]
	if !ok || f.suspends == 0 {
		return
	}
	f.suspends--
	if f.suspends == 0 {
		f.settleUntil = b.now().Add(b.settle)
	}
}

func (b *Bridge) State(path string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.files[key(path)]
	switch {
	case !ok:
		return Stopped
	case f.suspends > 0:
		return Suspended
	default:
		return Watching
	}
}

// Subscribe returns a channel of changes and the function that closes it.
// A subscriber that falls behind misses changes.
func (b *Bridge) Subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Close stops every watch and closes subscriber channels.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cancel()
	for _, f := range b.files {
		if f.pending != nil {
			f.pending.Stop()
		}
	}
	clear(b.files)
	clear(b.dirs)
	w := b.watcher
	b.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			b.logger.Warnf("close watcher: %v", err)
		}
	}
	b.wg.Wait()

	b.mu.Lock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.mu.Unlock()
}

func (b *Bridge) loop(w *fsnotify.Watcher) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			b.handle(event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			b.logger.Errorf("fsnotify: %v", err)
		}
	}
}

func (b *Bridge) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := filepath.Clean(event.Name)
	f, ok := b.files[k]
	if !ok {
		return
	}
	if f.suspends > 0 {
		b.logger.Debugf("ignoring %s on %s while suspended", event.Op, k)
		return
	}
	if b.now().Before(f.settleUntil) {
		b.logger.Debugf("ignoring %s on %s after own write", event.Op, k)
		return
	}

	if f.pending != nil {
		f.pending.Stop()
	}
	f.pending = time.AfterFunc(b.debounce, func() { b.fire(k, f) })
}

func (b *Bridge) fire(k string, f *watchedFile) {
	b.mu.Lock()
	if b.closed || b.files[k] != f || f.suspends > 0 {
		b.mu.Unlock()
		return
	}
	f.pending = nil
	change := Change{Path: k, At: b.now()}
	for _, ch := range b.subs {
		select {
		case ch <- change:
		default:
			b.logger.Warnf("subscriber queue full, dropping change to %s", k)
		}
	}
	b.mu.Unlock()

	b.logger.Infof("%s changed on disk", k)
	if b.bus != nil {
		b.bus.Publish(events.EventExternalChange, k, nil)
	}
}
