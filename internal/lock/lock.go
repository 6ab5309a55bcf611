// Package lock provides the advisory file lock that keeps two tasktxt
// processes from rewriting the same task files at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("task files are locked by another tasktxt process")

const pollInterval = 50 * time.Millisecond

type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// ForTaskFile returns the lock guarding writes to the task file at path.
// The lock file lives next to it.
func ForTaskFile(path string) *FileLock {
	return NewFileLock(filepath.Join(filepath.Dir(path), ".tasktxt.lock"))
}

func (fl *FileLock) Path() string { return fl.path }

// TryLock takes the lock without waiting. The holder's pid is written into
// the lock file.
func (fl *FileLock) TryLock() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file != nil {
		return fmt.Errorf("lock %s: already held by this process", fl.path)
	}

	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("%w (%s)", ErrLocked, fl.path)
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	if err := writePID(f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return err
	}

	fl.file = f
	return nil
}

// Lock waits for the lock until ctx is done.
func (fl *FileLock) Lock(ctx context.Context) error {
	for {
		err := fl.TryLock()
		if err == nil || !errors.Is(err, ErrLocked) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", err, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (fl *FileLock) Unlock() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		fl.file.Close()
		fl.file = nil
		return fmt.Errorf("release lock: %w", err)
	}
	if err := fl.file.Close(); err != nil {
		fl.file = nil
		return fmt.Errorf("close lock file: %w", err)
	}
	fl.file = nil
	return nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write PID to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}
