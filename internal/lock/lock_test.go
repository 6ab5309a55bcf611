package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestFileLock_TryLockWritesPID(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "todo.lock")

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl.Unlock()

	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock content: got %q", data)
	}
}

func TestFileLock_SecondHolderGetsErrLocked(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "todo.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer fl1.Unlock()

	fl2 := NewFileLock(lockPath)
	err := fl2.TryLock()
	if err == nil {
		fl2.Unlock()
		t.Fatal("expected second TryLock to fail")
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("want ErrLocked, got %v", err)
	}
}

func TestFileLock_UnlockAllowsRelock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "todo.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	if err := fl1.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	fl2 := NewFileLock(lockPath)
	if err := fl2.TryLock(); err != nil {
		t.Fatalf("re-lock after unlock failed: %v", err)
	}
	fl2.Unlock()
}

func TestFileLock_DoubleUnlockSafe(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "todo.lock"))
	fl.TryLock()
	fl.Unlock()
	if err := fl.Unlock(); err != nil {
		t.Fatalf("double unlock should be safe, got: %v", err)
	}
}

func TestFileLock_LockWaitsForRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "todo.lock")

	holder := NewFileLock(lockPath)
	if err := holder.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	go func() {
		time.Sleep(120 * time.Millisecond)
		holder.Unlock()
	}()

	waiter := NewFileLock(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := waiter.Lock(ctx); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	waiter.Unlock()
}

func TestFileLock_LockHonoursContext(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "todo.lock")

	holder := NewFileLock(lockPath)
	if err := holder.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := NewFileLock(lockPath).Lock(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want deadline exceeded, got %v", err)
	}
}

func TestForTaskFile(t *testing.T) {
	fl := ForTaskFile("/home/me/todo/todo.txt")
	if fl.Path() != "/home/me/todo/.tasktxt.lock" {
		t.Errorf("path: got %q", fl.Path())
	}
}
