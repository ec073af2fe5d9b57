package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestRunLock_AcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	l := New(path)
	if err := l.TryLock(); err != nil {
		t.Fatalf("TryLock returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid != os.Getpid() {
		t.Errorf("lock file contains %q, want current PID %d", data, os.Getpid())
	}

	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file still exists after Unlock")
	}
}

func TestRunLock_UnlockWithoutLock(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "run.lock"))
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock on unacquired lock returned error: %v", err)
	}
}

func TestRunLock_Reacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	first := New(path)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock returned error: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}

	second := New(path)
	if err := second.TryLock(); err != nil {
		t.Fatalf("TryLock after release returned error: %v", err)
	}
	defer second.Unlock()
}
