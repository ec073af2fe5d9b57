// Package lock enforces exclusive ownership of a run workspace: two runs
// targeting the same directory must not interleave.
package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// RunLock is a flock-based advisory lock on a workspace's run.lock file.
type RunLock struct {
	path string
	file *os.File
}

// New returns an unacquired lock for the given lock file path.
func New(path string) *RunLock {
	return &RunLock{path: path}
}

// TryLock acquires the lock without blocking, recording the holder PID in
// the lock file. Failure means another run owns the workspace.
func (l *RunLock) TryLock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("acquire run lock (another run may own this workspace): %w", err)
	}

	if err := f.Truncate(0); err != nil {
		l.release(f)
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		l.release(f)
		return fmt.Errorf("write PID to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		l.release(f)
		return fmt.Errorf("sync lock file: %w", err)
	}

	l.file = f
	return nil
}

// Unlock releases the lock and removes the lock file. Calling Unlock on an
// unacquired lock is a no-op.
func (l *RunLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("release run lock: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	os.Remove(l.path)
	l.file = nil
	return nil
}

func (l *RunLock) release(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
