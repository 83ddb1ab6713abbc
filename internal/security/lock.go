package security

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrLocked is returned when another process holds the instance lock.
var ErrLocked = errors.New("security: already locked by another process")

// InstanceLock is an exclusive lock on a pid file. The lock is released by
// the OS when the process exits, so a crashed daemon never leaves a stale
// lock behind.
type InstanceLock struct {
	path string
	f    *os.File
}

// AcquireInstanceLock locks path without blocking and writes the current pid
// into it. When the lock is held elsewhere the error wraps ErrLocked and
// names the holder's pid if it can be read.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, PermPrivateFile)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		if pid, ok := ReadPID(path); ok {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		}
		return nil, ErrLocked
	}

	if err := writePID(f); err != nil {
		unlock(f)
		f.Close()
		return nil, fmt.Errorf("write pid: %w", err)
	}
	return &InstanceLock{path: path, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		return err
	}
	return f.Sync()
}

// Release removes the pid file and drops the lock.
func (l *InstanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	os.Remove(l.path)
	err := errors.Join(unlock(l.f), l.f.Close())
	l.f = nil
	return err
}

// ReadPID returns the pid recorded in path.
func ReadPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
