package workspace

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned when another process holds the unit lock.
var ErrLocked = errors.New("backup unit is locked by another operation")

// Lock is an advisory exclusive lock on a Backup Unit.
type Lock struct {
	f *os.File
}

// Acquire takes the unit lock without blocking. The lock file is left on
// disk after Release.
func Acquire(u Unit) (*Lock, error) {
	f, err := os.OpenFile(u.LockPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. It is safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
