//go:build !unix

package snapshot

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another run holds the cache lock")

// Lock falls back to an exclusively created marker file where flock is unavailable.
type Lock struct {
	path string
}

// AcquireLock creates the lock file; it fails with ErrLocked if it already exists.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_ = f.Close()
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	return err
}
