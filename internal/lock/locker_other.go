//go:build !unix

package lock

import (
	"errors"
	"os"
)

// sentinel is an exclusively created lock file.
type sentinel struct {
	path string
}

// tryLock makes one attempt to create the sentinel. Existence is the lock.
func tryLock(path string) (*sentinel, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errLocked
		}
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &sentinel{path: path}, nil
}

// unlock deletes the sentinel if it is still there.
func (s *sentinel) unlock() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
