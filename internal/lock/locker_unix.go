//go:build unix

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// sentinel is an open, flock'ed lock file.
type sentinel struct {
	path string
	f    *os.File
}

// tryLock makes one non-blocking attempt at the sentinel.
//
// The flock is tied to the open file description, so it conflicts with other
// descriptors in this process too, and the kernel drops it when the holder
// exits.
func tryLock(path string) (*sentinel, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errLocked
		}
		return nil, err
	}

	// A releasing holder unlinks the sentinel before unlocking it. If that
	// happened between our open and flock we locked a dead inode.
	var held, current unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &held); err != nil {
		unlockAndClose(f)
		return nil, err
	}
	if err := unix.Stat(path, &current); err != nil || held.Ino != current.Ino || held.Dev != current.Dev {
		unlockAndClose(f)
		return nil, errLocked
	}

	return &sentinel{path: path, f: f}, nil
}

// unlock removes the sentinel while still holding it, then releases the flock.
func (s *sentinel) unlock() error {
	rmErr := os.Remove(s.path)
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}
	if err := unlockAndClose(s.f); err != nil {
		return err
	}
	return rmErr
}

func unlockAndClose(f *os.File) error {
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
