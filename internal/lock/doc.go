// Package lock provides per-file exclusive locks shared between goroutines and
// processes.
//
// A lock on a collection path is represented by a sentinel file at
// "<path>.lock" that exists for as long as the lock is held.
//
// # Platform behaviour
//
//   - unix: the sentinel is locked with flock(2). The kernel drops the lock when
//     the holder exits, so a sentinel left behind by a crashed process is simply
//     re-locked by the next caller instead of blocking it forever.
//   - other: the sentinel is created with O_CREATE|O_EXCL and its existence is
//     the lock. A crashed holder leaves an orphan that must be removed by hand.
//
// # Waiting
//
// Goroutines of one process contending for the same path queue on a one-slot
// channel. Contention with other processes is polled every RetryInterval.
// Acquire gives up after Timeout or when its context is done, whichever comes
// first.
package lock
