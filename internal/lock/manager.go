package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTimeout       = 5 * time.Second
	DefaultRetryInterval = 25 * time.Millisecond
)

// SentinelSuffix is appended to a collection path to form its lock file.
const SentinelSuffix = ".lock"

// errLocked is returned by the platform tryLock when another holder owns the
// sentinel.
var errLocked = errors.New("sentinel held")

// Options configures a Manager.
type Options struct {
	// Timeout bounds a single Acquire call. Default: 5s.
	Timeout time.Duration

	// RetryInterval is the poll period while another process holds the lock.
	// Default: 25ms.
	RetryInterval time.Duration

	// Waits, if set, observes how long each successful Acquire waited (seconds).
	Waits prometheus.Observer
}

// Manager hands out exclusive locks keyed by file path.
//
// Thread-safety: Manager is safe for concurrent use. One Manager per process
// is enough; separate Managers still exclude each other through the sentinel.
type Manager struct {
	timeout time.Duration
	retry   time.Duration
	waits   prometheus.Observer

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewManager creates a Manager, applying defaults for zero options.
func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	return &Manager{
		timeout: opts.Timeout,
		retry:   opts.RetryInterval,
		waits:   opts.Waits,
		slots:   make(map[string]chan struct{}),
	}
}

// Timeout returns the configured acquisition timeout.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// SentinelPath returns the lock file guarding path.
func SentinelPath(path string) string {
	return filepath.Clean(path) + SentinelSuffix
}

// Acquire blocks until it holds the exclusive lock for path.
//
// Returns a *TimeoutError (errors.Is(err, ErrTimeout)) when the lock could not
// be taken within the manager's timeout, or ctx.Err() when ctx ends first.
// The caller must Release the returned token.
func (m *Manager) Acquire(ctx context.Context, path string) (*Token, error) {
	key := filepath.Clean(path)
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	slot := m.slot(key)
	select {
	case slot <- struct{}{}:
	case <-waitCtx.Done():
		return nil, m.waitErr(ctx, key, start)
	}

	s, err := m.lockSentinel(waitCtx, key+SentinelSuffix)
	if err != nil {
		<-slot
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, m.waitErr(ctx, key, start)
		}
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	if m.waits != nil {
		m.waits.Observe(time.Since(start).Seconds())
	}
	return &Token{path: key, sentinel: s, slot: slot}, nil
}

// lockSentinel polls the platform lock until it succeeds or ctx ends.
func (m *Manager) lockSentinel(ctx context.Context, sentinelPath string) (*sentinel, error) {
	if err := os.MkdirAll(filepath.Dir(sentinelPath), 0o755); err != nil {
		return nil, err
	}

	for {
		s, err := tryLock(sentinelPath)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, errLocked) {
			return nil, err
		}

		timer := time.NewTimer(m.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// slot returns the in-process wait channel for key, creating it on first use.
func (m *Manager) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.slots[key] = ch
	}
	return ch
}

// waitErr picks the error for an abandoned wait: the caller's own
// cancellation wins over the manager timeout.
func (m *Manager) waitErr(ctx context.Context, key string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return &TimeoutError{Path: key, Waited: time.Since(start)}
}

// Token is a held lock. Release it exactly once; extra calls are no-ops.
type Token struct {
	path     string
	sentinel *sentinel
	slot     chan struct{}
	once     sync.Once
}

// Path returns the collection path the token guards.
func (t *Token) Path() string {
	return t.path
}

// Release drops the lock and removes the sentinel file.
func (t *Token) Release() error {
	var err error
	t.once.Do(func() {
		err = t.sentinel.unlock()
		<-t.slot
	})
	return err
}
