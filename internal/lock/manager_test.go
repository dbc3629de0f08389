package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(timeout time.Duration) *Manager {
	return NewManager(Options{Timeout: timeout, RetryInterval: 5 * time.Millisecond})
}

func TestAcquire_CreatesAndRemovesSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visitors.json")
	m := newTestManager(time.Second)

	tok, err := m.Acquire(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(path), tok.Path())

	info, err := os.Stat(SentinelPath(path))
	require.NoError(t, err, "sentinel must exist while held")
	assert.Equal(t, int64(0), info.Size())

	require.NoError(t, tok.Release())
	_, err = os.Stat(SentinelPath(path))
	assert.True(t, os.IsNotExist(err), "sentinel must be gone after release")
}

func TestAcquire_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.json")
	m := newTestManager(time.Second)

	tok, err := m.Acquire(context.Background(), path)
	require.NoError(t, err)
	defer tok.Release()

	assert.DirExists(t, filepath.Dir(path))
}

func TestRelease_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	m := newTestManager(time.Second)

	tok, err := m.Acquire(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, tok.Release())
	require.NoError(t, tok.Release())

	// The slot must have been freed exactly once.
	tok2, err := m.Acquire(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, tok2.Release())
}

func TestAcquire_TimesOutAcrossManagers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	holder := newTestManager(time.Second)
	waiter := newTestManager(80 * time.Millisecond)

	tok, err := holder.Acquire(context.Background(), path)
	require.NoError(t, err)
	defer tok.Release()

	start := time.Now()
	_, err = waiter.Acquire(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, IsTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, filepath.Clean(path), te.Path)
}

func TestAcquire_TimesOutWithinManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	m := newTestManager(50 * time.Millisecond)

	tok, err := m.Acquire(context.Background(), path)
	require.NoError(t, err)
	defer tok.Release()

	_, err = m.Acquire(context.Background(), path)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	m := newTestManager(5 * time.Second)

	tok, err := m.Acquire(context.Background(), path)
	require.NoError(t, err)
	defer tok.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = m.Acquire(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeout(err))
}

func TestAcquire_WaiterProceedsAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	holder := newTestManager(time.Second)
	waiter := newTestManager(time.Second)

	tok, err := holder.Acquire(context.Background(), path)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		tok.Release()
	}()

	tok2, err := waiter.Acquire(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, tok2.Release())
}

func TestAcquire_DifferentPathsDoNotContend(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(50 * time.Millisecond)

	a, err := m.Acquire(context.Background(), filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	defer a.Release()

	b, err := m.Acquire(context.Background(), filepath.Join(dir, "b.json"))
	require.NoError(t, err)
	defer b.Release()
}

// Holders record enter/exit events; exclusion means the log strictly
// alternates and no two holders are ever inside together.
func TestAcquire_HoldersNeverOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.json")
	managers := []*Manager{newTestManager(10 * time.Second), newTestManager(10 * time.Second)}

	var (
		logMu  sync.Mutex
		events []string
	)
	record := func(ev string) {
		logMu.Lock()
		events = append(events, ev)
		logMu.Unlock()
	}

	const workers = 6
	const rounds = 5

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		m := managers[w%len(managers)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				tok, err := m.Acquire(context.Background(), path)
				if !assert.NoError(t, err) {
					return
				}
				record("enter")
				time.Sleep(time.Millisecond)
				record("exit")
				assert.NoError(t, tok.Release())
			}
		}()
	}
	wg.Wait()

	require.Len(t, events, workers*rounds*2)
	for i, ev := range events {
		if i%2 == 0 {
			assert.Equal(t, "enter", ev, "event %d", i)
		} else {
			assert.Equal(t, "exit", ev, "event %d", i)
		}
	}
}

func TestAcquire_ObservesWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "lock_wait_seconds"})
	m := NewManager(Options{Timeout: time.Second, Waits: hist})

	for i := 0; i < 3; i++ {
		tok, err := m.Acquire(context.Background(), path)
		require.NoError(t, err)
		require.NoError(t, tok.Release())
	}

	assert.Equal(t, 1, promtest.CollectAndCount(hist))
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Options{})
	assert.Equal(t, DefaultTimeout, m.Timeout())
	assert.Equal(t, DefaultRetryInterval, m.retry)
}
