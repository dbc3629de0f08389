package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/roach88/recordkeep/internal/recordstore"
)

// Defaults applied by NewJournal for zero Config fields.
const (
	DefaultBatchSize    = 20
	DefaultFlushDelay   = 10 * time.Millisecond
	DefaultRetryDelay   = time.Second
	DefaultActor        = "system"
	DefaultAuditFile    = "audit.json"
	DefaultMirrorFile   = "logs/audit.ndjson"
	flushContextTimeout = 30 * time.Second
)

// Config configures a Journal.
type Config struct {
	// Path is the audit collection file. Default: "audit.json" in the store dir.
	Path string

	// MirrorPath is the append-only NDJSON log. Empty disables the mirror.
	MirrorPath string

	// BatchSize caps entries moved per flush. Default: 20.
	BatchSize int

	// FlushDelay is how long Add waits before flushing, letting bursts batch.
	FlushDelay time.Duration

	// Backoff decides the delay before retrying a failed flush. Default: a
	// constant RetryDelay.
	Backoff backoff.BackOff

	// RetryDelay is the constant retry delay used when Backoff is nil.
	RetryDelay time.Duration

	// DefaultActor attributes entries with no actor option or context actor.
	DefaultActor string

	Logger  *slog.Logger
	Metrics *Metrics

	// Now is the entry clock. Default: time.Now.
	Now func() time.Time
}

// Journal queues audit entries and flushes them in the background.
//
// Thread-safety: all methods are safe for concurrent use. Flushes are
// serialized so entries reach storage in Add order.
type Journal struct {
	store      *recordstore.Store
	path       string
	mirrorPath string
	batchSize  int
	flushDelay time.Duration
	actor      string
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time

	queue *entryQueue

	// flushMu serializes pop..persist..requeue so batches cannot reorder.
	flushMu sync.Mutex

	// mu guards the scheduling state below.
	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool

	retryMu sync.Mutex
	retry   backoff.BackOff
}

// NewJournal creates a Journal persisting into store.
func NewJournal(store *recordstore.Store, cfg Config) *Journal {
	if cfg.Path == "" {
		cfg.Path = store.Path(DefaultAuditFile)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushDelay < 0 {
		cfg.FlushDelay = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.NewConstantBackOff(cfg.RetryDelay)
	}
	if cfg.DefaultActor == "" {
		cfg.DefaultActor = DefaultActor
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Journal{
		store:      store,
		path:       cfg.Path,
		mirrorPath: cfg.MirrorPath,
		batchSize:  cfg.BatchSize,
		flushDelay: cfg.FlushDelay,
		actor:      cfg.DefaultActor,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		queue:      newEntryQueue(),
		retry:      cfg.Backoff,
	}
}

// Path returns the audit collection file.
func (j *Journal) Path() string {
	return j.path
}

// Add records an operation. It never fails and never blocks on I/O: the
// entry is queued and persisted by a later flush. ctx is consulted only for
// the actor.
func (j *Journal) Add(ctx context.Context, action Action, entityID, entityInfo string, result Result, opts ...Option) {
	e, err := j.build(ctx, action, entityID, entityInfo, result, opts...)
	if err != nil {
		j.logger.Error("audit entry dropped", "action", action, "entity_id", entityID, "error", err)
		return
	}

	n := j.queue.push(e)
	j.metrics.Pending.Set(float64(n))

	j.mu.Lock()
	j.scheduleLocked(j.flushDelay)
	j.mu.Unlock()
}

// build assembles and stamps an entry.
func (j *Journal) build(ctx context.Context, action Action, entityID, entityInfo string, result Result, opts ...Option) (Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	e := Entry{
		ID:         id.String(),
		Timestamp:  j.now().UTC().Format(TimestampLayout),
		Action:     action,
		Actor:      j.actor,
		EntityType: action.EntityType(),
		EntityID:   entityID,
		EntityInfo: entityInfo,
		Result:     result,
	}
	if actor, ok := ActorFromContext(ctx); ok {
		e.Actor = actor
	}
	for _, opt := range opts {
		opt(&e)
	}

	// Detach from caller-owned maps and give them the shape they read back as.
	if e.Changes, err = normalizeMap(e.Changes); err != nil {
		return Entry{}, fmt.Errorf("changes: %w", err)
	}
	if e.Details, err = normalizeMap(e.Details); err != nil {
		return Entry{}, fmt.Errorf("details: %w", err)
	}

	e.Hash, err = ComputeHash(e)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Pending returns the number of queued entries.
func (j *Journal) Pending() int {
	return j.queue.len()
}

// Sync flushes until the queue is empty or a flush fails.
func (j *Journal) Sync(ctx context.Context) error {
	for {
		if _, err := j.flushOnce(ctx); err != nil {
			return err
		}
		if j.queue.len() == 0 {
			return nil
		}
	}
}

// Close stops background flushing and drains the queue. Entries added after
// Close stay queued until the next Sync.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	j.closed = true
	j.stopTimerLocked()
	j.mu.Unlock()

	return j.Sync(ctx)
}

// scheduleLocked arms the flush timer unless one is already armed.
// Caller must hold j.mu.
func (j *Journal) scheduleLocked(delay time.Duration) {
	if j.timer != nil || j.closed {
		return
	}
	j.gen++
	gen := j.gen
	j.timer = time.AfterFunc(delay, func() { j.runScheduled(gen) })
}

// stopTimerLocked disarms the pending timer. A callback that already fired
// sees a newer generation and returns without flushing.
// Caller must hold j.mu.
func (j *Journal) stopTimerLocked() {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	j.gen++
}

// runScheduled is the timer callback: flush one batch, then arrange the
// next flush or a retry.
func (j *Journal) runScheduled(gen uint64) {
	j.mu.Lock()
	if gen != j.gen {
		j.mu.Unlock()
		return
	}
	j.timer = nil
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushContextTimeout)
	defer cancel()

	_, err := j.flushOnce(ctx)

	if err != nil {
		delay := j.nextRetry()
		j.logger.Warn("audit flush failed, retrying",
			"error", err,
			"pending", j.queue.len(),
			"retry_in", delay,
		)

		// A flush armed by Add during the failed attempt must not cut the
		// retry delay short.
		j.mu.Lock()
		j.stopTimerLocked()
		j.scheduleLocked(delay)
		j.mu.Unlock()
		return
	}

	j.retryMu.Lock()
	j.retry.Reset()
	j.retryMu.Unlock()

	j.mu.Lock()
	if j.queue.len() > 0 {
		j.scheduleLocked(0)
	}
	j.mu.Unlock()
}

func (j *Journal) nextRetry() time.Duration {
	j.retryMu.Lock()
	defer j.retryMu.Unlock()

	delay := j.retry.NextBackOff()
	if delay == backoff.Stop {
		delay = DefaultRetryDelay
	}
	return delay
}

// flushOnce persists one batch. On failure the batch goes back to the front
// of the queue.
func (j *Journal) flushOnce(ctx context.Context) (int, error) {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	batch := j.queue.pop(j.batchSize)
	if len(batch) == 0 {
		return 0, nil
	}
	j.metrics.Pending.Set(float64(j.queue.len()))

	if err := j.persist(ctx, batch); err != nil {
		n := j.queue.pushFront(batch)
		j.metrics.Pending.Set(float64(n))
		j.metrics.Failures.Inc()
		return 0, err
	}

	j.metrics.Flushes.Inc()
	j.metrics.Flushed.Add(float64(len(batch)))
	j.logger.Debug("audit batch flushed", "entries", len(batch), "path", j.path)
	return len(batch), nil
}

// persist appends batch to the collection under one lock, then to the
// mirror. Entries already in the collection are not appended again.
func (j *Journal) persist(ctx context.Context, batch []Entry) error {
	err := recordstore.Update(ctx, j.store, j.path, []Entry{}, func(existing []Entry) ([]Entry, error) {
		seen := make(map[string]struct{}, len(existing))
		for _, e := range existing {
			seen[e.ID] = struct{}{}
		}
		for _, e := range batch {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			existing = append(existing, e)
		}
		return existing, nil
	})
	if err != nil {
		return fmt.Errorf("append audit collection: %w", err)
	}

	if j.mirrorPath == "" {
		return nil
	}
	if err := appendMirror(j.mirrorPath, batch); err != nil {
		return fmt.Errorf("append audit mirror: %w", err)
	}
	return nil
}

// appendMirror writes batch as newline-delimited JSON to the end of path.
func appendMirror(path string, batch []Entry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
