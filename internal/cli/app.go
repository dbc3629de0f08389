package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/recordkeep/internal/audit"
	"github.com/roach88/recordkeep/internal/backup"
	"github.com/roach88/recordkeep/internal/config"
	"github.com/roach88/recordkeep/internal/lock"
	"github.com/roach88/recordkeep/internal/recordstore"
)

// cliActor attributes audit entries written by CLI commands.
const cliActor = "cli"

// closeTimeout bounds the final journal drain.
const closeTimeout = 30 * time.Second

// app is the component graph one command runs against.
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	store    *recordstore.Store
	journal  *audit.Journal
	pipeline *backup.Pipeline
}

// openApp loads config and wires the store, journal and pipeline.
func openApp(opts *RootOptions, backupDir string) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:      opts.ConfigFile,
		DataDir:   opts.DataDir,
		BackupDir: backupDir,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("config loaded", "data_dir", cfg.DataDir, "backup_dir", cfg.BackupDir)

	reg := prometheus.NewRegistry()
	waits := promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Namespace: "recordkeep",
		Subsystem: "lock",
		Name:      "wait_seconds",
		Help:      "Time spent waiting to acquire collection locks.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	store := recordstore.New(cfg.DataDir, lock.NewManager(lock.Options{
		Timeout:       cfg.Lock.Timeout,
		RetryInterval: cfg.Lock.RetryInterval,
		Waits:         waits,
	}))

	journal := audit.NewJournal(store, audit.Config{
		MirrorPath:   cfg.MirrorPath(),
		BatchSize:    cfg.Audit.BatchSize,
		FlushDelay:   cfg.Audit.FlushDelay,
		RetryDelay:   cfg.Audit.RetryDelay,
		DefaultActor: cfg.Audit.DefaultActor,
		Metrics:      audit.NewMetrics(reg),
	})

	pipeline := backup.New(store, backup.Options{
		Recorder: journal,
	})

	return &app{
		cfg:      cfg,
		registry: reg,
		store:    store,
		journal:  journal,
		pipeline: pipeline,
	}, nil
}

// context returns ctx carrying the CLI audit actor.
func (a *app) context(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return audit.ContextWithActor(ctx, cliActor)
}

// close drains the journal and logs the run's metrics at debug level.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := a.journal.Close(ctx); err != nil {
		slog.Error("audit journal not fully flushed", "pending", a.journal.Pending(), "error", err)
	}
	logMetrics(a.registry)
}

func logMetrics(reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		slog.Debug("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				slog.Debug("metric", "name", mf.GetName(), "value", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				slog.Debug("metric", "name", mf.GetName(), "value", m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				slog.Debug("metric", "name", mf.GetName(), "count", h.GetSampleCount(), "sum", h.GetSampleSum())
			}
		}
	}
}
