package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recordkeep/internal/audit"
	"github.com/roach88/recordkeep/internal/canonical"
	"github.com/roach88/recordkeep/internal/csvcodec"
	"github.com/roach88/recordkeep/internal/recordstore"
)

// SidecarSuffix is appended to a CSV path to name its checksum file.
const SidecarSuffix = ".sha256"

// stampLayout is the capture time format before ':' and '.' are replaced.
const stampLayout = "2006-01-02T15:04:05.000Z07:00"

// Recorder receives audit entries for backup and restore runs.
// *audit.Journal implements it.
type Recorder interface {
	Add(ctx context.Context, action audit.Action, entityID, entityInfo string, result audit.Result, opts ...audit.Option)
}

// Options configures a Pipeline.
type Options struct {
	// VisitorsFile is the visitor collection file name under the store dir.
	// Default: "visitors.json".
	VisitorsFile string

	// AuditFile is the audit collection file name. Default: "audit.json".
	AuditFile string

	// Recorder, if set, receives backup.performed and backup.restored entries.
	Recorder Recorder

	Logger *slog.Logger

	// Now stamps snapshot file names. Default: time.Now.
	Now func() time.Time
}

// Pipeline exports and restores the tracked collections of one store.
type Pipeline struct {
	store    *recordstore.Store
	tables   []table
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate
}

// New creates a Pipeline over store.
func New(store *recordstore.Store, opts Options) *Pipeline {
	if opts.VisitorsFile == "" {
		opts.VisitorsFile = DefaultVisitorsFile
	}
	if opts.AuditFile == "" {
		opts.AuditFile = audit.DefaultAuditFile
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		store: store,
		tables: []table{
			visitorsTable(opts.VisitorsFile),
			auditTable(opts.AuditFile),
		},
		recorder: opts.Recorder,
		logger:   opts.Logger,
		now:      opts.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Collections returns the tracked collection names in backup order.
func (p *Pipeline) Collections() []string {
	names := make([]string, len(p.tables))
	for i, t := range p.tables {
		names[i] = t.name
	}
	return names
}

// Backup writes one CSV and sidecar per tracked collection into backupDir
// and returns the CSV paths in collection order. Collections are exported
// concurrently; on error no paths are returned, though files already written
// are left in place.
func (p *Pipeline) Backup(ctx context.Context, backupDir string) ([]string, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	stamp := FileStamp(p.now())
	paths := make([]string, len(p.tables))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range p.tables {
		g.Go(func() error {
			path, err := p.export(gctx, t, backupDir, stamp)
			if err != nil {
				return fmt.Errorf("backup %s: %w", t.name, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.record(ctx, audit.ActionBackupPerformed, backupDir, audit.ResultFailure, audit.WithError(err))
		return nil, err
	}

	p.logger.Info("backup complete", "dir", backupDir, "files", len(paths))
	p.record(ctx, audit.ActionBackupPerformed, backupDir, audit.ResultSuccess,
		audit.WithDetails(map[string]any{"files": paths}))
	return paths, nil
}

func (p *Pipeline) export(ctx context.Context, t table, dir, stamp string) (string, error) {
	rows, err := t.export(ctx, p.store, p.store.Path(t.file))
	if err != nil {
		return "", err
	}

	header := make([]any, len(t.columns))
	for i, c := range t.columns {
		header[i] = c
	}
	data := []byte(csvcodec.Encode(append([][]any{header}, rows...)))

	path := filepath.Join(dir, t.name+"-"+stamp+".csv")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(path+SidecarSuffix, []byte(canonical.SumBytes(data)), 0o644); err != nil {
		return "", err
	}

	p.logger.Debug("collection exported", "collection", t.name, "records", len(rows), "path", path)
	return path, nil
}

// RestoreOptions controls Restore.
type RestoreOptions struct {
	// DryRun verifies, parses and validates every file without writing.
	DryRun bool
}

// Restored summarizes one collection handled by Restore.
type Restored struct {
	Collection string `json:"collection"`
	Source     string `json:"source"`
	Records    int    `json:"records"`
}

type restorePlan struct {
	table   table
	path    string
	raw     []byte
	records any
	count   int
}

// Restore replaces live collections with the content of snapshot CSVs.
//
// Each path's collection is taken from its file name prefix. Every checksum
// is verified first, then every file is parsed and validated; any failure
// returns before a live collection is touched. With DryRun nothing is
// written.
func (p *Pipeline) Restore(ctx context.Context, paths []string, opts RestoreOptions) ([]Restored, error) {
	out, err := p.restore(ctx, paths, opts)
	if opts.DryRun {
		return out, err
	}
	if err != nil {
		p.record(ctx, audit.ActionBackupRestored, strings.Join(paths, ","), audit.ResultFailure, audit.WithError(err))
		return nil, err
	}
	p.record(ctx, audit.ActionBackupRestored, strings.Join(paths, ","), audit.ResultSuccess,
		audit.WithDetails(map[string]any{"collections": restoredCounts(out)}))
	return out, nil
}

func (p *Pipeline) restore(ctx context.Context, paths []string, opts RestoreOptions) ([]Restored, error) {
	if len(paths) == 0 {
		return nil, errors.New("restore: no files given")
	}

	plans := make([]*restorePlan, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		t, err := p.tableFor(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[t.name]; dup {
			return nil, fmt.Errorf("restore: %s given twice (%s, %s)", t.name, prev, path)
		}
		seen[t.name] = path

		raw, err := VerifyFile(path)
		if err != nil {
			return nil, err
		}
		plans = append(plans, &restorePlan{table: t, path: path, raw: raw})
	}

	for _, plan := range plans {
		if err := p.decode(plan); err != nil {
			return nil, err
		}
	}

	out := make([]Restored, len(plans))
	for i, plan := range plans {
		out[i] = Restored{Collection: plan.table.name, Source: plan.path, Records: plan.count}
	}
	if opts.DryRun {
		p.logger.Info("restore dry run passed", "files", len(plans))
		return out, nil
	}

	for _, plan := range plans {
		target := p.store.Path(plan.table.file)
		if err := p.store.Write(ctx, target, plan.records); err != nil {
			return nil, fmt.Errorf("restore %s: %w", plan.table.name, err)
		}
		p.logger.Info("collection restored", "collection", plan.table.name, "records", plan.count, "source", plan.path)
	}
	return out, nil
}

func (p *Pipeline) decode(plan *restorePlan) error {
	rows := csvcodec.Decode(string(plan.raw))
	if len(rows) == 0 {
		return &ParseError{Path: plan.path, Row: 1, Err: errors.New("missing header")}
	}
	if !slices.Equal(rows[0], plan.table.columns) {
		return &ParseError{Path: plan.path, Row: 1, Err: fmt.Errorf("header %q does not match %q", rows[0], plan.table.columns)}
	}

	body := rows[1:]
	for i, row := range body {
		if len(row) != len(plan.table.columns) {
			return &ParseError{Path: plan.path, Row: i + 2, Err: fmt.Errorf("got %d fields, want %d", len(row), len(plan.table.columns))}
		}
	}

	records, n, err := plan.table.decode(body, p.validate)
	if err != nil {
		var re *rowError
		if errors.As(err, &re) {
			return &ParseError{Path: plan.path, Row: re.index + 2, Err: re.err}
		}
		return &ParseError{Path: plan.path, Row: 0, Err: err}
	}
	plan.records = records
	plan.count = n
	return nil
}

// tableFor resolves the tracked collection named by a snapshot file name.
func (p *Pipeline) tableFor(path string) (table, error) {
	base := filepath.Base(path)
	for _, t := range p.tables {
		if strings.HasPrefix(base, t.name+"-") {
			return t, nil
		}
	}
	return table{}, fmt.Errorf("%w: %s", ErrUnknownCollection, base)
}

func (p *Pipeline) record(ctx context.Context, action audit.Action, entityID string, result audit.Result, opts ...audit.Option) {
	if p.recorder == nil {
		return
	}
	p.recorder.Add(ctx, action, entityID, strings.Join(p.Collections(), ","), result, opts...)
}

func restoredCounts(rs []Restored) map[string]any {
	m := make(map[string]any, len(rs))
	for _, r := range rs {
		m[r.Collection] = r.Records
	}
	return m
}

// VerifyFile reads a snapshot CSV and checks it against its sidecar. It
// returns the verified bytes, or an *IntegrityError if the sidecar is
// missing or its digest differs.
func VerifyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	stored, err := os.ReadFile(path + SidecarSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &IntegrityError{Path: path, Reason: "checksum sidecar missing"}
	}
	if err != nil {
		return nil, fmt.Errorf("read checksum sidecar: %w", err)
	}

	want := strings.ToLower(strings.TrimSpace(string(stored)))
	got := canonical.SumBytes(raw)
	if want != got {
		return nil, &IntegrityError{Path: path, Reason: "checksum mismatch", Expected: want, Actual: got}
	}
	return raw, nil
}

// FileStamp formats t for snapshot file names, e.g.
// "2026-10-16T08-00-00-000Z".
func FileStamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format(stampLayout))
}
