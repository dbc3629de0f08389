package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recordkeep/internal/audit"
	"github.com/roach88/recordkeep/internal/auditdb"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}

	cmd.AddCommand(NewAuditVerifyCommand(rootOpts))
	cmd.AddCommand(NewAuditExportCommand(rootOpts))

	return cmd
}

// VerifyResult is the output of audit verify.
type VerifyResult struct {
	Entries    int              `json:"entries"`
	Mismatches []audit.Mismatch `json:"mismatches"`
}

// Text summarizes the check and lists mismatched entries.
func (r VerifyResult) Text(verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d entries checked, %d mismatched\n", r.Entries, len(r.Mismatches))
	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "  #%d %s", m.Index, m.ID)
		if verbose {
			fmt.Fprintf(&b, " stored=%s computed=%s", m.Stored, m.Computed)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// NewAuditVerifyCommand creates the audit verify command.
func NewAuditVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute every audit entry hash",
		Long: `Recompute the hash of every persisted audit entry and report entries
whose stored hash does not match their content. Exits 1 on any mismatch.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditVerify(rootOpts, cmd)
		},
	}
}

func runAuditVerify(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	a, err := openApp(opts, "")
	if err != nil {
		return formatter.Fail("load config", err)
	}
	defer a.close()

	entries, err := audit.ReadEntries(a.context(cmd.Context()), a.store, a.journal.Path())
	if err != nil {
		return formatter.Fail("read audit trail", err)
	}

	result := VerifyResult{Entries: len(entries), Mismatches: audit.Verify(entries)}
	if result.Mismatches == nil {
		result.Mismatches = []audit.Mismatch{}
	}
	if len(result.Mismatches) > 0 {
		_ = formatter.Error(ErrCodeTampered,
			fmt.Sprintf("%d of %d audit entries do not match their hash", len(result.Mismatches), result.Entries),
			result)
		return NewExitError(ExitFailure, "audit verification failed")
	}
	return formatter.Success(result)
}

// ExportOptions holds flags for the audit export command.
type ExportOptions struct {
	*RootOptions
}

// ExportResult is the output of audit export.
type ExportResult struct {
	Database string          `json:"database"`
	Inserted int             `json:"inserted"`
	Summary  auditdb.Summary `json:"summary"`
}

// Text summarizes the export.
func (r ExportResult) Text(verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "exported %d new entries to %s (%d total, %d with invalid hashes)\n",
		r.Inserted, r.Database, r.Summary.Entries, r.Summary.Invalid)
	if verbose {
		for _, action := range slices.Sorted(maps.Keys(r.Summary.ByAction)) {
			fmt.Fprintf(&b, "  %s: %d\n", action, r.Summary.ByAction[action])
		}
	}
	return b.String()
}

// NewAuditExportCommand creates the audit export command.
func NewAuditExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "export <out.db>",
		Short: "Copy the audit trail into a SQLite database",
		Long: `Copy every persisted audit entry into the audit_entries table of a
SQLite database for ad-hoc queries. Re-exporting into the same database
only adds entries it does not already hold.

Example:
  recordkeep audit export audit.db
  sqlite3 audit.db "SELECT actor, COUNT(*) FROM audit_entries GROUP BY actor"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditExport(opts, args[0], cmd)
		},
	}
}

func runAuditExport(opts *ExportOptions, dbPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	a, err := openApp(opts.RootOptions, "")
	if err != nil {
		return formatter.Fail("load config", err)
	}
	defer a.close()

	ctx := a.context(cmd.Context())
	entries, err := audit.ReadEntries(ctx, a.store, a.journal.Path())
	if err != nil {
		return formatter.Fail("read audit trail", err)
	}

	db, err := auditdb.Open(dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeExport, err.Error(), nil)
		return WrapExitError(ExitFailure, "open export database", err)
	}
	defer db.Close()

	inserted, err := db.WriteEntries(ctx, entries)
	if err != nil {
		_ = formatter.Error(ErrCodeExport, err.Error(), nil)
		return WrapExitError(ExitFailure, "export audit trail", err)
	}
	summary, err := db.Summarize(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeExport, err.Error(), nil)
		return WrapExitError(ExitFailure, "summarize export", err)
	}

	formatter.VerboseLog("Exported %d of %d entries", inserted, len(entries))
	return formatter.Success(ExportResult{Database: dbPath, Inserted: inserted, Summary: summary})
}
