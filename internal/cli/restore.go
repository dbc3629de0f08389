package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recordkeep/internal/backup"
)

// RestoreOptions holds flags for the restore command.
type RestoreOptions struct {
	*RootOptions
	DryRun bool
}

// RestoreResult is the output of the restore command.
type RestoreResult struct {
	DryRun      bool              `json:"dry_run"`
	Collections []backup.Restored `json:"collections"`
}

// Text lists each restored collection with its record count.
func (r RestoreResult) Text(verbose bool) string {
	var b strings.Builder
	verb := "restored"
	if r.DryRun {
		verb = "verified"
	}
	for _, c := range r.Collections {
		fmt.Fprintf(&b, "%s %s: %d records", verb, c.Collection, c.Records)
		if verbose {
			fmt.Fprintf(&b, " from %s", c.Source)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore <visitors.csv> <audit.csv>",
		Short: "Replace live collections from a verified snapshot",
		Long: `Restore collections from snapshot CSV files produced by backup.

Each file's collection is taken from its name. Every checksum sidecar is
verified and every file parsed before any collection is replaced, so a
failed restore leaves live data untouched. Restore replaces, it never
merges.

Example:
  recordkeep restore backups/visitors-2026-10-16T08-00-00-000Z.csv \
      backups/audit-2026-10-16T08-00-00-000Z.csv
  recordkeep restore --dry-run backups/visitors-2026-10-16T08-00-00-000Z.csv`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "verify and parse without writing")

	return cmd
}

func runRestore(opts *RestoreOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	a, err := openApp(opts.RootOptions, "")
	if err != nil {
		return formatter.Fail("load config", err)
	}
	defer a.close()

	ctx := a.context(cmd.Context())
	for _, p := range paths {
		formatter.VerboseLog("Verifying %s", p)
	}

	restored, err := a.pipeline.Restore(ctx, paths, backup.RestoreOptions{DryRun: opts.DryRun})
	if err != nil {
		return formatter.Fail("restore failed", err)
	}
	return formatter.Success(RestoreResult{DryRun: opts.DryRun, Collections: restored})
}
