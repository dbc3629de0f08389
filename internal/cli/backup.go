package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// BackupOptions holds flags for the backup command.
type BackupOptions struct {
	*RootOptions
}

// BackupFile describes one produced snapshot CSV.
type BackupFile struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// BackupResult is the output of the backup command.
type BackupResult struct {
	Dir   string       `json:"dir"`
	Files []BackupFile `json:"files"`
}

// Text prints one CSV path per line; verbose adds sizes.
func (r BackupResult) Text(verbose bool) string {
	var b strings.Builder
	for _, f := range r.Files {
		if verbose {
			fmt.Fprintf(&b, "%s (%s)\n", f.Path, humanize.Bytes(uint64(f.Bytes)))
			continue
		}
		fmt.Fprintln(&b, f.Path)
	}
	return b.String()
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup [dir]",
		Short: "Snapshot tracked collections to checksummed CSV",
		Long: `Export every tracked collection to a CSV file with a SHA-256 sidecar.

Files are written to dir, or to backup_dir from the config when omitted,
and named <collection>-<UTC timestamp>.csv. The CSV paths are printed one
per line.

Example:
  recordkeep backup
  recordkeep backup /mnt/usb/recordkeep --verbose`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runBackup(opts, dir, cmd)
		},
	}

	return cmd
}

func runBackup(opts *BackupOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	a, err := openApp(opts.RootOptions, dir)
	if err != nil {
		return formatter.Fail("load config", err)
	}
	defer a.close()

	ctx := a.context(cmd.Context())
	formatter.VerboseLog("Backing up %s to %s", a.cfg.DataDir, a.cfg.BackupDir)

	paths, err := a.pipeline.Backup(ctx, a.cfg.BackupDir)
	if err != nil {
		return formatter.Fail("backup failed", err)
	}

	result := BackupResult{Dir: a.cfg.BackupDir}
	for _, p := range paths {
		f := BackupFile{Path: p}
		if info, err := os.Stat(p); err == nil {
			f.Bytes = info.Size()
		}
		result.Files = append(result.Files, f)
	}
	return formatter.Success(result)
}
