// Package backup exports tracked collections to checksummed CSV snapshots and
// restores them.
//
// A snapshot is one CSV file per collection plus a ".sha256" sidecar holding
// the lowercase hex digest of the CSV bytes. Files are named
// "<collection>-<timestamp>.csv" where the timestamp is the capture time in
// UTC with ':' and '.' replaced by '-'.
//
// Restore is all-or-nothing up to the write phase: every checksum is verified
// and every file parsed and validated before any live collection is replaced.
// Each collection is then fully replaced, never merged.
package backup
