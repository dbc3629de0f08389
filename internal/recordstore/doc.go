// Package recordstore persists collections as whole-file JSON documents.
//
// Each collection is one file holding a pretty-printed JSON array. Every read
// and write holds the collection's exclusive lock (see package lock).
//
// # Crash safety
//
// Write serialises to a temporary file in the target directory, fsyncs it and
// renames it over the destination. The rename is the commit point: readers
// see either the old file or the new one, never a partial document.
//
// # Read-modify-write
//
// Read followed by Write is two lock scopes, so concurrent callers mutating
// the same collection can lose updates. Update holds one lock across the
// whole cycle and should be used whenever the new content depends on the old.
package recordstore
