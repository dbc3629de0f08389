// Package audit records state-changing operations as integrity-stamped
// entries and persists them asynchronously.
//
// # Entries
//
// Every Entry carries hash = SHA-256(canonical JSON of all other fields),
// computed once when the entry is built. Entries are append-only. The hash is
// a per-entry stamp: it is not chained to the previous entry, so Verify
// detects an edited entry but not a deleted one.
//
// # Journal
//
// Journal.Add builds an entry, queues it in memory and returns. A background
// flush moves up to BatchSize queued entries at a time into the audit
// collection (one lock round trip through recordstore.Update) and appends
// them to an NDJSON mirror log. A failed flush puts its batch back at the
// front of the queue and retries after the configured backoff.
//
// # Delivery
//
// Delivery is at-least-once with a loss window: entries still queued when
// the process dies are gone. Re-appending a batch skips ids already present
// in the collection, but the mirror log can hold duplicates after a crash
// mid-retry, so mirror consumers should dedupe by id.
package audit
