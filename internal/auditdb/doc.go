// Package auditdb copies the audit trail into a SQLite database for ad-hoc
// inspection.
//
// The JSON audit collection stays the source of truth; the database is a
// disposable export. Entries keep their collection position in seq, and
// hash_valid records whether the stored hash matched the entry content at
// export time, so tampered rows can be found with
//
//	SELECT id, action, actor FROM audit_entries WHERE hash_valid = 0;
//
// Queries order by seq ASC, id ASC COLLATE BINARY.
package auditdb
