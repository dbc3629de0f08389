package auditdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/recordkeep/internal/audit"
	"github.com/roach88/recordkeep/internal/canonical"
)

// WriteEntries inserts entries in one transaction, using the slice position
// as seq. Rows whose id already exists are left alone, so exporting the same
// collection twice is a no-op. Returns the number of rows inserted.
func (s *Store) WriteEntries(ctx context.Context, entries []audit.Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write entries: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_entries
		(id, seq, timestamp, action, actor, entity_type, entity_id, entity_info,
		 changes, result, error_message, details, hash, hash_valid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("write entries: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i, e := range entries {
		changes, err := nullableJSON(e.Changes)
		if err != nil {
			return 0, fmt.Errorf("write entry %s changes: %w", e.ID, err)
		}
		details, err := nullableJSON(e.Details)
		if err != nil {
			return 0, fmt.Errorf("write entry %s details: %w", e.ID, err)
		}
		computed, _ := audit.ComputeHash(e)

		res, err := stmt.ExecContext(ctx,
			e.ID,
			i+1,
			e.Timestamp,
			string(e.Action),
			e.Actor,
			e.EntityType,
			e.EntityID,
			e.EntityInfo,
			changes,
			string(e.Result),
			nullableString(e.ErrorMessage),
			details,
			e.Hash,
			computed == e.Hash,
		)
		if err != nil {
			return 0, fmt.Errorf("write entry %s: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("write entry %s: %w", e.ID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write entries: commit: %w", err)
	}
	return inserted, nil
}

func nullableJSON(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := canonical.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
