package auditdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/recordkeep/internal/audit"
)

// Summary describes the content of an export.
type Summary struct {
	Entries  int                  `json:"entries"`
	Invalid  int                  `json:"invalid_hashes"`
	ByAction map[audit.Action]int `json:"by_action"`
}

// ReadEntries returns every exported entry in collection order. Returns an
// empty slice, not nil, for an empty export.
func (s *Store) ReadEntries(ctx context.Context) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, action, actor, entity_type, entity_id, entity_info,
		       changes, result, error_message, details, hash
		FROM audit_entries
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// InvalidIDs returns the ids of rows whose hash did not match at export.
func (s *Store) InvalidIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM audit_entries
		WHERE hash_valid = 0
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query invalid entries: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan invalid entry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Summarize counts exported entries in total, with bad hashes and per
// action.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	sum := Summary{ByAction: map[audit.Action]int{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN hash_valid = 0 THEN 1 ELSE 0 END), 0)
		FROM audit_entries
	`).Scan(&sum.Entries, &sum.Invalid)
	if err != nil {
		return Summary{}, fmt.Errorf("count entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT action, COUNT(*) FROM audit_entries
		GROUP BY action
		ORDER BY action COLLATE BINARY ASC
	`)
	if err != nil {
		return Summary{}, fmt.Errorf("count by action: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return Summary{}, fmt.Errorf("scan action count: %w", err)
		}
		sum.ByAction[audit.Action(action)] = n
	}
	return sum, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (audit.Entry, error) {
	var (
		e                        audit.Entry
		action, result           string
		changes, details, errMsg sql.NullString
	)
	err := row.Scan(&e.ID, &e.Timestamp, &action, &e.Actor, &e.EntityType, &e.EntityID,
		&e.EntityInfo, &changes, &result, &errMsg, &details, &e.Hash)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Action = audit.Action(action)
	e.Result = audit.Result(result)
	e.ErrorMessage = errMsg.String

	if e.Changes, err = unmarshalObject(changes); err != nil {
		return audit.Entry{}, fmt.Errorf("entry %s changes: %w", e.ID, err)
	}
	if e.Details, err = unmarshalObject(details); err != nil {
		return audit.Entry{}, fmt.Errorf("entry %s details: %w", e.ID, err)
	}
	return e, nil
}

func unmarshalObject(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
