package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/recordkeep/internal/audit"
	"github.com/roach88/recordkeep/internal/domain"
	"github.com/roach88/recordkeep/internal/recordstore"
)

// Collection names. They prefix snapshot file names.
const (
	CollectionVisitors = "visitors"
	CollectionAudit    = "audit"
)

// DefaultVisitorsFile is the visitor collection file under the data dir.
const DefaultVisitorsFile = "visitors.json"

// Column order is part of the snapshot format. Restore reads fields by
// position, so never reorder; append new columns at the end.
var (
	VisitorColumns = []string{
		"id", "name", "company", "hostName", "purpose", "badgeNumber",
		"checkInTime", "checkOutTime", "notes", "ndaSigned", "escortRequired",
	}
	AuditColumns = []string{
		"id", "timestamp", "action", "actor", "entityType", "entityId",
		"entityInfo", "changes", "result", "errorMessage", "details", "hash",
	}
)

// table binds a tracked collection to its CSV shape.
type table struct {
	name    string
	file    string
	columns []string

	// export reads the live collection and returns one row per record.
	export func(ctx context.Context, s *recordstore.Store, path string) ([][]any, error)

	// decode rebuilds the collection from data rows. The result is a
	// non-nil slice ready for recordstore Write.
	decode func(rows [][]string, v *validator.Validate) (any, int, error)
}

func visitorsTable(file string) table {
	return table{
		name:    CollectionVisitors,
		file:    file,
		columns: VisitorColumns,
		export: func(ctx context.Context, s *recordstore.Store, path string) ([][]any, error) {
			return exportRows(ctx, s, path, visitorRow)
		},
		decode: func(rows [][]string, v *validator.Validate) (any, int, error) {
			out, err := decodeRows(rows, v, visitorFromRow)
			return out, len(out), err
		},
	}
}

func auditTable(file string) table {
	return table{
		name:    CollectionAudit,
		file:    file,
		columns: AuditColumns,
		export: func(ctx context.Context, s *recordstore.Store, path string) ([][]any, error) {
			return exportRows(ctx, s, path, entryRow)
		},
		decode: func(rows [][]string, v *validator.Validate) (any, int, error) {
			out, err := decodeRows(rows, v, entryFromRow)
			return out, len(out), err
		},
	}
}

func exportRows[T any](ctx context.Context, s *recordstore.Store, path string, toRow func(T) ([]any, error)) ([][]any, error) {
	records, err := recordstore.Read(ctx, s, path, []T{})
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		row, err := toRow(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRows[T any](rows [][]string, v *validator.Validate, fromRow func([]string) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		rec, err := fromRow(row)
		if err == nil {
			err = v.Struct(rec)
		}
		if err != nil {
			return nil, &rowError{index: i, err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

func visitorRow(v domain.Visitor) ([]any, error) {
	var checkOut any
	if v.CheckOutTime != nil {
		checkOut = *v.CheckOutTime
	}
	return []any{
		v.ID, v.Name, v.Company, v.HostName, v.Purpose, v.BadgeNumber,
		v.CheckInTime, checkOut, v.Notes, v.NDASigned, v.EscortRequired,
	}, nil
}

func visitorFromRow(row []string) (domain.Visitor, error) {
	checkIn, err := parseTime(row[6])
	if err != nil {
		return domain.Visitor{}, fmt.Errorf("checkInTime: %w", err)
	}
	v := domain.Visitor{
		ID:             row[0],
		Name:           row[1],
		Company:        optional(row[2]),
		HostName:       optional(row[3]),
		Purpose:        optional(row[4]),
		BadgeNumber:    optional(row[5]),
		CheckInTime:    checkIn,
		Notes:          optional(row[8]),
		NDASigned:      row[9] == "true",
		EscortRequired: row[10] == "true",
	}
	if row[7] != "" {
		checkOut, err := parseTime(row[7])
		if err != nil {
			return domain.Visitor{}, fmt.Errorf("checkOutTime: %w", err)
		}
		v.CheckOutTime = &checkOut
	}
	return v, nil
}

func entryRow(e audit.Entry) ([]any, error) {
	changes, err := compactJSON(e.Changes)
	if err != nil {
		return nil, fmt.Errorf("changes: %w", err)
	}
	details, err := compactJSON(e.Details)
	if err != nil {
		return nil, fmt.Errorf("details: %w", err)
	}
	return []any{
		e.ID, e.Timestamp, string(e.Action), e.Actor, e.EntityType, e.EntityID,
		e.EntityInfo, changes, string(e.Result), e.ErrorMessage, details, e.Hash,
	}, nil
}

func entryFromRow(row []string) (audit.Entry, error) {
	changes, err := parseObject(row[7])
	if err != nil {
		return audit.Entry{}, fmt.Errorf("changes: %w", err)
	}
	details, err := parseObject(row[10])
	if err != nil {
		return audit.Entry{}, fmt.Errorf("details: %w", err)
	}
	return audit.Entry{
		ID:           row[0],
		Timestamp:    row[1],
		Action:       audit.Action(row[2]),
		Actor:        row[3],
		EntityType:   row[4],
		EntityID:     row[5],
		EntityInfo:   row[6],
		Changes:      changes,
		Result:       audit.Result(row[8]),
		ErrorMessage: row[9],
		Details:      details,
		Hash:         row[11],
	}, nil
}

// optional maps the empty-string sentinel back to an absent field.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseTime accepts "" as the zero time and leaves presence checks to the
// validator.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func compactJSON(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}
