package auditdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordkeep/internal/audit"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func stamp(t *testing.T, e audit.Entry) audit.Entry {
	t.Helper()
	h, err := audit.ComputeHash(e)
	require.NoError(t, err)
	e.Hash = h
	return e
}

func testEntries(t *testing.T) []audit.Entry {
	return []audit.Entry{
		stamp(t, audit.Entry{
			ID:         "0192a000-0000-7000-8000-000000000001",
			Timestamp:  "2026-10-16T08:00:00.000Z",
			Action:     audit.ActionVisitorCheckIn,
			Actor:      "front-desk",
			EntityType: "visitor",
			EntityID:   "v-1",
			EntityInfo: "Ada Lovelace",
			Changes:    map[string]any{"badge": "B-17", "floor": float64(3)},
			Result:     audit.ResultSuccess,
		}),
		stamp(t, audit.Entry{
			ID:           "0192a000-0000-7000-8000-000000000002",
			Timestamp:    "2026-10-16T08:00:00.001Z",
			Action:       audit.ActionReservationCancel,
			Actor:        "system",
			EntityType:   "reservation",
			EntityID:     "r-9",
			EntityInfo:   "Lab B, bench 3",
			Result:       audit.ResultFailure,
			ErrorMessage: "slot already started",
			Details:      map[string]any{"source": "kiosk"},
		}),
		stamp(t, audit.Entry{
			ID:         "0192a000-0000-7000-8000-000000000003",
			Timestamp:  "2026-10-16T08:00:00.002Z",
			Action:     audit.ActionVisitorCheckIn,
			Actor:      "front-desk",
			EntityType: "visitor",
			EntityID:   "v-2",
			EntityInfo: "Grace Hopper",
			Result:     audit.ResultSuccess,
		}),
	}
}

func TestOpen_CreatesDatabase(t *testing.T) {
	_, path := openTestStore(t)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s, _ := openTestStore(t)

	mode, err := s.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	s, path := openTestStore(t)
	_, err := s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestWriteEntries_RoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	entries := testEntries(t)

	n, err := s.WriteEntries(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.ReadEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestWriteEntries_SkipsExistingIDs(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	entries := testEntries(t)

	_, err := s.WriteEntries(ctx, entries[:2])
	require.NoError(t, err)

	n, err := s.WriteEntries(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.ReadEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestWriteEntries_FlagsTamperedHashes(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	entries := testEntries(t)
	entries[1].EntityInfo = "Lab C"

	_, err := s.WriteEntries(ctx, entries)
	require.NoError(t, err)

	ids, err := s.InvalidIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{entries[1].ID}, ids)
}

func TestReadEntries_EmptyIsNotNil(t *testing.T) {
	s, _ := openTestStore(t)

	got, err := s.ReadEntries(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSummarize(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	entries := testEntries(t)
	entries[2].Hash = "0000"

	_, err := s.WriteEntries(ctx, entries)
	require.NoError(t, err)

	sum, err := s.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{
		Entries: 3,
		Invalid: 1,
		ByAction: map[audit.Action]int{
			audit.ActionVisitorCheckIn:    2,
			audit.ActionReservationCancel: 1,
		},
	}, sum)
}

func TestQuery(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	_, err := s.WriteEntries(ctx, testEntries(t))
	require.NoError(t, err)

	rows, err := s.Query(ctx, "SELECT entity_id FROM audit_entries WHERE entity_type = ? ORDER BY seq", "visitor")
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"v-1", "v-2"}, ids)
}
