package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stamped(t *testing.T, e Entry) Entry {
	t.Helper()
	h, err := ComputeHash(e)
	require.NoError(t, err)
	e.Hash = h
	return e
}

func TestVerify_AllValid(t *testing.T) {
	a := stamped(t, seedEntry())
	b := seedEntry()
	b.ID = "second"
	b = stamped(t, b)

	assert.Empty(t, Verify([]Entry{a, b}))
}

func TestVerify_DetectsEditedContent(t *testing.T) {
	a := stamped(t, seedEntry())
	b := seedEntry()
	b.ID = "second"
	b = stamped(t, b)
	b.EntityInfo = "edited after the fact"

	got := Verify([]Entry{a, b})
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].ID)
	assert.Equal(t, 1, got[0].Index)
	assert.NotEqual(t, got[0].Stored, got[0].Computed)
}

func TestVerify_DetectsEditedHash(t *testing.T) {
	a := stamped(t, seedEntry())
	a.Hash = "0000"

	got := Verify([]Entry{a})
	require.Len(t, got, 1)
	assert.Equal(t, "0000", got[0].Stored)
}

func TestVerify_PersistedTamperingDetected(t *testing.T) {
	f := newJournalFixture(t, func(c *Config) { c.FlushDelay = time.Hour })
	ctx := context.Background()

	f.journal.Add(ctx, ActionVisitorCheckIn, "v-1", "Ada", ResultSuccess)
	f.journal.Add(ctx, ActionVisitorCheckIn, "v-2", "Grace", ResultSuccess)
	require.NoError(t, f.journal.Sync(ctx))

	entries := f.persisted(t)
	entries[0].Actor = "mallory"
	require.NoError(t, f.store.Write(ctx, f.journal.Path(), entries))

	reread := f.persisted(t)
	got := Verify(reread)
	require.Len(t, got, 1)
	assert.Equal(t, reread[0].ID, got[0].ID)
}
