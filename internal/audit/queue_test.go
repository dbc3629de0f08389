package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestEntryQueue_FIFO(t *testing.T) {
	q := newEntryQueue()
	for _, id := range []string{"A", "B", "C"} {
		q.push(Entry{ID: id})
	}

	assert.Equal(t, []string{"A", "B"}, ids(q.pop(2)))
	assert.Equal(t, []string{"C"}, ids(q.pop(5)))
	assert.Nil(t, q.pop(1))
}

func TestEntryQueue_PushFrontPreservesOrder(t *testing.T) {
	q := newEntryQueue()
	for _, id := range []string{"A", "B", "C"} {
		q.push(Entry{ID: id})
	}

	batch := q.pop(2)
	q.push(Entry{ID: "D"}) // arrives while the batch is in flight
	n := q.pushFront(batch)

	require.Equal(t, 4, n)
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids(q.pop(10)))
}

func TestEntryQueue_PopDoesNotAlias(t *testing.T) {
	q := newEntryQueue()
	q.push(Entry{ID: "A"})
	q.push(Entry{ID: "B"})

	batch := q.pop(1)
	batch[0].ID = "mutated"
	q.pushFront([]Entry{{ID: "Z"}})

	assert.Equal(t, []string{"Z", "B"}, ids(q.pop(10)))
}
