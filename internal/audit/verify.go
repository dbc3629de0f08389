package audit

import (
	"context"

	"github.com/roach88/recordkeep/internal/recordstore"
)

// Mismatch describes an entry whose stored hash does not match its content.
type Mismatch struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Stored   string `json:"stored"`
	Computed string `json:"computed"`

	// Err is set when the entry could not be hashed at all.
	Err error `json:"-"`
}

// Verify recomputes the hash of every entry and returns those that differ
// from the stored value, in collection order.
func Verify(entries []Entry) []Mismatch {
	var out []Mismatch
	for i, e := range entries {
		computed, err := ComputeHash(e)
		if err != nil || computed != e.Hash {
			out = append(out, Mismatch{ID: e.ID, Index: i, Stored: e.Hash, Computed: computed, Err: err})
		}
	}
	return out
}

// ReadEntries loads the persisted audit collection at path.
func ReadEntries(ctx context.Context, s *recordstore.Store, path string) ([]Entry, error) {
	return recordstore.Read(ctx, s, path, []Entry{})
}
