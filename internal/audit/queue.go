package audit

import "sync"

// entryQueue is the in-memory FIFO of entries awaiting flush.
//
// Thread-safety: all methods are safe for concurrent use. The journal relies
// on pop and pushFront being called from one flush at a time to keep order.
type entryQueue struct {
	mu      sync.Mutex
	entries []Entry
}

func newEntryQueue() *entryQueue {
	return &entryQueue{entries: make([]Entry, 0, 64)}
}

// push appends e to the back and returns the new length.
func (q *entryQueue) push(e Entry) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	return len(q.entries)
}

// pop removes and returns up to n entries from the front.
func (q *entryQueue) pop(n int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.entries) {
		n = len(q.entries)
	}
	if n == 0 {
		return nil
	}
	batch := make([]Entry, n)
	copy(batch, q.entries[:n])
	q.entries = q.entries[n:]
	return batch
}

// pushFront puts batch back ahead of everything queued since it was popped.
func (q *entryQueue) pushFront(batch []Entry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]Entry, 0, len(batch)+len(q.entries))
	merged = append(merged, batch...)
	merged = append(merged, q.entries...)
	q.entries = merged
	return len(q.entries)
}

func (q *entryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
