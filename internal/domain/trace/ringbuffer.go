package trace

import "sync"

const defaultSize = 100

// RingBuffer keeps the most recent trace entries. It is safe for concurrent use.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	count   int
}

// NewRingBuffer creates a ring buffer that holds up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = defaultSize
	}
	return &RingBuffer{entries: make([]Entry, size)}
}

// Add records e, overwriting the oldest entry once the buffer is full.
func (rb *RingBuffer) Add(e Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.next] = e
	rb.next = (rb.next + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
}

// Last returns up to n of the newest entries, oldest first.
func (rb *RingBuffer) Last(n int) []Entry {
	return rb.collect(n, nil)
}

// LastFor returns up to n of the newest entries matched by stubID, oldest first.
func (rb *RingBuffer) LastFor(stubID string, n int) []Entry {
	return rb.collect(n, func(e Entry) bool { return e.MatchedID == stubID })
}

func (rb *RingBuffer) collect(n int, keep func(Entry) bool) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}

	size := len(rb.entries)
	var result []Entry
	// Walk newest to oldest, then reverse.
	for i := 0; i < rb.count && len(result) < n; i++ {
		e := rb.entries[(rb.next-1-i+size)%size]
		if keep == nil || keep(e) {
			result = append(result, e)
		}
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Count returns the number of entries currently stored.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Clear drops every stored entry.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.entries)
	rb.next = 0
	rb.count = 0
}
