package storage

import (
	"fmt"
	"sync"
)

// SlotRef locates one row inside a table file.
type SlotRef struct {
	BlockID int64
	Slot    int
}

// HashIndex is an optional in-memory mapping from a value of an indexed
// column to the slot references of rows carrying that value. It is built on
// demand from a full scan and is never persisted: a fresh process rebuilds
// it via SetIndex before first use.
type HashIndex struct {
	mu      sync.RWMutex
	Table   string
	Column  string
	buckets map[string][]SlotRef
}

// NewHashIndex allocates an empty index for the given table/column.
func NewHashIndex(table, column string) *HashIndex {
	return &HashIndex{Table: table, Column: column, buckets: make(map[string][]SlotRef)}
}

func bucketKey(v Value) string {
	return fmt.Sprintf("%d:%s", v.Type, v.AsString())
}

// Add records that the given value occurs at the given slot.
func (h *HashIndex) Add(v Value, ref SlotRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := bucketKey(v)
	h.buckets[key] = append(h.buckets[key], ref)
}

// Lookup returns every slot carrying the given value.
func (h *HashIndex) Lookup(v Value) []SlotRef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	refs := h.buckets[bucketKey(v)]
	out := make([]SlotRef, len(refs))
	copy(out, refs)
	return out
}

// Invalidate drops the entire index. Called whenever a mutation touches the
// indexed column; the next lookup forces a rebuild via SetIndex.
func (h *HashIndex) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets = make(map[string][]SlotRef)
}
