// Package buffer implements the fixed-capacity, LRU-ordered page cache that
// sits between the storage engine and disk. The pool never writes to disk
// itself; eviction only yields the displaced frame back to the caller, who
// is responsible for flushing it if it was dirty.
package buffer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"mdbms/pkg/primitives"
	"mdbms/pkg/storage"
)

// DefaultCapacity is the default number of frames in the pool, per the data
// model (Buffer Frame: "fixed-capacity pool (default 100 frames)").
const DefaultCapacity = 100

// Pool is a thread-safe, LRU-ordered cache of (table, block) -> Page.
type Pool struct {
	mu          sync.Mutex
	capacity    int
	cache       *lru.Cache[primitives.PageID, *storage.Page]
	lastEvicted *storage.Page
}

// New builds a pool with the given frame capacity.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{capacity: capacity}
	cache, err := lru.NewWithEvict[primitives.PageID, *storage.Page](capacity, func(_ primitives.PageID, value *storage.Page) {
		p.lastEvicted = value
	})
	if err != nil {
		// Only possible if capacity <= 0, already guarded above.
		panic(err)
	}
	p.cache = cache
	return p
}

func key(table string, blockID int64) primitives.PageID {
	return primitives.PageID{Table: table, BlockID: blockID}
}

// GetPage returns the cached page if present, promoting it to
// most-recently-used. The second return value is false on a cache miss.
func (p *Pool) GetPage(table string, blockID int64) (*storage.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Get(key(table, blockID))
}

// AddOrUpdatePage installs or replaces a page at most-recently-used
// position. If inserting a brand-new key forces the pool past capacity, the
// evicted page is returned so the caller can flush it if dirty. Returns nil
// when no eviction occurred (including the in-place replace/update case).
func (p *Pool) AddOrUpdatePage(page *storage.Page) *storage.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastEvicted = nil
	p.cache.Add(key(page.Table, page.BlockID), page)
	evicted := p.lastEvicted
	p.lastEvicted = nil
	return evicted
}

// GetDirtyPages returns every page currently marked dirty, without altering
// recency or clearing the dirty flag.
func (p *Pool) GetDirtyPages() []*storage.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	var dirty []*storage.Page
	for _, k := range p.cache.Keys() {
		if page, ok := p.cache.Peek(k); ok && page.IsDirty {
			dirty = append(dirty, page)
		}
	}
	return dirty
}

// FlushDirties returns the current dirty set and clears each page's dirty
// flag in the pool (it does not evict them). Callers are responsible for
// having already persisted the pages to disk before calling this.
func (p *Pool) FlushDirties() []*storage.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	var dirty []*storage.Page
	for _, k := range p.cache.Keys() {
		if page, ok := p.cache.Peek(k); ok && page.IsDirty {
			dirty = append(dirty, page)
			page.IsDirty = false
		}
	}
	return dirty
}

// FlushAll is an alias for FlushDirties kept for symmetry with the
// specification's naming of both operations.
func (p *Pool) FlushAll() []*storage.Page { return p.FlushDirties() }

// MarkClean clears the dirty flag on one page after a successful flush.
func (p *Pool) MarkClean(table string, blockID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if page, ok := p.cache.Peek(key(table, blockID)); ok {
		page.IsDirty = false
	}
}

// Len reports the current number of resident frames (always <= capacity).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}

// Capacity returns the pool's fixed frame capacity.
func (p *Pool) Capacity() int { return p.capacity }

// Remove evicts one page unconditionally (used when a table is dropped).
func (p *Pool) Remove(table string, blockID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(key(table, blockID))
}
