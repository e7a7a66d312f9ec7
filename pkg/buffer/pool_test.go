package buffer

import (
	"testing"

	"mdbms/pkg/storage"
)

// TestPoolAddGetRoundTrip checks a page inserted is retrievable.
func TestPoolAddGetRoundTrip(t *testing.T) {
	pool := New(2)
	page := storage.NewPage("accounts", 0)

	if evicted := pool.AddOrUpdatePage(page); evicted != nil {
		t.Errorf("expected no eviction with room to spare, got %+v", evicted)
	}

	got, ok := pool.GetPage("accounts", 0)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != page {
		t.Error("GetPage returned a different page instance")
	}
}

// TestPoolGetPageMiss reports a miss for an absent key.
func TestPoolGetPageMiss(t *testing.T) {
	pool := New(2)
	if _, ok := pool.GetPage("accounts", 0); ok {
		t.Error("expected cache miss on an empty pool")
	}
}

// TestPoolEvictsLeastRecentlyUsed checks the fixed-capacity LRU contract.
func TestPoolEvictsLeastRecentlyUsed(t *testing.T) {
	pool := New(2)
	p0 := storage.NewPage("accounts", 0)
	p1 := storage.NewPage("accounts", 1)
	p2 := storage.NewPage("accounts", 2)

	pool.AddOrUpdatePage(p0)
	pool.AddOrUpdatePage(p1)
	// Touch p0 so p1 becomes the least recently used.
	pool.GetPage("accounts", 0)

	evicted := pool.AddOrUpdatePage(p2)
	if evicted == nil {
		t.Fatal("expected an eviction once capacity is exceeded")
	}
	if evicted.BlockID != 1 {
		t.Errorf("evicted block = %d, want 1 (the least recently used)", evicted.BlockID)
	}
	if pool.Len() != 2 {
		t.Errorf("Len() = %d, want 2", pool.Len())
	}
}

// TestPoolDefaultCapacityOnNonPositive falls back to DefaultCapacity for a
// non-positive request.
func TestPoolDefaultCapacityOnNonPositive(t *testing.T) {
	pool := New(0)
	if pool.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", pool.Capacity(), DefaultCapacity)
	}
}

// TestPoolFlushDirtiesClearsFlag checks FlushDirties both returns and
// clears the dirty set, while GetDirtyPages only observes it.
func TestPoolFlushDirtiesClearsFlag(t *testing.T) {
	pool := New(2)
	page := storage.NewPage("accounts", 0)
	page.IsDirty = true
	pool.AddOrUpdatePage(page)

	if dirty := pool.GetDirtyPages(); len(dirty) != 1 {
		t.Fatalf("GetDirtyPages() = %d, want 1", len(dirty))
	}
	if page.IsDirty {
		// still dirty, GetDirtyPages must not clear it
	} else {
		t.Fatal("GetDirtyPages must not clear the dirty flag")
	}

	flushed := pool.FlushDirties()
	if len(flushed) != 1 {
		t.Fatalf("FlushDirties() = %d, want 1", len(flushed))
	}
	if page.IsDirty {
		t.Error("expected dirty flag cleared after FlushDirties")
	}
	if dirty := pool.GetDirtyPages(); len(dirty) != 0 {
		t.Errorf("expected no dirty pages remaining, got %d", len(dirty))
	}
}

// TestPoolRemove evicts unconditionally regardless of dirty state.
func TestPoolRemove(t *testing.T) {
	pool := New(2)
	pool.AddOrUpdatePage(storage.NewPage("accounts", 0))
	pool.Remove("accounts", 0)
	if _, ok := pool.GetPage("accounts", 0); ok {
		t.Error("expected page to be gone after Remove")
	}
}
