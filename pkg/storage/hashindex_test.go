package storage

import "testing"

// TestHashIndexAddLookup checks basic value-to-slot association.
func TestHashIndexAddLookup(t *testing.T) {
	idx := NewHashIndex("accounts", "name")
	idx.Add(StringValue("ada"), SlotRef{BlockID: 1, Slot: 2})
	idx.Add(StringValue("ada"), SlotRef{BlockID: 3, Slot: 4})
	idx.Add(StringValue("grace"), SlotRef{BlockID: 5, Slot: 6})

	refs := idx.Lookup(StringValue("ada"))
	if len(refs) != 2 {
		t.Fatalf("Lookup(ada) = %d refs, want 2", len(refs))
	}
	if refs[0].BlockID != 1 || refs[1].BlockID != 3 {
		t.Errorf("unexpected refs: %+v", refs)
	}
}

// TestHashIndexLookupMiss returns no refs for an absent value.
func TestHashIndexLookupMiss(t *testing.T) {
	idx := NewHashIndex("accounts", "name")
	if refs := idx.Lookup(StringValue("nobody")); len(refs) != 0 {
		t.Errorf("expected no refs, got %d", len(refs))
	}
}

// TestHashIndexInvalidate clears every bucket.
func TestHashIndexInvalidate(t *testing.T) {
	idx := NewHashIndex("accounts", "name")
	idx.Add(StringValue("ada"), SlotRef{BlockID: 1, Slot: 1})
	idx.Invalidate()
	if refs := idx.Lookup(StringValue("ada")); len(refs) != 0 {
		t.Errorf("expected index to be empty after Invalidate, got %d refs", len(refs))
	}
}

// TestHashIndexLookupReturnsACopy checks callers cannot mutate internal
// state through the returned slice.
func TestHashIndexLookupReturnsACopy(t *testing.T) {
	idx := NewHashIndex("accounts", "name")
	idx.Add(StringValue("ada"), SlotRef{BlockID: 1, Slot: 1})

	refs := idx.Lookup(StringValue("ada"))
	refs[0].BlockID = 999

	fresh := idx.Lookup(StringValue("ada"))
	if fresh[0].BlockID != 1 {
		t.Error("mutating the returned slice leaked into index state")
	}
}
