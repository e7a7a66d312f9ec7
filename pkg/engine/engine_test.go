package engine

import (
	"testing"

	"mdbms/pkg/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func accountsSchema(t *testing.T) *storage.Schema {
	t.Helper()
	schema, err := storage.NewSchema("accounts", []storage.Column{
		{Name: "id", Type: storage.TypeInt32},
		{Name: "name", Type: storage.TypeString, DeclaredLength: 16},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return schema
}

func equalityCondition(column string, v storage.Value) *storage.Condition {
	return &storage.Condition{Disjuncts: []storage.Conjunction{
		{storage.Comparison{Left: storage.ColumnOperand(column), Op: storage.OpEq, Right: storage.LiteralOperand(v)}},
	}}
}

// TestEngineAddAndReadBlock checks a row inserted via AddBlock is visible to
// ReadBlock.
func TestEngineAddAndReadBlock(t *testing.T) {
	eng := newTestEngine(t)
	schema := accountsSchema(t)
	if err := eng.CreateTable(schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	row := storage.NewRow(map[string]storage.Value{"id": storage.IntValue(1), "name": storage.StringValue("ada")})
	n, err := eng.AddBlock(DataWrite{Table: "accounts", Row: row})
	if err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if n != 1 {
		t.Fatalf("AddBlock affected %d, want 1", n)
	}

	rows, err := eng.ReadBlock(Retrieval{Table: "accounts"})
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("ReadBlock returned %d rows, want 1", len(rows))
	}
	if rows[0].Values["name"].Str != "ada" {
		t.Errorf("name = %q, want ada", rows[0].Values["name"].Str)
	}
}

// TestEngineReadBlockAppliesCondition checks predicate filtering.
func TestEngineReadBlockAppliesCondition(t *testing.T) {
	eng := newTestEngine(t)
	schema := accountsSchema(t)
	eng.CreateTable(schema)

	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(1), "name": storage.StringValue("ada"),
	})})
	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(2), "name": storage.StringValue("grace"),
	})})

	rows, err := eng.ReadBlock(Retrieval{Table: "accounts", Condition: equalityCondition("id", storage.IntValue(2))})
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(rows) != 1 || rows[0].Values["name"].Str != "grace" {
		t.Fatalf("expected exactly the row with id=2, got %+v", rows)
	}
}

// TestEngineReadBlockProjectsColumns checks column projection limits which
// values come back.
func TestEngineReadBlockProjectsColumns(t *testing.T) {
	eng := newTestEngine(t)
	eng.CreateTable(accountsSchema(t))
	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(1), "name": storage.StringValue("ada"),
	})})

	rows, err := eng.ReadBlock(Retrieval{Table: "accounts", Columns: []string{"name"}})
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if _, ok := rows[0].Values["id"]; ok {
		t.Error("expected id column to be excluded from the projection")
	}
	if rows[0].Values["name"].Str != "ada" {
		t.Error("expected name column to survive the projection")
	}
}

// TestEngineWriteBlockUpdatesMatchingRows checks write_block semantics:
// only matching rows are rewritten, with the given assignments applied.
func TestEngineWriteBlockUpdatesMatchingRows(t *testing.T) {
	eng := newTestEngine(t)
	eng.CreateTable(accountsSchema(t))
	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(1), "name": storage.StringValue("ada"),
	})})

	affected, err := eng.WriteBlock(DataWrite{
		Table:       "accounts",
		Assignments: map[string]storage.Value{"name": storage.StringValue("lovelace")},
		Condition:   equalityCondition("id", storage.IntValue(1)),
	})
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}

	rows, _ := eng.ReadBlock(Retrieval{Table: "accounts"})
	if rows[0].Values["name"].Str != "lovelace" {
		t.Errorf("name = %q, want lovelace", rows[0].Values["name"].Str)
	}
}

// TestEngineWriteBlockRejectsUnknownColumn enforces the schema-membership
// check on assignments before any row is touched.
func TestEngineWriteBlockRejectsUnknownColumn(t *testing.T) {
	eng := newTestEngine(t)
	eng.CreateTable(accountsSchema(t))

	_, err := eng.WriteBlock(DataWrite{
		Table:       "accounts",
		Assignments: map[string]storage.Value{"nope": storage.IntValue(1)},
	})
	if err == nil {
		t.Error("expected error for an assignment to an unknown column")
	}
}

// TestEngineDeleteBlockRemovesMatchingRows checks delete_block semantics and
// that non-matching rows survive.
func TestEngineDeleteBlockRemovesMatchingRows(t *testing.T) {
	eng := newTestEngine(t)
	eng.CreateTable(accountsSchema(t))
	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(1), "name": storage.StringValue("ada"),
	})})
	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(2), "name": storage.StringValue("grace"),
	})})

	affected, err := eng.DeleteBlock(Deletion{Table: "accounts", Condition: equalityCondition("id", storage.IntValue(1))})
	if err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}

	rows, _ := eng.ReadBlock(Retrieval{Table: "accounts"})
	if len(rows) != 1 || rows[0].Values["name"].Str != "grace" {
		t.Fatalf("expected only the grace row to remain, got %+v", rows)
	}
}

// TestEngineAddBlockSpillsToNewBlock checks that once a block is full,
// AddBlock appends a fresh one rather than failing.
func TestEngineAddBlockSpillsToNewBlock(t *testing.T) {
	eng := newTestEngine(t)
	schema, err := storage.NewSchema("wide", []storage.Column{
		{Name: "id", Type: storage.TypeInt32},
		{Name: "payload", Type: storage.TypeString, DeclaredLength: 3000},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	if err := eng.CreateTable(schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	for i := int32(0); i < 3; i++ {
		row := storage.NewRow(map[string]storage.Value{"id": storage.IntValue(i), "payload": storage.StringValue("x")})
		if _, err := eng.AddBlock(DataWrite{Table: "wide", Row: row}); err != nil {
			t.Fatalf("AddBlock %d: %v", i, err)
		}
	}

	rows, err := eng.ReadBlock(Retrieval{Table: "wide"})
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows across multiple blocks, got %d", len(rows))
	}
}

// TestEngineSetIndexEnablesSeek checks that SetIndex builds a usable index
// and IndexedColumn reports it.
func TestEngineSetIndexEnablesSeek(t *testing.T) {
	eng := newTestEngine(t)
	eng.CreateTable(accountsSchema(t))
	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(1), "name": storage.StringValue("ada"),
	})})

	if err := eng.SetIndex("accounts", "id"); err != nil {
		t.Fatalf("SetIndex: %v", err)
	}
	col, ok := eng.IndexedColumn("accounts")
	if !ok || col != "id" {
		t.Fatalf("IndexedColumn = (%q, %v), want (id, true)", col, ok)
	}

	rows, err := eng.ReadBlock(Retrieval{Table: "accounts", Condition: equalityCondition("id", storage.IntValue(1))})
	if err != nil {
		t.Fatalf("ReadBlock via index: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row via index seek, got %d", len(rows))
	}
}

// TestEngineGetStatsCountsRowsAndDistinctValues exercises the cost model's
// data source.
func TestEngineGetStatsCountsRowsAndDistinctValues(t *testing.T) {
	eng := newTestEngine(t)
	eng.CreateTable(accountsSchema(t))
	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(1), "name": storage.StringValue("ada"),
	})})
	eng.AddBlock(DataWrite{Table: "accounts", Row: storage.NewRow(map[string]storage.Value{
		"id": storage.IntValue(2), "name": storage.StringValue("ada"),
	})})

	stats, err := eng.GetStats("accounts")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TupleCount != 2 {
		t.Errorf("TupleCount = %d, want 2", stats.TupleCount)
	}
	if stats.DistinctValues["name"] != 1 {
		t.Errorf("DistinctValues[name] = %d, want 1", stats.DistinctValues["name"])
	}
	if stats.DistinctValues["id"] != 2 {
		t.Errorf("DistinctValues[id] = %d, want 2", stats.DistinctValues["id"])
	}
}

// TestEngineReadBlockUnknownTable reports ErrTableNotFound.
func TestEngineReadBlockUnknownTable(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.ReadBlock(Retrieval{Table: "ghost"}); err == nil {
		t.Error("expected error reading an unknown table")
	}
}
