package sql

import (
	"testing"

	"mdbms/pkg/storage"
)

// TestParseSelectWildcard checks the no-projection convention.
func TestParseSelectWildcard(t *testing.T) {
	q, err := Parse("SELECT * FROM accounts")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Kind != Select || q.Table != "accounts" {
		t.Fatalf("unexpected query shape: %+v", q)
	}
	if !q.IsWildcard() {
		t.Error("expected IsWildcard() to be true for SELECT *")
	}
}

// TestParseSelectColumnsAndWhere checks an explicit projection plus a
// simple where-clause.
func TestParseSelectColumnsAndWhere(t *testing.T) {
	q, err := Parse("SELECT id, name FROM accounts WHERE id = 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Columns) != 2 || q.Columns[0] != "id" || q.Columns[1] != "name" {
		t.Fatalf("unexpected columns: %v", q.Columns)
	}
	if q.Where == nil || len(q.Where.Disjuncts) != 1 {
		t.Fatalf("expected a single-conjunction where-clause, got %+v", q.Where)
	}
}

// TestParseSelectWithJoin checks join-clause parsing including the join
// type keyword.
func TestParseSelectWithJoin(t *testing.T) {
	q, err := Parse("SELECT * FROM accounts LEFT JOIN orders ON accounts.id = orders.account_id")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Joins) != 1 {
		t.Fatalf("expected 1 join, got %d", len(q.Joins))
	}
	if q.Joins[0].Type != LeftJoin || q.Joins[0].Table != "orders" {
		t.Errorf("unexpected join: %+v", q.Joins[0])
	}
}

// TestParseSelectGroupByOrderBy checks both trailing clauses, including the
// DESC direction marker.
func TestParseSelectGroupByOrderBy(t *testing.T) {
	q, err := Parse("SELECT * FROM accounts GROUP BY name ORDER BY id DESC")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.GroupBy) != 1 || q.GroupBy[0] != "name" {
		t.Fatalf("unexpected group by: %v", q.GroupBy)
	}
	if len(q.OrderBy) != 1 || q.OrderBy[0].Column != "id" || !q.OrderBy[0].Desc {
		t.Fatalf("unexpected order by: %+v", q.OrderBy)
	}
}

// TestParseInsert checks column/value alignment.
func TestParseInsert(t *testing.T) {
	q, err := Parse("INSERT INTO accounts (id, name) VALUES (1, 'ada')")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Kind != Insert || q.Table != "accounts" {
		t.Fatalf("unexpected query shape: %+v", q)
	}
	if len(q.InsertValues) != 2 {
		t.Fatalf("expected 2 insert values, got %d", len(q.InsertValues))
	}
	if q.InsertValues[0].Int32 != 1 || q.InsertValues[1].Str != "ada" {
		t.Errorf("unexpected insert values: %+v", q.InsertValues)
	}
}

// TestParseInsertColumnValueMismatch enforces equal column/value counts.
func TestParseInsertColumnValueMismatch(t *testing.T) {
	_, err := Parse("INSERT INTO accounts (id, name) VALUES (1)")
	if err == nil {
		t.Error("expected error for mismatched column/value counts")
	}
}

// TestParseUpdate checks SET-list and WHERE parsing together.
func TestParseUpdate(t *testing.T) {
	q, err := Parse("UPDATE accounts SET name = 'lovelace' WHERE id = 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Kind != Update || q.Table != "accounts" {
		t.Fatalf("unexpected query shape: %+v", q)
	}
	if q.Assignments["name"].Str != "lovelace" {
		t.Errorf("unexpected assignment: %+v", q.Assignments)
	}
	if q.Where == nil {
		t.Error("expected a where-clause to be parsed")
	}
}

// TestParseDelete checks the simplest DML form.
func TestParseDelete(t *testing.T) {
	q, err := Parse("DELETE FROM accounts WHERE id = 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Kind != Delete || q.Table != "accounts" {
		t.Fatalf("unexpected query shape: %+v", q)
	}
}

// TestParseConditionDisjunction checks OR-of-AND parsing precedence.
func TestParseConditionDisjunction(t *testing.T) {
	q, err := Parse("SELECT * FROM accounts WHERE id = 1 AND name = 'ada' OR id = 2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Where.Disjuncts) != 2 {
		t.Fatalf("expected 2 disjuncts, got %d", len(q.Where.Disjuncts))
	}
	if len(q.Where.Disjuncts[0]) != 2 {
		t.Errorf("expected the first disjunct to be a 2-term conjunction, got %d", len(q.Where.Disjuncts[0]))
	}
}

// TestParseRejectsUnknownStatement surfaces a syntax error for a
// non-DML leading keyword.
func TestParseRejectsUnknownStatement(t *testing.T) {
	if _, err := Parse("DROP TABLE accounts"); err == nil {
		t.Error("expected error for an unsupported statement")
	}
}

// TestParseFloatLiteral checks the float-vs-int literal dispatch in
// parseNumberLiteral.
func TestParseFloatLiteral(t *testing.T) {
	q, err := Parse("SELECT * FROM accounts WHERE balance = 12.5")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	lit, ok := q.Where.ColumnEquality("balance")
	if !ok {
		t.Fatal("expected a recognized column equality")
	}
	if lit.Type != storage.TypeFloat32 || lit.Float32 != 12.5 {
		t.Errorf("unexpected literal: %+v", lit)
	}
}
