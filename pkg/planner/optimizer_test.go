package planner

import (
	"testing"

	"mdbms/pkg/sql"
	"mdbms/pkg/storage"
)

type fakeStats struct {
	stats   map[string]storage.TableStats
	indexed map[string]string
}

func (f *fakeStats) GetStats(table string) (storage.TableStats, error) {
	return f.stats[table], nil
}

func (f *fakeStats) IndexedColumn(table string) (string, bool) {
	col, ok := f.indexed[table]
	return col, ok
}

func newFakeStats() *fakeStats {
	return &fakeStats{
		stats: map[string]storage.TableStats{
			"accounts": {
				TupleCount:     100,
				BlockCount:     10,
				BlockingFactor: 10,
				TupleSize:      64,
				DistinctValues: map[string]int{"id": 100, "name": 10},
			},
			"orders": {
				TupleCount:     50,
				BlockCount:     5,
				BlockingFactor: 10,
				TupleSize:      64,
				DistinctValues: map[string]int{"account_id": 50},
			},
		},
		indexed: map[string]string{},
	}
}

// TestOptimizeSelectProducesTableScan checks the default access path absent
// an index.
func TestOptimizeSelectProducesTableScan(t *testing.T) {
	opt := New(newFakeStats())
	q, err := sql.Parse("SELECT * FROM accounts")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if plan.Kind != TableScan {
		t.Fatalf("expected TableScan, got %v", plan.Kind)
	}
}

// TestOptimizeSelectWithIndexProducesIndexSeek checks the index-seek
// heuristic fires for a selective equality on an indexed column.
func TestOptimizeSelectWithIndexProducesIndexSeek(t *testing.T) {
	stats := newFakeStats()
	stats.indexed["accounts"] = "id"
	opt := New(stats)

	q, err := sql.Parse("SELECT * FROM accounts WHERE id = 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if plan.Kind != IndexSeek {
		t.Fatalf("expected IndexSeek, got %v", plan.Kind)
	}
	if plan.IndexedColumn != "id" {
		t.Errorf("IndexedColumn = %q, want id", plan.IndexedColumn)
	}
}

// TestOptimizeSelectWithFilterPushesDownOverScan checks a where-clause on a
// non-indexed column wraps the scan in a Filter node.
func TestOptimizeSelectWithFilterPushesDownOverScan(t *testing.T) {
	opt := New(newFakeStats())
	q, err := sql.Parse("SELECT * FROM accounts WHERE name = 'ada'")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if plan.Kind != Filter {
		t.Fatalf("expected Filter, got %v", plan.Kind)
	}
	if len(plan.Children) != 1 || plan.Children[0].Kind != TableScan {
		t.Fatal("expected the filter to wrap a table scan")
	}
}

// TestOptimizeSelectProjectsNonWildcard checks a Project node is added when
// explicit columns are selected.
func TestOptimizeSelectProjectsNonWildcard(t *testing.T) {
	opt := New(newFakeStats())
	q, err := sql.Parse("SELECT id FROM accounts")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if plan.Kind != Project {
		t.Fatalf("expected Project at the root, got %v", plan.Kind)
	}
}

// TestOptimizeSelectWithOrderByAddsSort checks Sort is layered above the
// access path.
func TestOptimizeSelectWithOrderByAddsSort(t *testing.T) {
	opt := New(newFakeStats())
	q, err := sql.Parse("SELECT * FROM accounts ORDER BY id")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if plan.Kind != Sort {
		t.Fatalf("expected Sort at the root, got %v", plan.Kind)
	}
}

// TestOptimizeSelectWithJoinChoosesAnAlgorithm checks a join node is built
// with one of the three recognized physical algorithms.
func TestOptimizeSelectWithJoinChoosesAnAlgorithm(t *testing.T) {
	opt := New(newFakeStats())
	q, err := sql.Parse("SELECT * FROM accounts JOIN orders ON accounts.id = orders.account_id")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if plan.Kind != Join {
		t.Fatalf("expected Join at the root, got %v", plan.Kind)
	}
	switch plan.JoinAlgorithm {
	case NestedLoop, HashJoin, MergeJoin:
	default:
		t.Errorf("unrecognized join algorithm %v", plan.JoinAlgorithm)
	}
}

// TestOptimizeInsertBuildsInsertNode checks the DML build path for Insert.
func TestOptimizeInsertBuildsInsertNode(t *testing.T) {
	opt := New(newFakeStats())
	q, err := sql.Parse("INSERT INTO accounts (id, name) VALUES (1, 'ada')")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if plan.Kind != InsertNode {
		t.Fatalf("expected InsertNode, got %v", plan.Kind)
	}
	if plan.InsertValues["name"].Str != "ada" {
		t.Errorf("unexpected insert values: %+v", plan.InsertValues)
	}
}

// TestOptimizeCachesRepeatedQuery checks the plan cache serves a clone
// rather than recomputing, and that mutating the returned plan does not
// corrupt the cache.
func TestOptimizeCachesRepeatedQuery(t *testing.T) {
	opt := New(newFakeStats())
	q, err := sql.Parse("SELECT * FROM accounts")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	first, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	first.NodeCost = -999

	second, err := opt.Optimize(q)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if second.NodeCost == -999 {
		t.Error("mutating a previously returned plan corrupted the cached entry")
	}
}

// TestPlanNodeAccumulateSumsSubtreeCost checks bottom-up cost accumulation.
func TestPlanNodeAccumulateSumsSubtreeCost(t *testing.T) {
	leaf := &PlanNode{NodeCost: 2}
	root := &PlanNode{NodeCost: 3, Children: []*PlanNode{leaf}}
	root.Accumulate()
	if root.TotalCost != 5 {
		t.Errorf("TotalCost = %v, want 5", root.TotalCost)
	}
}
