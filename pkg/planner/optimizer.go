package planner

import (
	"mdbms/pkg/sql"
	"mdbms/pkg/storage"
)

// StatsProvider is the Storage Engine surface the optimizer needs: per-table
// statistics for the cost model, and which column (if any) is indexed.
type StatsProvider interface {
	GetStats(table string) (storage.TableStats, error)
	IndexedColumn(table string) (string, bool)
}

// Optimizer runs stages 3-5 of §4.E: build the plan tree, annotate it with
// the cost model, and consult/populate the plan cache.
type Optimizer struct {
	stats StatsProvider
	cost  CostModel
	cache *Cache
}

// New builds an optimizer over the given stats provider, with a fresh plan
// cache at the default capacity/TTL.
func New(stats StatsProvider) *Optimizer {
	return &Optimizer{
		stats: stats,
		cost:  DefaultCostModel,
		cache: NewCache(DefaultCacheCapacity, DefaultCacheTTL),
	}
}

// Optimize compiles q into a cost-annotated plan tree, serving from the
// plan cache when the canonical signature matches a live entry.
func (o *Optimizer) Optimize(q *sql.Query) (*PlanNode, error) {
	sig := Signature(q)
	if cached, ok := o.cache.Get(sig); ok {
		return cached, nil
	}

	plan, err := o.build(q)
	if err != nil {
		return nil, err
	}
	plan.Accumulate()
	o.cache.Put(sig, plan)
	return plan, nil
}

func (o *Optimizer) build(q *sql.Query) (*PlanNode, error) {
	switch q.Kind {
	case sql.Insert:
		return o.buildInsert(q)
	case sql.Update:
		return o.buildUpdate(q)
	case sql.Delete:
		return o.buildDelete(q)
	default:
		return o.buildSelect(q)
	}
}

func (o *Optimizer) buildInsert(q *sql.Query) (*PlanNode, error) {
	values := make(map[string]storage.Value, len(q.Columns))
	for i, col := range q.Columns {
		values[col] = q.InsertValues[i]
	}
	return &PlanNode{Kind: InsertNode, Table: q.Table, InsertValues: values, EstimatedRows: 1, NodeCost: o.cost.CPUCost}, nil
}

func (o *Optimizer) buildUpdate(q *sql.Query) (*PlanNode, error) {
	input, err := o.accessPath(q.Table, q.Where)
	if err != nil {
		return nil, err
	}
	input.Accumulate()
	return &PlanNode{
		Kind:        UpdateNode,
		Table:       q.Table,
		Assignments: q.Assignments,
		Children:    []*PlanNode{input},
		NodeCost:    o.cost.CPUCost * input.EstimatedRows,
	}, nil
}

func (o *Optimizer) buildDelete(q *sql.Query) (*PlanNode, error) {
	input, err := o.accessPath(q.Table, q.Where)
	if err != nil {
		return nil, err
	}
	input.Accumulate()
	return &PlanNode{
		Kind:     DeleteNode,
		Table:    q.Table,
		Children: []*PlanNode{input},
		NodeCost: o.cost.CPUCost * input.EstimatedRows,
	}, nil
}

func (o *Optimizer) buildSelect(q *sql.Query) (*PlanNode, error) {
	// A WHERE predicate may reference a column from any joined table, not
	// just q.Table, so it cannot be pushed down onto the base-table scan
	// once a join is present: doing so would evaluate it against the wrong
	// schema. With no join, pushdown onto the single table scan is safe and
	// is kept as the cost-reducing default.
	pushDownWhere := q.Where
	var postJoinWhere *storage.Condition
	if len(q.Joins) > 0 {
		pushDownWhere = nil
		postJoinWhere = q.Where
	}

	node, err := o.accessPath(q.Table, pushDownWhere)
	if err != nil {
		return nil, err
	}

	for _, j := range q.Joins {
		node, err = o.buildJoin(node, j)
		if err != nil {
			return nil, err
		}
	}

	if postJoinWhere != nil {
		node.Accumulate()
		node = &PlanNode{
			Kind:          Filter,
			Condition:     postJoinWhere,
			Children:      []*PlanNode{node},
			EstimatedRows: node.EstimatedRows * estimateDNFSelectivity(postJoinWhere, storage.TableStats{}),
			NodeCost:      o.cost.CPUCost * node.EstimatedRows,
		}
	}

	if len(q.GroupBy) > 0 {
		node = &PlanNode{
			Kind:          Aggregate,
			GroupBy:       q.GroupBy,
			Children:      []*PlanNode{node},
			EstimatedRows: node.EstimatedRows,
			NodeCost:      o.cost.CPUCost * node.EstimatedRows,
		}
	}

	if len(q.OrderBy) > 0 {
		node = &PlanNode{
			Kind:          Sort,
			OrderBy:       q.OrderBy,
			Children:      []*PlanNode{node},
			EstimatedRows: node.EstimatedRows,
			NodeCost:      o.cost.SortCost(int(node.EstimatedRows)),
		}
	}

	if !q.IsWildcard() {
		node = &PlanNode{
			Kind:          Project,
			Columns:       q.Columns,
			Children:      []*PlanNode{node},
			EstimatedRows: node.EstimatedRows,
			NodeCost:      o.cost.CPUCost * node.EstimatedRows,
		}
	}

	return node, nil
}

// accessPath chooses TableScan, IndexSeek, or a pushed-down Filter over a
// TableScan, per the predicate-pushdown and index-seek heuristics.
func (o *Optimizer) accessPath(table string, where *storage.Condition) (*PlanNode, error) {
	stats, err := o.stats.GetStats(table)
	if err != nil {
		return nil, err
	}

	if indexedCol, ok := o.stats.IndexedColumn(table); ok && where != nil {
		if lit, ok := where.ColumnEquality(indexedCol); ok {
			distinct := stats.DistinctValues[indexedCol]
			selectivity := EstimateSelectivity(Equality, distinct, 0)
			expectedRows := float64(stats.TupleCount) * selectivity
			expectedBlocks := int(expectedRows/float64(max1(stats.BlockingFactor))) + 1
			if selectivity <= 0.3 {
				return &PlanNode{
					Kind:          IndexSeek,
					Table:         table,
					IndexedColumn: indexedCol,
					SeekValue:     lit,
					EstimatedRows: expectedRows,
					NodeCost:      o.cost.IndexSeekCost(stats.TupleCount, expectedBlocks, selectivity),
				}, nil
			}
		}
	}

	scan := &PlanNode{
		Kind:          TableScan,
		Table:         table,
		EstimatedRows: float64(stats.TupleCount),
		NodeCost:      o.cost.ScanCost(stats.BlockCount, stats.TupleCount),
	}
	if where == nil || len(where.Disjuncts) == 0 {
		return scan, nil
	}

	scan.Accumulate()
	return &PlanNode{
		Kind:          Filter,
		Condition:     where,
		Children:      []*PlanNode{scan},
		EstimatedRows: scan.EstimatedRows * estimateDNFSelectivity(where, stats),
		NodeCost:      o.cost.CPUCost * scan.EstimatedRows,
	}, nil
}

func estimateDNFSelectivity(cond *storage.Condition, stats storage.TableStats) float64 {
	total := 0.0
	for _, conj := range cond.Disjuncts {
		sel := 1.0
		for _, cmp := range conj {
			sel *= comparisonSelectivity(cmp, stats)
		}
		total += sel
	}
	if total > 1.0 {
		total = 1.0
	}
	return total
}

func comparisonSelectivity(cmp storage.Comparison, stats storage.TableStats) float64 {
	switch cmp.Op {
	case storage.OpEq:
		col := cmp.Left.Column
		if col == "" {
			col = cmp.Right.Column
		}
		return EstimateSelectivity(Equality, stats.DistinctValues[col], 0)
	default:
		return EstimateSelectivity(Range, 0, 0)
	}
}

func (o *Optimizer) buildJoin(left *PlanNode, j sql.JoinClause) (*PlanNode, error) {
	rightStats, err := o.stats.GetStats(j.Table)
	if err != nil {
		return nil, err
	}
	right := &PlanNode{
		Kind:          TableScan,
		Table:         j.Table,
		EstimatedRows: float64(rightStats.TupleCount),
		NodeCost:      o.cost.ScanCost(rightStats.BlockCount, rightStats.TupleCount),
	}
	left.Accumulate()
	right.Accumulate()

	outer := int(left.EstimatedRows)
	inner := int(right.EstimatedRows)

	algo, cost := o.cheapestJoin(outer, inner)
	return &PlanNode{
		Kind:          Join,
		JoinType:      j.Type,
		JoinAlgorithm: algo,
		LeftColumn:    j.LeftColumn,
		RightColumn:   j.RightColumn,
		Children:      []*PlanNode{left, right},
		EstimatedRows: float64(outer) * float64(inner) / float64(max1(rightStats.BlockingFactor)),
		NodeCost:      cost,
	}, nil
}

func (o *Optimizer) cheapestJoin(outer, inner int) (JoinAlgorithm, float64) {
	nl := o.cost.NestedLoopJoinCost(outer, inner)
	hash := o.cost.HashJoinCost(outer, inner)
	merge := o.cost.MergeJoinCost(outer, inner, false, false)

	algo, cost := NestedLoop, nl
	if hash < cost {
		algo, cost = HashJoin, hash
	}
	if merge < cost {
		algo, cost = MergeJoin, merge
	}
	return algo, cost
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
