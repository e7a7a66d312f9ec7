package storage

// TableStats summarizes a table for the cost model: how many tuples and
// blocks it has, the fixed tuple size, how many tuples fit per block (the
// blocking factor), and a per-column distinct-value estimate used for
// selectivity heuristics.
type TableStats struct {
	TupleCount     int
	BlockCount     int
	TupleSize      int
	BlockingFactor int
	DistinctValues map[string]int
}
