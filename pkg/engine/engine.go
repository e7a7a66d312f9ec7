// Package engine implements the Storage Engine facade: page I/O, row
// serialization and the request shapes (Retrieval/DataWrite/Deletion) that
// the query processor dispatches against table files, bridged through the
// buffer pool so that repeated access to the same block hits memory instead
// of disk.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mdbms/pkg/buffer"
	"mdbms/pkg/storage"
)

// Retrieval describes a read_block request: which table, which columns (nil
// or empty means every column), and an optional predicate.
type Retrieval struct {
	Table     string
	Columns   []string
	Condition *storage.Condition
}

// DataWrite describes either a write_block request (Assignments + Condition
// rewrite every matching row) or an add_block request (Row is a brand-new
// row to insert; Assignments/Condition are unused).
type DataWrite struct {
	Table       string
	Row         *storage.Row
	Assignments map[string]storage.Value
	Condition   *storage.Condition
}

// Deletion describes a delete_block request.
type Deletion struct {
	Table     string
	Condition *storage.Condition
}

// Engine owns every open table file for one data directory and the single
// buffer pool shared across all of them, plus any hash indexes built via
// SetIndex.
type Engine struct {
	mu      sync.RWMutex
	dir     string
	files   map[string]*storage.TableFile
	pool    *buffer.Pool
	indexes map[string]*storage.HashIndex
}

// New opens (or prepares) the data directory dir, backed by a buffer pool
// of the given frame capacity.
func New(dir string, poolCapacity int) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", storage.ErrIO, dir, err)
	}
	return &Engine{
		dir:     dir,
		files:   make(map[string]*storage.TableFile),
		pool:    buffer.New(poolCapacity),
		indexes: make(map[string]*storage.HashIndex),
	}, nil
}

func (e *Engine) tablePath(table string) string {
	return filepath.Join(e.dir, table+".dat")
}

// CreateTable creates a brand-new, empty table file for the schema.
func (e *Engine) CreateTable(schema *storage.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.files[schema.TableName]; exists {
		return fmt.Errorf("storage: table %s already open", schema.TableName)
	}
	tf, err := storage.CreateTableFile(e.tablePath(schema.TableName), schema)
	if err != nil {
		return err
	}
	e.files[schema.TableName] = tf
	return nil
}

// tableFile returns the open TableFile for table, opening it from disk on
// first use if the process has just started (e.g. after a restart).
func (e *Engine) tableFile(table string) (*storage.TableFile, error) {
	e.mu.RLock()
	tf, ok := e.files[table]
	e.mu.RUnlock()
	if ok {
		return tf, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if tf, ok := e.files[table]; ok {
		return tf, nil
	}
	path := e.tablePath(table)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrTableNotFound, table)
	}
	tf, err := storage.OpenTableFile(path)
	if err != nil {
		return nil, err
	}
	e.files[table] = tf
	return tf, nil
}

// loadPage returns the page for (table, blockID), consulting the buffer
// pool before falling back to disk, and installing a disk-read page into
// the pool on the way out.
func (e *Engine) loadPage(tf *storage.TableFile, blockID int64) (*storage.Page, error) {
	table := tf.Schema().TableName
	if page, ok := e.pool.GetPage(table, blockID); ok {
		return page, nil
	}
	page, err := tf.ReadBlock(blockID)
	if err != nil {
		return nil, err
	}
	if err := e.publish(tf, page); err != nil {
		return nil, err
	}
	return page, nil
}

// publish installs a page into the buffer pool, flushing and cleaning
// whatever page it displaces if that page was dirty.
func (e *Engine) publish(tf *storage.TableFile, page *storage.Page) error {
	evicted := e.pool.AddOrUpdatePage(page)
	if evicted == nil || !evicted.IsDirty {
		return nil
	}
	evictedFile, err := e.tableFile(evicted.Table)
	if err != nil {
		return fmt.Errorf("storage: flush evicted page for unknown table %s: %w", evicted.Table, err)
	}
	if err := evictedFile.WriteDisk(evicted); err != nil {
		return err
	}
	e.pool.MarkClean(evicted.Table, evicted.BlockID)
	return nil
}

// ReadBlock is read_block(retrieval): when the table has a hash index and
// the condition pins the indexed column by equality, it reads only the
// slots the index lists; otherwise it scans every block of the table,
// applying the predicate row-by-row. The column projection comes last.
func (e *Engine) ReadBlock(ret Retrieval) ([]*storage.Row, error) {
	tf, err := e.tableFile(ret.Table)
	if err != nil {
		return nil, err
	}
	schema := tf.Schema()

	if idx, hasIdx := e.indexForTable(ret.Table); hasIdx {
		if lit, ok := ret.Condition.ColumnEquality(idx.Column); ok {
			rows, err := e.readBySlots(tf, idx.Lookup(lit))
			if err != nil {
				return nil, err
			}
			return projectRows(rows, ret.Columns), nil
		}
	}

	var out []*storage.Row
	blockCount := tf.BlockCount()
	for blockID := int64(0); blockID < blockCount; blockID++ {
		page, err := e.loadPage(tf, blockID)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Rows {
			row, err := storage.DecodeRow(raw, schema)
			if err != nil {
				return nil, err
			}
			ok, err := ret.Condition.Evaluate(row, schema)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, row)
			}
		}
	}
	return projectRows(out, ret.Columns), nil
}

func (e *Engine) readBySlots(tf *storage.TableFile, refs []storage.SlotRef) ([]*storage.Row, error) {
	schema := tf.Schema()
	out := make([]*storage.Row, 0, len(refs))
	for _, ref := range refs {
		page, err := e.loadPage(tf, ref.BlockID)
		if err != nil {
			return nil, err
		}
		if ref.Slot < 0 || ref.Slot >= len(page.Rows) {
			continue
		}
		row, err := storage.DecodeRow(page.Rows[ref.Slot], schema)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func projectRows(rows []*storage.Row, columns []string) []*storage.Row {
	if len(columns) == 0 {
		return rows
	}
	out := make([]*storage.Row, len(rows))
	for i, row := range rows {
		projected := make(map[string]storage.Value, len(columns))
		for _, c := range columns {
			if v, ok := row.Values[c]; ok {
				projected[c] = v
			}
		}
		out[i] = &storage.Row{ID: row.ID, Values: projected}
	}
	return out
}

// WriteBlock is write_block(data_write): rewrites every row matching the
// condition in place and returns the number of rows affected. Fails with
// ErrColumnNotFound/ErrSchemaMismatch if an assignment targets an unknown
// column.
func (e *Engine) WriteBlock(dw DataWrite) (int, error) {
	tf, err := e.tableFile(dw.Table)
	if err != nil {
		return 0, err
	}
	schema := tf.Schema()
	for col := range dw.Assignments {
		if _, ok := schema.ColumnByName(col); !ok {
			return 0, fmt.Errorf("%w: %s.%s", storage.ErrColumnNotFound, dw.Table, col)
		}
	}

	affected := 0
	blockCount := tf.BlockCount()
	for blockID := int64(0); blockID < blockCount; blockID++ {
		page, err := e.loadPage(tf, blockID)
		if err != nil {
			return affected, err
		}
		changed := false
		for slot, raw := range page.Rows {
			row, err := storage.DecodeRow(raw, schema)
			if err != nil {
				return affected, err
			}
			ok, err := dw.Condition.Evaluate(row, schema)
			if err != nil {
				return affected, err
			}
			if !ok {
				continue
			}
			for col, v := range dw.Assignments {
				row.Values[col] = v
			}
			newBytes, err := storage.EncodeRow(row, schema)
			if err != nil {
				return affected, err
			}
			if err := page.UpdateSlotInPlace(slot, newBytes); err != nil {
				return affected, err
			}
			changed = true
			affected++
			e.invalidateIndex(dw.Table, dw.Assignments)
		}
		if changed {
			if err := e.publish(tf, page); err != nil {
				return affected, err
			}
		}
	}
	return affected, nil
}

// AddBlock is add_block(data_write): inserts dw.Row using first-fit,
// appending a new block only when no existing block has room.
func (e *Engine) AddBlock(dw DataWrite) (int, error) {
	tf, err := e.tableFile(dw.Table)
	if err != nil {
		return 0, err
	}
	schema := tf.Schema()
	rowBytes, err := storage.EncodeRow(dw.Row, schema)
	if err != nil {
		return 0, err
	}

	blockCount := tf.BlockCount()
	for blockID := int64(0); blockID < blockCount; blockID++ {
		page, err := e.loadPage(tf, blockID)
		if err != nil {
			return 0, err
		}
		if !page.Fits(schema) {
			continue
		}
		slot, err := page.InsertRow(rowBytes, schema)
		if err != nil {
			return 0, err
		}
		if err := e.publish(tf, page); err != nil {
			return 0, err
		}
		e.indexRow(dw.Table, dw.Row, blockID, slot)
		return 1, nil
	}

	page := storage.NewPage(dw.Table, blockCount)
	if _, err := page.InsertRow(rowBytes, schema); err != nil {
		return 0, err
	}
	newBlockID, err := tf.AppendBlock(page)
	if err != nil {
		return 0, err
	}
	page.IsDirty = false
	if err := e.publish(tf, page); err != nil {
		return 0, err
	}
	e.indexRow(dw.Table, dw.Row, newBlockID, 0)
	return 1, nil
}

// DeleteBlock is delete_block(deletion): removes every row matching the
// condition, compacting each touched block's slot directory.
func (e *Engine) DeleteBlock(del Deletion) (int, error) {
	tf, err := e.tableFile(del.Table)
	if err != nil {
		return 0, err
	}
	schema := tf.Schema()

	affected := 0
	blockCount := tf.BlockCount()
	for blockID := int64(0); blockID < blockCount; blockID++ {
		page, err := e.loadPage(tf, blockID)
		if err != nil {
			return affected, err
		}
		changed := false
		for slot := 0; slot < len(page.Rows); {
			row, err := storage.DecodeRow(page.Rows[slot], schema)
			if err != nil {
				return affected, err
			}
			ok, err := del.Condition.Evaluate(row, schema)
			if err != nil {
				return affected, err
			}
			if !ok {
				slot++
				continue
			}
			if err := page.DeleteSlot(slot); err != nil {
				return affected, err
			}
			changed = true
			affected++
		}
		if changed {
			if idx, ok := e.indexForTable(del.Table); ok {
				idx.Invalidate()
			}
			if err := e.publish(tf, page); err != nil {
				return affected, err
			}
		}
	}
	return affected, nil
}

// WriteDisk is write_disk(page): forces a single page to its on-disk
// offset, bypassing buffer residency. Used by the failure recovery manager
// during eviction and checkpoint.
func (e *Engine) WriteDisk(table string, page *storage.Page) error {
	tf, err := e.tableFile(table)
	if err != nil {
		return err
	}
	if err := tf.WriteDisk(page); err != nil {
		return err
	}
	e.pool.MarkClean(table, page.BlockID)
	return nil
}

// Pool exposes the shared buffer pool so the failure recovery manager can
// drive checkpoints (get_dirty_pages / flush_dirties) against it directly.
func (e *Engine) Pool() *buffer.Pool { return e.pool }

// SetIndex is set_index(table, column, type): builds a hash index over the
// named column by scanning the table, and records the index descriptor in
// the table file's header.
func (e *Engine) SetIndex(table, column string) error {
	tf, err := e.tableFile(table)
	if err != nil {
		return err
	}
	schema := tf.Schema()
	if _, ok := schema.ColumnByName(column); !ok {
		return fmt.Errorf("%w: %s.%s", storage.ErrColumnNotFound, table, column)
	}

	idx := storage.NewHashIndex(table, column)
	blockCount := tf.BlockCount()
	for blockID := int64(0); blockID < blockCount; blockID++ {
		page, err := e.loadPage(tf, blockID)
		if err != nil {
			return err
		}
		for slot, raw := range page.Rows {
			row, err := storage.DecodeRow(raw, schema)
			if err != nil {
				return err
			}
			if v, ok := row.Values[column]; ok && !v.IsNull() {
				idx.Add(v, storage.SlotRef{BlockID: blockID, Slot: slot})
			}
		}
	}

	e.mu.Lock()
	e.indexes[table] = idx
	e.mu.Unlock()
	return tf.SetIndexedColumn(column)
}

func (e *Engine) indexForTable(table string) (*storage.HashIndex, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indexes[table]
	return idx, ok
}

// IndexedColumn reports which column (if any) currently has a hash index
// built for table, for the optimizer's index-seek heuristic.
func (e *Engine) IndexedColumn(table string) (string, bool) {
	idx, ok := e.indexForTable(table)
	if !ok {
		return "", false
	}
	return idx.Column, true
}

// Schema exposes a table's schema for the optimizer and query processor.
func (e *Engine) Schema(table string) (*storage.Schema, error) {
	tf, err := e.tableFile(table)
	if err != nil {
		return nil, err
	}
	return tf.Schema(), nil
}

func (e *Engine) indexRow(table string, row *storage.Row, blockID int64, slot int) {
	idx, ok := e.indexForTable(table)
	if !ok {
		return
	}
	if v, ok := row.Values[idx.Column]; ok && !v.IsNull() {
		idx.Add(v, storage.SlotRef{BlockID: blockID, Slot: slot})
	}
}

func (e *Engine) invalidateIndex(table string, assignments map[string]storage.Value) {
	idx, ok := e.indexForTable(table)
	if !ok {
		return
	}
	if _, touched := assignments[idx.Column]; touched {
		idx.Invalidate()
	}
}

// GetStats is get_stats(table): derives cardinality and selectivity
// estimates for the cost model via a full scan.
func (e *Engine) GetStats(table string) (storage.TableStats, error) {
	tf, err := e.tableFile(table)
	if err != nil {
		return storage.TableStats{}, err
	}
	schema := tf.Schema()
	stats := storage.TableStats{
		TupleSize:      schema.RowByteWidth(),
		BlockingFactor: storage.BlockSize / schema.RowByteWidth(),
		DistinctValues: make(map[string]int),
	}
	distinct := make(map[string]map[string]struct{}, len(schema.Columns))
	for _, c := range schema.Columns {
		distinct[c.Name] = make(map[string]struct{})
	}

	blockCount := tf.BlockCount()
	stats.BlockCount = int(blockCount)
	for blockID := int64(0); blockID < blockCount; blockID++ {
		page, err := e.loadPage(tf, blockID)
		if err != nil {
			return storage.TableStats{}, err
		}
		stats.TupleCount += len(page.Rows)
		for _, raw := range page.Rows {
			row, err := storage.DecodeRow(raw, schema)
			if err != nil {
				return storage.TableStats{}, err
			}
			for col, v := range row.Values {
				if !v.IsNull() {
					distinct[col][v.AsString()] = struct{}{}
				}
			}
		}
	}
	for col, set := range distinct {
		stats.DistinctValues[col] = len(set)
	}
	return stats, nil
}

// Close releases every open table file.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, tf := range e.files {
		if err := tf.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
