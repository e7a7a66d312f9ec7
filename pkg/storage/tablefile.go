package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// headerPayload is the JSON document embedded in a table file's fixed
// 4096-byte header block: the schema, plus optional hash-index metadata
// (the index contents themselves are never persisted, per the data model).
type headerPayload struct {
	Schema        *Schema
	IndexedColumn string
}

// TableFile is the on-disk representation of one table: a header block
// (schema + optional index descriptor) followed by a dense, monotone
// sequence of data blocks. Block 0 is the first data block; it lives at
// file offset BlockSize (the header occupies offset 0).
type TableFile struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	schema     *Schema
	blockCount int64
}

// CreateTableFile creates a brand-new table file with the given schema,
// writing the header block immediately. Fails if the file already exists.
func CreateTableFile(path string, schema *Schema) (*TableFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrIO, path, err)
	}
	tf := &TableFile{path: path, file: f, schema: schema}
	if err := tf.writeHeader(""); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return tf, nil
}

// OpenTableFile opens an existing table file, reading its schema from the
// header block and computing the current block count from file size.
func OpenTableFile(path string) (*TableFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	tf := &TableFile{path: path, file: f}
	if err := tf.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	tf.blockCount = (info.Size() - BlockSize) / BlockSize
	if tf.blockCount < 0 {
		tf.blockCount = 0
	}
	return tf, nil
}

func (tf *TableFile) writeHeader(indexedColumn string) error {
	payload := headerPayload{Schema: tf.schema, IndexedColumn: indexedColumn}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("storage: marshal header: %w", err)
	}
	if len(data) > BlockSize {
		return fmt.Errorf("storage: schema header exceeds %d bytes", BlockSize)
	}
	block := make([]byte, BlockSize)
	copy(block, data)
	if _, err := tf.file.WriteAt(block, 0); err != nil {
		return fmt.Errorf("%w: write header: %v", ErrIO, err)
	}
	return nil
}

func (tf *TableFile) readHeader() error {
	block := make([]byte, BlockSize)
	if _, err := tf.file.ReadAt(block, 0); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrIO, err)
	}
	end := 0
	for end < len(block) && block[end] != 0 {
		end++
	}
	var payload headerPayload
	if err := json.Unmarshal(block[:end], &payload); err != nil {
		return fmt.Errorf("%w: decode header: %v", ErrCorruption, err)
	}
	tf.schema = payload.Schema
	return nil
}

// Schema returns the table's immutable schema.
func (tf *TableFile) Schema() *Schema { return tf.schema }

// BlockCount returns the number of data blocks currently in the file.
func (tf *TableFile) BlockCount() int64 {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return tf.blockCount
}

func dataBlockOffset(blockID int64) int64 {
	return BlockSize + blockID*BlockSize
}

// ReadBlock reads one data block directly from disk, bypassing the buffer
// pool. Callers that want caching go through the Engine instead.
func (tf *TableFile) ReadBlock(blockID int64) (*Page, error) {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	if blockID < 0 || blockID >= tf.blockCount {
		return nil, fmt.Errorf("%w: block %d out of range (have %d)", ErrIO, blockID, tf.blockCount)
	}
	buf := make([]byte, BlockSize)
	if _, err := tf.file.ReadAt(buf, dataBlockOffset(blockID)); err != nil {
		return nil, fmt.Errorf("%w: read block %d: %v", ErrIO, blockID, err)
	}
	return DeserializePage(tf.schema.TableName, blockID, buf, tf.schema)
}

// WriteDisk forces a single page to its on-disk offset. Used by the FRM
// during eviction and checkpoint; it does not alter buffer residency.
func (tf *TableFile) WriteDisk(page *Page) error {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	data := page.Serialize(tf.schema)
	if _, err := tf.file.WriteAt(data, dataBlockOffset(page.BlockID)); err != nil {
		return fmt.Errorf("%w: write block %d: %v", ErrIO, page.BlockID, err)
	}
	return tf.file.Sync()
}

// AppendBlock appends a brand-new data block, extending the file, and
// returns its block id.
func (tf *TableFile) AppendBlock(page *Page) (int64, error) {
	tf.mu.Lock()
	blockID := tf.blockCount
	tf.blockCount++
	tf.mu.Unlock()

	page.BlockID = blockID
	data := page.Serialize(tf.schema)
	if _, err := tf.file.WriteAt(data, dataBlockOffset(blockID)); err != nil {
		return 0, fmt.Errorf("%w: append block %d: %v", ErrIO, blockID, err)
	}
	return blockID, tf.file.Sync()
}

// SetIndexedColumn persists which column (if any) carries a hash index
// descriptor in the header. The index contents themselves are never
// persisted and must be rebuilt via a full scan after reopening the file.
func (tf *TableFile) SetIndexedColumn(column string) error {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return tf.writeHeader(column)
}

// Close releases the underlying file handle.
func (tf *TableFile) Close() error {
	return tf.file.Close()
}

// Path returns the file path backing this table.
func (tf *TableFile) Path() string { return tf.path }
