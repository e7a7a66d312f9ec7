package storage

import (
	"encoding/binary"
	"fmt"
)

// BlockSize is the fixed size, in bytes, of every page (header or data).
const BlockSize = 4096

// rowCountPrefix is the width of the row-count field at the start of every
// serialized block.
const rowCountPrefix = 2

// Page is one fixed-size block of table storage: a slot layout of
// fixed-width row records plus a transient dirty flag. A page belongs to
// exactly one table and one block id.
type Page struct {
	Table   string
	BlockID int64
	Rows    [][]byte // dense, in slot order; no gaps
	IsDirty bool
}

// NewPage constructs an empty page for the given table/block.
func NewPage(table string, blockID int64) *Page {
	return &Page{Table: table, BlockID: blockID}
}

// FreeSpace reports how many bytes remain available for new rows of the
// given schema's fixed width.
func (p *Page) FreeSpace(schema *Schema) int {
	used := rowCountPrefix + len(p.Rows)*schema.RowByteWidth()
	return BlockSize - used
}

// Fits reports whether one more row of the schema's width admits into this
// page (the first-fit test used by add_block).
func (p *Page) Fits(schema *Schema) bool {
	return p.FreeSpace(schema) >= schema.RowByteWidth()
}

// InsertRow appends a serialized row to the end of the slot directory,
// returning its new slot index. Marks the page dirty.
func (p *Page) InsertRow(rowBytes []byte, schema *Schema) (int, error) {
	if !p.Fits(schema) {
		return 0, ErrNoSpace
	}
	p.Rows = append(p.Rows, rowBytes)
	p.IsDirty = true
	return len(p.Rows) - 1, nil
}

// UpdateSlotInPlace replaces a slot's bytes when the new serialized size is
// unchanged from the old. Callers must delete+insert instead when sizes
// differ. Marks the page dirty.
func (p *Page) UpdateSlotInPlace(slot int, rowBytes []byte) error {
	if slot < 0 || slot >= len(p.Rows) {
		return fmt.Errorf("storage: slot %d out of range", slot)
	}
	if len(rowBytes) != len(p.Rows[slot]) {
		return fmt.Errorf("storage: in-place update requires identical row width")
	}
	p.Rows[slot] = rowBytes
	p.IsDirty = true
	return nil
}

// DeleteSlot removes a slot and compacts the slot directory, preserving the
// relative order of remaining rows. Marks the page dirty.
func (p *Page) DeleteSlot(slot int) error {
	if slot < 0 || slot >= len(p.Rows) {
		return fmt.Errorf("storage: slot %d out of range", slot)
	}
	p.Rows = append(p.Rows[:slot], p.Rows[slot+1:]...)
	p.IsDirty = true
	return nil
}

// Serialize produces the fixed BlockSize-byte on-disk representation:
// [row count: 2 bytes LE][row 0][row 1]...[zero padding].
func (p *Page) Serialize(schema *Schema) []byte {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint16(buf[:rowCountPrefix], uint16(len(p.Rows)))
	offset := rowCountPrefix
	width := schema.RowByteWidth()
	for _, row := range p.Rows {
		copy(buf[offset:offset+width], row)
		offset += width
	}
	return buf
}

// DeserializePage parses a BlockSize-byte block previously written by
// Serialize back into a Page.
func DeserializePage(table string, blockID int64, data []byte, schema *Schema) (*Page, error) {
	if len(data) != BlockSize {
		return nil, fmt.Errorf("%w: block is %d bytes, want %d", ErrCorruption, len(data), BlockSize)
	}
	count := binary.LittleEndian.Uint16(data[:rowCountPrefix])
	width := schema.RowByteWidth()
	page := &Page{Table: table, BlockID: blockID, Rows: make([][]byte, 0, count)}
	offset := rowCountPrefix
	for i := uint16(0); i < count; i++ {
		if offset+width > len(data) {
			return nil, fmt.Errorf("%w: block truncated at row %d", ErrCorruption, i)
		}
		row := make([]byte, width)
		copy(row, data[offset:offset+width])
		page.Rows = append(page.Rows, row)
		offset += width
	}
	return page, nil
}
