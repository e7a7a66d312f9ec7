package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Row is a tagged mapping from column name to a dynamically typed value. A
// row carries a stable identifier that survives slot compaction because it
// is stored inside the row's own bytes rather than derived from position.
type Row struct {
	ID     string
	Values map[string]Value
}

// NewRow mints a fresh row identifier (a UUID) with the given values. Used
// by add_block on insertion.
func NewRow(values map[string]Value) *Row {
	return &Row{ID: uuid.NewString(), Values: values}
}

// Validate checks the row invariant from the data model: every column
// present in the row must exist in the schema and match its declared type.
func (r *Row) Validate(schema *Schema) error {
	for name, v := range r.Values {
		col, ok := schema.ColumnByName(name)
		if !ok {
			return fmt.Errorf("%w: column %q not in schema for %s", ErrSchemaMismatch, name, schema.TableName)
		}
		if !v.IsNull() && v.Type != col.Type {
			return fmt.Errorf("%w: column %s expects %s, got %s", ErrSchemaMismatch, name, col.Type, v.Type)
		}
	}
	return nil
}

// EncodeRow serializes a row to its fixed-width on-page representation.
// Layout: [id:RowIDSize][null-bitmap][col0][col1]...
// Strings longer than the declared length are truncated; shorter strings
// are zero-padded. Integers and floats occupy 4 bytes little-endian.
func EncodeRow(row *Row, schema *Schema) ([]byte, error) {
	if err := row.Validate(schema); err != nil {
		return nil, err
	}
	width := schema.RowByteWidth()
	buf := make([]byte, width)

	idBytes := []byte(row.ID)
	if len(idBytes) > RowIDSize {
		idBytes = idBytes[:RowIDSize]
	}
	copy(buf[:RowIDSize], idBytes)

	bitmapOff := RowIDSize
	bitmapLen := nullBitmapBytes(len(schema.Columns))
	dataOff := bitmapOff + bitmapLen

	for i, col := range schema.Columns {
		v, present := row.Values[col.Name]
		isNull := !present || v.IsNull()
		if isNull {
			buf[bitmapOff+i/8] |= 1 << uint(i%8)
		}
		colWidth := col.Width()
		field := buf[dataOff : dataOff+colWidth]
		if !isNull {
			if err := encodeValue(field, v, col); err != nil {
				return nil, err
			}
		}
		dataOff += colWidth
	}
	return buf, nil
}

func encodeValue(dst []byte, v Value, col Column) error {
	switch col.Type {
	case TypeInt32:
		binary.LittleEndian.PutUint32(dst, uint32(v.Int32))
	case TypeFloat32:
		binary.LittleEndian.PutUint32(dst, float32bits(v.Float32))
	case TypeString:
		s := v.Str
		if len(s) > len(dst) {
			s = s[:len(dst)]
		}
		copy(dst, s)
		for i := len(s); i < len(dst); i++ {
			dst[i] = 0
		}
	default:
		return fmt.Errorf("%w: cannot encode column %s of type %s", ErrSchemaMismatch, col.Name, col.Type)
	}
	return nil
}

// DecodeRow deserializes a row previously written by EncodeRow.
func DecodeRow(buf []byte, schema *Schema) (*Row, error) {
	width := schema.RowByteWidth()
	if len(buf) < width {
		return nil, fmt.Errorf("%w: row buffer too short (%d < %d)", ErrCorruption, len(buf), width)
	}

	id := trimTrailingZero(buf[:RowIDSize])
	bitmapOff := RowIDSize
	bitmapLen := nullBitmapBytes(len(schema.Columns))
	dataOff := bitmapOff + bitmapLen

	values := make(map[string]Value, len(schema.Columns))
	for i, col := range schema.Columns {
		colWidth := col.Width()
		field := buf[dataOff : dataOff+colWidth]
		isNull := buf[bitmapOff+i/8]&(1<<uint(i%8)) != 0
		if isNull {
			values[col.Name] = NullValue()
		} else {
			v, err := decodeValue(field, col)
			if err != nil {
				return nil, err
			}
			values[col.Name] = v
		}
		dataOff += colWidth
	}
	return &Row{ID: string(id), Values: values}, nil
}

func decodeValue(src []byte, col Column) (Value, error) {
	switch col.Type {
	case TypeInt32:
		return IntValue(int32(binary.LittleEndian.Uint32(src))), nil
	case TypeFloat32:
		return FloatValue(float32frombits(binary.LittleEndian.Uint32(src))), nil
	case TypeString:
		return StringValue(string(trimTrailingZero(src))), nil
	default:
		return Value{}, fmt.Errorf("%w: cannot decode column %s of type %s", ErrCorruption, col.Name, col.Type)
	}
}

func trimTrailingZero(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, b[:end])
	return out
}
