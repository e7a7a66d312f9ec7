package storage

import "fmt"

// RowIDSize is the fixed width, in bytes, reserved for a row's stable
// identifier inside its serialized form. Identifiers are UUIDs, so 36 bytes
// (the canonical hyphenated text form) is always sufficient.
const RowIDSize = 36

// Column is one entry of a table's ordered schema: a name, a declared type,
// and (for strings) a declared length.
type Column struct {
	Name           string
	Type           ValueType
	DeclaredLength int // only meaningful for TypeString
}

// Width returns the fixed serialized width of this column in bytes.
func (c Column) Width() int {
	switch c.Type {
	case TypeString:
		return c.DeclaredLength
	default:
		return 4
	}
}

// Schema is the ordered, immutable-once-written column list of a table.
type Schema struct {
	TableName string
	Columns   []Column
}

// NewSchema validates and constructs a schema. Schemas are immutable for the
// lifetime of the table file once persisted.
func NewSchema(tableName string, columns []Column) (*Schema, error) {
	if tableName == "" {
		return nil, fmt.Errorf("storage: schema requires a table name")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("storage: schema for %s requires at least one column", tableName)
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("storage: schema for %s has an unnamed column", tableName)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("storage: schema for %s has duplicate column %s", tableName, c.Name)
		}
		seen[c.Name] = true
		if c.Type == TypeString && c.DeclaredLength <= 0 {
			return nil, fmt.Errorf("storage: string column %s.%s needs a positive declared length", tableName, c.Name)
		}
	}
	return &Schema{TableName: tableName, Columns: columns}, nil
}

// ColumnByName finds a column definition, or reports SchemaError-shaped
// absence via ok=false.
func (s *Schema) ColumnByName(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// RowByteWidth is the total fixed width of one serialized row: the stable
// id, a null bitmap (one bit per column), and every column's declared width.
func (s *Schema) RowByteWidth() int {
	width := RowIDSize + nullBitmapBytes(len(s.Columns))
	for _, c := range s.Columns {
		width += c.Width()
	}
	return width
}

func nullBitmapBytes(numColumns int) int {
	return (numColumns + 7) / 8
}
