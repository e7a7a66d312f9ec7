package storage

import "testing"

// TestNewSchemaRejectsDuplicateColumn enforces column-name uniqueness.
func TestNewSchemaRejectsDuplicateColumn(t *testing.T) {
	_, err := NewSchema("t", []Column{
		{Name: "a", Type: TypeInt32},
		{Name: "a", Type: TypeInt32},
	})
	if err == nil {
		t.Error("expected error for duplicate column name")
	}
}

// TestNewSchemaRejectsStringWithoutLength enforces that string columns
// declare a positive length.
func TestNewSchemaRejectsStringWithoutLength(t *testing.T) {
	_, err := NewSchema("t", []Column{{Name: "s", Type: TypeString}})
	if err == nil {
		t.Error("expected error for string column without declared length")
	}
}

// TestNewSchemaRejectsEmptyColumns enforces at-least-one-column.
func TestNewSchemaRejectsEmptyColumns(t *testing.T) {
	if _, err := NewSchema("t", nil); err == nil {
		t.Error("expected error for schema with no columns")
	}
}

// TestSchemaColumnByName checks lookup success and absence reporting.
func TestSchemaColumnByName(t *testing.T) {
	schema, err := NewSchema("t", []Column{{Name: "a", Type: TypeInt32}})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	if _, ok := schema.ColumnByName("a"); !ok {
		t.Error("expected column a to be found")
	}
	if _, ok := schema.ColumnByName("missing"); ok {
		t.Error("expected column missing to be absent")
	}
}

// TestSchemaRowByteWidth checks the fixed-width layout calculation:
// id + bitmap + each column's width.
func TestSchemaRowByteWidth(t *testing.T) {
	schema, err := NewSchema("t", []Column{
		{Name: "a", Type: TypeInt32},
		{Name: "b", Type: TypeString, DeclaredLength: 10},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	want := RowIDSize + 1 + 4 + 10
	if got := schema.RowByteWidth(); got != want {
		t.Errorf("RowByteWidth() = %d, want %d", got, want)
	}
}
