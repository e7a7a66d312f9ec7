// Package catalog bootstraps tables used by the core: parsing a minimal
// CREATE TABLE statement into a schema and handing it to the storage
// engine. The spec treats catalog management as "defined only to the
// extent needed to bootstrap tables used by the core" — this package does
// exactly that and nothing more.
package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"mdbms/pkg/engine"
	"mdbms/pkg/storage"
)

// Manager creates tables against one storage engine.
type Manager struct {
	engine *engine.Engine
}

// New builds a catalog manager over eng.
func New(eng *engine.Engine) *Manager {
	return &Manager{engine: eng}
}

// CreateTable parses a statement of the form
//
//	CREATE TABLE name (col1 INT, col2 VARCHAR(32), col3 FLOAT, ...)
//
// and creates the backing table file.
func (m *Manager) CreateTable(ddl string) error {
	schema, err := parseCreateTable(ddl)
	if err != nil {
		return err
	}
	return m.engine.CreateTable(schema)
}

func parseCreateTable(ddl string) (*storage.Schema, error) {
	trimmed := strings.TrimSpace(ddl)
	trimmed = strings.TrimSuffix(trimmed, ";")
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "CREATE TABLE") {
		return nil, fmt.Errorf("%w: expected CREATE TABLE", storage.ErrSchemaMismatch)
	}
	rest := strings.TrimSpace(trimmed[len("CREATE TABLE"):])

	openParen := strings.IndexByte(rest, '(')
	closeParen := strings.LastIndexByte(rest, ')')
	if openParen < 0 || closeParen < 0 || closeParen < openParen {
		return nil, fmt.Errorf("%w: malformed column list", storage.ErrSchemaMismatch)
	}
	tableName := strings.TrimSpace(rest[:openParen])
	if tableName == "" {
		return nil, fmt.Errorf("%w: missing table name", storage.ErrSchemaMismatch)
	}

	columnDefs := splitTopLevel(rest[openParen+1 : closeParen])
	columns := make([]storage.Column, 0, len(columnDefs))
	for _, def := range columnDefs {
		col, err := parseColumnDef(def)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return storage.NewSchema(tableName, columns)
}

func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseColumnDef(def string) (storage.Column, error) {
	fields := strings.Fields(def)
	if len(fields) < 2 {
		return storage.Column{}, fmt.Errorf("%w: malformed column definition %q", storage.ErrSchemaMismatch, def)
	}
	name := fields[0]
	typeToken := strings.ToUpper(fields[1])

	switch {
	case typeToken == "INT" || typeToken == "INTEGER":
		return storage.Column{Name: name, Type: storage.TypeInt32}, nil
	case typeToken == "FLOAT" || typeToken == "REAL":
		return storage.Column{Name: name, Type: storage.TypeFloat32}, nil
	case strings.HasPrefix(typeToken, "VARCHAR") || strings.HasPrefix(typeToken, "CHAR"):
		length, err := parseDeclaredLength(typeToken)
		if err != nil {
			return storage.Column{}, err
		}
		return storage.Column{Name: name, Type: storage.TypeString, DeclaredLength: length}, nil
	default:
		return storage.Column{}, fmt.Errorf("%w: unknown column type %q", storage.ErrSchemaMismatch, fields[1])
	}
}

func parseDeclaredLength(typeToken string) (int, error) {
	open := strings.IndexByte(typeToken, '(')
	close := strings.IndexByte(typeToken, ')')
	if open < 0 || close < 0 || close < open {
		return 0, fmt.Errorf("%w: string column needs a declared length, e.g. VARCHAR(32)", storage.ErrSchemaMismatch)
	}
	n, err := strconv.Atoi(typeToken[open+1 : close])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid declared length in %q", storage.ErrSchemaMismatch, typeToken)
	}
	return n, nil
}
