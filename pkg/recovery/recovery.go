// Package recovery implements the Failure Recovery Manager's undo path:
// rolling back a transaction (or an arbitrary criteria-based replay) by
// synthesizing compensating SQL statements and dispatching them through the
// Query Processor (§4.C).
package recovery

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"mdbms/pkg/logrecord"
	"mdbms/pkg/primitives"
	"mdbms/pkg/storage"
	"mdbms/pkg/wal"
)

// Dispatcher is the late-bound Query Processor collaborator: submitting one
// compensating statement as a non-transactional side effect (it must not
// itself generate log entries or transaction validations). The processor
// package implements this and wires itself in via SetDispatcher, avoiding an
// import cycle between the two packages.
type Dispatcher interface {
	DispatchCompensating(sql string) error
}

// Manager drives undo_transaction and recover(criteria) against the WAL.
type Manager struct {
	log        *wal.Manager
	dispatcher Dispatcher
}

// New builds a recovery manager reading from log.
func New(log *wal.Manager) *Manager {
	return &Manager{log: log}
}

// SetDispatcher wires the Query Processor collaborator. Until this is
// called, UndoTransaction fails safely rather than panicking.
func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

// UndoTransaction rolls back tx: reads all log entries (durable plus
// buffered), filters to tx, and walks them in reverse, synthesizing and
// dispatching a compensating statement per data entry, terminating at tx's
// Begin. Returns success only if every compensating statement succeeds.
func (m *Manager) UndoTransaction(tx primitives.TransactionID) error {
	if m.dispatcher == nil {
		return fmt.Errorf("recovery: no query processor wired, cannot undo transaction %d", tx)
	}
	entries, err := m.log.ReadAll()
	if err != nil {
		return fmt.Errorf("recovery: read log: %w", err)
	}

	var mine []*logrecord.Entry
	for _, e := range entries {
		if e.TxnID == tx {
			mine = append(mine, e)
		}
	}

	for i := len(mine) - 1; i >= 0; i-- {
		e := mine[i]
		if e.Op == logrecord.OpBegin {
			break
		}
		if !e.IsDataOp() {
			continue
		}
		stmt, err := compensatingStatement(e)
		if err != nil {
			return fmt.Errorf("recovery: build compensating statement: %w", err)
		}
		if stmt == "" {
			continue
		}
		if err := m.dispatcher.DispatchCompensating(stmt); err != nil {
			return fmt.Errorf("recovery: compensating statement failed for txn %d: %w", tx, err)
		}
	}
	return nil
}

// Recover replays every log entry satisfying criteria, dispatching
// compensating statements in reverse chronological order. Documented per
// §4.C; undo_transaction is the production rollback path, this is the
// alternate administrative entry (e.g. "rewind to before time T").
func (m *Manager) Recover(criteria Criteria) error {
	if m.dispatcher == nil {
		return fmt.Errorf("recovery: no query processor wired, cannot recover")
	}
	entries, err := m.log.ReadAll()
	if err != nil {
		return fmt.Errorf("recovery: read log: %w", err)
	}

	var matched []*logrecord.Entry
	for _, e := range entries {
		if criteria.Matches(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].LSN > matched[j].LSN })

	for _, e := range matched {
		if !e.IsDataOp() {
			continue
		}
		stmt, err := compensatingStatement(e)
		if err != nil {
			return fmt.Errorf("recovery: build compensating statement: %w", err)
		}
		if stmt == "" {
			continue
		}
		if err := m.dispatcher.DispatchCompensating(stmt); err != nil {
			return fmt.Errorf("recovery: compensating statement failed: %w", err)
		}
	}
	return nil
}

// Criteria selects which log entries Recover replays: either every entry
// for a specific transaction, or every entry at/after a timestamp.
type Criteria struct {
	TxnID   primitives.TransactionID
	ByTxnID bool
	Since   time.Time
	BySince bool
}

// Matches reports whether entry e satisfies this criteria.
func (c Criteria) Matches(e *logrecord.Entry) bool {
	if c.ByTxnID && e.TxnID != c.TxnID {
		return false
	}
	if c.BySince && e.Timestamp.Before(c.Since) {
		return false
	}
	return c.ByTxnID || c.BySince
}

func compensatingStatement(e *logrecord.Entry) (string, error) {
	switch e.Op {
	case logrecord.OpInsert:
		return fmt.Sprintf("DELETE FROM %s WHERE %s = '%s'", e.Table, storage.RowIDColumn, e.RowID), nil
	case logrecord.OpDelete:
		if e.BeforeImage == nil {
			return "", fmt.Errorf("delete entry for %s.%s has no before-image to restore", e.Table, e.RowID)
		}
		return buildInsert(e.Table, e.BeforeImage), nil
	case logrecord.OpUpdate:
		if e.BeforeImage == nil {
			return "", fmt.Errorf("update entry for %s.%s has no before-image to restore", e.Table, e.RowID)
		}
		return buildUpdate(e.Table, e.RowID, e.BeforeImage), nil
	default:
		return "", nil
	}
}

func buildInsert(table string, values map[string]storage.Value) string {
	names := sortedKeys(values)
	cols := strings.Join(names, ", ")
	lits := make([]string, len(names))
	for i, n := range names {
		lits[i] = sqlLiteral(values[n])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, cols, strings.Join(lits, ", "))
}

func buildUpdate(table, rowID string, values map[string]storage.Value) string {
	names := sortedKeys(values)
	assigns := make([]string, len(names))
	for i, n := range names {
		assigns[i] = fmt.Sprintf("%s = %s", n, sqlLiteral(values[n]))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = '%s'", table, strings.Join(assigns, ", "), storage.RowIDColumn, rowID)
}

func sortedKeys(values map[string]storage.Value) []string {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sqlLiteral(v storage.Value) string {
	switch v.Type {
	case storage.TypeString:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	case storage.TypeNull:
		return "NULL"
	default:
		return v.AsString()
	}
}
