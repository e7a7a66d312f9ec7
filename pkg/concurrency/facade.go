package concurrency

import "mdbms/pkg/primitives"

// Manager is the public CCM facade: it forwards every call to whichever
// Controller was selected at construction.
type Manager struct {
	protocol Protocol
	ctrl     Controller
}

// New builds a Manager wrapping the requested protocol.
func New(protocol Protocol) *Manager {
	var ctrl Controller
	switch protocol {
	case TwoPhaseLocking:
		ctrl = newTwoPL()
	case TimestampOrdering:
		ctrl = newTimestampOrdering()
	case OptimisticValidation:
		ctrl = newOptimistic()
	default:
		ctrl = newTwoPL()
	}
	return &Manager{protocol: protocol, ctrl: ctrl}
}

// Protocol reports which protocol this manager wraps.
func (m *Manager) Protocol() Protocol { return m.protocol }

// BeginTransaction mints a new transaction id and initializes protocol
// state for it.
func (m *Manager) BeginTransaction() primitives.TransactionID {
	return m.ctrl.BeginTransaction()
}

// ValidateObject is the CCM's single entry point for every read/write
// attempt an executor makes.
func (m *Manager) ValidateObject(action Action) ValidateResult {
	return m.ctrl.ValidateObject(action)
}

// LogObject records a non-authoritative audit entry of an object access.
func (m *Manager) LogObject(object primitives.ObjectKey, tx primitives.TransactionID) {
	m.ctrl.LogObject(object, tx)
}

// EndTransaction finalizes tx as committed or aborted.
func (m *Manager) EndTransaction(tx primitives.TransactionID, commit bool) bool {
	return m.ctrl.EndTransaction(tx, commit)
}

// CommitTransaction is the thin commit wrapper over EndTransaction.
func (m *Manager) CommitTransaction(tx primitives.TransactionID) bool {
	return m.ctrl.EndTransaction(tx, true)
}

// AbortTransaction is the thin abort wrapper over EndTransaction.
func (m *Manager) AbortTransaction(tx primitives.TransactionID) bool {
	return m.ctrl.EndTransaction(tx, false)
}

// GetTransactionStatus reports tx's current lifecycle state.
func (m *Manager) GetTransactionStatus(tx primitives.TransactionID) (Status, bool) {
	return m.ctrl.GetTransactionStatus(tx)
}

// IsTransactionActive reports whether tx is still live.
func (m *Manager) IsTransactionActive(tx primitives.TransactionID) bool {
	return m.ctrl.IsTransactionActive(tx)
}
