package concurrency

import (
	"sync"

	"mdbms/pkg/primitives"
)

type tsTxnState struct {
	status Status
	ts     int64
}

type objectTimestamps struct {
	mu    sync.Mutex
	read  int64
	write int64
}

// timestampOrdering implements Timestamp Ordering with the Thomas Write
// Rule (§4.D.2). There are no locks and no deadlocks; every abort decision
// is immediate, reported through the shared Deadlock response value (the
// facade's response enum is shared across protocols — see §4.D — so a
// CCM-initiated abort under TO surfaces the same way it does under 2PL).
type timestampOrdering struct {
	mu      sync.Mutex
	idGen   *primitives.TransactionIDGenerator
	clock   int64
	txns    map[primitives.TransactionID]*tsTxnState
	objects map[primitives.ObjectKey]*objectTimestamps
}

func newTimestampOrdering() *timestampOrdering {
	return &timestampOrdering{
		idGen:   primitives.NewTransactionIDGenerator(),
		txns:    make(map[primitives.TransactionID]*tsTxnState),
		objects: make(map[primitives.ObjectKey]*objectTimestamps),
	}
}

func (t *timestampOrdering) BeginTransaction() primitives.TransactionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.idGen.Next()
	t.clock++
	t.txns[id] = &tsTxnState{status: StatusActive, ts: t.clock}
	return id
}

func (t *timestampOrdering) objectState(key primitives.ObjectKey) *objectTimestamps {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.objects[key]
	if !ok {
		obj = &objectTimestamps{}
		t.objects[key] = obj
	}
	return obj
}

func (t *timestampOrdering) ValidateObject(action Action) ValidateResult {
	t.mu.Lock()
	txn, ok := t.txns[action.TxnID]
	t.mu.Unlock()
	if !ok || txn.status != StatusActive {
		return ValidateResult{Response: Denied}
	}

	obj := t.objectState(action.Object)
	obj.mu.Lock()
	defer obj.mu.Unlock()

	if action.Type == ActionRead {
		if txn.ts < obj.write {
			t.abort(action.TxnID)
			return ValidateResult{Response: Deadlock}
		}
		if txn.ts > obj.read {
			obj.read = txn.ts
		}
		return ValidateResult{Response: Granted}
	}

	if txn.ts < obj.read {
		t.abort(action.TxnID)
		return ValidateResult{Response: Deadlock}
	}
	if txn.ts < obj.write {
		// Thomas Write Rule: grant but the effective write is obsolete.
		return ValidateResult{Response: Granted, SkipWrite: true}
	}
	obj.write = txn.ts
	return ValidateResult{Response: Granted}
}

func (t *timestampOrdering) abort(tx primitives.TransactionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if txn, ok := t.txns[tx]; ok {
		txn.status = StatusAborted
	}
}

func (t *timestampOrdering) LogObject(object primitives.ObjectKey, tx primitives.TransactionID) {}

func (t *timestampOrdering) EndTransaction(tx primitives.TransactionID, commit bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	txn, ok := t.txns[tx]
	if !ok {
		return false
	}
	if commit {
		txn.status = StatusCommitted
	} else {
		txn.status = StatusAborted
	}
	txn.status = StatusTerminated
	return true
}

func (t *timestampOrdering) GetTransactionStatus(tx primitives.TransactionID) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	txn, ok := t.txns[tx]
	if !ok {
		return StatusTerminated, false
	}
	return txn.status, true
}

func (t *timestampOrdering) IsTransactionActive(tx primitives.TransactionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	txn, ok := t.txns[tx]
	return ok && txn.status == StatusActive
}
