package concurrency

import (
	"sort"
	"sync"

	"mdbms/pkg/primitives"
)

type occTxnState struct {
	status   Status
	start    int64
	finish   int64
	readSet  map[primitives.ObjectKey]bool
	writeSet map[primitives.ObjectKey]bool
}

type occCommittedRecord struct {
	finish   int64
	writeSet map[primitives.ObjectKey]bool
}

// maxCommittedHistory bounds the committed-transactions list used for
// backward validation, trimmed by finish_timestamp to cap memory (§4.D.3).
const maxCommittedHistory = 100

// optimistic implements Optimistic Concurrency Control with backward
// validation (§4.D.3): Reading records access sets unconditionally;
// Validating (on commit) checks the requester's sets against every
// transaction that committed after it started; Writing/Abort follows.
type optimistic struct {
	mu        sync.Mutex
	idGen     *primitives.TransactionIDGenerator
	clock     int64
	txns      map[primitives.TransactionID]*occTxnState
	committed []occCommittedRecord
}

func newOptimistic() *optimistic {
	return &optimistic{
		idGen: primitives.NewTransactionIDGenerator(),
		txns:  make(map[primitives.TransactionID]*occTxnState),
	}
}

func (o *optimistic) BeginTransaction() primitives.TransactionID {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.idGen.Next()
	o.clock++
	o.txns[id] = &occTxnState{
		status:   StatusActive,
		start:    o.clock,
		readSet:  make(map[primitives.ObjectKey]bool),
		writeSet: make(map[primitives.ObjectKey]bool),
	}
	return id
}

func (o *optimistic) ValidateObject(action Action) ValidateResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	txn, ok := o.txns[action.TxnID]
	if !ok || txn.status != StatusActive {
		return ValidateResult{Response: Denied}
	}
	if action.Type == ActionRead {
		txn.readSet[action.Object] = true
	} else {
		txn.writeSet[action.Object] = true
	}
	return ValidateResult{Response: Granted}
}

func (o *optimistic) LogObject(object primitives.ObjectKey, tx primitives.TransactionID) {}

// EndTransaction runs backward validation when commit is requested; an
// explicit abort request always succeeds without validation.
func (o *optimistic) EndTransaction(tx primitives.TransactionID, commit bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	txn, ok := o.txns[tx]
	if !ok {
		return false
	}
	if !commit {
		txn.status = StatusTerminated
		return true
	}

	o.clock++
	for _, c := range o.committed {
		if c.finish < txn.start {
			continue
		}
		if intersects(c.writeSet, txn.readSet) || intersects(c.writeSet, txn.writeSet) {
			txn.status = StatusTerminated
			return false
		}
	}

	txn.finish = o.clock
	txn.status = StatusTerminated
	o.committed = append(o.committed, occCommittedRecord{finish: txn.finish, writeSet: txn.writeSet})
	if len(o.committed) > maxCommittedHistory {
		sort.Slice(o.committed, func(i, j int) bool { return o.committed[i].finish < o.committed[j].finish })
		o.committed = o.committed[len(o.committed)-maxCommittedHistory:]
	}
	return true
}

func intersects(a, b map[primitives.ObjectKey]bool) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k := range small {
		if big[k] {
			return true
		}
	}
	return false
}

func (o *optimistic) GetTransactionStatus(tx primitives.TransactionID) (Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	txn, ok := o.txns[tx]
	if !ok {
		return StatusTerminated, false
	}
	return txn.status, true
}

func (o *optimistic) IsTransactionActive(tx primitives.TransactionID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	txn, ok := o.txns[tx]
	return ok && txn.status == StatusActive
}
