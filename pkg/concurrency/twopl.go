package concurrency

import (
	"sync"

	"mdbms/pkg/primitives"
)

// lockMode is Shared or Exclusive, per the compatibility table in §4.D.1.
type lockMode int

const (
	lockShared lockMode = iota
	lockExclusive
)

type lockEntry struct {
	tx   primitives.TransactionID
	mode lockMode
}

type twoplTxnState struct {
	status    Status
	heldLocks map[primitives.ObjectKey]lockMode
}

// twoPL implements Two-Phase Locking with deadlock detection (§4.D.1).
//
// Victim policy: when a new wait-for edge would close a cycle, the
// requester (the transaction currently attempting to acquire the lock) is
// aborted, not the holder — this guarantees progress for transactions that
// were already waiting, matching the spec's stated rationale. The
// alternative "youngest by id" policy was not chosen.
type twoPL struct {
	mu        sync.Mutex
	idGen     *primitives.TransactionIDGenerator
	txns      map[primitives.TransactionID]*twoplTxnState
	lockTable map[primitives.ObjectKey][]lockEntry
	waitFor   map[primitives.TransactionID]map[primitives.TransactionID]bool
}

func newTwoPL() *twoPL {
	return &twoPL{
		idGen:     primitives.NewTransactionIDGenerator(),
		txns:      make(map[primitives.TransactionID]*twoplTxnState),
		lockTable: make(map[primitives.ObjectKey][]lockEntry),
		waitFor:   make(map[primitives.TransactionID]map[primitives.TransactionID]bool),
	}
}

func (p *twoPL) BeginTransaction() primitives.TransactionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.idGen.Next()
	p.txns[id] = &twoplTxnState{status: StatusActive, heldLocks: make(map[primitives.ObjectKey]lockMode)}
	return id
}

func requiredMode(action Action) lockMode {
	if action.Type == ActionRead {
		return lockShared
	}
	return lockExclusive
}

func compatible(a, b lockMode) bool {
	return a == lockShared && b == lockShared
}

func (p *twoPL) ValidateObject(action Action) ValidateResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := func(r Response) ValidateResult { return ValidateResult{Response: r} }

	txn, ok := p.txns[action.TxnID]
	if !ok || (txn.status != StatusActive && txn.status != StatusWaiting) {
		return result(Denied)
	}
	mode := requiredMode(action)

	if existing, holds := txn.heldLocks[action.Object]; holds {
		if existing == lockExclusive || mode == lockShared {
			return result(Granted)
		}
		// Upgrade Shared -> Exclusive: succeeds only if no other transaction
		// also holds a Shared lock on this object.
		onlyHolder := true
		for _, e := range p.lockTable[action.Object] {
			if e.tx != action.TxnID {
				onlyHolder = false
				break
			}
		}
		if onlyHolder {
			txn.heldLocks[action.Object] = lockExclusive
			p.replaceLockMode(action.Object, action.TxnID, lockExclusive)
			return result(Granted)
		}
		p.addWaitEdges(action, action.Object)
		txn.status = StatusWaiting
		return result(Waiting)
	}

	conflicting := p.conflictingHolders(action.Object, action.TxnID, mode)
	if len(conflicting) == 0 {
		p.lockTable[action.Object] = append(p.lockTable[action.Object], lockEntry{tx: action.TxnID, mode: mode})
		txn.heldLocks[action.Object] = mode
		delete(p.waitFor, action.TxnID)
		return result(Granted)
	}

	for _, holder := range conflicting {
		if p.hasPath(holder, action.TxnID) {
			p.abortLocked(action.TxnID)
			return result(Deadlock)
		}
	}
	p.addWaitEdges(action, action.Object)
	txn.status = StatusWaiting
	return result(Waiting)
}

func (p *twoPL) replaceLockMode(object primitives.ObjectKey, tx primitives.TransactionID, mode lockMode) {
	entries := p.lockTable[object]
	for i, e := range entries {
		if e.tx == tx {
			entries[i].mode = mode
			return
		}
	}
}

func (p *twoPL) conflictingHolders(object primitives.ObjectKey, requester primitives.TransactionID, mode lockMode) []primitives.TransactionID {
	var conflicts []primitives.TransactionID
	for _, e := range p.lockTable[object] {
		if e.tx == requester {
			continue
		}
		if !compatible(mode, e.mode) {
			conflicts = append(conflicts, e.tx)
		}
	}
	return conflicts
}

func (p *twoPL) addWaitEdges(action Action, object primitives.ObjectKey) {
	if p.waitFor[action.TxnID] == nil {
		p.waitFor[action.TxnID] = make(map[primitives.TransactionID]bool)
	}
	for _, e := range p.lockTable[object] {
		if e.tx != action.TxnID {
			p.waitFor[action.TxnID][e.tx] = true
		}
	}
}

// hasPath depth-first-searches the wait-for graph for a path from start to
// target, used to detect whether adding requester->holder would close a
// cycle (i.e. holder can already transitively reach requester).
func (p *twoPL) hasPath(start, target primitives.TransactionID) bool {
	visited := make(map[primitives.TransactionID]bool)
	var dfs func(node primitives.TransactionID) bool
	dfs = func(node primitives.TransactionID) bool {
		if node == target {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for next := range p.waitFor[node] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(start)
}

func (p *twoPL) LogObject(object primitives.ObjectKey, tx primitives.TransactionID) {
	// Non-authoritative audit hook; 2PL's authoritative state is the lock
	// table itself, so there is nothing further to record here.
}

func (p *twoPL) EndTransaction(tx primitives.TransactionID, commit bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endLocked(tx, commit)
}

func (p *twoPL) endLocked(tx primitives.TransactionID, commit bool) bool {
	txn, ok := p.txns[tx]
	if !ok {
		return false
	}
	if commit {
		txn.status = StatusCommitted
	} else {
		txn.status = StatusAborted
	}
	p.releaseLocks(tx)
	txn.status = StatusTerminated
	return true
}

func (p *twoPL) abortLocked(tx primitives.TransactionID) {
	p.endLocked(tx, false)
}

func (p *twoPL) releaseLocks(tx primitives.TransactionID) {
	for object, entries := range p.lockTable {
		kept := entries[:0]
		for _, e := range entries {
			if e.tx != tx {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(p.lockTable, object)
		} else {
			p.lockTable[object] = kept
		}
	}
	delete(p.waitFor, tx)
	for _, waiters := range p.waitFor {
		delete(waiters, tx)
	}
	if txn, ok := p.txns[tx]; ok {
		txn.heldLocks = make(map[primitives.ObjectKey]lockMode)
	}
}

func (p *twoPL) GetTransactionStatus(tx primitives.TransactionID) (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	txn, ok := p.txns[tx]
	if !ok {
		return StatusTerminated, false
	}
	return txn.status, true
}

func (p *twoPL) IsTransactionActive(tx primitives.TransactionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	txn, ok := p.txns[tx]
	if !ok {
		return false
	}
	return txn.status == StatusActive || txn.status == StatusWaiting
}
