package concurrency

import "testing"

// TestTwoPLSharedLocksCompatible checks two readers can both hold a shared
// lock on the same object.
func TestTwoPLSharedLocksCompatible(t *testing.T) {
	p := newTwoPL()
	tx1 := p.BeginTransaction()
	tx2 := p.BeginTransaction()
	object := obj("accounts")

	r1 := p.ValidateObject(Action{Type: ActionRead, Object: object, TxnID: tx1})
	r2 := p.ValidateObject(Action{Type: ActionRead, Object: object, TxnID: tx2})
	if r1.Response != Granted || r2.Response != Granted {
		t.Fatalf("expected both shared reads granted, got %v and %v", r1.Response, r2.Response)
	}
}

// TestTwoPLWriteBlocksConcurrentRead checks an exclusive holder blocks a
// conflicting request, which reports Waiting rather than failing outright.
func TestTwoPLWriteBlocksConcurrentRead(t *testing.T) {
	p := newTwoPL()
	tx1 := p.BeginTransaction()
	tx2 := p.BeginTransaction()
	object := obj("accounts")

	if r := p.ValidateObject(Action{Type: ActionWrite, Object: object, TxnID: tx1}); r.Response != Granted {
		t.Fatalf("expected exclusive lock granted, got %v", r.Response)
	}
	r := p.ValidateObject(Action{Type: ActionRead, Object: object, TxnID: tx2})
	if r.Response != Waiting {
		t.Fatalf("expected the second transaction to wait, got %v", r.Response)
	}
}

// TestTwoPLDeadlockAbortsRequester checks a wait-for cycle is detected and
// resolved by aborting the requester, not the holder.
func TestTwoPLDeadlockAbortsRequester(t *testing.T) {
	p := newTwoPL()
	tx1 := p.BeginTransaction()
	tx2 := p.BeginTransaction()
	a := obj("a")
	b := obj("b")

	if r := p.ValidateObject(Action{Type: ActionWrite, Object: a, TxnID: tx1}); r.Response != Granted {
		t.Fatalf("tx1 lock a: %v", r.Response)
	}
	if r := p.ValidateObject(Action{Type: ActionWrite, Object: b, TxnID: tx2}); r.Response != Granted {
		t.Fatalf("tx2 lock b: %v", r.Response)
	}
	if r := p.ValidateObject(Action{Type: ActionWrite, Object: b, TxnID: tx1}); r.Response != Waiting {
		t.Fatalf("tx1 wait on b: %v", r.Response)
	}

	r := p.ValidateObject(Action{Type: ActionWrite, Object: a, TxnID: tx2})
	if r.Response != Deadlock {
		t.Fatalf("expected Deadlock when tx2 closes the cycle, got %v", r.Response)
	}
	if p.IsTransactionActive(tx2) {
		t.Error("the requester that closed the cycle should have been aborted")
	}
	if !p.IsTransactionActive(tx1) {
		t.Error("tx1, which was already waiting, should still be active")
	}
}

// TestTwoPLReleaseLocksOnEndTransaction checks that committing releases a
// transaction's locks so a waiter can proceed.
func TestTwoPLReleaseLocksOnEndTransaction(t *testing.T) {
	p := newTwoPL()
	tx1 := p.BeginTransaction()
	tx2 := p.BeginTransaction()
	object := obj("accounts")

	p.ValidateObject(Action{Type: ActionWrite, Object: object, TxnID: tx1})
	if r := p.ValidateObject(Action{Type: ActionRead, Object: object, TxnID: tx2}); r.Response != Waiting {
		t.Fatalf("expected tx2 to wait, got %v", r.Response)
	}

	if !p.EndTransaction(tx1, true) {
		t.Fatal("expected EndTransaction to succeed")
	}
	if r := p.ValidateObject(Action{Type: ActionRead, Object: object, TxnID: tx2}); r.Response != Granted {
		t.Fatalf("expected tx2 to acquire the lock after tx1 released it, got %v", r.Response)
	}
}

// TestTwoPLLockUpgrade checks a transaction already holding a shared lock
// can upgrade to exclusive when it is the sole holder.
func TestTwoPLLockUpgrade(t *testing.T) {
	p := newTwoPL()
	tx := p.BeginTransaction()
	object := obj("accounts")

	p.ValidateObject(Action{Type: ActionRead, Object: object, TxnID: tx})
	r := p.ValidateObject(Action{Type: ActionWrite, Object: object, TxnID: tx})
	if r.Response != Granted {
		t.Fatalf("expected upgrade to succeed as sole holder, got %v", r.Response)
	}
}

// TestTwoPLUnknownTransactionDenied rejects validation for an id never
// minted by BeginTransaction.
func TestTwoPLUnknownTransactionDenied(t *testing.T) {
	p := newTwoPL()
	r := p.ValidateObject(Action{Type: ActionRead, Object: obj("accounts"), TxnID: 999})
	if r.Response != Denied {
		t.Errorf("expected Denied for an unknown transaction, got %v", r.Response)
	}
}
