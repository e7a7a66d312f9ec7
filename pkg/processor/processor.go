// Package processor implements the Query Processor (§4.F): classifying an
// incoming query string, driving the transaction lifecycle through the
// Concurrency Control Manager and the write-ahead log, and evaluating DML
// through the bottom-up plan iterator in executor.go.
package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"mdbms/pkg/catalog"
	"mdbms/pkg/concurrency"
	"mdbms/pkg/engine"
	"mdbms/pkg/logrecord"
	"mdbms/pkg/planner"
	"mdbms/pkg/primitives"
	"mdbms/pkg/protocol"
	"mdbms/pkg/recovery"
	"mdbms/pkg/sql"
	"mdbms/pkg/wal"
)

// NoActiveTransaction is the wire-level sentinel meaning "no transaction in
// progress" in a request's TransactionId field.
const NoActiveTransaction int64 = -1

// DefaultMaxConcurrentRequests bounds how many requests this processor
// evaluates at once; additional requests queue on the semaphore rather
// than starting unboundedly many concurrent transactions.
const DefaultMaxConcurrentRequests = 64

// Processor is the single global Query Processor instance described in
// §4.F: one per server, shared by every connection handler.
type Processor struct {
	eng       *engine.Engine
	ccm       *concurrency.Manager
	log       *wal.Manager
	recovery  *recovery.Manager
	optimizer *planner.Optimizer
	catalog   *catalog.Manager
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

// New wires a processor over its collaborators and registers itself as the
// recovery manager's Dispatcher (undo_transaction re-enters the processor
// to issue compensating statements).
func New(eng *engine.Engine, ccm *concurrency.Manager, log *wal.Manager, rec *recovery.Manager, opt *planner.Optimizer, cat *catalog.Manager, maxConcurrent int, logger *zap.Logger) *Processor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRequests
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		eng:       eng,
		ccm:       ccm,
		log:       log,
		recovery:  rec,
		optimizer: opt,
		catalog:   cat,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		logger:    logger,
	}
	rec.SetDispatcher(p)
	return p
}

// Execute is the server's single entry point: it bounds the number of
// requests evaluated concurrently, classifies req.Query, dispatches to the
// matching handler, and converts the outcome into a wire Response. Execute
// never returns a Go error; every failure is encoded into the Response.
func (p *Processor) Execute(ctx context.Context, req protocol.Request) protocol.Response {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: request queue: %v", ErrIO, err)))
	}
	defer p.sem.Release(1)

	class := Classify(req.Query)
	p.logger.Debug("dispatching query", zap.Int64("txn", req.TransactionId), zap.String("class", class.String()))

	switch class {
	case TransactionBegin:
		return p.handleBegin(req)
	case TransactionCommit:
		return p.handleCommit(req)
	case TransactionAbort:
		return p.handleAbort(req)
	case Dml:
		return p.handleDml(req)
	case Ddl:
		return p.handleDdl(req)
	default:
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: unrecognized statement", ErrSyntax)))
	}
}

func (p *Processor) handleBegin(req protocol.Request) protocol.Response {
	if req.TransactionId != NoActiveTransaction {
		return protocol.NewFailure(req.TransactionId, req.Query,
			messageFor(fmt.Errorf("%w: BEGIN requires no active transaction, got %d", ErrProtocol, req.TransactionId)))
	}
	tx := p.ccm.BeginTransaction()
	if err := p.log.Append(&logrecord.Entry{TxnID: tx, Op: logrecord.OpBegin}); err != nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: %v", ErrIO, err)))
	}
	return protocol.NewSuccess(int64(tx), req.Query, nil)
}

func (p *Processor) handleCommit(req protocol.Request) protocol.Response {
	tx := primitives.TransactionID(req.TransactionId)
	if req.TransactionId == NoActiveTransaction || !p.ccm.IsTransactionActive(tx) {
		return protocol.NewFailure(req.TransactionId, req.Query,
			messageFor(fmt.Errorf("%w: COMMIT with no active transaction", ErrProtocol)))
	}
	if !p.ccm.CommitTransaction(tx) {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: commit validation failed", ErrConflictAborted)))
	}
	if err := p.log.Append(&logrecord.Entry{TxnID: tx, Op: logrecord.OpCommit}); err != nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: %v", ErrIO, err)))
	}
	return protocol.NewSuccess(req.TransactionId, req.Query, nil)
}

func (p *Processor) handleAbort(req protocol.Request) protocol.Response {
	tx := primitives.TransactionID(req.TransactionId)
	if req.TransactionId == NoActiveTransaction || !p.ccm.IsTransactionActive(tx) {
		return protocol.NewFailure(req.TransactionId, req.Query,
			messageFor(fmt.Errorf("%w: ABORT with no active transaction", ErrProtocol)))
	}
	if err := p.recovery.UndoTransaction(tx); err != nil {
		p.logger.Error("undo failed", zap.Int64("txn", req.TransactionId), zap.Error(err))
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: %v", ErrIO, err)))
	}
	p.ccm.AbortTransaction(tx)
	if err := p.log.Append(&logrecord.Entry{TxnID: tx, Op: logrecord.OpAbort}); err != nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: %v", ErrIO, err)))
	}
	return protocol.NewSuccess(req.TransactionId, req.Query, nil)
}

func (p *Processor) handleDml(req protocol.Request) protocol.Response {
	tx := primitives.TransactionID(req.TransactionId)
	if req.TransactionId == NoActiveTransaction || !p.ccm.IsTransactionActive(tx) {
		return protocol.NewFailure(req.TransactionId, req.Query,
			messageFor(fmt.Errorf("%w: DML requires an active transaction", ErrProtocol)))
	}

	query, err := sql.Parse(req.Query)
	if err != nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: %v", ErrSyntax, err)))
	}
	plan, err := p.optimizer.Optimize(query)
	if err != nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(err))
	}

	ex := &executor{eng: p.eng, ccm: p.ccm, log: p.log, tx: tx, logger: p.logger}
	rows, err := ex.eval(plan)
	if err != nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(err))
	}
	return protocol.NewSuccess(req.TransactionId, req.Query, rows)
}

// handleDdl bootstraps a table via CREATE TABLE. Schema is immutable once
// written (§3), so this is a non-transactional statement: it does not touch
// the CCM or the WAL and runs outside any transaction_id the caller passed.
func (p *Processor) handleDdl(req protocol.Request) protocol.Response {
	if p.catalog == nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(fmt.Errorf("%w: DDL is not enabled on this server", ErrSchema)))
	}
	if err := p.catalog.CreateTable(req.Query); err != nil {
		return protocol.NewFailure(req.TransactionId, req.Query, messageFor(err))
	}
	return protocol.NewSuccess(req.TransactionId, req.Query, nil)
}

// DispatchCompensating implements recovery.Dispatcher: it evaluates one
// compensating statement as a non-transactional side effect, bypassing both
// CCM validation and WAL logging, per the re-entrant Abort path in §4.F.
func (p *Processor) DispatchCompensating(sqlText string) error {
	query, err := sql.Parse(sqlText)
	if err != nil {
		return fmt.Errorf("processor: parse compensating statement: %w", err)
	}
	plan, err := p.optimizer.Optimize(query)
	if err != nil {
		return fmt.Errorf("processor: plan compensating statement: %w", err)
	}
	ex := &executor{eng: p.eng, bypassValidation: true, logger: p.logger}
	_, err = ex.eval(plan)
	return err
}

// waitBackoff is the cooperative retry interval used while validate_object
// reports Waiting under 2PL, per §5's single-threaded back-off note.
const waitBackoff = 2 * time.Millisecond

// maxWaitAttempts bounds the cooperative retry loop so a permanently
// deadlocked request cannot spin forever; in practice 2PL's own deadlock
// detector resolves a cycle long before this is exhausted.
const maxWaitAttempts = 2000
