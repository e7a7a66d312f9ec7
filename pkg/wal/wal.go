// Package wal implements the Failure Recovery Manager's write-ahead log:
// durable append, the buffered flush policy, and periodic checkpointing
// (§4.C). Undo/rollback lives in pkg/recovery, which replays entries this
// package has durably recorded.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mdbms/pkg/engine"
	"mdbms/pkg/logrecord"
	"mdbms/pkg/primitives"
)

// FlushThreshold is the in-memory log buffer entry count that forces a
// flush to disk for data operations and Begin entries.
const FlushThreshold = 100

// CheckpointEveryNCommits triggers save_checkpoint after this many Commit
// entries have been appended.
const CheckpointEveryNCommits = 10

// Manager owns the single log file for one server instance. The WAL is
// single-writer: only Manager appends to the file, serialized by mu.
type Manager struct {
	mu              sync.Mutex
	path            string
	file            *os.File
	buffer          []*logrecord.Entry
	nextLSN         uint64
	commitCount     int
	checkpointEvery int

	engine *engine.Engine
	logger *zap.Logger
}

// New opens (creating if needed) the log file at path, e.g. logs/mDBMS.log.
func New(path string, eng *engine.Engine, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("wal: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{path: path, file: f, engine: eng, logger: logger, checkpointEvery: CheckpointEveryNCommits}
	lsn, err := m.recoverHighestLSN()
	if err != nil {
		f.Close()
		return nil, err
	}
	m.nextLSN = lsn
	return m, nil
}

// SetCheckpointInterval overrides how many Commits elapse between automatic
// checkpoints (default CheckpointEveryNCommits). A non-positive value is
// ignored, leaving the previous interval in effect.
func (m *Manager) SetCheckpointInterval(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.checkpointEvery = n
	m.mu.Unlock()
}

func (m *Manager) recoverHighestLSN() (uint64, error) {
	entries, err := m.readAll()
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, e := range entries {
		if uint64(e.LSN) > max {
			max = uint64(e.LSN)
		}
	}
	return max, nil
}

// nextSeq mints the next LSN.
func (m *Manager) nextSeq() primitives.LSN {
	return primitives.LSN(atomic.AddUint64(&m.nextLSN, 1))
}

// Append records one entry per the WAL policy: data ops and Begin go to the
// buffer and flush at FlushThreshold; Commit/Abort force an immediate
// flush; every CheckpointEveryNCommits-th Commit additionally checkpoints.
func (m *Manager) Append(entry *logrecord.Entry) error {
	m.mu.Lock()
	entry.LSN = m.nextSeq()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	m.buffer = append(m.buffer, entry)

	forceFlush := entry.Op == logrecord.OpCommit || entry.Op == logrecord.OpAbort
	shouldCheckpoint := false
	if entry.Op == logrecord.OpCommit {
		m.commitCount++
		if m.commitCount%m.checkpointEvery == 0 {
			shouldCheckpoint = true
		}
	}
	needFlush := forceFlush || len(m.buffer) >= FlushThreshold
	m.mu.Unlock()

	if needFlush {
		if err := m.Flush(); err != nil {
			return err
		}
	}
	if shouldCheckpoint {
		if err := m.SaveCheckpoint(); err != nil {
			return err
		}
	}
	return nil
}

// Flush durably writes the current buffer to disk. On failure the
// un-flushed batch is re-inserted at the front of the buffer so no entry is
// lost, and the error is returned for the caller to propagate.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Manager) flushLocked() error {
	if len(m.buffer) == 0 {
		return nil
	}
	batch := m.buffer
	m.buffer = nil

	w := bufio.NewWriter(m.file)
	for _, e := range batch {
		line, err := e.Serialize()
		if err != nil {
			m.buffer = append(batch, m.buffer...)
			return fmt.Errorf("wal: serialize entry: %w", err)
		}
		if _, err := w.WriteString(line + "\n"); err != nil {
			m.buffer = append(batch, m.buffer...)
			return fmt.Errorf("wal: write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		m.buffer = append(batch, m.buffer...)
		return fmt.Errorf("wal: flush: %w", err)
	}
	if err := m.file.Sync(); err != nil {
		m.buffer = append(batch, m.buffer...)
		return fmt.Errorf("wal: fsync: %w", err)
	}
	return nil
}

// SaveCheckpoint implements the five-step checkpoint procedure: flush the
// log buffer, compute active transactions by replay, write every dirty
// buffer-pool page to disk, clear the dirty set, and append a Checkpoint
// entry.
func (m *Manager) SaveCheckpoint() error {
	if err := m.Flush(); err != nil {
		return err
	}

	active, err := m.activeTransactions()
	if err != nil {
		return err
	}

	if m.engine != nil {
		for _, page := range m.engine.Pool().GetDirtyPages() {
			if err := m.engine.WriteDisk(page.Table, page); err != nil {
				m.logger.Error("checkpoint: flush dirty page failed",
					zap.String("table", page.Table), zap.Int64("block", page.BlockID), zap.Error(err))
				return fmt.Errorf("wal: checkpoint flush: %w", err)
			}
		}
		m.engine.Pool().FlushDirties()
	}

	m.mu.Lock()
	entry := &logrecord.Entry{
		LSN:        m.nextSeq(),
		Timestamp:  time.Now().UTC(),
		Op:         logrecord.OpCheckpoint,
		ActiveTxns: active,
	}
	m.buffer = append(m.buffer, entry)
	err = m.flushLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.logger.Info("checkpoint complete", zap.Int("active_transactions", len(active)))
	return nil
}

// activeTransactions replays the durable log (the buffer has just been
// flushed, so the file is authoritative) and returns every transaction
// whose Begin appears without a matching Commit/Abort.
func (m *Manager) activeTransactions() ([]primitives.TransactionID, error) {
	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}
	active := make(map[primitives.TransactionID]bool)
	for _, e := range entries {
		switch e.Op {
		case logrecord.OpBegin:
			active[e.TxnID] = true
		case logrecord.OpCommit, logrecord.OpAbort:
			delete(active, e.TxnID)
		}
	}
	out := make([]primitives.TransactionID, 0, len(active))
	for id := range active {
		out = append(out, id)
	}
	return out, nil
}

// ReadAll returns every durable log entry plus whatever is currently
// buffered, in append order. A malformed line is logged and skipped rather
// than treated as fatal, per the error semantics in §7.
func (m *Manager) ReadAll() ([]*logrecord.Entry, error) {
	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	entries = append(entries, m.buffer...)
	m.mu.Unlock()
	return entries, nil
}

func (m *Manager) readAll() ([]*logrecord.Entry, error) {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: open for replay: %w", err)
	}
	defer f.Close()

	var entries []*logrecord.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry, err := logrecord.Parse(line)
		if err != nil {
			m.logger.Warn("skipping corrupt log line", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wal: scan: %w", err)
	}
	return entries, nil
}

// Close flushes any buffered entries and releases the file handle.
func (m *Manager) Close() error {
	if err := m.Flush(); err != nil {
		return err
	}
	return m.file.Close()
}
