// Package logrecord defines the write-ahead log's entry sum type and its
// on-disk pipe-delimited line format (§6): one entry per line,
// LSN|Timestamp|TxnId|OpType|Table|RowIdentifier|BeforeImage|AfterImage.
package logrecord

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mdbms/pkg/primitives"
	"mdbms/pkg/storage"
)

// OpType is the tag of the log entry sum type.
type OpType string

const (
	OpBegin      OpType = "Begin"
	OpCommit     OpType = "Commit"
	OpAbort      OpType = "Abort"
	OpInsert     OpType = "Insert"
	OpUpdate     OpType = "Update"
	OpDelete     OpType = "Delete"
	OpCheckpoint OpType = "Checkpoint"
)

const nullLiteral = "NULL"

// Entry is one write-ahead log record. BeforeImage/AfterImage are nil for
// control entries (Begin/Commit/Abort); a Checkpoint entry carries its
// active-transaction snapshot in ActiveTxns instead of an image.
type Entry struct {
	LSN          primitives.LSN
	Timestamp    time.Time
	TxnID        primitives.TransactionID
	Op           OpType
	Table        string
	RowID        string
	BeforeImage  map[string]storage.Value
	AfterImage   map[string]storage.Value
	ActiveTxns   []primitives.TransactionID
}

// imageColumn mirrors the wire protocol's encoded-column shape so that log
// images and response rows share one textual convention.
type imageColumn struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func encodeImage(values map[string]storage.Value) (string, error) {
	if values == nil {
		return nullLiteral, nil
	}
	cols := make(map[string]imageColumn, len(values))
	for name, v := range values {
		cols[name] = imageColumn{Type: v.Type.String(), Value: v.AsString()}
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return "", fmt.Errorf("logrecord: encode image: %w", err)
	}
	return string(data), nil
}

func decodeImage(field string) (map[string]storage.Value, error) {
	if field == nullLiteral {
		return nil, nil
	}
	var cols map[string]imageColumn
	if err := json.Unmarshal([]byte(field), &cols); err != nil {
		return nil, fmt.Errorf("%w: decode log image: %v", storage.ErrCorruption, err)
	}
	values := make(map[string]storage.Value, len(cols))
	for name, c := range cols {
		v, err := decodeImageValue(c)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}
	return values, nil
}

func decodeImageValue(c imageColumn) (storage.Value, error) {
	t, err := storage.ParseValueType(c.Type)
	if err != nil {
		return storage.Value{}, fmt.Errorf("%w: %v", storage.ErrCorruption, err)
	}
	switch t {
	case storage.TypeNull:
		return storage.NullValue(), nil
	case storage.TypeString:
		return storage.StringValue(c.Value), nil
	case storage.TypeInt32:
		n, err := strconv.ParseInt(c.Value, 10, 32)
		if err != nil {
			return storage.Value{}, fmt.Errorf("%w: %v", storage.ErrCorruption, err)
		}
		return storage.IntValue(int32(n)), nil
	case storage.TypeFloat32:
		f, err := strconv.ParseFloat(c.Value, 32)
		if err != nil {
			return storage.Value{}, fmt.Errorf("%w: %v", storage.ErrCorruption, err)
		}
		return storage.FloatValue(float32(f)), nil
	default:
		return storage.Value{}, fmt.Errorf("%w: unknown log image type", storage.ErrCorruption)
	}
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case '|':
				b.WriteByte('|')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitEscaped splits on unescaped '|' delimiters.
func splitEscaped(line string) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		if line[i] == '\\' && i+1 < len(line) {
			cur.WriteByte(line[i])
			cur.WriteByte(line[i+1])
			i++
			continue
		}
		if line[i] == '|' {
			fields = append(fields, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(line[i])
	}
	fields = append(fields, cur.String())
	return fields
}

// Serialize renders the entry as one log line (no trailing newline).
func (e *Entry) Serialize() (string, error) {
	table := e.Table
	rowID := e.RowID
	before, err := encodeImage(e.BeforeImage)
	if err != nil {
		return "", err
	}
	after, err := encodeImage(e.AfterImage)
	if err != nil {
		return "", err
	}
	if e.Op == OpCheckpoint {
		ids := make([]string, len(e.ActiveTxns))
		for i, id := range e.ActiveTxns {
			ids[i] = strconv.FormatInt(int64(id), 10)
		}
		data, _ := json.Marshal(ids)
		after = string(data)
	}
	if table == "" {
		table = nullLiteral
	}
	if rowID == "" {
		rowID = nullLiteral
	}

	fields := []string{
		strconv.FormatUint(uint64(e.LSN), 10),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(int64(e.TxnID), 10),
		string(e.Op),
		table,
		rowID,
		before,
		after,
	}
	for i, f := range fields {
		fields[i] = escape(f)
	}
	return strings.Join(fields, "|"), nil
}

// Parse reverses Serialize. A malformed line is reported as a corruption
// error; callers (the FRM's log reader) treat a single bad line as
// skippable, not fatal.
func Parse(line string) (*Entry, error) {
	fields := splitEscaped(line)
	if len(fields) != 8 {
		return nil, fmt.Errorf("%w: log line has %d fields, want 8", storage.ErrCorruption, len(fields))
	}
	for i, f := range fields {
		fields[i] = unescape(f)
	}

	lsn, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lsn: %v", storage.ErrCorruption, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", storage.ErrCorruption, err)
	}
	txnID, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: txn id: %v", storage.ErrCorruption, err)
	}

	entry := &Entry{
		LSN:       primitives.LSN(lsn),
		Timestamp: ts,
		TxnID:     primitives.TransactionID(txnID),
		Op:        OpType(fields[3]),
	}
	if fields[4] != nullLiteral {
		entry.Table = fields[4]
	}
	if fields[5] != nullLiteral {
		entry.RowID = fields[5]
	}

	if entry.Op == OpCheckpoint {
		var ids []string
		if fields[7] != nullLiteral {
			if err := json.Unmarshal([]byte(fields[7]), &ids); err != nil {
				return nil, fmt.Errorf("%w: checkpoint active list: %v", storage.ErrCorruption, err)
			}
		}
		for _, s := range ids {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: checkpoint txn id: %v", storage.ErrCorruption, err)
			}
			entry.ActiveTxns = append(entry.ActiveTxns, primitives.TransactionID(n))
		}
		return entry, nil
	}

	before, err := decodeImage(fields[6])
	if err != nil {
		return nil, err
	}
	after, err := decodeImage(fields[7])
	if err != nil {
		return nil, err
	}
	entry.BeforeImage = before
	entry.AfterImage = after
	return entry, nil
}

// IsDataOp reports whether this entry mutates a row (insert/update/delete),
// as opposed to a control entry (begin/commit/abort/checkpoint).
func (e *Entry) IsDataOp() bool {
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}
