// Package protocol implements the wire format (§6): one TCP connection
// carries exactly one JSON-encoded request/response pair.
package protocol

import (
	"fmt"
	"strconv"
	"time"

	"mdbms/pkg/storage"
)

// Request is what the client writes before half-closing its write side.
type Request struct {
	TransactionId int64  `json:"TransactionId"`
	Query         string `json:"Query"`
}

// EncodedColumn is one column's wire-form value: a type tag plus its
// textual representation. type="null" with value="null" denotes SQL NULL;
// any other combination is a corruption error.
type EncodedColumn struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// EncodedRow mirrors one storage.Row on the wire.
type EncodedRow struct {
	Id      string                   `json:"Id"`
	Columns map[string]EncodedColumn `json:"Columns"`
}

// Response is what the server writes before the connection is read to EOF.
type Response struct {
	TransactionId int64        `json:"TransactionId"`
	Query         string       `json:"Query"`
	Success       bool         `json:"Success"`
	Message       string       `json:"Message"`
	ExecutedAt    string       `json:"ExecutedAt"`
	Data          []EncodedRow `json:"data"`
}

// EncodeRow converts a storage row into its wire representation.
func EncodeRow(row *storage.Row) EncodedRow {
	cols := make(map[string]EncodedColumn, len(row.Values))
	for name, v := range row.Values {
		cols[name] = EncodedColumn{Type: v.Type.String(), Value: v.AsString()}
	}
	return EncodedRow{Id: row.ID, Columns: cols}
}

// DecodeRow reverses EncodeRow, validating the null/type=value pairing.
func DecodeRow(er EncodedRow) (*storage.Row, error) {
	values := make(map[string]storage.Value, len(er.Columns))
	for name, c := range er.Columns {
		if c.Type == "null" && c.Value != "null" {
			return nil, fmt.Errorf("%w: column %s: type=null requires value=null", storage.ErrCorruption, name)
		}
		t, err := storage.ParseValueType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrCorruption, err)
		}
		switch t {
		case storage.TypeNull:
			values[name] = storage.NullValue()
		case storage.TypeString:
			values[name] = storage.StringValue(c.Value)
		case storage.TypeInt32:
			n, err := strconv.ParseInt(c.Value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: column %s: %v", storage.ErrCorruption, name, err)
			}
			values[name] = storage.IntValue(int32(n))
		case storage.TypeFloat32:
			f, err := strconv.ParseFloat(c.Value, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: column %s: %v", storage.ErrCorruption, name, err)
			}
			values[name] = storage.FloatValue(float32(f))
		}
	}
	return &storage.Row{ID: er.Id, Values: values}, nil
}

// NewSuccess builds a successful response with the given rows.
func NewSuccess(txnID int64, query string, rows []*storage.Row) Response {
	data := make([]EncodedRow, len(rows))
	for i, r := range rows {
		data[i] = EncodeRow(r)
	}
	return Response{
		TransactionId: txnID,
		Query:         query,
		Success:       true,
		Message:       "OK",
		ExecutedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Data:          data,
	}
}

// NewFailure builds a failed response carrying an error-kind message.
func NewFailure(txnID int64, query string, message string) Response {
	return Response{
		TransactionId: txnID,
		Query:         query,
		Success:       false,
		Message:       message,
		ExecutedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
}
