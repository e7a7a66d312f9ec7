package processor

import (
	"errors"
	"fmt"

	"mdbms/pkg/storage"
)

// Error kinds (§7), each surfaced to the client as the response's Message
// field with Success=false. The processor is the single place that
// classifies an internal failure into one of these, since every other
// package reports plain sentinel errors scoped to its own concern.
var (
	ErrSyntax          = errors.New("SyntaxError")
	ErrSchema          = errors.New("SchemaError")
	ErrProtocol        = errors.New("ProtocolError")
	ErrConflictAborted = errors.New("ConflictAborted")
	ErrIO              = errors.New("IoError")
	ErrCorruption      = errors.New("CorruptionError")
)

// messageFor renders err as the wire-level Message string, translating the
// lower layers' sentinel errors into one of the six kinds per the error
// handling design. Anything unrecognized is reported as IoError: it is
// never silently swallowed, and it is never mistaken for a statement-level
// syntax/schema problem the client could retry past.
func messageFor(err error) string {
	switch {
	case errors.Is(err, storage.ErrSchemaMismatch), errors.Is(err, storage.ErrColumnNotFound), errors.Is(err, storage.ErrTableNotFound):
		return fmt.Sprintf("%s: %v", ErrSchema, err)
	case errors.Is(err, storage.ErrCorruption):
		return fmt.Sprintf("%s: %v", ErrCorruption, err)
	case errors.Is(err, storage.ErrIO), errors.Is(err, storage.ErrNoSpace):
		return fmt.Sprintf("%s: %v", ErrIO, err)
	case errors.Is(err, ErrSyntax), errors.Is(err, ErrSchema), errors.Is(err, ErrProtocol),
		errors.Is(err, ErrConflictAborted), errors.Is(err, ErrIO), errors.Is(err, ErrCorruption):
		return err.Error()
	default:
		return fmt.Sprintf("%s: %v", ErrIO, err)
	}
}
