package storage

import (
	"errors"
	"math"
)

// Sentinel errors matching the error kinds in the system's error handling
// design (§7): SchemaError, CorruptionError, IoError.
var (
	ErrSchemaMismatch = errors.New("storage: schema mismatch")
	ErrCorruption     = errors.New("storage: corrupted row")
	ErrIO             = errors.New("storage: io failure")
	ErrTableNotFound  = errors.New("storage: table not found")
	ErrColumnNotFound = errors.New("storage: column not found")
	ErrNoSpace        = errors.New("storage: block has insufficient space")
)

func float32bits(f float32) uint32   { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }
