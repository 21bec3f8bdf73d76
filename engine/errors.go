package engine

import "errors"

// Sentinel errors that cross the engine's public boundary.
var (
	ErrCorruptedPage           = errors.New("engine: corrupted page")
	ErrIoFailure               = errors.New("engine: io failure")
	ErrAssertionViolation      = errors.New("engine: assertion violation")
	ErrDuplicateUniqueID       = errors.New("engine: duplicate unique id")
	ErrSequenceTooLong         = errors.New("engine: sequence too long")
	ErrOverlappingSimpleAlleles = errors.New("engine: overlapping simple alleles")
	ErrRequestTerminated       = errors.New("engine: request terminated")
)

// errLeafOverflow is internal: it signals a leaf's entries no longer fit
// in its current page-run and the caller must grow, split, or deepen.
var errLeafOverflow = errors.New("engine: leaf page overflow")
