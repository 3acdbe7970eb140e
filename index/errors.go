package index

import "github.com/pkg/errors"

// Error classifications. Every error returned by this module's index and
// partitioning operations matches exactly one of these with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOutOfRange      = errors.New("out of range")
)

// Error kinds, each classified under ErrInvalidArgument or ErrOutOfRange.
var (
	ErrRankMismatchRequiresBroadcast      = newKind("rank mismatch requires broadcast", ErrInvalidArgument)
	ErrDimensionIntervalMismatch          = newKind("dimension interval mismatch", ErrInvalidArgument)
	ErrUnmatchedNonBroadcastableDimension = newKind("unmatched dimension is not broadcastable", ErrInvalidArgument)
	ErrDuplicateLabel                     = newKind("duplicate dimension label", ErrInvalidArgument)
	ErrUnboundedGridInputDimension        = newKind("unbounded grid input dimension", ErrInvalidArgument)
	ErrArithmeticOverflow                 = newKind("integer overflow", ErrInvalidArgument)
	ErrIndexArrayOutOfRange               = newKind("index array value out of range", ErrOutOfRange)
)

type kindError struct {
	kind  string
	class error
}

func newKind(kind string, class error) error {
	return &kindError{kind: kind, class: class}
}

func (e *kindError) Error() string { return e.kind }

func (e *kindError) Unwrap() error { return e.class }
