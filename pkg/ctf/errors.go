package ctf

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidDeclaration is returned when a declaration is built with an
	// impossible shape (zero width, bad alignment, unknown base).
	ErrInvalidDeclaration = errors.New("invalid declaration")

	// ErrDuplicateField is returned when a struct field or variant branch name
	// is added twice.
	ErrDuplicateField = errors.New("duplicate field name")

	// ErrUnresolvedTag is returned when a variant's tag does not name an enum
	// definition decoded earlier in an enclosing scope.
	ErrUnresolvedTag = errors.New("variant tag is not defined in scope")

	// ErrUnknownLabel is returned when a variant's tag value has no label, or
	// its label names no branch.
	ErrUnknownLabel = errors.New("variant tag selects no branch")

	// ErrUnresolvedLength is returned when a sequence's length field does not
	// name an integer definition decoded earlier in an enclosing scope.
	ErrUnresolvedLength = errors.New("sequence length is not defined in scope")

	// ErrSequenceTooLong is returned when a decoded sequence length exceeds
	// MaxSequenceLength.
	ErrSequenceTooLong = errors.New("sequence length exceeds limit")
)
