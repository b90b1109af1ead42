package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can react without inspecting
// error strings.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindNotFound: the paper lookup returned no data for the identifier.
	KindNotFound
	// KindTransientNetwork: a rate-limited or unreachable external call that
	// stayed failed after local retries.
	KindTransientNetwork
	// KindPermanentExternal: an external collaborator (document parser,
	// container runtime) is unavailable.
	KindPermanentExternal
	// KindEmptyInput: the paper has neither a usable title nor abstract.
	KindEmptyInput
	// KindInvalidInput: a malformed paper identifier or request.
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindTransientNetwork:
		return "transient network"
	case KindPermanentExternal:
		return "permanent external"
	case KindEmptyInput:
		return "empty input"
	case KindInvalidInput:
		return "invalid input"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrNotFound          = errors.New("not found")
	ErrTransientNetwork  = errors.New("transient network failure")
	ErrPermanentExternal = errors.New("external collaborator unavailable")
	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidInput      = errors.New("invalid input")
)

// Error carries a kind, the failing operation, and the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds an *Error. err may be nil.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == sentinel(e.Kind)
}

func sentinel(k ErrorKind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindTransientNetwork:
		return ErrTransientNetwork
	case KindPermanentExternal:
		return ErrPermanentExternal
	case KindEmptyInput:
		return ErrEmptyInput
	case KindInvalidInput:
		return ErrInvalidInput
	default:
		return nil
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
