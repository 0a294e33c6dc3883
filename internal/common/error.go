package common

import "errors"

// Kind tags a domain error with the class the boundary maps to a transport
// response. Layers below the boundary never see transport concepts.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindConflict
	KindNotFound
	KindInvalidArgument
)

// String returns a short, log-friendly name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// Error is the tagged domain error. A subtype points at its parent so that
// errors.Is(ErrTokenExpired, ErrorUnauthorized) holds.
type Error struct {
	kind   Kind
	msg    string
	parent error
}

// NewError creates a domain error of the given kind. parent may be nil.
func NewError(kind Kind, msg string, parent error) *Error {
	return &Error{kind: kind, msg: msg, parent: parent}
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the parent sentinel.
func (e *Error) Unwrap() error { return e.parent }

// Kind reports the class of the error.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the kind of the first domain error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.kind
	}
	return KindInternal
}
