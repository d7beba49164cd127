package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure. Transport layers map kinds to status
// codes through a single table; nothing anywhere matches on message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation reports malformed input, caught before any mutation.
	KindValidation
	// KindNotFound reports a referenced entity that does not exist.
	KindNotFound
	// KindConflict reports a state or uniqueness violation.
	KindConflict
	// KindPermission reports a caller lacking the required role or capability.
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Error is a typed engine error carrying a human-readable reason. Permission
// and conflict failures propagate directly to the acting user, so the message
// must read well on its own.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error of the same Kind, so callers can test
// errors.Is(err, domain.ErrConflict) without caring about the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrValidation = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict   = &Error{Kind: KindConflict, Message: "conflict"}
	ErrPermission = &Error{Kind: KindPermission, Message: "permission denied"}
)

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Permissionf(format string, args ...any) *Error {
	return &Error{Kind: KindPermission, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
