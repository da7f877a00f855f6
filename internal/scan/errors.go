package scan

import "errors"

// Error kinds for scan failures. All are operator-facing client errors:
// a garbled QR code or a stray checkout is an expected front-desk
// mistake, not a server fault.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
)

// Error is a typed, client-facing scan failure.
type Error struct {
	Status  int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrValidation reports malformed scan input.
func ErrValidation(msg string) error {
	return &Error{Status: 400, Kind: KindValidation, Message: msg}
}

// ErrNotFound reports an access code matching no subject.
func ErrNotFound(msg string) error {
	return &Error{Status: 400, Kind: KindNotFound, Message: msg}
}

// ErrConflict reports a checkout with no open ledger entry.
func ErrConflict(msg string) error {
	return &Error{Status: 400, Kind: KindConflict, Message: msg}
}

// HTTPStatus maps an error to its response status; unexpected errors are 500.
func HTTPStatus(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return 500
}

// KindOf returns the error kind, or "" for untyped errors.
func KindOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
