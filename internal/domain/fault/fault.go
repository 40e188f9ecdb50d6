// Package fault defines the error taxonomy shared by every layer of the engine.
//
// Callers branch on kinds with errors.Is (e.g. errors.Is(err, fault.ErrConflict))
// and recover structured detail with errors.As into *Error.
package fault

import (
	"errors"
	"strings"
)

// Sentinel kinds.
var (
	// ErrValidation marks a malformed or out-of-range payload. Resubmitting
	// corrected data recovers.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown team, evaluator or assignment pair.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate release or a write after release.
	ErrConflict = errors.New("conflict")
	// ErrState marks an operation the current lifecycle state does not allow,
	// such as releasing while teams are incomplete.
	ErrState = errors.New("state error")
	// ErrStorage marks a transient persistence failure.
	ErrStorage = errors.New("storage error")
	// ErrPermission marks a caller whose role does not allow the operation.
	ErrPermission = errors.New("permission denied")
)

// Error carries the failing operation, its kind and optional subjects
// (criterion names, team ids) for callers that need more than a message.
type Error struct {
	Op       string
	Kind     error
	Subjects []string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Subjects) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Subjects, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports a match against the kind so errors.Is(err, ErrConflict) works
// without the kind appearing in the wrapped chain.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(op string, kind error, msg string, subjects ...string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg, Subjects: subjects}
}

// WrapKind attaches a kind to an underlying cause.
func WrapKind(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap annotates err with op, keeping its kind when err already carries one.
// Errors without a kind become storage errors, since everything below the
// service that is not already classified is a persistence failure.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		inner := fe.Op
		if inner != "" {
			inner = op + ": " + inner
		} else {
			inner = op
		}
		return &Error{Op: inner, Kind: fe.Kind, Subjects: fe.Subjects, Msg: fe.Msg, Err: fe.Err}
	}
	return &Error{Op: op, Kind: ErrStorage, Err: err}
}

// KindOf returns the sentinel kind of err, or nil when it has none.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrState, ErrStorage, ErrPermission} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// SubjectsOf returns the subjects recorded on the outermost *Error in err.
func SubjectsOf(err error) []string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Subjects
	}
	return nil
}

// Label returns a short, stable name for the kind of err, suitable for
// metric labels and wire codes.
func Label(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation_error"
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	case ErrState:
		return "state_error"
	case ErrStorage:
		return "storage_error"
	case ErrPermission:
		return "permission_denied"
	}
	return "internal_error"
}
