package model

import (
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrEncoding           = errors.New("encoding error")
	ErrNoActivityHistory  = errors.New("no activity history")
	ErrNoPreferenceVector = errors.New("no preference vector")
	ErrExternalService    = errors.New("external service error")
	ErrUserNotFound       = errors.New("user not found")
)

// Error annotates a failure with the operation and the user it was scoped to.
type Error struct {
	Op     string
	UserID string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.UserID != "" {
		msg += " user=" + e.UserID
	}
	switch {
	case e.Kind != nil && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Validation builds an ErrValidation error.
func Validation(op, userID, format string, args ...any) error {
	return &Error{Op: op, UserID: userID, Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}

// Encoding builds an ErrEncoding error.
func Encoding(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrEncoding, Err: fmt.Errorf(format, args...)}
}

// External classifies err as an ErrExternalService failure unless it already
// carries a kind from this package. A nil err yields nil.
func External(op, userID string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return &Error{Op: op, UserID: userID, Err: err}
	}
	return &Error{Op: op, UserID: userID, Kind: ErrExternalService, Err: err}
}

// Wrap annotates err with op and user, keeping whatever kind it already has.
func Wrap(op, userID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, UserID: userID, Err: err}
}

// KindOf returns the first known kind carried by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrEncoding,
		ErrNoActivityHistory,
		ErrNoPreferenceVector,
		ErrUserNotFound,
		ErrExternalService,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
