package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidState          = errors.New("invalid state")
	ErrDeadlineExceeded      = errors.New("deadline exceeded")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyReleased       = errors.New("already released")
	ErrInvalidInput          = errors.New("invalid input")
)

// ProtocolError carries the rejected operation and the offending field so a
// caller can act on it without re-reading state.
type ProtocolError struct {
	Op       string
	Field    string
	Current  string
	Required string
	Err      error
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s", e.Field)
		if e.Current != "" {
			fmt.Fprintf(&b, " is %s", e.Current)
		}
		if e.Required != "" {
			fmt.Fprintf(&b, ", requires %s", e.Required)
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func Reject(op string, err error, field, current, required string) error {
	return &ProtocolError{Op: op, Field: field, Current: current, Required: required, Err: err}
}

// Code is the stable, machine readable name of err's kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrAlreadyReleased):
		return "ALREADY_RELEASED"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrDeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrInsufficientAllowance):
		return "INSUFFICIENT_ALLOWANCE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	default:
		return "INTERNAL"
	}
}
