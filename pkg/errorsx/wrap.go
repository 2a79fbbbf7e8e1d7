package errorsx

import (
	"errors"
	"fmt"
	"log/slog"
)

// Error is any error tagged with the stage of a call that produced it.
type Error struct {
	Reason ReasonCode
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match a bare ReasonCode.
func (e *Error) Is(target error) bool {
	rc, ok := target.(ReasonCode)
	return ok && rc == e.Reason
}

// Error makes a ReasonCode usable as an errors.Is target.
func (r ReasonCode) Error() string { return string(r) }

// Wrap tags err with reason. The first reason in a chain wins, so a storage
// failure stays store_write after the turn wraps it again.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if _, tagged := find(err); tagged {
		return err
	}
	return &Error{Reason: reason, Err: err}
}

func Newf(reason ReasonCode, format string, args ...any) error {
	return &Error{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Reason returns the first reason in err's chain, or ReasonUnknown.
func Reason(err error) ReasonCode {
	if e, ok := find(err); ok {
		return e.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return err != nil && errors.Is(err, reason)
}

// LogAttrs renders err as slog key/value pairs.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	return []any{
		slog.String("reason", string(Reason(err))),
		slog.String("error", err.Error()),
	}
}

func find(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
