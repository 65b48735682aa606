package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive indicates Start was called while a capture is running.
	ErrAlreadyActive = errors.New("speech capture already active")
	// ErrUnavailable matches any capture error with CodeUnavailable.
	ErrUnavailable = errors.New("speech recognition unavailable")
	// ErrInterrupted matches any capture error with CodeInterrupted.
	ErrInterrupted = errors.New("speech recognition interrupted")
)

// Code classifies unrecoverable capture failures.
type Code string

const (
	// CodeUnavailable covers missing capability, denied permission and bad credentials.
	CodeUnavailable Code = "unavailable"
	// CodeInterrupted covers stream, network and device failures mid-capture.
	CodeInterrupted Code = "interrupted"
)

// Error is reported when a capture ends without being asked to stop.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("speech %s", e.Code)
	}
	return fmt.Sprintf("speech %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Code == CodeUnavailable
	case ErrInterrupted:
		return e.Code == CodeInterrupted
	default:
		return false
	}
}

// Unavailablef builds a CodeUnavailable error.
func Unavailablef(format string, args ...any) *Error {
	return &Error{Code: CodeUnavailable, Err: fmt.Errorf(format, args...)}
}

// Interruptedf builds a CodeInterrupted error.
func Interruptedf(format string, args ...any) *Error {
	return &Error{Code: CodeInterrupted, Err: fmt.Errorf(format, args...)}
}

// classify keeps an existing capture error or wraps err under fallback.
func classify(err error, fallback Code) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Code: fallback, Err: err}
}
