package upload

import (
	"errors"
	"fmt"
)

// ErrFailed matches every upload error.
var ErrFailed = errors.New("upload failed")

// Kind classifies upload failures.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindServer       Kind = "server"
	KindSizeLimit    Kind = "size-limit"
	KindUnauthorized Kind = "unauthorized"
)

// Error is returned for every failed upload.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload %s error (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("upload %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrFailed }

// KindOf returns the failure kind of err, or "" when err is not an upload error.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}
