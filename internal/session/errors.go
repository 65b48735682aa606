package session

import (
	"errors"
	"fmt"

	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/speech"
)

// Error taxonomy surfaced to the user. Every controller error wraps one of these.
var (
	ErrCaptureUnavailable = errors.New("capture unavailable")
	ErrCaptureInterrupted = errors.New("capture interrupted")
	ErrUploadFailed       = errors.New("upload failed")
	ErrPersistenceFailed  = errors.New("persistence failed")
	ErrValidationFailed   = errors.New("validation failed")
)

var (
	ErrNotOpen     = errors.New("no interview is open")
	ErrAlreadyOpen = errors.New("an interview is already open")
	ErrClosed      = errors.New("session closed")
	ErrSubmitting  = errors.New("submission in progress")
	ErrCompleted   = errors.New("interview already completed")
	ErrOutOfRange  = fmt.Errorf("%w: no such question", ErrValidationFailed)
	ErrEmptyAnswer = fmt.Errorf("%w: answer is empty", ErrValidationFailed)
	ErrNoRecording = fmt.Errorf("%w: full-session recording is required before finishing", ErrValidationFailed)
	ErrIDRequired  = fmt.Errorf("%w: interview id is required", ErrValidationFailed)

	// ErrMicrophoneHeld rejects a question recording while the session recording runs.
	ErrMicrophoneHeld = errors.New("the session recording holds the microphone; stop it with /session-record to record this question")
)

// errDiscarded marks a result that arrived after Close.
var errDiscarded = errors.New("result discarded after close")

// ValidationError reports how many questions still lack an answer.
type ValidationError struct {
	Unanswered int
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d question(s) unanswered", ErrValidationFailed, e.Unanswered)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// captureError maps engine and recorder errors into the taxonomy.
func captureError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, speech.ErrAlreadyActive):
		return err
	case errors.Is(err, speech.ErrUnavailable),
		errors.Is(err, media.ErrDeviceUnavailable),
		errors.Is(err, media.ErrBusy):
		return fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrCaptureInterrupted, err)
	}
}

// IsRetryable reports whether repeating the same operation can succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUploadFailed) || errors.Is(err, ErrPersistenceFailed)
}
