package audio

import (
	"context"
	"log/slog"

	"github.com/rbright/rehearse/internal/media"
)

// MimeWAV is the content type of encoded recordings.
const MimeWAV = "audio/wav"

// Source is the Pulse microphone behind the recorder.
type Source struct {
	Input    string
	Fallback string
	Logger   *slog.Logger
}

// Acquire selects a device and opens a capture on it. The recorder owns the
// returned device and releases it explicitly.
func (s Source) Acquire(ctx context.Context) (media.Device, error) {
	selection, err := SelectDevice(ctx, s.Input, s.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && s.Logger != nil {
		s.Logger.Warn(selection.Warning)
	}

	capture, err := StartCapture(context.WithoutCancel(ctx), selection.Device, "rehearse recording")
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Debug("recording device acquired", "device", capture.Device().String())
	}
	return capture, nil
}

// Encode wraps captured PCM as WAV.
func (Source) Encode(frames []byte) ([]byte, string, error) {
	return EncodeWAV(frames), MimeWAV, nil
}
