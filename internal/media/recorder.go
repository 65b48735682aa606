// Package media records microphone audio into timed chunks and assembles blobs.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrDeviceUnavailable indicates the capture device could not be acquired.
	ErrDeviceUnavailable = errors.New("recording device unavailable")
	// ErrBusy indicates the device is already held by another recording.
	ErrBusy = errors.New("recording device busy")
	// ErrReleased indicates Release ran while Start was still acquiring the device.
	ErrReleased = errors.New("recording released while starting")
)

// DefaultChunk is the buffering timeslice used when none is configured.
const DefaultChunk = time.Second

// Device is an acquired capture handle.
type Device interface {
	// Frames yields captured data and is closed after Release.
	Frames() <-chan []byte
	// Release frees the hardware handle. It is safe to call more than once.
	Release() error
}

// Source acquires devices and encodes captured frames into a container.
type Source interface {
	Acquire(ctx context.Context) (Device, error)
	Encode(frames []byte) (data []byte, mimeType string, err error)
}

// Blob is one assembled recording.
type Blob struct {
	Data     []byte
	MimeType string
	Duration time.Duration
	Chunks   int
}

// Size returns the encoded byte length.
func (b *Blob) Size() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.Data))
}

// Recorder holds at most one device at a time.
type Recorder struct {
	logger *slog.Logger
	source Source
	chunk  time.Duration
	now    func() time.Time

	opMu sync.Mutex

	mu        sync.Mutex
	device    Device
	done      chan struct{}
	startedAt time.Time
	chunks    [][]byte
	pending   []byte
	level     int64

	// releases counts Release calls so a Start still acquiring can give up its device.
	releases uint64
}

// NewRecorder constructs a recorder that seals buffered data every chunk interval.
func NewRecorder(logger *slog.Logger, source Source, chunk time.Duration) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	return &Recorder{logger: logger, source: source, chunk: chunk, now: time.Now}
}

// Recording reports whether a device is currently held.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device != nil
}

// Elapsed returns the running recording duration, or zero when idle.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device == nil {
		return 0
	}
	return r.now().Sub(r.startedAt)
}

// Level returns the number of bytes captured by the running recording.
func (r *Recorder) Level() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

// Start acquires the device and begins buffering. On failure nothing is held.
func (r *Recorder) Start(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.Recording() {
		return ErrBusy
	}
	if r.source == nil {
		return fmt.Errorf("%w: no capture source configured", ErrDeviceUnavailable)
	}

	r.mu.Lock()
	gen := r.releases
	r.mu.Unlock()

	device, err := r.source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	done := make(chan struct{})
	r.mu.Lock()
	if r.releases != gen {
		r.mu.Unlock()
		if err := device.Release(); err != nil {
			r.logger.Warn("release recording device", "error", err.Error())
		}
		return ErrReleased
	}
	r.device = device
	r.done = done
	r.startedAt = r.now()
	r.chunks = nil
	r.pending = nil
	r.level = 0
	r.mu.Unlock()

	go r.loop(device.Frames(), done)
	r.logger.Debug("recording started", "chunk_ms", r.chunk.Milliseconds())
	return nil
}

// Stop releases the device and assembles buffered chunks. A recording that
// captured nothing yields a nil blob. Stopping while idle is a no-op.
func (r *Recorder) Stop(ctx context.Context) (*Blob, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	device, done, startedAt := r.device, r.done, r.startedAt
	r.mu.Unlock()
	if device == nil {
		return nil, nil
	}

	if err := device.Release(); err != nil {
		r.logger.Warn("release recording device", "error", err.Error())
	}

	select {
	case <-done:
	case <-ctx.Done():
		r.reset()
		return nil, ctx.Err()
	}

	r.mu.Lock()
	chunks := r.chunks
	r.mu.Unlock()
	r.reset()

	duration := r.now().Sub(startedAt)
	frames := bytes.Join(chunks, nil)
	if len(frames) == 0 {
		r.logger.Debug("recording stopped without data", "duration_ms", duration.Milliseconds())
		return nil, nil
	}

	data, mimeType, err := r.source.Encode(frames)
	if err != nil {
		return nil, fmt.Errorf("encode recording: %w", err)
	}

	r.logger.Debug("recording stopped", "chunks", len(chunks), "bytes", len(data), "duration_ms", duration.Milliseconds())
	return &Blob{Data: data, MimeType: mimeType, Duration: duration, Chunks: len(chunks)}, nil
}

// Release aborts the running recording and discards buffered data. A Start
// still acquiring the device frees it and returns ErrReleased.
func (r *Recorder) Release() {
	r.mu.Lock()
	r.releases++
	device, done := r.device, r.done
	r.mu.Unlock()
	if device == nil {
		return
	}

	if err := device.Release(); err != nil {
		r.logger.Warn("release recording device", "error", err.Error())
	}
	<-done
	r.reset()
	r.logger.Debug("recording released")
}

func (r *Recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device = nil
	r.done = nil
	r.chunks = nil
	r.pending = nil
	r.level = 0
}

// loop buffers frames until the device closes them.
func (r *Recorder) loop(frames <-chan []byte, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.chunk)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				r.seal()
				return
			}
			if len(frame) == 0 {
				continue
			}
			r.mu.Lock()
			r.pending = append(r.pending, frame...)
			r.level += int64(len(frame))
			r.mu.Unlock()
		case <-ticker.C:
			r.seal()
		}
	}
}

// seal closes the current timeslice when it holds data.
func (r *Recorder) seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return
	}
	r.chunks = append(r.chunks, r.pending)
	r.pending = nil
}
