// Package speech runs continuous speech capture and delivers transcript segments.
package speech

import (
	"context"
	"log/slog"
	"sync"
)

// Receiver is implemented by the engine and fed by a Recognizer.
type Receiver interface {
	OnResult(text string, final bool)
	OnError(err error)
}

// Stream is one running recognition.
type Stream interface {
	// Stop ends audio input and returns once every pending result has been
	// delivered to the Receiver.
	Stop(ctx context.Context) error
}

// Recognizer is the platform speech capability.
type Recognizer interface {
	Start(ctx context.Context, r Receiver) (Stream, error)
}

// Handler receives capture events. Callbacks must not call back into the Engine.
type Handler interface {
	OnInterim(text string)
	OnFinal(text string)
	OnEnd(err error)
}

// HandlerFuncs adapts optional functions to Handler.
type HandlerFuncs struct {
	Interim func(string)
	Final   func(string)
	End     func(error)
}

func (h HandlerFuncs) OnInterim(text string) {
	if h.Interim != nil {
		h.Interim(text)
	}
}

func (h HandlerFuncs) OnFinal(text string) {
	if h.Final != nil {
		h.Final(text)
	}
}

func (h HandlerFuncs) OnEnd(err error) {
	if h.End != nil {
		h.End(err)
	}
}

// Unavailable is the recognizer used when speech input is not configured.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Start(context.Context, Receiver) (Stream, error) {
	reason := u.Reason
	if reason == "" {
		reason = "speech input disabled"
	}
	return nil, Unavailablef("%s", reason)
}

// Engine owns at most one capture at a time.
type Engine struct {
	logger     *slog.Logger
	recognizer Recognizer

	opMu sync.Mutex

	// mu guards active and serializes callback delivery.
	mu     sync.Mutex
	gen    uint64
	active *capture
}

type capture struct {
	gen     uint64
	stream  Stream
	handler Handler
	cancel  context.CancelFunc
	finals  int
}

// NewEngine constructs an engine; a nil recognizer behaves as Unavailable.
func NewEngine(logger *slog.Logger, recognizer Recognizer) *Engine {
	if recognizer == nil {
		recognizer = Unavailable{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger, recognizer: recognizer}
}

// Active reports whether a capture is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Start begins continuous transcription and routes events to h.
func (e *Engine) Start(ctx context.Context, h Handler) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if h == nil {
		h = HandlerFuncs{}
	}

	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		return ErrAlreadyActive
	}
	e.gen++
	c := &capture{gen: e.gen, handler: h}
	e.active = c
	e.mu.Unlock()

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := e.recognizer.Start(streamCtx, &receiver{engine: e, capture: c})
	if err != nil {
		cancel()
		e.mu.Lock()
		if e.active == c {
			e.active = nil
		}
		e.mu.Unlock()
		err = classify(err, CodeUnavailable)
		e.logger.Warn("speech capture start failed", "error", err.Error())
		return err
	}

	e.mu.Lock()
	if e.active != c {
		// Failed while starting; the end event was already delivered.
		e.mu.Unlock()
		_ = stream.Stop(ctx)
		cancel()
		return nil
	}
	c.stream = stream
	c.cancel = cancel
	e.mu.Unlock()

	e.logger.Debug("speech capture started", "capture", c.gen)
	return nil
}

// Stop ends the running capture after flushing pending final segments.
// Stopping an inactive engine is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	c := e.active
	e.mu.Unlock()
	if c == nil {
		return nil
	}

	var stopErr error
	if c.stream != nil {
		stopErr = c.stream.Stop(ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if e.active != c {
		// The capture failed during flush and has already ended.
		return nil
	}
	e.active = nil

	stopErr = classify(stopErr, CodeInterrupted)
	e.logger.Debug("speech capture stopped", "capture", c.gen, "final_segments", c.finals)
	c.handler.OnEnd(stopErr)
	return stopErr
}

// fail ends the capture from inside a recognizer callback. Caller holds mu.
func (e *Engine) fail(c *capture, err error) {
	if e.active != c {
		return
	}
	e.active = nil
	err = classify(err, CodeInterrupted)
	e.logger.Warn("speech capture ended", "capture", c.gen, "error", err.Error())

	stream := c.stream
	cancel := c.cancel
	go func() {
		if stream != nil {
			_ = stream.Stop(context.Background())
		}
		if cancel != nil {
			cancel()
		}
	}()
	c.handler.OnEnd(err)
}

type receiver struct {
	engine  *Engine
	capture *capture
}

func (r *receiver) OnResult(text string, final bool) {
	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != r.capture {
		return
	}
	if final {
		r.capture.finals++
		r.capture.handler.OnFinal(text)
		return
	}
	r.capture.handler.OnInterim(text)
}

func (r *receiver) OnError(err error) {
	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail(r.capture, err)
}
