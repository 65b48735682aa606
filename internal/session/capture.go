package session

import (
	"context"
	"strings"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/speech"
	"github.com/rbright/rehearse/internal/transcript"
)

// SetDraft replaces the current question's draft with typed text.
func (c *Controller) SetDraft(text string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writableLocked(); err != nil {
		return err
	}
	c.slots[c.index].draft = text
	return c.applyLocked(c.index, fsm.EventEdit)
}

// AppendDraft appends typed text to the current question's draft.
func (c *Controller) AppendDraft(text string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writableLocked(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s := &c.slots[c.index]
	s.draft = transcript.Append(s.draft, text)
	return c.applyLocked(c.index, fsm.EventEdit)
}

// StartSpeech begins live transcription into the current question.
func (c *Controller) StartSpeech(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.startSpeech(ctx)
}

// StopSpeech ends live transcription after flushing final segments.
func (c *Controller) StopSpeech(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	err := c.liveLocked()
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return c.stopSpeech(ctx)
}

// ToggleSpeech starts or stops live transcription.
func (c *Controller) ToggleSpeech(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	speaking := c.speaking
	c.mu.RUnlock()
	if speaking {
		return c.stopSpeech(ctx)
	}
	return c.startSpeech(ctx)
}

func (c *Controller) startSpeech(ctx context.Context) error {
	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.speaking {
		c.mu.Unlock()
		return speech.ErrAlreadyActive
	}
	c.speechGen++
	gen := c.speechGen
	idx := c.index
	c.speaking = true
	c.mu.Unlock()

	if err := c.speech.Start(ctx, c.speechHandler(idx, gen)); err != nil {
		err = captureError(err)
		c.mu.Lock()
		if c.speechGen == gen {
			c.speaking = false
		}
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("speech input unavailable; continue by typing", "question_index", idx, "error", err.Error())
		return err
	}
	c.logger.Debug("speech started", "question_index", idx)
	return nil
}

// stopSpeech stops the engine and drops anything it delivers afterwards. Caller holds opMu.
func (c *Controller) stopSpeech(ctx context.Context) error {
	err := c.speech.Stop(ctx)

	c.mu.Lock()
	c.speechGen++
	c.speaking = false
	if c.index < len(c.slots) {
		c.slots[c.index].interim = ""
	}
	c.mu.Unlock()

	if err != nil {
		err = captureError(err)
		c.setErr(err)
		return err
	}
	return nil
}

// speechHandler routes engine events into question idx for capture gen.
func (c *Controller) speechHandler(idx int, gen uint64) speech.Handler {
	live := func() bool {
		return !c.closed && c.speaking && c.speechGen == gen && idx < len(c.slots)
	}
	return speech.HandlerFuncs{
		Interim: func(text string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if live() {
				c.slots[idx].interim = text
			}
		},
		Final: func(text string) {
			c.mu.Lock()
			if !live() {
				c.mu.Unlock()
				return
			}
			s := &c.slots[idx]
			s.draft = transcript.Append(s.draft, text)
			s.interim = ""
			if err := c.applyLocked(idx, fsm.EventEdit); err != nil {
				c.logger.Debug("speech edit transition", "question_index", idx, "error", err.Error())
			}
			c.mu.Unlock()
			c.observer.SpeechSegment()
		},
		End: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.speechGen != gen {
				return
			}
			c.speaking = false
			if idx < len(c.slots) {
				c.slots[idx].interim = ""
			}
			if err != nil {
				wrapped := captureError(err)
				c.lastErr = wrapped
				c.logger.Warn("speech capture ended; continue by typing", "question_index", idx, "error", wrapped.Error())
			}
		},
	}
}

// StartRecording begins a recording for the current question.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.startRecording(ctx)
}

// StopRecording ends the current question's recording and keeps its blob for upload.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	err := c.liveLocked()
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return c.stopQuestionRecording(ctx)
}

// ToggleRecording starts or stops the current question's recording.
func (c *Controller) ToggleRecording(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	mode := c.recMode
	c.mu.RUnlock()
	if mode == RecordingQuestion {
		return c.stopQuestionRecording(ctx)
	}
	return c.startRecording(ctx)
}

// DiscardRecording aborts a running recording and drops any pending blob.
func (c *Controller) DiscardRecording() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	idx := c.index
	if c.recMode == RecordingQuestion {
		idx = c.recIndex
	}
	active := c.recMode == RecordingQuestion
	c.mu.Unlock()

	if active {
		c.recorder.Release()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if active {
		c.recMode = RecordingNone
	}
	s := &c.slots[idx]
	s.blob = nil
	s.ref = nil
	s.progress = 0
	if s.state == fsm.StateSaved {
		return nil
	}
	if err := c.applyLocked(idx, fsm.EventDiscard); err != nil {
		return err
	}
	if strings.TrimSpace(s.draft) != "" {
		return c.applyLocked(idx, fsm.EventEdit)
	}
	return nil
}

func (c *Controller) startRecording(ctx context.Context) error {
	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.recMode == RecordingSession {
		c.lastErr = ErrMicrophoneHeld
		c.mu.Unlock()
		return ErrMicrophoneHeld
	}
	idx := c.index
	if _, err := fsm.Transition(c.slots[idx].state, fsm.EventRecordStart); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := c.recorder.Start(ctx); err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		err = captureError(err)
		c.setErr(err)
		c.logger.Warn("recording unavailable", "question_index", idx, "error", err.Error())
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.recorder.Release()
		return ErrClosed
	}
	c.recMode = RecordingQuestion
	c.recIndex = idx
	c.logger.Debug("question recording started", "question_index", idx)
	return c.applyLocked(idx, fsm.EventRecordStart)
}

// stopQuestionRecording settles a running question recording. Caller holds opMu.
func (c *Controller) stopQuestionRecording(ctx context.Context) error {
	c.mu.RLock()
	mode, idx := c.recMode, c.recIndex
	c.mu.RUnlock()
	if mode != RecordingQuestion {
		return nil
	}

	blob, stopErr := c.recorder.Stop(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recMode = RecordingNone
	s := &c.slots[idx]
	if blob != nil {
		s.blob = blob
		s.ref = nil
		s.progress = 0
	}

	switch {
	case blob != nil, strings.TrimSpace(s.draft) != "", s.ref != nil:
		_ = c.applyLocked(idx, fsm.EventRecordStop)
	default:
		_ = c.applyLocked(idx, fsm.EventDiscard)
	}

	if stopErr != nil {
		err := captureError(stopErr)
		c.lastErr = err
		s.err = err
		return err
	}
	if blob == nil {
		c.logger.Info("recording produced no data", "question_index", idx)
	}
	return nil
}

// StartSessionRecording begins the full-session recording.
func (c *Controller) StartSessionRecording(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := c.recorder.Start(ctx); err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		err = captureError(err)
		c.setErr(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.recorder.Release()
		return ErrClosed
	}
	c.recMode = RecordingSession
	id := c.iv.ID
	c.mu.Unlock()
	c.logger.Info("session recording started", "interview_id", id)
	return nil
}

// StopSessionRecording ends the full-session recording and keeps it for upload.
func (c *Controller) StopSessionRecording(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	err := c.liveLocked()
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return c.stopSessionRecording(ctx)
}

// stopSessionRecording settles a running session recording. Caller holds opMu.
func (c *Controller) stopSessionRecording(ctx context.Context) error {
	c.mu.RLock()
	mode := c.recMode
	c.mu.RUnlock()
	if mode != RecordingSession {
		return nil
	}

	blob, err := c.recorder.Stop(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recMode = RecordingNone
	if blob != nil {
		c.sessionBlob = blob
		c.sessionRef = nil
		c.sessionProgress = 0
	}
	if err != nil {
		err = captureError(err)
		c.lastErr = err
		return err
	}
	return nil
}
