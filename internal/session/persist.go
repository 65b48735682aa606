package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/upload"
)

// Save persists the current question, uploading a pending recording first.
// It is also the retry affordance after a failed save or upload.
func (c *Controller) Save(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	idx := c.index
	c.mu.Unlock()

	c.quiesce(ctx)
	return c.persist(ctx, idx, true)
}

// SavePending stops capture and saves every question whose draft differs from
// its saved answer. It returns how many answers were saved; failures are joined.
func (c *Controller) SavePending(ctx context.Context) (int, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if err := c.liveLocked(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	if c.phase == fsm.PhaseCompleted {
		c.mu.Unlock()
		return 0, nil
	}
	total := len(c.slots)
	c.mu.Unlock()

	c.quiesce(ctx)

	saved := 0
	var errs []error
	for idx := 0; idx < total; idx++ {
		c.mu.RLock()
		dirty := c.dirtyLocked(idx)
		c.mu.RUnlock()
		if !dirty {
			continue
		}
		if err := c.persist(ctx, idx, false); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// dirtyLocked reports whether question idx holds an unsaved answer. Caller holds mu.
func (c *Controller) dirtyLocked(idx int) bool {
	if c.closed || idx < 0 || idx >= len(c.slots) {
		return false
	}
	s := c.slots[idx]
	draft := strings.TrimSpace(s.draft)
	if draft == "" {
		return false
	}
	return draft != strings.TrimSpace(c.iv.Questions[idx].Answer) || s.blob != nil || s.ref != nil
}

// Next moves to the following question.
func (c *Controller) Next(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.goTo(ctx, c.currentIndex()+1)
}

// Previous moves to the preceding question.
func (c *Controller) Previous(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.goTo(ctx, c.currentIndex()-1)
}

// GoTo moves to question target (zero-based).
func (c *Controller) GoTo(ctx context.Context, target int) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.goTo(ctx, target)
}

func (c *Controller) currentIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

// goTo stops capture, saves a dirty answer and then changes the index.
// An upload failure blocks the move; a save failure is returned after it.
func (c *Controller) goTo(ctx context.Context, target int) error {
	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if target < 0 || target >= len(c.slots) {
		total := len(c.slots)
		c.mu.Unlock()
		return fmt.Errorf("%w: question %d of %d", ErrOutOfRange, target+1, total)
	}
	idx := c.index
	c.mu.Unlock()
	if target == idx {
		return nil
	}

	c.quiesce(ctx)

	saveErr := c.persist(ctx, idx, false)
	if errors.Is(saveErr, ErrUploadFailed) {
		return saveErr
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.index = target
	c.mu.Unlock()

	c.logger.Debug("question changed", "from", idx, "to", target)
	return saveErr
}

// Submit saves the current answer, then advances or finishes on the last question.
func (c *Controller) Submit(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	idx := c.index
	last := idx == len(c.slots)-1
	c.mu.Unlock()

	c.quiesce(ctx)

	c.mu.RLock()
	draft := c.slots[idx].draft
	c.mu.RUnlock()
	if strings.TrimSpace(draft) == "" {
		return ErrEmptyAnswer
	}

	if err := c.persist(ctx, idx, true); err != nil {
		return err
	}
	if !last {
		c.mu.Lock()
		if !c.closed {
			c.index = idx + 1
		}
		c.mu.Unlock()
		return nil
	}
	return c.finalize(ctx)
}

// Finalize completes the interview once every question is answered, the
// current answer is saved and the full-session recording is uploaded.
func (c *Controller) Finalize(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.finalize(ctx)
}

func (c *Controller) finalize(ctx context.Context) error {
	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := c.stopSpeech(ctx); err != nil {
		c.logger.Warn("speech stop before finish", "error", err.Error())
	}

	c.mu.Lock()
	unanswered := c.unansweredLocked()
	if unanswered > 0 {
		c.mu.Unlock()
		return &ValidationError{Unanswered: unanswered}
	}
	if err := c.phaseLocked(fsm.PhaseEventSubmit); err != nil {
		c.mu.Unlock()
		return err
	}
	id := c.iv.ID
	idx := c.index
	total := len(c.slots)
	c.mu.Unlock()

	if err := c.stopQuestionRecording(ctx); err != nil {
		c.logger.Warn("recording stop before finish", "error", err.Error())
	}

	if err := c.persist(ctx, idx, false); err != nil {
		return c.abortFinalize(err)
	}
	for j := 0; j < total; j++ {
		if j == idx {
			continue
		}
		if err := c.persist(ctx, j, false); err != nil {
			return c.abortFinalize(err)
		}
	}

	if c.isClosed() {
		return nil
	}
	ref, err := c.sessionRecording(ctx, id)
	if errors.Is(err, errDiscarded) {
		return nil
	}
	if err != nil {
		return c.abortFinalize(err)
	}
	recordingURL := ""
	if ref != nil {
		recordingURL = ref.URL
	}

	updated, err := c.store.Complete(ctx, id, recordingURL)
	if err != nil {
		var counted interface{ Unanswered() int }
		if errors.As(err, &counted) {
			return c.abortFinalize(&ValidationError{Unanswered: counted.Unanswered(), Err: err})
		}
		return c.abortFinalize(fmt.Errorf("%w: complete interview: %w", ErrPersistenceFailed, err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.replaceSnapshotLocked(updated)
	if err := c.phaseLocked(fsm.PhaseEventComplete); err != nil {
		c.mu.Unlock()
		return err
	}
	c.lastErr = nil
	questions := len(c.slots)
	c.mu.Unlock()

	c.observer.FinalizeCompleted(nil)
	c.logger.Info("interview completed", "interview_id", id, "questions", questions)
	c.publish(ctx, id, InterviewCompleted{
		Type:         "interview_completed",
		InterviewID:  id,
		Questions:    questions,
		RecordingURL: recordingURL,
		CompletedAt:  time.Now().UTC(),
	})
	return nil
}

// abortFinalize leaves submitting: validation problems resume editing, anything
// else marks the submission failed for retry.
func (c *Controller) abortFinalize(err error) error {
	c.mu.Lock()
	if !c.closed {
		event := fsm.PhaseEventFail
		if errors.Is(err, ErrValidationFailed) {
			event = fsm.PhaseEventResume
		}
		_ = c.phaseLocked(event)
		c.lastErr = err
	}
	c.mu.Unlock()

	c.observer.FinalizeCompleted(err)
	c.logger.Warn("finish failed", "error", err.Error())
	return err
}

// quiesce stops speech and a running question recording before a save.
// Capture failures are surfaced through the view and do not block saving.
func (c *Controller) quiesce(ctx context.Context) {
	if err := c.stopSpeech(ctx); err != nil {
		c.logger.Warn("speech stop before save", "error", err.Error())
	}
	if err := c.stopQuestionRecording(ctx); err != nil {
		c.logger.Warn("recording stop before save", "error", err.Error())
	}
}

// persist saves question idx when its draft is non-empty and differs from
// the saved answer (or force is set). Caller holds opMu.
func (c *Controller) persist(ctx context.Context, idx int, force bool) error {
	c.mu.RLock()
	if c.closed || idx < 0 || idx >= len(c.slots) {
		c.mu.RUnlock()
		return nil
	}
	id := c.iv.ID
	s := c.slots[idx]
	dirty := c.dirtyLocked(idx)
	c.mu.RUnlock()

	draft := strings.TrimSpace(s.draft)
	if draft == "" {
		return nil
	}
	if !dirty && !force {
		return nil
	}

	ref := s.ref
	if s.blob != nil && ref == nil {
		uploaded, err := c.uploadQuestion(ctx, id, idx, s.blob)
		if errors.Is(err, errDiscarded) {
			return nil
		}
		if err != nil {
			return err
		}
		ref = &uploaded
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if err := c.applyLocked(idx, fsm.EventSave); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	recordingURL := ""
	if ref != nil {
		recordingURL = ref.URL
	}

	started := time.Now()
	updated, err := c.store.SaveAnswer(ctx, id, idx, draft, recordingURL)
	c.observer.SaveCompleted(time.Since(started), err)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		_ = c.applyLocked(idx, fsm.EventSaveFail)
		wrapped := fmt.Errorf("%w: save answer %d: %w", ErrPersistenceFailed, idx+1, err)
		c.slots[idx].err = wrapped
		c.lastErr = wrapped
		c.mu.Unlock()
		c.logger.Warn("answer save failed", "interview_id", id, "question_index", idx, "error", err.Error())
		return wrapped
	}

	c.replaceSnapshotLocked(updated)
	if idx < len(c.slots) {
		c.slots[idx].ref = nil
		c.slots[idx].err = nil
		_ = c.applyLocked(idx, fsm.EventSaved)
	}
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("answer saved", "interview_id", id, "question_index", idx, "recording", recordingURL != "")
	c.publish(ctx, id, AnswerSaved{
		Type:          "answer_saved",
		InterviewID:   id,
		QuestionIndex: idx,
		AnswerLength:  len(draft),
		RecordingURL:  recordingURL,
		SavedAt:       time.Now().UTC(),
	})
	return nil
}

// uploadQuestion uploads the pending blob of question idx. On failure the
// blob stays in place for retry.
func (c *Controller) uploadQuestion(ctx context.Context, id string, idx int, blob *media.Blob) (upload.Reference, error) {
	c.mu.Lock()
	c.slots[idx].uploading = true
	c.slots[idx].progress = 0
	c.mu.Unlock()

	ref, err := c.uploader.Upload(ctx, upload.Request{
		InterviewID: id,
		Key:         upload.QuestionKey(id, idx),
		Blob:        blob,
	}, func(percent int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.slots) && percent > c.slots[idx].progress {
			c.slots[idx].progress = percent
		}
	})
	c.observer.UploadCompleted(string(upload.KindOf(err)), blob.Size(), err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return upload.Reference{}, errDiscarded
	}
	s := &c.slots[idx]
	s.uploading = false
	if err != nil {
		wrapped := fmt.Errorf("%w: recording for question %d: %w", ErrUploadFailed, idx+1, err)
		s.err = wrapped
		c.lastErr = wrapped
		c.logger.Warn("recording upload failed", "interview_id", id, "question_index", idx, "error", err.Error())
		return upload.Reference{}, wrapped
	}
	s.ref = &ref
	if s.blob == blob {
		s.blob = nil
	}
	s.progress = 100
	return ref, nil
}

// sessionRecording stops and uploads the full-session recording as needed.
// Caller holds opMu.
func (c *Controller) sessionRecording(ctx context.Context, id string) (*upload.Reference, error) {
	if err := c.stopSessionRecording(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	ref, blob := c.sessionRef, c.sessionBlob
	c.mu.RUnlock()

	if ref != nil {
		return ref, nil
	}
	if blob == nil {
		if c.opts.RequireSessionRecording {
			return nil, ErrNoRecording
		}
		return nil, nil
	}

	uploaded, err := c.uploader.Upload(ctx, upload.Request{
		InterviewID: id,
		Key:         upload.SessionKey(id),
		Blob:        blob,
	}, func(percent int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if percent > c.sessionProgress {
			c.sessionProgress = percent
		}
	})
	c.observer.UploadCompleted(string(upload.KindOf(err)), blob.Size(), err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errDiscarded
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session recording: %w", ErrUploadFailed, err)
	}
	c.sessionRef = &uploaded
	if c.sessionBlob == blob {
		c.sessionBlob = nil
	}
	c.sessionProgress = 100
	return &uploaded, nil
}
