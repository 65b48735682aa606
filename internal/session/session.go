// Package session coordinates answering, recording, saving and submitting one interview.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/speech"
	"github.com/rbright/rehearse/internal/transcript"
	"github.com/rbright/rehearse/internal/upload"
)

// RecordingMode identifies what the recorder is capturing.
type RecordingMode string

const (
	RecordingNone     RecordingMode = ""
	RecordingQuestion RecordingMode = "question"
	RecordingSession  RecordingMode = "session"
)

const closeTimeout = 2 * time.Second

// slot is the local working state of one question.
type slot struct {
	draft     string
	interim   string
	state     fsm.State
	blob      *media.Blob
	ref       *upload.Reference
	uploading bool
	progress  int
	err       error
}

// Controller is the single owner of interview session state.
type Controller struct {
	logger    *slog.Logger
	store     Store
	uploader  Uploader
	speech    SpeechEngine
	recorder  Recorder
	publisher Publisher
	observer  Observer
	opts      Options

	// opMu serializes user operations.
	opMu sync.Mutex

	mu     sync.RWMutex
	opened bool
	closed bool
	iv     interview.Interview
	slots  []slot
	index  int
	phase  fsm.Phase

	speaking  bool
	speechGen uint64

	recMode  RecordingMode
	recIndex int

	sessionBlob     *media.Blob
	sessionRef      *upload.Reference
	sessionProgress int

	lastErr error
}

// NewController constructs a controller with safe default fallbacks.
func NewController(logger *slog.Logger, deps Deps, opts Options) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Store == nil {
		deps.Store = noopStore{}
	}
	if deps.Uploader == nil {
		deps.Uploader = noopUploader{}
	}
	if deps.Speech == nil {
		deps.Speech = speech.NewEngine(logger, nil)
	}
	if deps.Recorder == nil {
		deps.Recorder = media.NewRecorder(logger, nil, 0)
	}
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}

	return &Controller{
		logger:    logger,
		store:     deps.Store,
		uploader:  deps.Uploader,
		speech:    deps.Speech,
		recorder:  deps.Recorder,
		publisher: deps.Publisher,
		observer:  deps.Observer,
		opts:      opts,
		phase:     fsm.PhaseInProgress,
	}
}

// Open loads the interview and positions the session at the first unanswered question.
func (c *Controller) Open(ctx context.Context, id string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	id = strings.TrimSpace(id)
	if id == "" {
		return ErrIDRequired
	}

	c.mu.RLock()
	closed, opened := c.closed, c.opened
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if opened {
		return ErrAlreadyOpen
	}

	iv, err := c.store.Fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: load interview %s: %w", ErrPersistenceFailed, id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.iv = iv.Clone()
	c.slots = make([]slot, len(iv.Questions))
	for i, q := range iv.Questions {
		c.slots[i] = newSlot(q)
	}
	c.index = iv.FirstUnanswered()
	c.phase = fsm.PhaseInProgress
	if iv.Terminal() {
		c.phase = fsm.PhaseCompleted
	}
	if iv.Recording != nil {
		ref := upload.Reference{URL: iv.Recording.URL, Key: iv.Recording.Key}
		c.sessionRef = &ref
	}
	c.opened = true

	c.logger.Info("interview opened",
		"interview_id", iv.ID,
		"questions", len(iv.Questions),
		"question_index", c.index,
		"status", string(iv.Status),
	)
	return nil
}

func newSlot(q interview.Question) slot {
	s := slot{draft: q.Answer, state: fsm.StateIdle}
	if q.Answered() {
		s.state = fsm.StateSaved
	}
	return s
}

// Close releases capture resources synchronously. Results of requests still
// in flight are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.speechGen++
	c.speaking = false
	c.recMode = RecordingNone
	id := c.iv.ID
	c.mu.Unlock()

	c.recorder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := c.speech.Stop(ctx); err != nil {
		c.logger.Debug("speech stop on close", "error", err.Error())
	}
	c.logger.Info("session closed", "interview_id", id)
}

// writableLocked checks that the session accepts edits, resuming a failed
// submission. Caller holds mu.
func (c *Controller) writableLocked() error {
	if c.closed {
		return ErrClosed
	}
	if !c.opened {
		return ErrNotOpen
	}
	switch c.phase {
	case fsm.PhaseSubmitting:
		return ErrSubmitting
	case fsm.PhaseCompleted:
		return ErrCompleted
	case fsm.PhaseFailed:
		return c.phaseLocked(fsm.PhaseEventResume)
	}
	return nil
}

// liveLocked checks that the session is open. Caller holds mu.
func (c *Controller) liveLocked() error {
	if c.closed {
		return ErrClosed
	}
	if !c.opened {
		return ErrNotOpen
	}
	return nil
}

// applyLocked reduces answer events for one question. Caller holds mu.
func (c *Controller) applyLocked(idx int, events ...fsm.Event) error {
	if idx < 0 || idx >= len(c.slots) {
		return fmt.Errorf("%w: question %d", ErrOutOfRange, idx+1)
	}
	for _, event := range events {
		next, err := fsm.Transition(c.slots[idx].state, event)
		if err != nil {
			return err
		}
		c.slots[idx].state = next
	}
	return nil
}

// phaseLocked reduces one submission event. Caller holds mu.
func (c *Controller) phaseLocked(event fsm.PhaseEvent) error {
	next, err := fsm.TransitionPhase(c.phase, event)
	if err != nil {
		return err
	}
	c.phase = next
	return nil
}

// replaceSnapshotLocked swaps in the service's document. Caller holds mu.
func (c *Controller) replaceSnapshotLocked(iv interview.Interview) {
	c.iv = iv.Clone()
	if len(c.slots) == len(iv.Questions) {
		return
	}
	slots := make([]slot, len(iv.Questions))
	for i, q := range iv.Questions {
		if i < len(c.slots) {
			slots[i] = c.slots[i]
			continue
		}
		slots[i] = newSlot(q)
	}
	c.slots = slots
	if c.index >= len(slots) {
		c.index = max(len(slots)-1, 0)
	}
}

// unansweredLocked counts questions with neither a draft nor a saved answer. Caller holds mu.
func (c *Controller) unansweredLocked() int {
	count := 0
	for i, s := range c.slots {
		if strings.TrimSpace(s.draft) == "" && !c.iv.Questions[i].Answered() {
			count++
		}
	}
	return count
}

// Handle serves hotkey commands for the running session.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	var err error
	message := req.Command

	switch req.Command {
	case ipc.CommandStatus:
		message = "status"
	case ipc.CommandSpeak:
		err = c.ToggleSpeech(ctx)
		message = "speech toggled"
	case ipc.CommandRecord:
		err = c.ToggleRecording(ctx)
		message = "recording toggled"
	case ipc.CommandNext:
		err = c.Next(ctx)
		message = "moved to next question"
	case ipc.CommandPrev:
		err = c.Previous(ctx)
		message = "moved to previous question"
	case ipc.CommandGoTo:
		n, convErr := strconv.Atoi(strings.TrimSpace(req.Arg))
		if convErr != nil {
			err = fmt.Errorf("%w: question number %q", ErrValidationFailed, req.Arg)
			break
		}
		err = c.GoTo(ctx, n-1)
		message = "moved to question " + strconv.Itoa(n)
	case ipc.CommandSave:
		err = c.Save(ctx)
		message = "answer saved"
	case ipc.CommandSubmit:
		err = c.Submit(ctx)
		message = "answer submitted"
	default:
		v := c.View()
		return ipc.Response{OK: false, State: v.Label(), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}

	v := c.View()
	resp := ipc.Response{OK: err == nil, State: v.Label(), Question: v.Index + 1, Total: v.Total}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Message = message
	return resp
}

// View is a read-only snapshot for rendering.
type View struct {
	InterviewID string
	Title       string
	Status      interview.Status
	Index       int
	Total       int
	Progress    int
	Question    string
	Draft       string
	Interim     string
	Preview     string
	Saved       bool
	State       fsm.State
	Phase       fsm.Phase
	Speaking    bool

	Recording        RecordingMode
	RecordingElapsed time.Duration
	RecordingLevel   int64
	HasRecording     bool
	Uploading        bool
	UploadProgress   int

	SessionRecorded bool
	SessionUploaded bool
	SessionProgress int

	Unanswered  int
	ResultsPath string
	Err         error
	Questions   []QuestionView
}

// QuestionView summarizes one question.
type QuestionView struct {
	Text     string
	Answered bool
	State    fsm.State
	Err      error
}

// Label is a compact state description for status lines.
func (v View) Label() string {
	if v.Phase != fsm.PhaseInProgress {
		return string(v.Phase)
	}
	label := string(v.State)
	if v.Speaking {
		label += "+speaking"
	}
	if v.Recording == RecordingSession {
		label += "+session-recording"
	}
	return label
}

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := View{
		InterviewID:     c.iv.ID,
		Title:           c.iv.Title,
		Status:          c.iv.Status,
		Index:           c.index,
		Total:           len(c.slots),
		Progress:        c.iv.Progress(c.index),
		Phase:           c.phase,
		Speaking:        c.speaking,
		Recording:       c.recMode,
		SessionRecorded: c.sessionBlob != nil || c.sessionRef != nil,
		SessionUploaded: c.sessionRef != nil,
		SessionProgress: c.sessionProgress,
		Unanswered:      c.unansweredLocked(),
		Err:             c.lastErr,
	}
	if c.phase == fsm.PhaseCompleted {
		v.ResultsPath = c.iv.ResultsPath()
	}
	if c.recMode != RecordingNone {
		v.RecordingElapsed = c.recorder.Elapsed()
		v.RecordingLevel = c.recorder.Level()
	}

	v.Questions = make([]QuestionView, len(c.slots))
	for i, s := range c.slots {
		v.Questions[i] = QuestionView{
			Text:     c.iv.Questions[i].Text,
			Answered: strings.TrimSpace(s.draft) != "" || c.iv.Questions[i].Answered(),
			State:    s.state,
			Err:      s.err,
		}
	}

	if c.index < len(c.slots) {
		s := c.slots[c.index]
		v.Question = c.iv.Questions[c.index].Text
		v.Draft = s.draft
		v.Interim = s.interim
		v.Preview = transcript.Preview(s.draft, s.interim)
		v.Saved = strings.TrimSpace(s.draft) == strings.TrimSpace(c.iv.Questions[c.index].Answer) && s.blob == nil && s.ref == nil
		v.State = s.state
		v.HasRecording = s.blob != nil || s.ref != nil || c.iv.Questions[c.index].Recording != nil
		v.Uploading = s.uploading
		v.UploadProgress = s.progress
	}
	return v
}

func (c *Controller) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Completed reports whether the interview was finalized.
func (c *Controller) Completed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase == fsm.PhaseCompleted
}

// setErr records the most recent user-facing error.
func (c *Controller) setErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// publish emits one event; delivery failures are logged, never returned.
func (c *Controller) publish(ctx context.Context, key string, event any) {
	if err := c.publisher.Publish(ctx, key, event); err != nil {
		c.logger.Warn("publish session event", "interview_id", key, "error", err.Error())
	}
}

// IsCaptureError reports whether err is a capture failure that degrades to typing.
func IsCaptureError(err error) bool {
	return errors.Is(err, ErrCaptureUnavailable) || errors.Is(err, ErrCaptureInterrupted)
}
