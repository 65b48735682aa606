package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/speech"
	"github.com/rbright/rehearse/internal/upload"
)

type unansweredError struct{ count int }

func (e unansweredError) Error() string   { return fmt.Sprintf("%d questions unanswered", e.count) }
func (e unansweredError) Unanswered() int { return e.count }

type fakeStore struct {
	mu          sync.Mutex
	iv          interview.Interview
	saveErr     error
	completeErr error
	onSave      func(index int, answer string)

	saves          atomic.Int32
	completes      atomic.Int32
	completeURL    string
	savedRecording map[int]string
}

func newFakeStore(id string, answers ...string) *fakeStore {
	iv := interview.Interview{ID: id, Title: "Backend loop", Status: interview.StatusInProgress}
	for i, answer := range answers {
		iv.Questions = append(iv.Questions, interview.Question{
			ID:     fmt.Sprintf("q%d", i),
			Text:   fmt.Sprintf("Question %d?", i+1),
			Answer: answer,
		})
	}
	return &fakeStore{iv: iv, savedRecording: map[int]string{}}
}

func (s *fakeStore) Fetch(_ context.Context, id string) (interview.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.iv.ID {
		return interview.Interview{}, errors.New("interview not found")
	}
	return s.iv.Clone(), nil
}

func (s *fakeStore) SaveAnswer(_ context.Context, _ string, index int, answer string, recordingURL string) (interview.Interview, error) {
	s.saves.Add(1)
	if s.onSave != nil {
		s.onSave(index, answer)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return interview.Interview{}, s.saveErr
	}
	s.iv.Questions[index].Answer = answer
	if recordingURL != "" {
		s.iv.Questions[index].Recording = &interview.Recording{URL: recordingURL}
		s.savedRecording[index] = recordingURL
	}
	return s.iv.Clone(), nil
}

func (s *fakeStore) Complete(_ context.Context, _ string, recordingURL string) (interview.Interview, error) {
	s.completes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return interview.Interview{}, s.completeErr
	}
	if n := s.iv.Unanswered(); n > 0 {
		return interview.Interview{}, unansweredError{count: n}
	}
	s.iv.Status = interview.StatusCompleted
	s.completeURL = recordingURL
	if recordingURL != "" {
		s.iv.Recording = &interview.Recording{URL: recordingURL}
	}
	return s.iv.Clone(), nil
}

func (s *fakeStore) answer(index int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iv.Questions[index].Answer
}

type fakeUploader struct {
	mu       sync.Mutex
	err      error
	requests []upload.Request
	onUpload func()
}

func (u *fakeUploader) Upload(_ context.Context, req upload.Request, progress upload.Progress) (upload.Reference, error) {
	if u.onUpload != nil {
		u.onUpload()
	}
	u.mu.Lock()
	u.requests = append(u.requests, req)
	err := u.err
	u.mu.Unlock()

	if err != nil {
		return upload.Reference{}, &upload.Error{Kind: upload.KindNetwork, Err: err}
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	return upload.Reference{
		URL:      "https://cdn.test/" + req.Key,
		Key:      req.Key,
		MimeType: req.Blob.MimeType,
		Size:     req.Blob.Size(),
	}, nil
}

func (u *fakeUploader) setErr(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.err = err
}

func (u *fakeUploader) calls() []upload.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]upload.Request(nil), u.requests...)
}

type fakeRecorder struct {
	mu        sync.Mutex
	startErr  error
	blob      *media.Blob
	recording bool

	// entered and gate, when set, hold Start as if the device were still being acquired.
	entered chan struct{}
	gate    chan struct{}

	starts   atomic.Int32
	stops    atomic.Int32
	releases atomic.Int32
}

func (r *fakeRecorder) Start(context.Context) error {
	r.starts.Add(1)
	if r.gate != nil {
		close(r.entered)
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return fmt.Errorf("%w: %w", media.ErrDeviceUnavailable, r.startErr)
	}
	if r.recording {
		return media.ErrBusy
	}
	r.recording = true
	return nil
}

func (r *fakeRecorder) Stop(context.Context) (*media.Blob, error) {
	r.stops.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, nil
	}
	r.recording = false
	return r.blob, nil
}

func (r *fakeRecorder) Release() {
	r.releases.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
}

func (r *fakeRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *fakeRecorder) Elapsed() time.Duration {
	if r.Recording() {
		return time.Second
	}
	return 0
}

func (r *fakeRecorder) Level() int64 {
	if r.Recording() {
		return 3200
	}
	return 0
}

func (r *fakeRecorder) setBlob(blob *media.Blob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blob = blob
}

type fakeRecognizer struct {
	mu       sync.Mutex
	receiver speech.Receiver
	stream   *fakeStream
}

func (f *fakeRecognizer) Start(_ context.Context, r speech.Receiver) (speech.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiver = r
	f.stream = &fakeStream{receiver: r}
	return f.stream, nil
}

func (f *fakeRecognizer) current() (speech.Receiver, *fakeStream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiver, f.stream
}

type fakeStream struct {
	mu       sync.Mutex
	receiver speech.Receiver
	pending  []string
	stops    atomic.Int32
}

func (s *fakeStream) hold(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, text)
}

func (s *fakeStream) Stop(context.Context) error {
	s.stops.Add(1)
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, text := range pending {
		s.receiver.OnResult(text, true)
	}
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *fakePublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

type harness struct {
	ctrl       *Controller
	store      *fakeStore
	uploader   *fakeUploader
	recorder   *fakeRecorder
	recognizer *fakeRecognizer
	publisher  *fakePublisher
}

func newHarness(t *testing.T, opts Options, answers ...string) *harness {
	t.Helper()

	h := &harness{
		store:      newFakeStore("iv-1", answers...),
		uploader:   &fakeUploader{},
		recorder:   &fakeRecorder{},
		recognizer: &fakeRecognizer{},
		publisher:  &fakePublisher{},
	}
	h.ctrl = NewController(nil, Deps{
		Store:     h.store,
		Uploader:  h.uploader,
		Speech:    speech.NewEngine(nil, h.recognizer),
		Recorder:  h.recorder,
		Publisher: h.publisher,
	}, opts)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Open(context.Background(), "iv-1"); err != nil {
		t.Fatalf("open interview: %v", err)
	}
}

func testBlob(data string) *media.Blob {
	return &media.Blob{Data: []byte(data), MimeType: "audio/wav", Duration: time.Second, Chunks: 1}
}
