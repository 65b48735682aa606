package session

import (
	"context"
	"errors"
	"time"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/speech"
	"github.com/rbright/rehearse/internal/upload"
)

// Store is the persistence service.
type Store interface {
	Fetch(ctx context.Context, id string) (interview.Interview, error)
	SaveAnswer(ctx context.Context, id string, index int, answer string, recordingURL string) (interview.Interview, error)
	Complete(ctx context.Context, id string, recordingURL string) (interview.Interview, error)
}

// Uploader transfers recorded blobs.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request, progress upload.Progress) (upload.Reference, error)
}

// SpeechEngine is the continuous transcription engine.
type SpeechEngine interface {
	Start(ctx context.Context, h speech.Handler) error
	Stop(ctx context.Context) error
	Active() bool
}

// Recorder is the single microphone recorder.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*media.Blob, error)
	Release()
	Recording() bool
	Elapsed() time.Duration
	Level() int64
}

// Publisher receives session events keyed by interview id.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Observer records operation outcomes.
type Observer interface {
	SaveCompleted(d time.Duration, err error)
	UploadCompleted(kind string, bytes int64, err error)
	FinalizeCompleted(err error)
	SpeechSegment()
}

// Deps wires the controller. Nil members fall back to inert implementations.
type Deps struct {
	Store     Store
	Uploader  Uploader
	Speech    SpeechEngine
	Recorder  Recorder
	Publisher Publisher
	Observer  Observer
}

// Options tunes controller policy.
type Options struct {
	// RequireSessionRecording blocks finishing until a full-session recording is uploaded.
	RequireSessionRecording bool
}

// AnswerSaved is published after a successful save.
type AnswerSaved struct {
	Type          string    `json:"type"`
	InterviewID   string    `json:"interviewId"`
	QuestionIndex int       `json:"questionIndex"`
	AnswerLength  int       `json:"answerLength"`
	RecordingURL  string    `json:"recordingUrl,omitempty"`
	SavedAt       time.Time `json:"savedAt"`
}

// InterviewCompleted is published after a successful finalize.
type InterviewCompleted struct {
	Type         string    `json:"type"`
	InterviewID  string    `json:"interviewId"`
	Questions    int       `json:"questions"`
	RecordingURL string    `json:"recordingUrl,omitempty"`
	CompletedAt  time.Time `json:"completedAt"`
}

func (e AnswerSaved) EventType() string        { return e.Type }
func (e InterviewCompleted) EventType() string { return e.Type }

var errStoreUnavailable = errors.New("persistence service not configured")

type noopStore struct{}

func (noopStore) Fetch(context.Context, string) (interview.Interview, error) {
	return interview.Interview{}, errStoreUnavailable
}

func (noopStore) SaveAnswer(context.Context, string, int, string, string) (interview.Interview, error) {
	return interview.Interview{}, errStoreUnavailable
}

func (noopStore) Complete(context.Context, string, string) (interview.Interview, error) {
	return interview.Interview{}, errStoreUnavailable
}

type noopUploader struct{}

func (noopUploader) Upload(context.Context, upload.Request, upload.Progress) (upload.Reference, error) {
	return upload.Reference{}, &upload.Error{Kind: upload.KindServer, Err: errors.New("storage not configured")}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

type noopObserver struct{}

func (noopObserver) SaveCompleted(time.Duration, error)   {}
func (noopObserver) UploadCompleted(string, int64, error) {}
func (noopObserver) FinalizeCompleted(error)              {}
func (noopObserver) SpeechSegment()                       {}
