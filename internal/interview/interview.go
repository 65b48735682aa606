// Package interview defines the interview document exchanged with the persistence service.
package interview

import (
	"math"
	"strings"
	"time"
)

// Status is the lifecycle status of an interview document.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusEvaluated  Status = "evaluated"
)

// Recording references an uploaded media object.
type Recording struct {
	URL      string  `json:"url"`
	Key      string  `json:"key,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
	Size     int64   `json:"size,omitempty"`
	Duration float64 `json:"duration,omitempty"` // seconds
}

// Analysis is produced by the evaluation service and never modified here.
type Analysis struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Question is one prompt plus the candidate's persisted answer.
type Question struct {
	ID        string     `json:"_id,omitempty"`
	Text      string     `json:"text"`
	Answer    string     `json:"answer,omitempty"`
	Recording *Recording `json:"recording,omitempty"`
	Analysis  *Analysis  `json:"analysis,omitempty"`
}

// RecordedSession is one past interview that carries a full-session recording.
type RecordedSession struct {
	ID        string    `json:"_id"`
	JobRole   string    `json:"jobRole"`
	TechStack []string  `json:"techStack,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	Recording Recording `json:"recording"`
}

// Answered reports whether the question has a non-blank answer.
func (q Question) Answered() bool {
	return strings.TrimSpace(q.Answer) != ""
}

// Interview is the authoritative document owned by the persistence service.
type Interview struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
	Status      Status     `json:"status"`
	Recording   *Recording `json:"recording,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitzero"`
	UpdatedAt   time.Time  `json:"updatedAt,omitzero"`
}

// Unanswered counts questions whose answer is blank after trimming.
func (iv Interview) Unanswered() int {
	count := 0
	for _, q := range iv.Questions {
		if !q.Answered() {
			count++
		}
	}
	return count
}

// FirstUnanswered returns the index of the first blank question, or 0 when
// every question is answered.
func (iv Interview) FirstUnanswered() int {
	for i, q := range iv.Questions {
		if !q.Answered() {
			return i
		}
	}
	return 0
}

// Progress returns the position of index within the interview as a rounded percentage.
func (iv Interview) Progress(index int) int {
	if len(iv.Questions) == 0 {
		return 0
	}
	return int(math.Round(float64(index) / float64(len(iv.Questions)) * 100))
}

// Terminal reports whether the interview can no longer accept answers.
func (iv Interview) Terminal() bool {
	return iv.Status == StatusCompleted || iv.Status == StatusEvaluated
}

// ResultsPath is the route of the external results view.
func (iv Interview) ResultsPath() string {
	return "/interview/" + iv.ID + "/results"
}

// Clone returns a deep copy so callers can replace snapshots wholesale.
func (iv Interview) Clone() Interview {
	out := iv
	if iv.Recording != nil {
		rec := *iv.Recording
		out.Recording = &rec
	}
	if iv.Questions != nil {
		out.Questions = make([]Question, len(iv.Questions))
		for i, q := range iv.Questions {
			if q.Recording != nil {
				rec := *q.Recording
				q.Recording = &rec
			}
			if q.Analysis != nil {
				a := *q.Analysis
				q.Analysis = &a
			}
			out.Questions[i] = q
		}
	}
	return out
}
