// Package api talks to the interview persistence service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/rehearse/internal/auth"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/version"
)

// DefaultTimeout bounds one request when the caller sets no deadline.
const DefaultTimeout = 15 * time.Second

// ErrUnauthorized indicates the service rejected the credential.
var ErrUnauthorized = errors.New("credential rejected by service")

// StatusError is a non-2xx service response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service returned status %d", e.Status)
	}
	return fmt.Sprintf("service returned status %d: %s", e.Status, e.Message)
}

// UnansweredError is returned when completion is refused for blank answers.
type UnansweredError struct {
	Count int
}

func (e *UnansweredError) Error() string {
	return fmt.Sprintf("%d question(s) still unanswered", e.Count)
}

// Unanswered returns the count reported by the service.
func (e *UnansweredError) Unanswered() int { return e.Count }

// Config wires the client to the service.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Credentials auth.Provider
}

// Client performs fetch, save and complete calls.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	creds   auth.Provider
	logger  *slog.Logger
}

// New constructs a client with defaults for unset fields.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Credentials == nil {
		cfg.Credentials = auth.Static("")
	}
	return &Client{
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		creds:   cfg.Credentials,
		logger:  logger,
	}
}

type interviewEnvelope struct {
	Interview *interview.Interview `json:"interview"`
}

type completeRequest struct {
	RecordingURL string `json:"recordingUrl,omitempty"`
}

type saveAnswerRequest struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	RecordingURL  string `json:"recordingUrl,omitempty"`
}

// Fetch loads one interview document.
func (c *Client) Fetch(ctx context.Context, id string) (interview.Interview, error) {
	return c.interviewCall(ctx, http.MethodGet, nil, "interview", id)
}

// SaveAnswer overwrites the answer of one question. An empty recordingURL
// leaves the stored recording untouched.
func (c *Client) SaveAnswer(ctx context.Context, id string, index int, answer string, recordingURL string) (interview.Interview, error) {
	body := saveAnswerRequest{
		QuestionIndex: index,
		Answer:        strings.TrimSpace(answer),
		RecordingURL:  recordingURL,
	}
	return c.interviewCall(ctx, http.MethodPost, body, "interview", id, "answer")
}

// Complete marks the interview completed, attaching the full-session
// recording when recordingURL is set.
func (c *Client) Complete(ctx context.Context, id string, recordingURL string) (interview.Interview, error) {
	return c.interviewCall(ctx, http.MethodPost, completeRequest{RecordingURL: recordingURL}, "interview", id, "complete")
}

// Recordings lists the caller's past interviews that carry a session
// recording, newest first as ordered by the service.
func (c *Client) Recordings(ctx context.Context) ([]interview.RecordedSession, error) {
	payload, err := c.do(ctx, http.MethodGet, nil, "interview", "recordings")
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Recordings []interview.RecordedSession `json:"recordings"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode recordings response: %w", err)
	}
	return decoded.Recordings, nil
}

// CheckAuth verifies the credential against the service.
func (c *Client) CheckAuth(ctx context.Context) error {
	payload, err := c.do(ctx, http.MethodGet, nil, "auth", "check")
	if err != nil {
		return err
	}
	var decoded struct {
		Authenticated *bool `json:"authenticated"`
	}
	if err := json.Unmarshal(payload, &decoded); err == nil && decoded.Authenticated != nil && !*decoded.Authenticated {
		return ErrUnauthorized
	}
	return nil
}

func (c *Client) interviewCall(ctx context.Context, method string, body any, elem ...string) (interview.Interview, error) {
	payload, err := c.do(ctx, method, body, elem...)
	if err != nil {
		return interview.Interview{}, err
	}
	var env interviewEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return interview.Interview{}, fmt.Errorf("decode interview response: %w", err)
	}
	if env.Interview == nil {
		return interview.Interview{}, errors.New("interview response missing interview")
	}
	return *env.Interview, nil
}

// do issues one JSON request and returns the 2xx body.
func (c *Client) do(ctx context.Context, method string, body any, elem ...string) ([]byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, elem...)
	if err != nil {
		return nil, fmt.Errorf("build request url: %w", err)
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("service call",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return payload, nil
	}
	return nil, decodeError(resp.StatusCode, payload)
}

func decodeError(status int, payload []byte) error {
	var decoded struct {
		Error           string `json:"error"`
		Message         string `json:"message"`
		UnansweredCount *int   `json:"unansweredCount"`
	}
	_ = json.Unmarshal(payload, &decoded)

	if decoded.UnansweredCount != nil && *decoded.UnansweredCount > 0 {
		return &UnansweredError{Count: *decoded.UnansweredCount}
	}
	message := decoded.Error
	if message == "" {
		message = decoded.Message
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if message == "" {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	}
	return &StatusError{Status: status, Message: message}
}
