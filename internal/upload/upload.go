// Package upload transfers recorded blobs to the interview storage endpoint.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/auth"
	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/version"
)

const (
	// DefaultMaxBytes is the upload ceiling applied before any network call.
	DefaultMaxBytes int64 = 100 * 1024 * 1024
	// DefaultFieldName is the multipart field carrying the blob.
	DefaultFieldName = "video"
)

// Request describes one upload.
type Request struct {
	InterviewID string
	Key         string
	Blob        *media.Blob
}

// Reference locates an uploaded object.
type Reference struct {
	URL      string
	Key      string
	MimeType string
	Size     int64
	Duration time.Duration
}

// Progress receives monotonically non-decreasing percentages in 0..100.
type Progress func(percent int)

// Config wires the coordinator to the storage endpoint.
type Config struct {
	BaseURL     string
	FieldName   string
	MaxBytes    int64
	HTTPClient  *http.Client
	Credentials auth.Provider
}

// Coordinator performs uploads. It never retries on its own.
type Coordinator struct {
	baseURL   string
	fieldName string
	maxBytes  int64
	client    *http.Client
	creds     auth.Provider
	logger    *slog.Logger
}

// New constructs a coordinator with defaults for unset fields.
func New(cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.FieldName == "" {
		cfg.FieldName = DefaultFieldName
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Credentials == nil {
		cfg.Credentials = auth.Static("")
	}
	return &Coordinator{
		baseURL:   cfg.BaseURL,
		fieldName: cfg.FieldName,
		maxBytes:  cfg.MaxBytes,
		client:    cfg.HTTPClient,
		creds:     cfg.Credentials,
		logger:    logger,
	}
}

// QuestionKey is the destination of a per-question recording.
func QuestionKey(interviewID string, index int) string {
	return path.Join("interviews", interviewID, "questions", strconv.Itoa(index)+".wav")
}

// SessionKey is the destination of the full-session recording.
func SessionKey(interviewID string) string {
	return path.Join("interviews", interviewID, "session.wav")
}

// Upload sends req.Blob to its destination key. The blob is only read, so a
// failed upload can be repeated with the same request.
func (c *Coordinator) Upload(ctx context.Context, req Request, progress Progress) (Reference, error) {
	if progress == nil {
		progress = func(int) {}
	}
	size := req.Blob.Size()
	if size == 0 {
		return Reference{}, &Error{Kind: KindSizeLimit, Err: errors.New("recording is empty")}
	}
	if size > c.maxBytes {
		return Reference{}, &Error{Kind: KindSizeLimit, Err: fmt.Errorf("recording is %d bytes; limit is %d", size, c.maxBytes)}
	}

	endpoint, err := url.JoinPath(c.baseURL, "interview", req.InterviewID, "upload-recording")
	if err != nil {
		return Reference{}, fmt.Errorf("build upload url: %w", err)
	}

	body, contentType, err := c.encode(req)
	if err != nil {
		return Reference{}, err
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return Reference{}, &Error{Kind: KindUnauthorized, Err: err}
	}

	total := int64(body.Len())
	reader := &progressReader{r: body, total: total, fn: progress}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return Reference{}, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.ContentLength = total
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	started := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Reference{}, &Error{Kind: KindNetwork, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reference{}, &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read upload response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Reference{}, &Error{Kind: KindUnauthorized, Status: resp.StatusCode, Err: errors.New(serverMessage(payload, resp.Status))}
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return Reference{}, &Error{Kind: KindSizeLimit, Status: resp.StatusCode, Err: errors.New(serverMessage(payload, resp.Status))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Reference{}, &Error{Kind: KindServer, Status: resp.StatusCode, Err: errors.New(serverMessage(payload, resp.Status))}
	}

	var decoded struct {
		URL string `json:"url"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil || strings.TrimSpace(decoded.URL) == "" {
		return Reference{}, &Error{Kind: KindServer, Status: resp.StatusCode, Err: errors.New("upload response missing url")}
	}

	progress(100)
	key := decoded.Key
	if key == "" {
		key = req.Key
	}

	c.logger.Info("recording uploaded",
		"interview_id", req.InterviewID,
		"key", key,
		"bytes", size,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return Reference{
		URL:      decoded.URL,
		Key:      key,
		MimeType: req.Blob.MimeType,
		Size:     size,
		Duration: req.Blob.Duration,
	}, nil
}

// encode builds the multipart body with the blob and its destination key.
func (c *Coordinator) encode(req Request) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("key", req.Key); err != nil {
		return nil, "", fmt.Errorf("write key field: %w", err)
	}

	mimeType := req.Blob.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.fieldName, path.Base(req.Key)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(req.Blob.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// serverMessage extracts the error message from a JSON error body.
func serverMessage(payload []byte, fallback string) string {
	var decoded struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &decoded); err == nil {
		if decoded.Error != "" {
			return decoded.Error
		}
		if decoded.Message != "" {
			return decoded.Message
		}
	}
	return fallback
}

// progressReader reports the share of the body consumed by the transport.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	fn    Progress
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		// 100 is reserved for a confirmed response.
		if percent == 100 {
			percent = 99
		}
		if percent > p.last {
			p.last = percent
			p.fn(percent)
		}
	}
	return n, err
}
