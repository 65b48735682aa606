package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/ipc"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "rehearse")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "rehearse --help")
}

func TestExecuteMissingInterviewID(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"run"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerNextReturnsNoActiveSession(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "next"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no rehearse session is running")
}

func TestRunnerForwardsCommandsToActiveSession(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	requests := make(chan ipc.Request, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "rehearse.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "in_progress", Question: 2, Total: 5}
		case ipc.CommandNext, ipc.CommandGoTo:
			return ipc.Response{OK: true, Message: req.Command + " handled"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	stdout := &bytes.Buffer{}
	runner := Runner{Stdout: stdout, Stderr: &bytes.Buffer{}}
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"status"}))
	require.Equal(t, "in_progress question 2/5\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"goto", "3"}))
	require.Equal(t, "goto handled\n", stdout.String())

	stderr := &bytes.Buffer{}
	runner.Stderr = stderr
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"speak"}))
	require.Contains(t, stderr.String(), "speak: unsupported")

	got := []ipc.Request{<-requests, <-requests, <-requests}
	require.Equal(t, ipc.Request{Command: ipc.CommandStatus}, got[0])
	require.Equal(t, ipc.Request{Command: ipc.CommandGoTo, Arg: "3"}, got[1])
	require.Equal(t, ipc.Request{Command: ipc.CommandSpeak}, got[2])
}

func TestRunnerStatusFallsBackToIdleWhenServerStateEmpty(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "rehearse.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		return ipc.Response{OK: true}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerShowPrintsInterview(t *testing.T) {
	svc := newFakeService(t, interview.Interview{
		ID:     "iv-1",
		Title:  "Backend loop",
		Status: interview.StatusCompleted,
		Questions: []interview.Question{
			{Text: "Tell me about yourself", Answer: "I build services", Analysis: &interview.Analysis{Score: 8, Feedback: "clear"}},
			{Text: "Why Go?"},
		},
	})
	paths := setupRunnerEnv(t, svc.URL+"/api")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "show", "iv-1"})
	require.Equal(t, 0, exitCode, stderr.String())

	out := stdout.String()
	require.Contains(t, out, "Backend loop (completed)")
	require.Contains(t, out, "[x] 1. Tell me about yourself")
	require.Contains(t, out, "score 8.0: clear")
	require.Contains(t, out, "[ ] 2. Why Go?")
	require.Contains(t, out, "1 of 2 answered")
	require.Contains(t, out, "results: /interview/iv-1/results")
}

func TestRunnerShowUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	t.Cleanup(srv.Close)
	paths := setupRunnerEnv(t, srv.URL+"/api")

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "show", "iv-1"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error: fetch interview iv-1")
}

func TestRunnerRunAnswersAndFinishes(t *testing.T) {
	svc := newFakeService(t, interview.Interview{
		ID:        "iv-1",
		Title:     "Backend loop",
		Status:    interview.StatusInProgress,
		Questions: []interview.Question{{Text: "Tell me about yourself"}},
	})
	paths := setupRunnerEnv(t, svc.URL+"/api")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{
		Stdin:  strings.NewReader("I build services\n/finish\n"),
		Stdout: &stdout,
		Stderr: &stderr,
	}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run", "iv-1"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "Tell me about yourself")
	require.Contains(t, stdout.String(), "interview completed; results at /interview/iv-1/results")

	iv := svc.snapshot()
	require.Equal(t, interview.StatusCompleted, iv.Status)
	require.Equal(t, "I build services", iv.Questions[0].Answer)
	require.Equal(t, []string{"GET /api/interview/iv-1", "POST /api/interview/iv-1/answer", "POST /api/interview/iv-1/complete"}, svc.calls())

	// owner path should clean up runtime socket on exit
	_, statErr := os.Stat(filepath.Join(paths.runtimeDir, "rehearse.sock"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerRunQuitSavesPendingAnswer(t *testing.T) {
	svc := newFakeService(t, interview.Interview{
		ID:        "iv-1",
		Status:    interview.StatusInProgress,
		Questions: []interview.Question{{Text: "Tell me about yourself"}, {Text: "Why here?"}},
	})
	paths := setupRunnerEnv(t, svc.URL+"/api")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{
		Stdin:  strings.NewReader("half an answer\n/quit\n"),
		Stdout: &stdout,
		Stderr: &stderr,
	}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run", "iv-1"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "saved 1 pending answer(s)")

	iv := svc.snapshot()
	require.Equal(t, interview.StatusInProgress, iv.Status)
	require.Equal(t, "half an answer", iv.Questions[0].Answer)
	require.Equal(t, []string{"GET /api/interview/iv-1", "POST /api/interview/iv-1/answer"}, svc.calls())
}

// interruptingReader yields data, then cancels the run and blocks until release closes.
type interruptingReader struct {
	data    []byte
	cancel  context.CancelFunc
	release chan struct{}
}

func (r *interruptingReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	r.cancel()
	<-r.release
	return 0, io.EOF
}

func TestRunnerRunInterruptSavesPendingAnswer(t *testing.T) {
	svc := newFakeService(t, interview.Interview{
		ID:        "iv-1",
		Status:    interview.StatusInProgress,
		Questions: []interview.Question{{Text: "Tell me about yourself"}},
	})
	paths := setupRunnerEnv(t, svc.URL+"/api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{
		Stdin:  &interruptingReader{data: []byte("cut short\n"), cancel: cancel, release: release},
		Stdout: &stdout,
		Stderr: &stderr,
	}

	exitCode := runner.Execute(ctx, []string{"--config", paths.configPath, "run", "iv-1"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "saved 1 pending answer(s)")
	require.Contains(t, stdout.String(), "interrupted; session closed")
	require.Equal(t, "cut short", svc.snapshot().Questions[0].Answer)
}

func TestRunnerRunReportsUnsavedAnswersOnQuit(t *testing.T) {
	svc := newFakeService(t, interview.Interview{
		ID:        "iv-1",
		Status:    interview.StatusInProgress,
		Questions: []interview.Question{{Text: "Tell me about yourself"}},
	})
	svc.failAnswers = true
	paths := setupRunnerEnv(t, svc.URL+"/api")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{
		Stdin:  strings.NewReader("lost?\n/quit\n"),
		Stdout: &stdout,
		Stderr: &stderr,
	}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run", "iv-1"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error: some answers were not saved")
	require.NotContains(t, stdout.String(), "pending answer(s)")
	require.Empty(t, svc.snapshot().Questions[0].Answer)
}

func TestRunnerRecordingsListsSessions(t *testing.T) {
	svc := newFakeService(t, interview.Interview{ID: "iv-1"})
	svc.recordings = []interview.RecordedSession{{
		ID:        "iv-7",
		JobRole:   "Platform engineer",
		TechStack: []string{"go", "postgres"},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Recording: interview.Recording{URL: "https://cdn.test/iv-7.wav", MimeType: "audio/wav", Duration: 95, Size: 4096},
	}}
	paths := setupRunnerEnv(t, svc.URL+"/api")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "recordings"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "Platform engineer (go, postgres)")
	require.Contains(t, stdout.String(), "1m35s  audio/wav  4 KB  https://cdn.test/iv-7.wav")
	require.Equal(t, []string{"GET /api/interview/recordings"}, svc.calls())
}

func TestRenderRecordingsEmpty(t *testing.T) {
	require.Equal(t, "no recordings yet\n", renderRecordings(nil))
}

func TestRunnerRunRejectsSecondOwner(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "rehearse.sock"), func(_ context.Context, _ ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "in_progress"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdin: strings.NewReader(""), Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run", "iv-1"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "rehearse session already running")
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("REHEARSE_TOKEN", "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "[OK] config: loaded")
	require.Contains(t, stdout.String(), "[FAIL] auth.credential")
	require.Contains(t, stderr.String(), "doctor checks failed")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	require.NoError(t, os.WriteFile(paths.configPath, []byte("service:\n  bogus: 1\n"), 0o600))

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "show", "iv-1"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "parse config")
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func setupRunnerEnv(t *testing.T, baseURL string) runnerPaths {
	t.Helper()

	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv(ipc.SocketEnv, "")
	t.Setenv("REHEARSE_TOKEN", "test-token")
	t.Setenv("REHEARSE_SERVICE_URL", "")
	t.Setenv("REHEARSE_KAFKA_BROKERS", "")

	var b strings.Builder
	if baseURL != "" {
		fmt.Fprintf(&b, "service:\n  base_url: %s\n", baseURL)
	}
	b.WriteString("speech:\n  enable: false\n")
	b.WriteString("recording:\n  require_session_recording: false\n")
	b.WriteString("indicator:\n  sound: false\n")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(b.String()), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- (&ipc.Server{Handler: ipc.HandlerFunc(handler)}).Serve(ctx, listener)
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

// fakeService is an in-memory interview service.
type fakeService struct {
	*httptest.Server

	mu          sync.Mutex
	iv          interview.Interview
	log         []string
	failAnswers bool
	recordings  []interview.RecordedSession
}

func newFakeService(t *testing.T, iv interview.Interview) *fakeService {
	t.Helper()

	svc := &fakeService{iv: iv}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/interview/recordings", func(w http.ResponseWriter, r *http.Request) {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		svc.log = append(svc.log, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"recordings": svc.recordings})
	})
	mux.HandleFunc("GET /api/interview/{id}", svc.handle(func(*http.Request) error { return nil }))
	mux.HandleFunc("POST /api/interview/{id}/answer", svc.handle(func(r *http.Request) error {
		var body struct {
			QuestionIndex int    `json:"questionIndex"`
			Answer        string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return err
		}
		if svc.failAnswers {
			return errors.New("answer rejected")
		}
		svc.iv.Questions[body.QuestionIndex].Answer = body.Answer
		return nil
	}))
	mux.HandleFunc("POST /api/interview/{id}/complete", svc.handle(func(*http.Request) error {
		svc.iv.Status = interview.StatusCompleted
		return nil
	}))

	svc.Server = httptest.NewServer(mux)
	t.Cleanup(svc.Close)
	return svc
}

func (s *fakeService) handle(apply func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.log = append(s.log, r.Method+" "+r.URL.Path)
		if r.PathValue("id") != s.iv.ID {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"interview not found"}`))
			return
		}
		if err := apply(r); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"interview": s.iv})
	}
}

func (s *fakeService) snapshot() interview.Interview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iv.Clone()
}

func (s *fakeService) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}
