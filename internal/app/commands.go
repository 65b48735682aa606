package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samber/do/v2"

	"github.com/rbright/rehearse/internal/api"
	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/cli"
	"github.com/rbright/rehearse/internal/console"
	"github.com/rbright/rehearse/internal/doctor"
	"github.com/rbright/rehearse/internal/events"
	"github.com/rbright/rehearse/internal/indicator"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/metrics"
	"github.com/rbright/rehearse/internal/output"
	"github.com/rbright/rehearse/internal/session"
)

const (
	statusTimeout   = 500 * time.Millisecond
	forwardTimeout  = time.Minute
	exitSaveTimeout = 30 * time.Second
)

var errDoctorFailed = errors.New("doctor checks failed")

// Run opens the interview, serves hotkeys on the owner socket and drives the console.
func (r Runner) Run(ctx context.Context, opts cli.Options, interviewID string) error {
	rt, err := r.bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.loaded.Config
	logger := rt.logger.With("interview_id", interviewID)

	owner, err := r.acquireSocket(ctx, logger)
	if err != nil {
		return err
	}
	if owner != nil {
		defer func() { _ = owner.Close() }()
	}

	injector := newInjector(cfg, logger)
	publisher, err := do.Invoke[*events.Publisher](injector)
	if err != nil {
		return fmt.Errorf("build event publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", "error", err.Error())
		}
	}()

	controller, err := do.Invoke[*session.Controller](injector)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	defer controller.Close()

	if err := controller.Open(ctx, interviewID); err != nil {
		return fmt.Errorf("open interview %s: %w", interviewID, err)
	}

	if cfg.Recording.RequireSessionRecording {
		if err := controller.StartSessionRecording(ctx); err != nil {
			fmt.Fprintf(r.Stderr, "warning: session recording not started: %v (start it with /session-record)\n", err)
		}
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	if owner != nil {
		server := &ipc.Server{Handler: controller, Logger: logger}
		go func() {
			serverErrCh <- server.Serve(serverCtx, owner)
		}()
	} else {
		serverErrCh <- nil
	}

	in := r.Stdin
	if in == nil {
		in = os.Stdin
	}
	started := time.Now()
	cues := do.MustInvoke[*indicator.Player](injector)
	defer cues.Close()

	con := console.New(controller, in, r.Stdout, logger)
	con.SetCues(cues)
	if len(cfg.Clipboard.Argv) > 0 {
		con.SetClipboard(do.MustInvoke[*output.Clipboard](injector))
	}
	runErr := con.Run(ctx)

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		logger.Error("ipc server failed", "error", serverErr.Error())
	}

	saveErr := r.savePending(ctx, controller, logger)

	logger.Info("session finished",
		"completed", controller.Completed(),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if path := cfg.Metrics.Textfile; path != "" {
		if m, err := do.Invoke[*metrics.Metrics](injector); err == nil {
			if err := m.WriteTextfile(path); err != nil {
				logger.Warn("write metrics textfile", "path", path, "error", err.Error())
			}
		}
	}

	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(r.Stdout, "interrupted; session closed")
		runErr = nil
	}
	if runErr != nil {
		return runErr
	}
	return saveErr
}

// savePending saves unsaved answers before the session closes. The save
// outlives an interrupted ctx.
func (r Runner) savePending(ctx context.Context, controller *session.Controller, logger *slog.Logger) error {
	if controller.Completed() {
		return nil
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exitSaveTimeout)
	defer cancel()

	saved, err := controller.SavePending(saveCtx)
	if saved > 0 {
		fmt.Fprintf(r.Stdout, "saved %d pending answer(s)\n", saved)
	}
	if err != nil {
		logger.Warn("pending answers not saved", "error", err.Error())
		return fmt.Errorf("some answers were not saved: %w", err)
	}
	return nil
}

// acquireSocket claims the owner socket. Hotkeys are disabled when no runtime
// directory is available.
func (r Runner) acquireSocket(ctx context.Context, logger *slog.Logger) (*ipc.Owner, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: hotkeys disabled: %v\n", err)
		logger.Warn("hotkeys disabled", "error", err.Error())
		return nil, nil
	}

	owner, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			return nil, fmt.Errorf("%w; finish it before starting another", err)
		}
		return nil, err
	}
	logger.Info("hotkey socket ready", "path", owner.Path())
	return owner, nil
}

// Show prints the interview status and each question's answer state.
func (r Runner) Show(ctx context.Context, opts cli.Options, interviewID string) error {
	rt, err := r.bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	injector := newInjector(rt.loaded.Config, rt.logger)
	store, err := do.Invoke[*api.Client](injector)
	if err != nil {
		return err
	}

	iv, err := store.Fetch(ctx, interviewID)
	if err != nil {
		return fmt.Errorf("fetch interview %s: %w", interviewID, err)
	}
	fmt.Fprint(r.Stdout, renderInterview(iv))
	return nil
}

// Recordings lists past interviews that carry a full-session recording.
func (r Runner) Recordings(ctx context.Context, opts cli.Options) error {
	rt, err := r.bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	injector := newInjector(rt.loaded.Config, rt.logger)
	store, err := do.Invoke[*api.Client](injector)
	if err != nil {
		return err
	}

	recordings, err := store.Recordings(ctx)
	if err != nil {
		return fmt.Errorf("list recordings: %w", err)
	}
	fmt.Fprint(r.Stdout, renderRecordings(recordings))
	return nil
}

func renderRecordings(recordings []interview.RecordedSession) string {
	if len(recordings) == 0 {
		return "no recordings yet\n"
	}
	var b strings.Builder
	for _, rec := range recordings {
		role := rec.JobRole
		if role == "" {
			role = rec.ID
		}
		fmt.Fprintf(&b, "%s  %s", rec.CreatedAt.Local().Format("2006-01-02"), role)
		if len(rec.TechStack) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(rec.TechStack, ", "))
		}
		b.WriteString("\n")
		duration := time.Duration(rec.Recording.Duration * float64(time.Second)).Round(time.Second)
		fmt.Fprintf(&b, "      %s  %s  %d KB  %s\n", duration, rec.Recording.MimeType, (rec.Recording.Size+1023)/1024, rec.Recording.URL)
	}
	return b.String()
}

func renderInterview(iv interview.Interview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", iv.Title, iv.Status)
	if iv.Description != "" {
		fmt.Fprintf(&b, "%s\n", iv.Description)
	}
	for i, q := range iv.Questions {
		mark := " "
		if q.Answered() {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", mark, i+1, q.Text)
		if q.Answered() {
			fmt.Fprintf(&b, "      %s\n", q.Answer)
		}
		if q.Analysis != nil {
			fmt.Fprintf(&b, "      score %.1f: %s\n", q.Analysis.Score, q.Analysis.Feedback)
		}
	}
	total := len(iv.Questions)
	fmt.Fprintf(&b, "%d of %d answered\n", total-iv.Unanswered(), total)
	if iv.Terminal() {
		fmt.Fprintf(&b, "results: %s\n", iv.ResultsPath())
	}
	return b.String()
}

// Forward relays one hotkey command to the running session.
func (r Runner) Forward(ctx context.Context, _ cli.Options, command string, arg string) error {
	timeout := forwardTimeout
	if command == ipc.CommandStatus {
		timeout = statusTimeout
	}

	resp, err := ipc.Dispatch(ctx, command, arg, timeout)
	if err != nil {
		if command == ipc.CommandStatus && errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(r.Stdout, "idle")
			return nil
		}
		return err
	}

	if command == ipc.CommandStatus {
		state := resp.State
		if state == "" {
			state = "idle"
		}
		if resp.Total > 0 {
			state = fmt.Sprintf("%s question %d/%d", state, resp.Question, resp.Total)
		}
		fmt.Fprintln(r.Stdout, state)
		return nil
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return nil
}

// Devices lists Pulse input sources.
func (r Runner) Devices(ctx context.Context, _ cli.Options) error {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return errors.New("no audio devices found")
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// Doctor prints the readiness report.
func (r Runner) Doctor(ctx context.Context, opts cli.Options) error {
	rt, err := r.bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	report := doctor.Run(ctx, rt.loaded)
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return errDoctorFailed
	}
	return nil
}
