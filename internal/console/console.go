// Package console is the line-oriented terminal surface over a session controller.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rbright/rehearse/internal/session"
)

// Controller is the session surface driven by the console.
type Controller interface {
	View() session.View
	Completed() bool
	AppendDraft(text string) error
	SetDraft(text string) error
	ToggleSpeech(ctx context.Context) error
	ToggleRecording(ctx context.Context) error
	DiscardRecording() error
	StartSessionRecording(ctx context.Context) error
	StopSessionRecording(ctx context.Context) error
	Save(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	GoTo(ctx context.Context, index int) error
	Submit(ctx context.Context) error
	Finalize(ctx context.Context) error
}

// Copier receives text copied with /copy.
type Copier interface {
	Copy(ctx context.Context, text string) error
}

// Cues announces capture transitions audibly.
type Cues interface {
	Started()
	Stopped()
	Completed()
	Failed()
}

// ErrQuit is returned by Execute when the user asks to leave.
var ErrQuit = errors.New("quit")

// Console reads commands and draft text from in and renders to out.
type Console struct {
	ctrl   Controller
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
	id     string

	clipboard Copier
	cues      Cues
}

// New constructs a console. Each console gets an id that tags its log lines.
func New(ctrl Controller, in io.Reader, out io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	return &Console{
		ctrl:   ctrl,
		in:     in,
		out:    out,
		logger: logger.With("console_id", id),
		id:     id,
	}
}

// SetClipboard enables /copy.
func (c *Console) SetClipboard(cp Copier) { c.clipboard = cp }

// SetCues enables audible cues.
func (c *Console) SetCues(cues Cues) { c.cues = cues }

// ID returns the console session id.
func (c *Console) ID() string { return c.id }

// Run loops until input ends, the user quits, the interview completes, or ctx
// is cancelled.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.logger.Info("console started")
	fmt.Fprintln(c.out, Render(c.ctrl.View()))
	fmt.Fprintln(c.out, "type /help for commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		case line := <-lines:
			err := c.Execute(ctx, line)
			if errors.Is(err, ErrQuit) {
				c.logger.Info("console quit")
				return nil
			}
			if err != nil {
				fmt.Fprintln(c.out, describe(err))
				c.cue(Cues.Failed)
			}
			if c.ctrl.Completed() {
				c.cue(Cues.Completed)
				v := c.ctrl.View()
				fmt.Fprintf(c.out, "interview completed; results at %s\n", v.ResultsPath)
				return nil
			}
		}
	}
}

// Execute applies one input line. Lines starting with "/" are commands; any
// other non-blank line is appended to the current draft.
func (c *Console) Execute(ctx context.Context, line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return c.ctrl.AppendDraft(trimmed)
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	arg = strings.TrimSpace(arg)
	c.logger.Debug("console command", "command", name)

	wasCapturing := capturing(c.ctrl.View())
	var err error
	switch strings.ToLower(name) {
	case "next", "n":
		err = c.ctrl.Next(ctx)
	case "prev", "p":
		err = c.ctrl.Previous(ctx)
	case "goto", "g":
		n, convErr := strconv.Atoi(arg)
		if convErr != nil {
			return errors.New("usage: /goto N")
		}
		err = c.ctrl.GoTo(ctx, n-1)
	case "speak", "s":
		err = c.ctrl.ToggleSpeech(ctx)
	case "record", "r":
		err = c.ctrl.ToggleRecording(ctx)
	case "discard":
		err = c.ctrl.DiscardRecording()
	case "session-record":
		if c.ctrl.View().Recording == session.RecordingSession {
			err = c.ctrl.StopSessionRecording(ctx)
		} else {
			err = c.ctrl.StartSessionRecording(ctx)
		}
	case "save":
		err = c.ctrl.Save(ctx)
	case "submit":
		err = c.ctrl.Submit(ctx)
	case "finish":
		err = c.ctrl.Finalize(ctx)
	case "clear":
		err = c.ctrl.SetDraft("")
	case "copy":
		if c.clipboard == nil {
			return errors.New("clipboard is not configured")
		}
		if err := c.clipboard.Copy(ctx, c.ctrl.View().Draft); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "answer copied")
		return nil
	case "show":
		fmt.Fprintln(c.out, RenderOverview(c.ctrl.View()))
		return nil
	case "help", "h", "?":
		fmt.Fprint(c.out, HelpText())
		return nil
	case "quit", "q", "exit":
		return ErrQuit
	default:
		return fmt.Errorf("unknown command /%s; type /help", name)
	}
	if err != nil {
		return err
	}
	if !c.ctrl.Completed() {
		v := c.ctrl.View()
		switch now := capturing(v); {
		case now && !wasCapturing:
			c.cue(Cues.Started)
		case !now && wasCapturing:
			c.cue(Cues.Stopped)
		}
		fmt.Fprintln(c.out, Render(v))
	}
	return nil
}

func (c *Console) cue(fn func(Cues)) {
	if c.cues != nil {
		fn(c.cues)
	}
}

// capturing reports whether speech or any recording is live.
func capturing(v session.View) bool {
	return v.Speaking || v.Recording != session.RecordingNone
}

// describe turns a controller error into one user-facing line.
func describe(err error) string {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Sprintf("cannot finish: %d question(s) still unanswered", verr.Unanswered)
	case errors.Is(err, session.ErrMicrophoneHeld):
		return err.Error()
	case session.IsCaptureError(err):
		return fmt.Sprintf("capture unavailable (%v); you can keep typing", err)
	case session.IsRetryable(err):
		return fmt.Sprintf("error: %v (your answer is kept; retry with /save, /submit or /finish)", err)
	default:
		return fmt.Sprintf("error: %v", err)
	}
}

// HelpText lists console commands.
func HelpText() string {
	return `Commands:
  /next, /prev, /goto N   Save and move between questions
  /speak                  Toggle live transcription
  /record                 Toggle the question recording
  /discard                Drop the unsaved question recording
  /session-record         Toggle the full-session recording
  /save                   Save the current answer
  /submit                 Save and advance, or finish on the last question
  /finish                 Save everything and complete the interview
  /clear                  Clear the current draft
  /copy                   Copy the current draft to the clipboard
  /show                   Show every question and its state
  /help                   Show this help
  /quit                   Leave without finishing
Any other line is appended to the current answer.
`
}
