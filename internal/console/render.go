package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/session"
)

// Render formats the current question and its capture state.
func Render(v session.View) string {
	if v.Total == 0 {
		return "no interview open"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d %d%%] %s\n", v.Index+1, v.Total, v.Progress, v.Question)

	answer := v.Preview
	if strings.TrimSpace(answer) == "" {
		answer = "(no answer yet)"
	}
	fmt.Fprintf(&b, "  answer: %s\n", answer)

	status := []string{v.Label()}
	if v.Saved {
		status = append(status, "saved")
	} else {
		status = append(status, "unsaved")
	}
	switch v.Recording {
	case session.RecordingQuestion:
		status = append(status, "recording "+formatElapsed(v.RecordingElapsed)+formatLevel(v.RecordingLevel))
	case session.RecordingSession:
		status = append(status, "session recording "+formatElapsed(v.RecordingElapsed)+formatLevel(v.RecordingLevel))
	}
	if v.HasRecording && v.Recording != session.RecordingQuestion {
		status = append(status, "has recording")
	}
	if v.Uploading {
		status = append(status, fmt.Sprintf("uploading %d%%", v.UploadProgress))
	}
	if v.SessionRecorded && v.Recording != session.RecordingSession {
		status = append(status, "session recorded")
	}
	fmt.Fprintf(&b, "  status: %s", strings.Join(status, ", "))
	if v.Unanswered > 0 {
		fmt.Fprintf(&b, " (%d unanswered)", v.Unanswered)
	}
	return b.String()
}

// RenderOverview lists every question with its answered marker.
func RenderOverview(v session.View) string {
	if v.Total == 0 {
		return "no interview open"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", v.Title, v.Status)
	for i, q := range v.Questions {
		cursor := " "
		if i == v.Index {
			cursor = ">"
		}
		mark := " "
		if q.Answered {
			mark = "x"
		}
		fmt.Fprintf(&b, "%s [%s] %d. %s", cursor, mark, i+1, q.Text)
		if q.Err != nil {
			fmt.Fprintf(&b, "  (error: %v)", q.Err)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d of %d answered", v.Total-v.Unanswered, v.Total)
	return b.String()
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// formatLevel shows how much audio the running recording has captured.
func formatLevel(captured int64) string {
	if captured <= 0 {
		return " (no input yet)"
	}
	return fmt.Sprintf(" (%d KB)", (captured+1023)/1024)
}
