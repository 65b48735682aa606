// Package ipc carries hotkey commands to the running interview session.
package ipc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Commands accepted by a running session.
const (
	CommandStatus = "status"
	CommandSpeak  = "speak"
	CommandRecord = "record"
	CommandNext   = "next"
	CommandPrev   = "prev"
	CommandGoTo   = "goto"
	CommandSave   = "save"
	CommandSubmit = "submit"
)

var knownCommands = map[string]bool{
	CommandStatus: true,
	CommandSpeak:  true,
	CommandRecord: true,
	CommandNext:   true,
	CommandPrev:   true,
	CommandGoTo:   true,
	CommandSave:   true,
	CommandSubmit: true,
}

// Request is one line sent by a hotkey client. Arg is only used by goto.
type Request struct {
	Command string `json:"command"`
	Arg     string `json:"arg,omitempty"`
}

// Validate rejects unknown commands and a malformed goto argument.
func (r Request) Validate() error {
	if !knownCommands[r.Command] {
		return fmt.Errorf("unknown command: %q", r.Command)
	}
	if r.Command != CommandGoTo {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.Arg))
	if err != nil {
		return fmt.Errorf("goto: question number %q is not a number", r.Arg)
	}
	if n < 1 {
		return errors.New("goto: question numbers start at 1")
	}
	return nil
}

// Response reports the session state after a command. Question is 1-based.
type Response struct {
	OK       bool   `json:"ok"`
	State    string `json:"state,omitempty"`
	Question int    `json:"question,omitempty"`
	Total    int    `json:"total,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}
