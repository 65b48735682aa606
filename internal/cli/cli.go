// Package cli declares the rehearse command tree.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/version"
)

// Options carries flags shared by every command.
type Options struct {
	ConfigPath string
}

// Handlers executes the commands selected by the tree.
type Handlers interface {
	Run(ctx context.Context, opts Options, interviewID string) error
	Show(ctx context.Context, opts Options, interviewID string) error
	Recordings(ctx context.Context, opts Options) error
	Forward(ctx context.Context, opts Options, command string, arg string) error
	Devices(ctx context.Context, opts Options) error
	Doctor(ctx context.Context, opts Options) error
}

// RunError marks a failure raised by a handler, as opposed to a usage error.
type RunError struct {
	Err error
}

func (e *RunError) Error() string { return e.Err.Error() }

func (e *RunError) Unwrap() error { return e.Err }

// IsUsage reports whether err came from argument or flag parsing.
func IsUsage(err error) bool {
	var runErr *RunError
	return err != nil && !errors.As(err, &runErr)
}

func ran(err error) error {
	if err == nil {
		return nil
	}
	return &RunError{Err: err}
}

// forwarders are the hotkey commands relayed to a running session.
var forwarders = []struct {
	command string
	short   string
}{
	{ipc.CommandSpeak, "Toggle live transcription in the running session"},
	{ipc.CommandRecord, "Toggle the question recording in the running session"},
	{ipc.CommandNext, "Save and move to the next question"},
	{ipc.CommandPrev, "Save and move to the previous question"},
	{ipc.CommandSave, "Save the current answer"},
	{ipc.CommandSubmit, "Save and advance, or finish on the last question"},
	{ipc.CommandStatus, "Print the running session state"},
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(h Handlers, stdout, stderr io.Writer) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:   "rehearse",
		Short: "Answer interview questions by typing, speaking, or recording",
		Long: `rehearse walks through an interview one question at a time. Answers can be
typed, dictated with live transcription, or recorded; each answer is saved to
the interview service before moving on, and the session is finalized once
every question is answered.`,
		Version:       version.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $XDG_CONFIG_HOME/rehearse/config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "run <interview-id>",
		Short: "Open an interview and answer it interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ran(h.Run(cmd.Context(), *opts, args[0]))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "show <interview-id>",
		Short: "Print interview status and answered questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ran(h.Show(cmd.Context(), *opts, args[0]))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "recordings",
		Short: "List past interviews with a session recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ran(h.Recordings(cmd.Context(), *opts))
		},
	})

	for _, fw := range forwarders {
		command := fw.command
		root.AddCommand(&cobra.Command{
			Use:   command,
			Short: fw.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return ran(h.Forward(cmd.Context(), *opts, command, ""))
			},
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "goto <question-number>",
		Short: "Save and jump to a question in the running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ran(h.Forward(cmd.Context(), *opts, ipc.CommandGoTo, args[0]))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List available input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ran(h.Devices(cmd.Context(), *opts))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Run configuration and environment checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ran(h.Doctor(cmd.Context(), *opts))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), version.String()+"\n")
			return ran(err)
		},
	})

	return root
}
