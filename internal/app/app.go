// Package app executes rehearse commands against the configured runtime.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rbright/rehearse/internal/cli"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/logging"
)

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRootCommand(r, r.Stdout, r.Stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	if cli.IsUsage(err) {
		fmt.Fprintf(r.Stderr, "run '%s --help' for usage\n", root.Name())
		return 2
	}
	return 1
}

// runtime is the per-command environment shared by every handler.
type runtime struct {
	loaded config.Loaded
	logger *slog.Logger
	close  func()
}

// bootstrap loads .env and config, then opens the log sink at the configured level.
func (r Runner) bootstrap(opts cli.Options) (runtime, error) {
	if err := config.LoadDotenv(".env"); err != nil {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
	}

	loaded, err := config.Load(opts.ConfigPath)
	if err != nil {
		return runtime{}, err
	}

	logRuntime, err := logging.New(loaded.Config.Log.Level)
	if err != nil {
		return runtime{}, fmt.Errorf("setup logging: %w", err)
	}

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"pid", os.Getpid(),
		"config", loaded.Path,
		"log", logRuntime.Path,
	)

	return runtime{
		loaded: loaded,
		logger: logger,
		close:  func() { _ = logRuntime.Close() },
	}, nil
}
