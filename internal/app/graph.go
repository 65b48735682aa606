package app

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/rbright/rehearse/internal/api"
	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/auth"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/events"
	"github.com/rbright/rehearse/internal/indicator"
	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/metrics"
	"github.com/rbright/rehearse/internal/output"
	"github.com/rbright/rehearse/internal/pipeline"
	"github.com/rbright/rehearse/internal/session"
	"github.com/rbright/rehearse/internal/speech"
	"github.com/rbright/rehearse/internal/upload"
)

// newInjector wires the session graph for one command invocation.
func newInjector(cfg config.Config, logger *slog.Logger) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	do.Provide(injector, provideMetrics)
	do.Provide(injector, provideCredentials)
	do.Provide(injector, provideStore)
	do.Provide(injector, provideUploader)
	do.Provide(injector, providePublisher)
	do.Provide(injector, provideSpeech)
	do.Provide(injector, provideRecorder)
	do.Provide(injector, provideController)
	do.Provide(injector, provideClipboard)
	do.Provide(injector, provideCues)

	return injector
}

func provideMetrics(do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

func provideCredentials(i do.Injector) (auth.Provider, error) {
	cfg := do.MustInvoke[config.Config](i)
	return auth.NewResolver(cfg.Auth.TokenEnv, cfg.Auth.TokenFile), nil
}

func provideStore(i do.Injector) (*api.Client, error) {
	cfg := do.MustInvoke[config.Config](i)
	return api.New(api.Config{
		BaseURL:     cfg.Service.BaseURL,
		Timeout:     cfg.Service.Timeout,
		Credentials: do.MustInvoke[auth.Provider](i),
	}, do.MustInvoke[*slog.Logger](i)), nil
}

func provideUploader(i do.Injector) (*upload.Coordinator, error) {
	cfg := do.MustInvoke[config.Config](i)
	return upload.New(upload.Config{
		BaseURL:     cfg.Service.BaseURL,
		FieldName:   cfg.Upload.FieldName,
		MaxBytes:    cfg.Upload.MaxBytes,
		Credentials: do.MustInvoke[auth.Provider](i),
	}, do.MustInvoke[*slog.Logger](i)), nil
}

func providePublisher(i do.Injector) (*events.Publisher, error) {
	cfg := do.MustInvoke[config.Config](i)
	return events.New(events.Config{
		Enabled:  cfg.Events.Enable,
		Brokers:  cfg.Events.Brokers,
		Topic:    cfg.Events.Topic,
		ClientID: "rehearse",
	}, do.MustInvoke[*slog.Logger](i), do.MustInvoke[*metrics.Metrics](i)), nil
}

func provideSpeech(i do.Injector) (*speech.Engine, error) {
	cfg := do.MustInvoke[config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	if !cfg.Speech.Enable {
		return speech.NewEngine(logger, speech.Unavailable{Reason: "speech.enable=false"}), nil
	}
	return speech.NewEngine(logger, pipeline.NewRecognizer(pipeline.Config{
		LanguageCode:         cfg.Speech.LanguageCode,
		Model:                cfg.Speech.Model,
		AutomaticPunctuation: cfg.Speech.AutomaticPunctuation,
		CredentialsFile:      cfg.Speech.CredentialsFile,
		Location:             cfg.Speech.Location,
		Input:                cfg.Audio.Input,
		Fallback:             cfg.Audio.Fallback,
		DebugDump:            cfg.Debug.SpeechDump,
	}, logger)), nil
}

func provideRecorder(i do.Injector) (*media.Recorder, error) {
	cfg := do.MustInvoke[config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	source := audio.Source{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback, Logger: logger}
	return media.NewRecorder(logger, source, cfg.Recording.Chunk), nil
}

func provideController(i do.Injector) (*session.Controller, error) {
	cfg := do.MustInvoke[config.Config](i)
	return session.NewController(do.MustInvoke[*slog.Logger](i), session.Deps{
		Store:     do.MustInvoke[*api.Client](i),
		Uploader:  do.MustInvoke[*upload.Coordinator](i),
		Speech:    do.MustInvoke[*speech.Engine](i),
		Recorder:  do.MustInvoke[*media.Recorder](i),
		Publisher: do.MustInvoke[*events.Publisher](i),
		Observer:  do.MustInvoke[*metrics.Metrics](i),
	}, session.Options{
		RequireSessionRecording: cfg.Recording.RequireSessionRecording,
	}), nil
}

func provideClipboard(i do.Injector) (*output.Clipboard, error) {
	cfg := do.MustInvoke[config.Config](i)
	return output.NewClipboard(cfg.Clipboard.Argv, do.MustInvoke[*slog.Logger](i)), nil
}

func provideCues(i do.Injector) (*indicator.Player, error) {
	cfg := do.MustInvoke[config.Config](i)
	return indicator.NewPlayer(cfg.Indicator, do.MustInvoke[*slog.Logger](i)), nil
}
