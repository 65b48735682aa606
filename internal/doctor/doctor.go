// Package doctor runs runtime readiness diagnostics for config, credentials, service, speech, audio, and events.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/api"
	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/auth"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/events"
	"github.com/rbright/rehearse/internal/pipeline"
)

const probeTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{checkConfig(cfg)}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "hotkey socket directory available", "XDG_RUNTIME_DIR is empty; hotkey commands cannot reach a session"))

	resolver := auth.NewResolver(cfg.Config.Auth.TokenEnv, cfg.Config.Auth.TokenFile)
	credential := checkCredential(resolver)
	checks = append(checks, credential)
	if credential.Pass {
		checks = append(checks, checkService(ctx, cfg.Config, resolver))
	}

	if cfg.Config.Speech.Enable {
		checks = append(checks, checkSpeechCredentials(cfg.Config))
	}
	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	if cfg.Config.Events.Enable {
		checks = append(checks, checkBrokers(ctx, cfg.Config))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCredential resolves the bearer credential without printing it.
func checkCredential(resolver *auth.Resolver) Check {
	_, source, err := resolver.Resolve()
	if err != nil {
		return Check{Name: "auth.credential", Pass: false, Message: err.Error()}
	}
	return Check{Name: "auth.credential", Pass: true, Message: "using " + source}
}

// checkService asks the service whether the credential is accepted.
func checkService(ctx context.Context, cfg config.Config, creds auth.Provider) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client := api.New(api.Config{BaseURL: cfg.Service.BaseURL, Timeout: probeTimeout, Credentials: creds}, nil)
	if err := client.CheckAuth(ctx); err != nil {
		return Check{Name: "service.auth", Pass: false, Message: err.Error()}
	}
	return Check{Name: "service.auth", Pass: true, Message: fmt.Sprintf("authenticated at %s", cfg.Service.BaseURL)}
}

// checkSpeechCredentials detects Google credentials for the speech client.
func checkSpeechCredentials(cfg config.Config) Check {
	endpoint, err := pipeline.CheckCredentials(pipeline.Config{
		CredentialsFile: cfg.Speech.CredentialsFile,
		Location:        cfg.Speech.Location,
	})
	if err != nil {
		return Check{Name: "speech.credentials", Pass: false, Message: err.Error() + "; answers can still be typed"}
	}
	return Check{Name: "speech.credentials", Pass: true, Message: fmt.Sprintf("credentials detected for %s", endpoint)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkBrokers dials the configured Kafka brokers.
func checkBrokers(ctx context.Context, cfg config.Config) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	broker, err := events.Ping(ctx, cfg.Events.Brokers, cfg.Events.Topic)
	if err != nil {
		return Check{Name: "events.brokers", Pass: false, Message: err.Error()}
	}
	return Check{Name: "events.brokers", Pass: true, Message: fmt.Sprintf("reached %s (topic %s)", broker, cfg.Events.Topic)}
}
