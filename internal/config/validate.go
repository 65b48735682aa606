package config

import (
	"fmt"
	"net/url"
	"strings"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validateBaseURL(cfg.Service.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Service.Timeout <= 0 {
		return nil, fmt.Errorf("service.timeout_ms must be > 0")
	}
	if strings.TrimSpace(cfg.Auth.TokenEnv) == "" && strings.TrimSpace(cfg.Auth.TokenFile) == "" {
		return nil, fmt.Errorf("auth.token_env or auth.token_file must be set")
	}
	if cfg.Upload.MaxBytes <= 0 {
		return nil, fmt.Errorf("upload.max_bytes must be > 0")
	}
	if strings.TrimSpace(cfg.Upload.FieldName) == "" {
		return nil, fmt.Errorf("upload.field_name must not be empty")
	}
	if cfg.Speech.Enable && strings.TrimSpace(cfg.Speech.LanguageCode) == "" {
		return nil, fmt.Errorf("speech.language_code must not be empty when speech.enable=true")
	}
	if cfg.Recording.Chunk <= 0 {
		return nil, fmt.Errorf("recording.chunk_ms must be > 0")
	}
	if cfg.Events.Enable {
		if len(cfg.Events.Brokers) == 0 {
			return nil, fmt.Errorf("events.brokers must not be empty when events.enable=true")
		}
		if strings.TrimSpace(cfg.Events.Topic) == "" {
			return nil, fmt.Errorf("events.topic must not be empty when events.enable=true")
		}
	}
	if !logLevels[cfg.Log.Level] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	if u, _ := url.Parse(cfg.Service.BaseURL); u != nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("service.base_url %q is not https; the credential is sent in clear text", cfg.Service.BaseURL)})
	}
	if !cfg.Speech.Enable && cfg.Debug.SpeechDump {
		warnings = append(warnings, Warning{Message: "debug.speech_dump has no effect when speech.enable=false"})
	}
	if len(cfg.Clipboard.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "clipboard.argv is empty; /copy is disabled"})
	}

	return warnings, nil
}

func validateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("service.base_url must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("service.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("service.base_url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("service.base_url must include a host")
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
