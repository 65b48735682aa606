package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envOverrides are process-environment values applied after the config file.
// Empty values leave the file or default value in place.
type envOverrides struct {
	ServiceURL        string   `env:"REHEARSE_SERVICE_URL"`
	TokenFile         string   `env:"REHEARSE_TOKEN_FILE"`
	LogLevel          string   `env:"REHEARSE_LOG_LEVEL"`
	SpeechCredentials string   `env:"REHEARSE_SPEECH_CREDENTIALS"`
	KafkaBrokers      []string `env:"REHEARSE_KAFKA_BROKERS" envSeparator:","`
	MetricsTextfile   string   `env:"REHEARSE_METRICS_TEXTFILE"`
}

// LoadDotenv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) ([]Warning, error) {
	var raw envOverrides
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}

	warnings := make([]Warning, 0)
	if value := strings.TrimSpace(raw.ServiceURL); value != "" {
		cfg.Service.BaseURL = value
	}
	if value := strings.TrimSpace(raw.TokenFile); value != "" {
		cfg.Auth.TokenFile = value
	}
	if value := strings.TrimSpace(raw.LogLevel); value != "" {
		cfg.Log.Level = strings.ToLower(value)
	}
	if value := strings.TrimSpace(raw.SpeechCredentials); value != "" {
		cfg.Speech.CredentialsFile = value
	}
	if brokers := cleanList(raw.KafkaBrokers); len(brokers) > 0 {
		cfg.Events.Brokers = brokers
		if !cfg.Events.Enable {
			warnings = append(warnings, Warning{Message: "REHEARSE_KAFKA_BROKERS is set but events.enable=false; events stay disabled"})
		}
	}
	if value := strings.TrimSpace(raw.MetricsTextfile); value != "" {
		cfg.Metrics.Textfile = value
	}
	return warnings, nil
}
