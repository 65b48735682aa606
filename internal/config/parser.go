package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Parse decodes YAML content on top of base, then validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg, warnings, err := decode(content, base)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func decode(content string, base Config) (Config, []Warning, error) {
	var payload yamlConfig
	decoder := yaml.NewDecoder(bytes.NewBufferString(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, nil, fmt.Errorf("decode yaml: %w", err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

type yamlConfig struct {
	Service *struct {
		BaseURL   *string `yaml:"base_url"`
		TimeoutMS *int    `yaml:"timeout_ms"`
	} `yaml:"service"`
	Auth *struct {
		TokenEnv  *string `yaml:"token_env"`
		TokenFile *string `yaml:"token_file"`
	} `yaml:"auth"`
	Upload *struct {
		MaxBytes  *int64  `yaml:"max_bytes"`
		FieldName *string `yaml:"field_name"`
	} `yaml:"upload"`
	Speech *struct {
		Enable               *bool   `yaml:"enable"`
		LanguageCode         *string `yaml:"language_code"`
		Model                *string `yaml:"model"`
		AutomaticPunctuation *bool   `yaml:"automatic_punctuation"`
		CredentialsFile      *string `yaml:"credentials_file"`
		Location             *string `yaml:"location"`
	} `yaml:"speech"`
	Audio *struct {
		Input    *string `yaml:"input"`
		Fallback *string `yaml:"fallback"`
	} `yaml:"audio"`
	Recording *struct {
		ChunkMS                 *int  `yaml:"chunk_ms"`
		RequireSessionRecording *bool `yaml:"require_session_recording"`
	} `yaml:"recording"`
	Events *struct {
		Enable  *bool     `yaml:"enable"`
		Brokers *[]string `yaml:"brokers"`
		Topic   *string   `yaml:"topic"`
	} `yaml:"events"`
	Metrics *struct {
		Textfile *string `yaml:"textfile"`
	} `yaml:"metrics"`
	Clipboard *struct {
		Argv *[]string `yaml:"argv"`
	} `yaml:"clipboard"`
	Indicator *struct {
		Sound        *bool   `yaml:"sound"`
		StartFile    *string `yaml:"sound_start_file"`
		StopFile     *string `yaml:"sound_stop_file"`
		CompleteFile *string `yaml:"sound_complete_file"`
		ErrorFile    *string `yaml:"sound_error_file"`
	} `yaml:"indicator"`
	Log *struct {
		Level *string `yaml:"level"`
	} `yaml:"log"`
	Debug *struct {
		SpeechDump *bool `yaml:"speech_dump"`
	} `yaml:"debug"`
}

func (payload yamlConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Service != nil {
		if payload.Service.BaseURL != nil {
			cfg.Service.BaseURL = strings.TrimSpace(*payload.Service.BaseURL)
		}
		if payload.Service.TimeoutMS != nil {
			cfg.Service.Timeout = time.Duration(*payload.Service.TimeoutMS) * time.Millisecond
		}
	}

	if payload.Auth != nil {
		if payload.Auth.TokenEnv != nil {
			cfg.Auth.TokenEnv = strings.TrimSpace(*payload.Auth.TokenEnv)
		}
		if payload.Auth.TokenFile != nil {
			cfg.Auth.TokenFile = strings.TrimSpace(*payload.Auth.TokenFile)
		}
	}

	if payload.Upload != nil {
		if payload.Upload.MaxBytes != nil {
			cfg.Upload.MaxBytes = *payload.Upload.MaxBytes
		}
		if payload.Upload.FieldName != nil {
			cfg.Upload.FieldName = strings.TrimSpace(*payload.Upload.FieldName)
		}
	}

	if payload.Speech != nil {
		if payload.Speech.Enable != nil {
			cfg.Speech.Enable = *payload.Speech.Enable
		}
		if payload.Speech.LanguageCode != nil {
			cfg.Speech.LanguageCode = strings.TrimSpace(*payload.Speech.LanguageCode)
		}
		if payload.Speech.Model != nil {
			cfg.Speech.Model = strings.TrimSpace(*payload.Speech.Model)
		}
		if payload.Speech.AutomaticPunctuation != nil {
			cfg.Speech.AutomaticPunctuation = *payload.Speech.AutomaticPunctuation
		}
		if payload.Speech.CredentialsFile != nil {
			cfg.Speech.CredentialsFile = strings.TrimSpace(*payload.Speech.CredentialsFile)
		}
		if payload.Speech.Location != nil {
			cfg.Speech.Location = strings.TrimSpace(*payload.Speech.Location)
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if payload.Recording != nil {
		if payload.Recording.ChunkMS != nil {
			cfg.Recording.Chunk = time.Duration(*payload.Recording.ChunkMS) * time.Millisecond
		}
		if payload.Recording.RequireSessionRecording != nil {
			cfg.Recording.RequireSessionRecording = *payload.Recording.RequireSessionRecording
		}
	}

	if payload.Events != nil {
		if payload.Events.Enable != nil {
			cfg.Events.Enable = *payload.Events.Enable
		}
		if payload.Events.Brokers != nil {
			cfg.Events.Brokers = cleanList(*payload.Events.Brokers)
		}
		if payload.Events.Topic != nil {
			cfg.Events.Topic = strings.TrimSpace(*payload.Events.Topic)
		}
	}

	if payload.Metrics != nil && payload.Metrics.Textfile != nil {
		cfg.Metrics.Textfile = strings.TrimSpace(*payload.Metrics.Textfile)
	}

	if payload.Clipboard != nil && payload.Clipboard.Argv != nil {
		cfg.Clipboard.Argv = cleanList(*payload.Clipboard.Argv)
	}

	if payload.Indicator != nil {
		if payload.Indicator.Sound != nil {
			cfg.Indicator.Sound = *payload.Indicator.Sound
		}
		if payload.Indicator.StartFile != nil {
			cfg.Indicator.StartFile = strings.TrimSpace(*payload.Indicator.StartFile)
		}
		if payload.Indicator.StopFile != nil {
			cfg.Indicator.StopFile = strings.TrimSpace(*payload.Indicator.StopFile)
		}
		if payload.Indicator.CompleteFile != nil {
			cfg.Indicator.CompleteFile = strings.TrimSpace(*payload.Indicator.CompleteFile)
		}
		if payload.Indicator.ErrorFile != nil {
			cfg.Indicator.ErrorFile = strings.TrimSpace(*payload.Indicator.ErrorFile)
		}
	}

	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}

	if payload.Debug != nil && payload.Debug.SpeechDump != nil {
		cfg.Debug.SpeechDump = *payload.Debug.SpeechDump
		if cfg.Debug.SpeechDump {
			warnings = append(warnings, Warning{Message: "debug.speech_dump is enabled; recognizer responses are written to the state directory"})
		}
	}

	return warnings, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}
