package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			BaseURL: "http://127.0.0.1:5000/api",
			Timeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			TokenEnv:  "REHEARSE_TOKEN",
			TokenFile: defaultTokenFile(),
		},
		Upload: UploadConfig{
			MaxBytes:  100 * 1024 * 1024,
			FieldName: "video",
		},
		Speech: SpeechConfig{
			Enable:               true,
			LanguageCode:         "en-US",
			AutomaticPunctuation: true,
			Location:             "global",
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Recording: RecordingConfig{
			Chunk:                   time.Second,
			RequireSessionRecording: true,
		},
		Events: EventsConfig{
			Topic: "rehearse.sessions",
		},
		Clipboard: ClipboardConfig{Argv: []string{"wl-copy"}},
		Indicator: IndicatorConfig{Sound: true},
		Log:       LogConfig{Level: "info"},
	}
}
