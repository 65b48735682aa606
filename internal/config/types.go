// Package config resolves, parses, validates, and defaults rehearse configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by rehearse.
type Config struct {
	Service   ServiceConfig
	Auth      AuthConfig
	Upload    UploadConfig
	Speech    SpeechConfig
	Audio     AudioConfig
	Recording RecordingConfig
	Events    EventsConfig
	Metrics   MetricsConfig
	Clipboard ClipboardConfig
	Indicator IndicatorConfig
	Log       LogConfig
	Debug     DebugConfig
}

// ServiceConfig locates the interview persistence service.
type ServiceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AuthConfig names the credential sources consulted per request.
type AuthConfig struct {
	TokenEnv  string
	TokenFile string
}

// UploadConfig bounds recording uploads.
type UploadConfig struct {
	MaxBytes  int64
	FieldName string
}

// SpeechConfig controls streaming recognition.
type SpeechConfig struct {
	Enable               bool
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	CredentialsFile      string
	Location             string
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// RecordingConfig controls media recording.
type RecordingConfig struct {
	Chunk                   time.Duration
	RequireSessionRecording bool
}

// EventsConfig controls the optional Kafka session-event publisher.
type EventsConfig struct {
	Enable  bool
	Brokers []string
	Topic   string
}

// MetricsConfig controls Prometheus textfile export.
type MetricsConfig struct {
	Textfile string
}

// ClipboardConfig is the command that receives copied answers on stdin.
type ClipboardConfig struct {
	Argv []string
}

// IndicatorConfig controls audible capture cues. Empty files use built-in tones.
type IndicatorConfig struct {
	Sound        bool
	StartFile    string
	StopFile     string
	CompleteFile string
	ErrorFile    string
}

// LogConfig controls the JSONL log sink.
type LogConfig struct {
	Level string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	SpeechDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
