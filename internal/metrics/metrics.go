// Package metrics provides Prometheus metrics for interview sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rehearse"

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics holds the session metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Persistence metrics
	SavesTotal  *prometheus.CounterVec
	SaveLatency prometheus.Histogram

	// Upload metrics
	UploadsTotal *prometheus.CounterVec
	UploadBytes  prometheus.Counter

	// Session metrics
	FinalizeTotal  *prometheus.CounterVec
	SpeechSegments prometheus.Counter

	// Event publish metrics
	PublishTotal   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_saves_total",
			Help:      "Total number of answer save requests",
		}, []string{"result"}),
		SaveLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_save_latency_seconds",
			Help:      "Answer save latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_uploads_total",
			Help:      "Total number of recording uploads",
		}, []string{"result", "kind"}),
		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_upload_bytes_total",
			Help:      "Total recording bytes uploaded successfully",
		}),

		FinalizeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_total",
			Help:      "Total number of interview finalize attempts",
		}, []string{"result"}),
		SpeechSegments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_segments_total",
			Help:      "Total number of final speech segments committed to drafts",
		}),

		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of session events published",
		}, []string{"topic", "event_type"}),
		PublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_publish_errors_total",
			Help:      "Total number of session event publish errors",
		}, []string{"topic", "event_type"}),
		PublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "events_publish_latency_seconds",
			Help:      "Session event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SaveCompleted records one answer save.
func (m *Metrics) SaveCompleted(d time.Duration, err error) {
	m.SavesTotal.WithLabelValues(result(err)).Inc()
	m.SaveLatency.Observe(d.Seconds())
}

// UploadCompleted records one recording upload.
func (m *Metrics) UploadCompleted(kind string, bytes int64, err error) {
	if err != nil {
		if kind == "" {
			kind = "unknown"
		}
		m.UploadsTotal.WithLabelValues(resultError, kind).Inc()
		return
	}
	m.UploadsTotal.WithLabelValues(resultOK, "").Inc()
	m.UploadBytes.Add(float64(bytes))
}

// FinalizeCompleted records one finalize attempt.
func (m *Metrics) FinalizeCompleted(err error) {
	m.FinalizeTotal.WithLabelValues(result(err)).Inc()
}

// SpeechSegment records a final speech segment.
func (m *Metrics) SpeechSegment() {
	m.SpeechSegments.Inc()
}

// RecordPublish records an event publish attempt.
func (m *Metrics) RecordPublish(topic, eventType string, err error, latencySeconds float64) {
	m.PublishTotal.WithLabelValues(topic, eventType).Inc()
	m.PublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.PublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// WriteTextfile writes the current values in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
