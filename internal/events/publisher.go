// Package events publishes session events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic carries every session event.
const DefaultTopic = "rehearse.sessions"

// Recorder observes publish attempts.
type Recorder interface {
	RecordPublish(topic, eventType string, err error, latencySeconds float64)
}

// Typed events name themselves in the eventType header.
type Typed interface {
	EventType() string
}

// Config holds Kafka publisher configuration.
type Config struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
}

// Publisher writes JSON session events keyed by interview id.
type Publisher struct {
	logger   *slog.Logger
	writer   *kafka.Writer
	topic    string
	clientID string
	enabled  bool
	recorder Recorder
}

// New creates a publisher. A disabled config or missing brokers yields a log-only publisher.
func New(cfg Config, logger *slog.Logger, recorder Recorder) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	p := &Publisher{
		logger:   logger,
		topic:    cfg.Topic,
		clientID: cfg.ClientID,
		recorder: recorder,
	}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Debug("event publishing disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc, ClientID: cfg.ClientID},
	}
	p.enabled = true

	logger.Info("kafka publisher initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return p
}

// Enabled reports whether events reach a broker.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Publish writes one event. Events for the same key land on the same partition.
func (p *Publisher) Publish(ctx context.Context, key string, event any) error {
	start := time.Now()
	eventType := "event"
	if typed, ok := event.(Typed); ok && typed.EventType() != "" {
		eventType = typed.EventType()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event", "topic", p.topic, "event_type", eventType, "error", err.Error())
		return err
	}

	p.logger.Debug("publishing event",
		"topic", p.topic,
		"key", key,
		"event_type", eventType,
		"payload", json.RawMessage(payload),
	)

	if !p.enabled || p.writer == nil {
		p.record(eventType, nil, start)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "clientId", Value: []byte(p.clientID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("write event to kafka", "topic", p.topic, "key", key, "error", err.Error())
		p.record(eventType, err, start)
		return err
	}

	p.record(eventType, nil, start)
	return nil
}

func (p *Publisher) record(eventType string, err error, start time.Time) {
	if p.recorder == nil {
		return
	}
	p.recorder.RecordPublish(p.topic, eventType, err, time.Since(start).Seconds())
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error("close kafka writer", "error", err.Error())
		return err
	}
	return nil
}

// Ping dials the first reachable broker and reads its partition metadata for topic.
func Ping(ctx context.Context, brokers []string, topic string) (string, error) {
	if len(brokers) == 0 {
		return "", errors.New("no brokers configured")
	}
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.ReadPartitions(topic)
		_ = conn.Close()
		if err != nil {
			return broker, fmt.Errorf("read partitions for %s: %w", topic, err)
		}
		return broker, nil
	}
	return "", fmt.Errorf("dial brokers: %w", lastErr)
}
