// Package kafka publishes turn events to a Kafka topic with segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/capsule/pkg/eventstream"
	"github.com/papercomputeco/capsule/pkg/logger"
)

const defaultWriteTimeout = 10 * time.Second

var (
	// ErrNoBrokers is returned when no broker address is configured.
	ErrNoBrokers = errors.New("kafka: no brokers configured")

	// ErrNoTopic is returned when no topic is configured.
	ErrNoTopic = errors.New("kafka: no topic configured")
)

// MessageWriter is the part of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single publish. Defaults to 10s.
	WriteTimeout time.Duration

	// Writer overrides the kafka-go writer built from Brokers and Topic.
	Writer MessageWriter

	Logger *slog.Logger
}

// Publisher writes each event as one JSON message keyed by event ID.
type Publisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher validates c and builds a Publisher.
func NewPublisher(c *Config) (*Publisher, error) {
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	writer := c.Writer
	if writer == nil {
		brokers := cleanBrokers(c.Brokers)
		if len(brokers) == 0 {
			return nil, ErrNoBrokers
		}
		if strings.TrimSpace(c.Topic) == "" {
			return nil, ErrNoTopic
		}

		writer = &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  c.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			WriteTimeout:           timeout,
			AllowAutoTopicCreation: true,
		}
	}

	return &Publisher{
		writer:  writer,
		topic:   c.Topic,
		timeout: timeout,
		logger:  log,
	}, nil
}

// PublishTurn marshals event and writes it to the topic.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding turn event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.EventID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing turn event to %s: %w", p.topic, err)
	}

	p.logger.Debug("turn event published",
		"topic", p.topic,
		"event_id", event.EventID,
		"bytes", len(value),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func cleanBrokers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
