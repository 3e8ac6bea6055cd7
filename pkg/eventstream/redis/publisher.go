// Package redis publishes turn events to a Redis stream with go-redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/capsule/pkg/eventstream"
	"github.com/papercomputeco/capsule/pkg/logger"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultMaxLen       = 10000
)

var (
	// ErrNoAddr is returned when no server address is configured.
	ErrNoAddr = errors.New("redis: no address configured")

	// ErrNoStream is returned when no stream key is configured.
	ErrNoStream = errors.New("redis: no stream configured")
)

// StreamWriter is the part of *goredis.Client the publisher uses.
type StreamWriter interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	Close() error
}

// Config configures the redis publisher.
type Config struct {
	Addr   string
	Stream string

	// MaxLen approximately caps the stream length. Defaults to 10000,
	// negative disables trimming.
	MaxLen int64

	// WriteTimeout bounds a single publish. Defaults to 10s.
	WriteTimeout time.Duration

	// Client overrides the go-redis client built from Addr.
	Client StreamWriter

	Logger *slog.Logger
}

// Publisher appends each event to the stream as one entry.
type Publisher struct {
	client  StreamWriter
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher validates c and builds a Publisher.
func NewPublisher(c *Config) (*Publisher, error) {
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	if strings.TrimSpace(c.Stream) == "" {
		return nil, ErrNoStream
	}

	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	maxLen := c.MaxLen
	switch {
	case maxLen == 0:
		maxLen = defaultMaxLen
	case maxLen < 0:
		maxLen = 0
	}

	client := c.Client
	if client == nil {
		addr := strings.TrimSpace(c.Addr)
		if addr == "" {
			return nil, ErrNoAddr
		}
		client = goredis.NewClient(&goredis.Options{
			Addr:         addr,
			WriteTimeout: timeout,
		})
	}

	return &Publisher{
		client:  client,
		stream:  c.Stream,
		maxLen:  maxLen,
		timeout: timeout,
		logger:  log,
	}, nil
}

// PublishTurn marshals event and appends it to the stream.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding turn event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id, err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: map[string]any{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"payload":    string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("appending turn event to %s: %w", p.stream, err)
	}

	p.logger.Debug("turn event published",
		"stream", p.stream,
		"entry_id", id,
		"event_id", event.EventID,
	)
	return nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
