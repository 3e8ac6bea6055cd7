package eventstream

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/capsule/pkg/logger"
)

var (
	defaultNumWorkers uint = 1
	defaultQueueSize  uint = 64
)

// PoolConfig is the configuration options for the publish pool.
type PoolConfig struct {
	// Publisher receives every queued event. Required.
	Publisher Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered event channel (defaults to 64).
	QueueSize uint

	// Logger is the provided logger, defaults to a no-op logger.
	Logger *slog.Logger
}

// Pool publishes events asynchronously so a slow or unreachable broker never
// holds up the chat loop.
type Pool struct {
	publisher Publisher
	queue     chan *TurnCompletedEvent
	wg        sync.WaitGroup
	logger    *slog.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *PoolConfig) (*Pool, error) {
	if c.Publisher == nil {
		return nil, fmt.Errorf("publish pool requires a publisher")
	}

	numWorkers := c.NumWorkers
	if numWorkers == 0 {
		numWorkers = defaultNumWorkers
	}

	queueSize := c.QueueSize
	if queueSize == 0 {
		queueSize = defaultQueueSize
	}

	if numWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", numWorkers)
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	p := &Pool{
		publisher: c.Publisher,
		queue:     make(chan *TurnCompletedEvent, queueSize),
		logger:    log,
	}

	p.wg.Add(int(numWorkers))
	for i := range numWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits an event for publishing.
// Returns true if enqueued, false if the queue is full and the event was dropped.
func (p *Pool) Enqueue(event *TurnCompletedEvent) bool {
	if event == nil {
		return false
	}

	select {
	case p.queue <- event:
		p.logger.Debug("event queued", "event_id", event.EventID)
		return true
	default:
		p.logger.Error("event not queued, queue full, event dropped", "event_id", event.EventID)
		return false
	}
}

// Close stops the workers after the queued events are published, then closes
// the publisher. Enqueue must not be called after Close.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
		err = p.publisher.Close()
	})
	return err
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("publish worker started", "worker_id", id)

	for event := range p.queue {
		if err := p.publisher.PublishTurn(context.Background(), event); err != nil {
			p.logger.Error("publishing turn event failed",
				"event_id", event.EventID,
				"error", err,
			)
		}
	}

	p.logger.Debug("publish worker stopped", "worker_id", id)
}
