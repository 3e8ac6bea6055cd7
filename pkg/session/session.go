// Package session runs a conversation one reply at a time.
//
// Send appends the user's turn, opens a stream for the whole conversation,
// and assembles the reply into the conversation as it arrives. A finished
// reply is saved to the store and announced on the event pool; a failed one
// leaves a notice turn behind and the store untouched.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/capsule/pkg/conversation"
	"github.com/papercomputeco/capsule/pkg/eventstream"
	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/logger"
	"github.com/papercomputeco/capsule/pkg/stream"
	"github.com/papercomputeco/capsule/pkg/transport"
)

var (
	// ErrEmptyInput is returned when the submitted text is blank.
	ErrEmptyInput = errors.New("message is empty")

	// ErrStreamActive is returned when a reply is still streaming.
	ErrStreamActive = errors.New("a reply is still streaming")

	// ErrNoLetter is returned by SendLetter when there is no letter to send.
	ErrNoLetter = errors.New("no letter written")

	// ErrConversationStarted is returned by SendLetter when the conversation
	// already has turns.
	ErrConversationStarted = errors.New("conversation already started")
)

// Config is the session configuration.
type Config struct {
	// Initiator opens the reply stream. Required.
	Initiator transport.Initiator

	// Store supplies prior turns and receives completed conversations,
	// defaults to an in-memory store.
	Store conversation.Store

	// Sink renders the conversation as it changes. Optional.
	Sink conversation.Sink

	// Letter is sent as context with every request.
	Letter *llm.LetterContext

	// Model is passed to the endpoint when set.
	Model string

	// Events receives a TurnCompletedEvent per completed reply. Optional.
	Events *eventstream.Pool

	// Logger is the provided logger, defaults to a no-op logger.
	Logger *slog.Logger
}

// Session is a single conversation with at most one reply in flight.
type Session struct {
	initiator transport.Initiator
	store     conversation.Store
	sink      conversation.Sink
	letter    *llm.LetterContext
	model     string
	events    *eventstream.Pool
	logger    *slog.Logger

	conv   *conversation.Conversation
	active atomic.Bool

	// unsaved holds the indices of partial replies and notices from streams
	// that did not complete. They stay in the live conversation but never
	// reach the store.
	unsaved map[int]struct{}

	loadOnce sync.Once
	loadErr  error
}

// headTracker is implemented by stores that can name the node a saved
// conversation ends at.
type headTracker interface {
	Head() string
}

// New creates a Session. Prior turns are loaded from the store on first use.
func New(c *Config) (*Session, error) {
	if c.Initiator == nil {
		return nil, errors.New("session requires a transport initiator")
	}

	store := c.Store
	if store == nil {
		store = conversation.NewMemoryStore()
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Session{
		initiator: c.Initiator,
		store:     store,
		sink:      c.Sink,
		letter:    c.Letter,
		model:     c.Model,
		events:    c.Events,
		logger:    log,
		conv:      conversation.New(nil),
		unsaved:   make(map[int]struct{}),
	}, nil
}

// Load reads the prior turns from the store and publishes them to the sink.
// It runs once; later calls return the first result.
func (s *Session) Load(ctx context.Context) error {
	s.loadOnce.Do(func() {
		prior, err := s.store.Turns(ctx)
		if err != nil {
			s.loadErr = fmt.Errorf("loading conversation: %w", err)
			return
		}

		for _, turn := range prior {
			idx := s.conv.Append(turn)
			s.publish(idx, turn)
		}
		s.logger.Debug("conversation loaded", "turns", len(prior))
	})
	return s.loadErr
}

// Turns returns a snapshot of the conversation.
func (s *Session) Turns() []llm.Turn {
	return s.conv.Snapshot()
}

// Active reports whether a reply is streaming.
func (s *Session) Active() bool {
	return s.active.Load()
}

// HasLetter reports whether the session carries a letter.
func (s *Session) HasLetter() bool {
	return !s.letter.IsEmpty()
}

// SendLetter opens a fresh conversation by sending the letter as the first
// user turn.
func (s *Session) SendLetter(ctx context.Context) (stream.Result, error) {
	if s.letter.IsEmpty() {
		return stream.Result{}, ErrNoLetter
	}
	if err := s.Load(ctx); err != nil {
		return stream.Result{}, err
	}
	if s.conv.Len() > 0 {
		return stream.Result{}, ErrConversationStarted
	}
	return s.Send(ctx, s.letter.OpeningMessage())
}

// Send submits text as the next user turn and streams the reply into the
// conversation. A transport failure is not returned as an error: it ends the
// reply with a notice turn and is reported in Result.Err. The returned error
// is for misuse and for storage failures.
func (s *Session) Send(ctx context.Context, text string) (stream.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return stream.Result{}, ErrEmptyInput
	}

	if !s.active.CompareAndSwap(false, true) {
		return stream.Result{}, ErrStreamActive
	}
	defer s.active.Store(false)

	if err := s.Load(ctx); err != nil {
		return stream.Result{}, err
	}

	started := time.Now()

	user := llm.NewUserTurn(text)
	userIdx := s.conv.Append(user)
	s.publish(userIdx, user)

	req := &llm.ChatRequest{
		Model:         s.model,
		Messages:      s.conv.Snapshot(),
		LetterContext: s.letterContext(),
		Stream:        true,
	}

	a := stream.New(conversation.Fanout(s.conv, s.sink), userIdx+1, stream.WithLogger(s.logger))

	body, err := s.initiator.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			a.Abort(ctx.Err())
		} else {
			s.logger.Warn("could not open reply stream", "error", err)
			a.Fail(err)
		}
		return a.Result(), nil
	}

	// Closing the body unblocks a pending Read once ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()
	defer body.Close()

	res := stream.Consume(ctx, a, body)

	s.logger.Debug("reply stream ended",
		"state", res.State,
		"fragments", res.Fragments,
		"rebuffered", res.Rebuffered,
		"dropped", res.Dropped,
		"error", res.Err,
	)

	if !res.Completed() {
		if res.State == stream.Failed {
			for i := userIdx + 1; i < s.conv.Len(); i++ {
				s.unsaved[i] = struct{}{}
			}
		}
		return res, nil
	}

	if err := s.store.Save(ctx, s.persistent()); err != nil {
		return res, fmt.Errorf("saving conversation: %w", err)
	}

	s.logger.Info("reply completed",
		"index", res.Index,
		"fragments", res.Fragments,
		"duration", time.Since(started),
	)
	s.announce(res, time.Since(started))
	return res, nil
}

// persistent returns the conversation without the turns of failed replies.
func (s *Session) persistent() []llm.Turn {
	turns := s.conv.Snapshot()
	if len(s.unsaved) == 0 {
		return turns
	}

	kept := make([]llm.Turn, 0, len(turns))
	for i, turn := range turns {
		if _, skip := s.unsaved[i]; !skip {
			kept = append(kept, turn)
		}
	}
	return kept
}

func (s *Session) announce(res stream.Result, took time.Duration) {
	if s.events == nil {
		return
	}

	event := eventstream.NewTurnCompletedEvent(res.Index, *res.Turn, res.Fragments, took)
	if h, ok := s.store.(headTracker); ok {
		event.HeadHash = h.Head()
	}
	s.events.Enqueue(event)
}

func (s *Session) letterContext() *llm.LetterContext {
	if s.letter.IsEmpty() {
		return nil
	}
	l := *s.letter
	return &l
}

func (s *Session) publish(index int, turn llm.Turn) {
	if s.sink != nil {
		s.sink.Publish(index, turn)
	}
}
