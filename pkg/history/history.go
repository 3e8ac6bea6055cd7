// Package history stores conversations in the content-addressed DAG and
// tracks which conversation the next chat resumes.
//
// Store implements conversation.Store. Save writes only the turns that extend
// the checked-out path:
//
//	root (letter) -> reply -> question -> reply   <- checked-out head
//	                                   \-> reply  <- another branch
//
// and moves the checkout to the new head, so a later Turns call resumes from
// the same point even in a new process.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/capsule/pkg/dotdir"
	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/logger"
	"github.com/papercomputeco/capsule/pkg/merkle"
	"github.com/papercomputeco/capsule/pkg/storage"
)

// Config is the history store configuration.
type Config struct {
	// Driver is the node store. Required.
	Driver storage.Driver

	// Dotdir resolves where the checkout state lives, defaults to a new manager.
	Dotdir *dotdir.Manager

	// Dir overrides the .capsule directory.
	Dir string

	// Model is recorded on newly stored assistant turns.
	Model string

	// Logger is the provided logger, defaults to a no-op logger.
	Logger *slog.Logger
}

// Store is a conversation.Store backed by a storage.Driver.
type Store struct {
	driver storage.Driver
	dotdir *dotdir.Manager
	dir    string
	model  string
	logger *slog.Logger
}

// Conversation is one stored conversation, identified by its head node.
type Conversation struct {
	HeadHash  string     `json:"head_hash"`
	RootHash  string     `json:"root_hash"`
	Turns     []llm.Turn `json:"turns"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewStore creates a Store.
func NewStore(c *Config) (*Store, error) {
	if c.Driver == nil {
		return nil, errors.New("history store requires a storage driver")
	}

	m := c.Dotdir
	if m == nil {
		m = dotdir.NewManager()
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Store{
		driver: c.Driver,
		dotdir: m,
		dir:    c.Dir,
		model:  c.Model,
		logger: log,
	}, nil
}

// Turns returns the checked-out conversation, oldest first. Without a checkout
// the conversation is empty. When the checked-out head is missing from the
// driver, the turns cached in the checkout state are used.
func (s *Store) Turns(ctx context.Context) ([]llm.Turn, error) {
	state, err := s.dotdir.LoadCheckoutState(s.dir)
	if err != nil {
		return nil, fmt.Errorf("loading checkout state: %w", err)
	}
	if state == nil {
		return nil, nil
	}
	if state.Hash == "" {
		return llm.CloneTurns(state.Turns), nil
	}

	path, err := s.driver.Ancestry(ctx, state.Hash)
	if err != nil {
		if storage.IsNotFound(err) {
			s.logger.Warn("checked-out node not in store, using cached turns",
				"hash", state.Hash,
				"turns", len(state.Turns),
			)
			return llm.CloneTurns(state.Turns), nil
		}
		return nil, fmt.Errorf("loading conversation %s: %w", state.Hash, err)
	}

	return pathTurns(path), nil
}

// Save stores turns as a chain of nodes and checks out the new head. Turns
// already on the checked-out path are not stored again.
func (s *Store) Save(ctx context.Context, turns []llm.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	state, err := s.dotdir.LoadCheckoutState(s.dir)
	if err != nil {
		return fmt.Errorf("loading checkout state: %w", err)
	}

	var existing []*merkle.Node
	if state != nil && state.Hash != "" {
		path, err := s.driver.Ancestry(ctx, state.Hash)
		switch {
		case err == nil:
			existing = rootFirst(path)
		case storage.IsNotFound(err):
			s.logger.Debug("checked-out node not in store, saving a new chain", "hash", state.Hash)
		default:
			return fmt.Errorf("loading conversation %s: %w", state.Hash, err)
		}
	}

	var parent *merkle.Node
	shared := 0
	for shared < len(existing) && shared < len(turns) && existing[shared].Bucket.Turn() == turns[shared] {
		parent = existing[shared]
		shared++
	}

	inserted := 0
	for _, turn := range turns[shared:] {
		node := merkle.NewNode(merkle.NewTurnBucket(turn, s.model), parent)

		isNew, err := s.driver.Put(ctx, node)
		if err != nil {
			return fmt.Errorf("storing %s turn: %w", turn.Role, err)
		}
		if isNew {
			inserted++
		}

		s.logger.Debug("stored turn in DAG",
			"hash", node.Hash,
			"role", turn.Role,
			"is_new", isNew,
		)
		parent = node
	}

	checkout := &dotdir.CheckoutState{
		Hash:  parent.Hash,
		Turns: llm.CloneTurns(turns),
	}
	if err := s.dotdir.SaveCheckout(checkout, s.dir); err != nil {
		return fmt.Errorf("saving checkout: %w", err)
	}

	s.logger.Info("conversation stored",
		"head", parent.Hash,
		"turns", len(turns),
		"new_nodes", inserted,
	)
	return nil
}

// Head returns the checked-out node hash, empty when nothing is checked out.
func (s *Store) Head() string {
	state, err := s.dotdir.LoadCheckoutState(s.dir)
	if err != nil || state == nil {
		return ""
	}
	return state.Hash
}

// Checkout makes hash the point the next chat resumes from and returns the
// conversation up to it.
func (s *Store) Checkout(ctx context.Context, hash string) (*Conversation, error) {
	conv, err := s.Conversation(ctx, hash)
	if err != nil {
		return nil, err
	}

	state := &dotdir.CheckoutState{Hash: conv.HeadHash, Turns: conv.Turns}
	if err := s.dotdir.SaveCheckout(state, s.dir); err != nil {
		return nil, fmt.Errorf("saving checkout: %w", err)
	}
	return conv, nil
}

// Clear removes the checkout so the next chat starts a new conversation.
func (s *Store) Clear() error {
	return s.dotdir.ClearCheckout(s.dir)
}

// ErrAmbiguousHash is returned by Resolve when a prefix matches more than one
// node.
var ErrAmbiguousHash = errors.New("ambiguous hash prefix")

// Resolve expands a hash prefix to the full hash of the one node it matches.
func (s *Store) Resolve(ctx context.Context, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", storage.NotFoundError{}
	}

	ok, err := s.driver.Has(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", prefix, err)
	}
	if ok {
		return prefix, nil
	}

	nodes, err := s.driver.List(ctx)
	if err != nil {
		return "", fmt.Errorf("listing nodes: %w", err)
	}

	match := ""
	for _, node := range nodes {
		if !strings.HasPrefix(node.Hash, prefix) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %s", ErrAmbiguousHash, prefix)
		}
		match = node.Hash
	}

	if match == "" {
		return "", storage.NotFoundError{Hash: prefix}
	}
	return match, nil
}

// Conversation returns the conversation that ends at hash.
func (s *Store) Conversation(ctx context.Context, hash string) (*Conversation, error) {
	path, err := s.driver.Ancestry(ctx, hash)
	if err != nil {
		return nil, err
	}
	return newConversation(path), nil
}

// Conversations returns one conversation per leaf node, oldest first.
func (s *Store) Conversations(ctx context.Context) ([]*Conversation, error) {
	leaves, err := s.driver.Leaves(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing leaves: %w", err)
	}

	out := make([]*Conversation, 0, len(leaves))
	for _, leaf := range leaves {
		path, err := s.driver.Ancestry(ctx, leaf.Hash)
		if err != nil {
			return nil, fmt.Errorf("loading conversation %s: %w", leaf.Hash, err)
		}
		out = append(out, newConversation(path))
	}
	return out, nil
}

// newConversation builds a Conversation from a node-first ancestry path.
func newConversation(path []*merkle.Node) *Conversation {
	head := path[0]
	return &Conversation{
		HeadHash:  head.Hash,
		RootHash:  path[len(path)-1].Hash,
		Turns:     pathTurns(path),
		UpdatedAt: head.CreatedAt,
	}
}

func pathTurns(path []*merkle.Node) []llm.Turn {
	turns := make([]llm.Turn, len(path))
	for i, node := range rootFirst(path) {
		turns[i] = node.Bucket.Turn()
	}
	return turns
}

// rootFirst reverses a node-first ancestry path.
func rootFirst(path []*merkle.Node) []*merkle.Node {
	out := make([]*merkle.Node, len(path))
	for i, node := range path {
		out[len(path)-1-i] = node
	}
	return out
}
