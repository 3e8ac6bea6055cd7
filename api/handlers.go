package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/merkle"
	"github.com/papercomputeco/capsule/pkg/storage"
)

// HistoryResponse contains the conversation history for a given node.
type HistoryResponse struct {
	// Messages in chronological order (oldest first, up to and including the requested node)
	Messages []HistoryMessage `json:"messages"`
	// HeadHash is the hash of the node that was requested
	HeadHash string `json:"head_hash"`
	// Depth is the number of messages in the history
	Depth int `json:"depth"`
}

// HistoryMessage represents a message in the conversation history.
type HistoryMessage struct {
	Hash       string    `json:"hash"`
	ParentHash *string   `json:"parent_hash,omitempty"`
	Role       llm.Role  `json:"role"`
	Content    string    `json:"content"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// BranchNode is one node of a conversation tree.
type BranchNode struct {
	HistoryMessage
	Children []*BranchNode `json:"children,omitempty"`
}

// BranchResponse is every conversation that passes through a node.
type BranchResponse struct {
	Root         *BranchNode `json:"root"`
	Size         int         `json:"size"`
	Leaves       []string    `json:"leaves"`
	BranchPoints []string    `json:"branch_points"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleDAGStats returns statistics about the DAG.
func (s *Server) handleDAGStats(c *fiber.Ctx) error {
	ctx := c.Context()

	nodes, err := s.driver.List(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list nodes"})
	}

	roots, err := s.driver.Roots(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get roots"})
	}

	leaves, err := s.driver.Leaves(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	stats := map[string]any{
		"total_nodes": len(nodes),
		"root_count":  len(roots),
		"leaf_count":  len(leaves),
	}

	return c.JSON(stats)
}

// handleGetNode returns a single node by its hash.
func (s *Server) handleGetNode(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "hash parameter required"})
	}

	node, err := s.driver.Get(c.Context(), hash)
	if err != nil {
		return s.lookupError(c, hash, err)
	}

	return c.JSON(node)
}

// handleListHistories returns all conversation histories (one per leaf node).
func (s *Server) handleListHistories(c *fiber.Ctx) error {
	ctx := c.Context()

	leaves, err := s.driver.Leaves(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	histories := make([]HistoryResponse, 0, len(leaves))
	for _, leaf := range leaves {
		history, err := s.buildHistory(ctx, leaf.Hash)
		if err != nil {
			s.logger.Warn("failed to build history for leaf",
				"hash", leaf.Hash,
				"error", err,
			)
			continue
		}
		histories = append(histories, *history)
	}

	return c.JSON(map[string]any{
		"count":     len(histories),
		"histories": histories,
	})
}

// handleGetHistory returns the full conversation history leading up to a given node.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "hash parameter required"})
	}

	history, err := s.buildHistory(c.Context(), hash)
	if err != nil {
		return s.lookupError(c, hash, err)
	}

	return c.JSON(history)
}

// handleGetBranch returns the tree of every conversation passing through a node.
func (s *Server) handleGetBranch(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "hash parameter required"})
	}

	dag, err := merkle.LoadDag(c.Context(), s.driver, hash)
	if err != nil {
		return s.lookupError(c, hash, err)
	}

	resp := BranchResponse{
		Root:         branchNode(dag.Root),
		Size:         dag.Size(),
		Leaves:       hashes(dag.Leaves()),
		BranchPoints: hashes(dag.BranchPoints()),
	}
	return c.JSON(resp)
}

// lookupError maps a failed node lookup to 404 or 500.
func (s *Server) lookupError(c *fiber.Ctx, hash string, err error) error {
	if storage.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	s.logger.Error("node lookup failed", "hash", hash, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load node"})
}

// buildHistory constructs a HistoryResponse for the given node hash.
func (s *Server) buildHistory(ctx context.Context, hash string) (*HistoryResponse, error) {
	ancestry, err := s.driver.Ancestry(ctx, hash)
	if err != nil {
		return nil, err
	}

	messages := make([]HistoryMessage, len(ancestry))
	for i, node := range ancestry {
		messages[len(ancestry)-1-i] = historyMessage(node)
	}

	return &HistoryResponse{
		Messages: messages,
		HeadHash: hash,
		Depth:    len(messages),
	}, nil
}

func historyMessage(node *merkle.Node) HistoryMessage {
	return HistoryMessage{
		Hash:       node.Hash,
		ParentHash: node.ParentHash,
		Role:       node.Bucket.Role,
		Content:    node.Bucket.Content,
		Model:      node.Bucket.Model,
		CreatedAt:  node.CreatedAt,
	}
}

func branchNode(n *merkle.DagNode) *BranchNode {
	out := &BranchNode{HistoryMessage: historyMessage(n.Node)}
	for _, child := range n.Children {
		out.Children = append(out.Children, branchNode(child))
	}
	return out
}

func hashes(nodes []*merkle.DagNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Hash
	}
	return out
}
