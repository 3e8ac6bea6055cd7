// Package merkle is an implementation of a Merkle DAG of conversation turns.
//
// Every turn is a node whose hash covers its content and its parent's hash, so
// a node identifies the entire conversation leading up to it. Identical
// histories share nodes; a different reply to the same history branches.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Node represents a single content-addressed node in a Merkle DAG
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous node hash.
	// This will be nil for root nodes.
	ParentHash *string `json:"parent_hash"`

	// Bucket is the hashable content for the node.
	Bucket Bucket `json:"bucket"`

	// CreatedAt is when the node was first created. It is not hashed.
	CreatedAt time.Time `json:"created_at"`
}

// NodeMeta contains optional metadata for a node that is stored
// but does not affect the content-addressable hash.
type NodeMeta struct {
	CreatedAt time.Time
}

// NewNode creates a new node with the computed hash for the provided bucket.
// The optional NodeMeta sets metadata outside of the content addressable Bucket.
func NewNode(bucket Bucket, parent *Node, metas ...NodeMeta) *Node {
	n := &Node{
		Bucket:    bucket,
		CreatedAt: time.Now().UTC(),
	}

	if parent != nil {
		parentHash := parent.Hash
		n.ParentHash = &parentHash
	}

	if len(metas) > 0 && !metas[0].CreatedAt.IsZero() {
		n.CreatedAt = metas[0].CreatedAt.UTC()
	}

	n.Hash = n.computeHash()
	return n
}

// IsRoot reports whether the node starts a conversation.
func (n *Node) IsRoot() bool {
	return n.ParentHash == nil
}

// computeHash calculates the content-addressed hash for a node.
//
// encoding/json emits struct fields in declaration order with no
// insignificant whitespace, so the hash input is stable across runs.
func (n *Node) computeHash() string {
	parent := ""
	if n.ParentHash != nil {
		parent = *n.ParentHash
	}

	data, err := json.Marshal(struct {
		Parent  string `json:"parent"`
		Content Bucket `json:"content"`
	}{
		Parent:  parent,
		Content: n.Bucket,
	})
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Verify recomputes the hash and reports whether it matches n.Hash.
func (n *Node) Verify() bool {
	return n.computeHash() == n.Hash
}
