package merkle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/papercomputeco/capsule/pkg/llm"
)

// DagLoader loads nodes for a Dag. Every storage.Driver satisfies it.
type DagLoader interface {
	// GetByParent retrieves all nodes that have the given parent hash.
	// Pass nil to get root nodes.
	GetByParent(ctx context.Context, parentHash *string) ([]*Node, error)

	// Ancestry returns the path from a node back to its root (node first, root last).
	Ancestry(ctx context.Context, hash string) ([]*Node, error)
}

// Dag is an in-memory view of the single-rooted tree of conversations that
// share a first turn.
type Dag struct {
	// Root is the first turn every conversation in the view shares
	Root *DagNode

	// index provides O(1) lookup by node hash
	index map[string]*DagNode
}

// DagNode wraps a Node with its tree relationships.
type DagNode struct {
	*Node

	// Parent is nil for the root
	Parent *DagNode

	// Children are ordered by creation time
	Children []*DagNode
}

// NewDag creates an empty Dag.
func NewDag() *Dag {
	return &Dag{
		index: make(map[string]*DagNode),
	}
}

// LoadDag loads every conversation that passes through hash: all of its
// ancestors up to the root and all of its descendants down to the leaves.
func LoadDag(ctx context.Context, loader DagLoader, hash string) (*Dag, error) {
	ancestry, err := loader.Ancestry(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("getting ancestry for %s: %w", hash, err)
	}
	if len(ancestry) == 0 {
		return nil, fmt.Errorf("node %s not found", hash)
	}

	dag := NewDag()
	for i := len(ancestry) - 1; i >= 0; i-- {
		if _, err := dag.addNode(ancestry[i]); err != nil {
			return nil, fmt.Errorf("adding ancestor node: %w", err)
		}
	}

	if err := dag.loadDescendants(ctx, loader, dag.Get(hash)); err != nil {
		return nil, fmt.Errorf("loading descendants: %w", err)
	}

	return dag, nil
}

// Get returns the DagNode with the given hash, or nil if not found.
func (d *Dag) Get(hash string) *DagNode {
	return d.index[hash]
}

// Size returns the total number of nodes in the DAG.
func (d *Dag) Size() int {
	return len(d.index)
}

// Leaves returns the last turn of every conversation in the view.
func (d *Dag) Leaves() []*DagNode {
	leaves := []*DagNode{}
	_ = d.Walk(func(n *DagNode) (bool, error) {
		if len(n.Children) == 0 {
			leaves = append(leaves, n)
		}
		return true, nil
	})
	return leaves
}

// Walk traverses the DAG depth-first from root, calling fn for each node.
// Traversal stops when f returns false or an error; the error is returned.
func (d *Dag) Walk(f func(*DagNode) (bool, error)) error {
	if d.Root == nil {
		return nil
	}
	_, err := walkNode(d.Root, f)
	return err
}

func walkNode(node *DagNode, f func(*DagNode) (bool, error)) (bool, error) {
	ok, err := f(node)
	if !ok || err != nil {
		return false, err
	}

	for _, child := range node.Children {
		ok, err := walkNode(child, f)
		if !ok || err != nil {
			return false, err
		}
	}

	return true, nil
}

// Ancestors returns the path from the given node up to the root, node first.
// Returns nil if the hash is not found.
func (d *Dag) Ancestors(hash string) []*DagNode {
	node := d.Get(hash)
	if node == nil {
		return nil
	}

	ancestors := []*DagNode{}
	for current := node; current != nil; current = current.Parent {
		ancestors = append(ancestors, current)
	}
	return ancestors
}

// Descendants returns every node below hash in depth-first order.
// Returns nil if the hash is not found.
func (d *Dag) Descendants(hash string) []*DagNode {
	node := d.Get(hash)
	if node == nil {
		return nil
	}

	descendants := []*DagNode{}
	for _, child := range node.Children {
		_, _ = walkNode(child, func(n *DagNode) (bool, error) {
			descendants = append(descendants, n)
			return true, nil
		})
	}
	return descendants
}

// Turns returns the conversation ending at hash, oldest turn first.
func (d *Dag) Turns(hash string) []llm.Turn {
	ancestors := d.Ancestors(hash)
	turns := make([]llm.Turn, len(ancestors))
	for i, n := range ancestors {
		turns[len(ancestors)-1-i] = n.Bucket.Turn()
	}
	return turns
}

// IsBranching returns true if the node with the given hash has multiple children.
func (d *Dag) IsBranching(hash string) bool {
	node := d.Get(hash)
	return node != nil && len(node.Children) > 1
}

// BranchPoints returns all nodes that have more than one child.
func (d *Dag) BranchPoints() []*DagNode {
	points := []*DagNode{}
	_ = d.Walk(func(n *DagNode) (bool, error) {
		if len(n.Children) > 1 {
			points = append(points, n)
		}
		return true, nil
	})
	return points
}

// addNode links node into the DAG. Its parent must already be present, or it
// must be the one root. Adding a node twice is a no-op.
func (d *Dag) addNode(node *Node) (*DagNode, error) {
	if node == nil {
		return nil, errors.New("cannot add nil node to dag")
	}

	if dagNode, ok := d.index[node.Hash]; ok {
		return dagNode, nil
	}

	dagNode := &DagNode{
		Node:     node,
		Children: make([]*DagNode, 0),
	}

	if node.ParentHash == nil {
		if d.Root != nil {
			return nil, errors.New("DAG already has a root node")
		}
		d.Root = dagNode
	} else {
		parent, ok := d.index[*node.ParentHash]
		if !ok {
			return nil, fmt.Errorf("parent node %s not found in dag", *node.ParentHash)
		}
		dagNode.Parent = parent
		parent.Children = append(parent.Children, dagNode)
	}

	d.index[node.Hash] = dagNode
	return dagNode, nil
}

func (d *Dag) loadDescendants(ctx context.Context, loader DagLoader, node *DagNode) error {
	children, err := loader.GetByParent(ctx, &node.Hash)
	if err != nil {
		return fmt.Errorf("getting children of %s: %w", node.Hash, err)
	}

	sort.SliceStable(children, func(i, j int) bool {
		return children[i].CreatedAt.Before(children[j].CreatedAt)
	})

	for _, child := range children {
		if d.Get(child.Hash) != nil {
			continue
		}

		childNode, err := d.addNode(child)
		if err != nil {
			return fmt.Errorf("adding child node %s: %w", child.Hash, err)
		}

		if err := d.loadDescendants(ctx, loader, childNode); err != nil {
			return err
		}
	}

	return nil
}
