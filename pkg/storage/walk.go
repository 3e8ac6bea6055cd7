package storage

import (
	"context"
	"fmt"

	"github.com/papercomputeco/capsule/pkg/merkle"
)

// Getter is the single-node lookup the path helpers walk with.
type Getter interface {
	Get(ctx context.Context, hash string) (*merkle.Node, error)
}

// Ancestry walks parent links from hash back to its root (node first, root last).
func Ancestry(ctx context.Context, g Getter, hash string) ([]*merkle.Node, error) {
	var path []*merkle.Node
	current := hash

	for {
		node, err := g.Get(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("getting node %s: %w", current, err)
		}
		path = append(path, node)

		if node.ParentHash == nil {
			break
		}
		current = *node.ParentHash
	}

	return path, nil
}

// Depth walks parent links from hash and counts them (0 for roots).
func Depth(ctx context.Context, g Getter, hash string) (int, error) {
	depth := 0
	current := hash

	for {
		node, err := g.Get(ctx, current)
		if err != nil {
			return 0, err
		}
		if node.ParentHash == nil {
			break
		}
		depth++
		current = *node.ParentHash
	}

	return depth, nil
}
