// Package testutils holds fakes shared by the package test suites.
package testutils

import (
	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/merkle"
)

// NewTestBucket creates a simple bucket for testing
func NewTestBucket(role llm.Role, text string) merkle.Bucket {
	return merkle.NewTurnBucket(llm.Turn{Role: role, Content: text}, "test-model")
}
