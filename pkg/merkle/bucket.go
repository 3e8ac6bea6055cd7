package merkle

import "github.com/papercomputeco/capsule/pkg/llm"

// BucketTypeMessage is the bucket type of a conversation turn.
const BucketTypeMessage = "message"

// Bucket represents the hashable content stored in a Merkle DAG node.
// This is the canonical storage format for conversation turns.
type Bucket struct {
	// Type identifies the kind of content (e.g., "message")
	Type string `json:"type"`

	// Role indicates who produced this message ("user", "assistant")
	Role llm.Role `json:"role"`

	// Content is the plain text of the turn
	Content string `json:"content"`

	// Model identifies the model that produced an assistant turn
	Model string `json:"model,omitempty"`
}

// NewTurnBucket creates a message bucket for turn. model is only recorded for
// assistant turns.
func NewTurnBucket(turn llm.Turn, model string) Bucket {
	b := Bucket{
		Type:    BucketTypeMessage,
		Role:    turn.Role,
		Content: turn.Content,
	}
	if turn.Role == llm.RoleAssistant {
		b.Model = model
	}
	return b
}

// Turn converts the bucket back into a conversation turn.
func (b *Bucket) Turn() llm.Turn {
	return llm.Turn{Role: b.Role, Content: b.Content}
}
