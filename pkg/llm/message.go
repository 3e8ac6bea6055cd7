// Package llm provides the internal representations of conversation turns and
// chat requests exchanged with the remote "future you" model.
package llm

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn represents a single message in a conversation.
// Ordering is significant: a conversation is the ordered sequence of Turns.
type Turn struct {
	Role    Role   `json:"role"`    // "user", "assistant"
	Content string `json:"content"` // Plain text, possibly markdown from the assistant
}

// NewUserTurn creates a user Turn with the given content.
func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// NewAssistantTurn creates an assistant Turn with the given content.
func NewAssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// CloneTurns returns a copy of turns that shares no backing array with the input.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
