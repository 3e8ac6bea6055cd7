package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/capsule/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after an assistant reply finished
	// streaming and was saved.
	EventTypeTurnCompleted = "capsule.turn.completed"
)

// TurnCompletedEvent is a transport-neutral event payload for a completed reply.
type TurnCompletedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// HeadHash is the DAG node the reply was stored under, empty when the
	// store is not content addressed.
	HeadHash string `json:"head_hash,omitempty"`

	// Index is the reply's position in the conversation.
	Index int      `json:"index"`
	Turn  llm.Turn `json:"turn"`

	// Fragments is the number of content fragments the reply was assembled from.
	Fragments  int   `json:"fragments"`
	DurationMs int64 `json:"duration_ms"`
}

// NewTurnCompletedEvent stamps a new event for turn.
func NewTurnCompletedEvent(index int, turn llm.Turn, fragments int, took time.Duration) *TurnCompletedEvent {
	return &TurnCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Index:         index,
		Turn:          turn,
		Fragments:     fragments,
		DurationMs:    took.Milliseconds(),
	}
}
