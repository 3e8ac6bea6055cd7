package llm

// CompletionChunk is a single OpenAI-compatible chat completion chunk as it
// appears in the data portion of an SSE frame. The assembler only reads
// choices[0].delta.content; the remaining fields exist so fixtures and test
// upstreams produce realistic frames.
type CompletionChunk struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is one element of CompletionChunk.Choices.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta carries the incremental fragment. Content is a pointer so a
// control chunk (role-only or finish chunk) marshals without a content field.
type ChunkDelta struct {
	Role    Role    `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// NewContentChunk builds a chunk carrying a single content fragment.
func NewContentChunk(model, fragment string) CompletionChunk {
	return CompletionChunk{
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []ChunkChoice{
			{Delta: ChunkDelta{Content: &fragment}},
		},
	}
}

// NewFinishChunk builds the trailing chunk that carries only a finish reason.
func NewFinishChunk(model, reason string) CompletionChunk {
	return CompletionChunk{
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []ChunkChoice{
			{FinishReason: &reason},
		},
	}
}
