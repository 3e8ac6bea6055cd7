package llm

import "strings"

// LetterContext is the side-channel context written by the user before the
// conversation starts. It accompanies every request so the remote model can
// answer as the user's future self.
type LetterContext struct {
	Goals  string `json:"goals"`
	Fears  string `json:"fears"`
	Dreams string `json:"dreams"`
	Letter string `json:"letter"`
}

// IsEmpty reports whether the letter body is blank. The other fields are
// optional and do not make a letter on their own.
func (l *LetterContext) IsEmpty() bool {
	return l == nil || strings.TrimSpace(l.Letter) == ""
}

// OpeningMessage is the first user message sent on behalf of a fresh letter.
func (l *LetterContext) OpeningMessage() string {
	return "I wrote you a letter. Here it is:\n\n" + l.Letter
}

// ChatRequest is the body posted to the chat endpoint.
type ChatRequest struct {
	// Model name, omitted when the endpoint picks for itself
	Model string `json:"model,omitempty"`

	// Full ordered conversation, oldest first
	Messages []Turn `json:"messages"`

	// Letter context, nil when the conversation has no seed
	LetterContext *LetterContext `json:"letterContext"`

	// Whether to stream the response
	Stream bool `json:"stream,omitempty"`
}

// ErrorResponse represents an error body returned by the chat endpoint or the
// capsule API.
type ErrorResponse struct {
	Error string `json:"error"`
}
