// Package llm wraps provider-specific chat models behind a uniform
// "send prompt, get accumulated text" client.
package llm

import "context"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamFunc receives incremental response text. It is optional; callers
// that only want the final accumulated text pass nil.
type StreamFunc func(chunk string)

// Client is the uniform streaming-chat capability. Implementations stream
// from the provider but always return the full accumulated response text;
// callers never act on partial content.
type Client interface {
	// Chat sends the conversation and returns the accumulated response.
	// If onChunk is non-nil it is invoked for each streamed fragment.
	Chat(ctx context.Context, messages []Message, onChunk StreamFunc) (string, error)

	// Model returns the configured model name.
	Model() string
}
