// Package llm provides interfaces and types for chat-completion client implementations.
package llm

import (
	"context"
)

// Role represents the role of a message in a conversation.
type Role string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem Role = "system"
	// RoleUser indicates a message from the human user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant Role = "assistant"
)

const (
	// TemperaturePlanning allows some exploration for plan generation and revision.
	TemperaturePlanning = 0.7

	// TemperatureImplementation keeps generated code stable across rounds while
	// avoiding fully deterministic loops.
	TemperatureImplementation = 0.3

	// DefaultMaxTokens bounds completions when the caller does not set a limit.
	DefaultMaxTokens = 4096

	// ImplementationMaxTokens bounds single-file implementation replies.
	ImplementationMaxTokens = 30000
)

// Attachment carries inline multimodal data (typically an image) for providers
// that accept it alongside text.
type Attachment struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Message represents a single message in a completion request.
type Message struct {
	Role        Role
	Content     string
	Attachments []Attachment
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string
	StopReason string // "end_turn", "max_tokens", etc. where the provider reports one
}

// Client defines the interface for chat-completion interactions.
// Implementations are raw provider bindings; resilience and metrics are
// layered on with middleware (see Chain).
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// ModelName returns the model identifier used by this client.
	ModelName() string
}

// NewCompletionRequest creates a completion request with default limits.
func NewCompletionRequest(messages []Message) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperaturePlanning,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
