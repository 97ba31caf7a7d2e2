// Package providers implements the LLM capability used by the graph nodes:
// a single-turn Complete call against an OpenAI-compatible API, with retry
// and outbound rate limiting.
package providers

import "context"

// CompletionRequest is one prompt-in, text-out call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting when the API returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the model's reply.
type Completion struct {
	Text  string
	Usage *Usage
}

// Client is the LLM capability. Implementations must be safe for
// concurrent use; the personality analyzer issues five calls at once.
type Client interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
