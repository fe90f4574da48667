// Package llm defines the Provider interface for Large Language Model
// backends used by the paid branches of the pipeline: the Emotion Engine's
// classifier pass and the Dialogue Engine's generative path.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Gemini,
// a local Ollama instance, …) and exposes a uniform completion interface so
// the engines never couple to a specific SDK. Paid-call admission happens in
// the engines, not here; the provider's job is the call itself plus honest
// usage and cost reporting.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a
	// convenience; some providers return it directly rather than computing
	// it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a
// response. Callers should treat a zero-value request as invalid; at
// minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. A
	// value of 0.0 typically requests greedy (argmax) decoding.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may
	// generate. Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Providers without a dedicated system slot prepend
	// it as a "system"-role message.
	SystemPrompt string
}

// CompletionResponse is the full model reply.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage

	// CostUSD is the billed cost of this call, derived from Usage and the
	// provider's configured pricing. Zero when the backend is free (local
	// inference) or when pricing is not configured.
	CostUSD float64
}

// ModelCapabilities describes static limits of the underlying model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use and must propagate
// context cancellation promptly: the pipeline calls under tight
// sub-deadlines and cancels in-flight paid calls at the transport layer on
// expiry.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled before the
	// completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens messages would consume in the
	// model's context window. The result need not be exact but should not
	// undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata for the underlying model,
	// constant for the lifetime of the Provider instance.
	Capabilities() ModelCapabilities
}
