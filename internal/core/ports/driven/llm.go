package driven

import "context"

// LLMService provides generative model operations. The service is
// treated as non-deterministic and rate-limited; callers back off on
// domain.ErrRateLimited.
//
// Implementations may include:
//   - Gemini (gemini-2.5-flash)
//   - Ollama (local models)
type LLMService interface {
	// Complete produces a text completion for a prompt.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)

	// ModelName returns the generative model identifier.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// CompleteOptions configures text generation behaviour.
type CompleteOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64

	// SystemInstruction is prepended as the system prompt when the
	// provider supports one.
	SystemInstruction string
}
