package ports

import (
	"context"
)

// Embedder turns text into a fixed-length similarity vector.
// Implementations must bound every call with a timeout.
type Embedder interface {
	// Embed computes the vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed vector length for this deployment
	Dimensions() int
}

// CompletionOptions tunes a single completion call
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	// ForceJSON asks the provider for syntactically valid JSON output
	ForceJSON bool
}

// Completer produces text from a system and user prompt pair.
// Implementations must bound every call with a timeout.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (string, error)
}

// ModelRef identifies the provider and model behind a capability call.
// It is resolved from configuration and passed explicitly into pipelines
// so provenance can record it; never held as process-global mutable state.
type ModelRef struct {
	Provider string
	ModelID  string
	Version  string
}
