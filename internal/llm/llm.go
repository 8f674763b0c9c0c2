// Package llm provides interfaces and implementations for text generation
// service clients.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited is returned when the generation service rejects a request
// for quota reasons. Callers treat it differently from other failures.
var ErrRateLimited = errors.New("generation service rate limited")

// GenerateOptions configures the generation request.
type GenerateOptions struct {
	// Model specifies the model to use; empty uses the client default.
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation (0.0 = deterministic).
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// LLM defines the interface for text generation clients.
type LLM interface {
	// Generate sends a prompt and returns the complete response. It blocks
	// until the full response is received or an error occurs.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}
