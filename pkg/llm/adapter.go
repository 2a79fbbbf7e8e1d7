package llm

import "context"

// Responder produces a conversational reply for a fully built prompt.
type Responder interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// DefaultFallbackReply is spoken when the model cannot answer.
const DefaultFallbackReply = "I'm sorry, I couldn't process that. Could you please try again?"
