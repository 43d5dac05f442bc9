package ai

import (
	"context"
)

// Completion is one raw response from the upstream text-generation service.
type Completion struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Provider is the interface to the upstream text-generation service. The
// model is passed per call because the pipeline walks an ordered fallback
// list of model identifiers.
type Provider interface {
	Complete(ctx context.Context, model string, system string, prompt string) (*Completion, error)
}
