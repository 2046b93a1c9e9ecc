package ai

import (
	"context"
	"io"
)

type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Message is one conversation turn. Role is "user" or "model".
type Message struct {
	Role string
	Text string
}

type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Contents          []Message
	Temperature       float64
	MaxOutputTokens   int
}

type GenerateResult struct {
	Text     string
	ModelID  string
	Usage    TokenUsage
	Attempts int
}

// TextGenerator is the upstream text provider used by the processing services.
type TextGenerator interface {
	Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error)
	// Stream returns the provider's open response body once a 2xx status was
	// observed. Callers must close it.
	Stream(ctx context.Context, request GenerateRequest) (io.ReadCloser, error)
	Available() bool
}
