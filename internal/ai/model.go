// Package ai asks large language models for an opinion on a receipt.
package ai

import (
	"context"
)

// DefaultTemperature keeps completions reproducible.
const DefaultTemperature float32 = 0.3

// Request is one single-turn chat completion.
type Request struct {
	Prompt      string
	ImagePNG    []byte // optional, sent alongside the prompt
	Temperature float32
	MaxTokens   int
}

// Model defines the interface for chat completion backends
type Model interface {
	// Complete sends the request and returns the reply text
	Complete(ctx context.Context, req Request) (string, error)

	// Close releases resources held by the backend
	Close() error
}
