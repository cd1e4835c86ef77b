// Package provider abstracts the HTTP transport to each LLM vendor.
// Everything above this package speaks in structured consensus types; a
// provider only turns a prompt into completed text.
package provider

import (
	"context"
	"time"
)

// Provider sends one prompt to one model endpoint.
type Provider interface {
	// Complete sends a prompt and returns the full response text.
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request contains all inputs for a completion call.
type Request struct {
	Model  string
	System string // optional system instruction
	Prompt string
}

// Response contains the result of a completion call.
type Response struct {
	Model    string        `json:"model"`
	Content  string        `json:"content"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency_ms"`
}

// ProviderFunc allows functions to implement Provider (adapter pattern).
// Useful for testing and simple inline implementations.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

func (f ProviderFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
