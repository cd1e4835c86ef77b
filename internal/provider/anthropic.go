package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Anthropic implements Provider for Anthropic's Claude API.
type Anthropic struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption configures an Anthropic provider.
type AnthropicOption func(*Anthropic)

// WithAnthropicBaseURL sets a custom base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(a *Anthropic) { a.baseURL = url }
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(c *http.Client) AnthropicOption {
	return func(a *Anthropic) { a.httpClient = c }
}

// NewAnthropic creates an Anthropic provider.
// Reads API key from ANTHROPIC_API_KEY environment variable.
func NewAnthropic(opts ...AnthropicOption) (*Anthropic, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable required")
	}

	a := &Anthropic{
		apiKey:     apiKey,
		baseURL:    "https://api.anthropic.com/v1",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Complete sends a prompt to a Claude model and returns the response.
func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	payload := anthropicRequest{
		Model:     req.Model,
		MaxTokens: 4096,
		System:    req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, newError("anthropic", req.Model, KindMalformed, fmt.Errorf("marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, newError("anthropic", req.Model, KindNetwork, fmt.Errorf("creating request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, newError("anthropic", req.Model, KindNetwork, fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, newError("anthropic", req.Model, KindNetwork, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, newError("anthropic", req.Model, classifyStatus(resp.StatusCode),
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return Response{}, newError("anthropic", req.Model, KindMalformed, fmt.Errorf("parsing response: %w", err))
	}

	if len(anthropicResp.Content) == 0 {
		return Response{}, newError("anthropic", req.Model, KindMalformed, errors.New("no content in response"))
	}

	return Response{
		Model:    req.Model,
		Content:  anthropicResp.Content[0].Text,
		Provider: "anthropic",
		Latency:  time.Since(start),
	}, nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}
