// Package participant adapts one configured model endpoint to the
// consensus engine's capability surface. A participant owns its identity,
// weight, and per-call timeout; the provider underneath only completes
// prompts.
package participant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/johnayoung/quiz-consensus/internal/consensus"
	"github.com/johnayoung/quiz-consensus/internal/provider"
	"github.com/johnayoung/quiz-consensus/internal/sourcecheck"
)

const defaultTimeout = 60 * time.Second

// Config describes one participant.
type Config struct {
	ID      string  // defaults to Model
	Model   string  // provider model name
	Weight  float64 // must be > 0
	Timeout time.Duration
}

// Participant binds a provider to an identity and weight. It implements
// consensus.Participant (and with it sourcecheck.Extractor).
type Participant struct {
	id       string
	model    string
	weight   float64
	timeout  time.Duration
	provider provider.Provider
}

// New creates a Participant over the given provider.
func New(cfg Config, p provider.Provider) *Participant {
	id := cfg.ID
	if id == "" {
		id = cfg.Model
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Participant{
		id:       id,
		model:    cfg.Model,
		weight:   cfg.Weight,
		timeout:  timeout,
		provider: p,
	}
}

func (p *Participant) ID() string      { return p.id }
func (p *Participant) Weight() float64 { return p.weight }

// Generate produces a candidate answer for one question.
func (p *Participant) Generate(ctx context.Context, q consensus.Question) (consensus.Candidate, error) {
	prompt, err := renderGeneratePrompt(q)
	if err != nil {
		return consensus.Candidate{}, err
	}

	content, err := p.complete(ctx, generateSystem, prompt)
	if err != nil {
		return consensus.Candidate{}, err
	}

	var payload struct {
		Answer     consensus.Answer `json:"answer"`
		Reasoning  string           `json:"reasoning"`
		Confidence float64          `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return consensus.Candidate{}, fmt.Errorf("%s: malformed generation response: %w", p.id, err)
	}
	if payload.Answer.Kind != q.Kind {
		return consensus.Candidate{}, fmt.Errorf("%s: answer kind %q does not match question kind %q",
			p.id, payload.Answer.Kind, q.Kind)
	}

	return consensus.Candidate{
		Answer:     payload.Answer,
		Reasoning:  payload.Reasoning,
		Confidence: payload.Confidence,
	}, nil
}

// ReEvaluate asks the model to reconsider its answer against anonymized
// alternatives. A model that declines ("error" in its JSON) surfaces as
// the signaled failure path rather than a returned error.
func (p *Participant) ReEvaluate(ctx context.Context, req consensus.ReEvaluationRequest) (consensus.ReEvaluationResponse, error) {
	prompt, err := renderReEvaluatePrompt(req)
	if err != nil {
		return consensus.ReEvaluationResponse{}, err
	}

	content, err := p.complete(ctx, reEvaluateSystem, prompt)
	if err != nil {
		return consensus.ReEvaluationResponse{}, err
	}

	var payload struct {
		Answer     consensus.Answer `json:"answer"`
		Reasoning  string           `json:"reasoning"`
		Confidence float64          `json:"confidence"`
		Error      string           `json:"error"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return consensus.ReEvaluationResponse{}, fmt.Errorf("%s: malformed re-evaluation response: %w", p.id, err)
	}
	if payload.Error != "" {
		return consensus.ReEvaluationResponse{Success: false, Error: payload.Error}, nil
	}
	if payload.Answer.Kind != req.Question.Kind {
		return consensus.ReEvaluationResponse{}, fmt.Errorf("%s: answer kind %q does not match question kind %q",
			p.id, payload.Answer.Kind, req.Question.Kind)
	}

	return consensus.ReEvaluationResponse{
		Success:    true,
		Answer:     payload.Answer,
		Reasoning:  payload.Reasoning,
		Confidence: payload.Confidence,
	}, nil
}

// ExtractFacts pulls factual claims with citations from source material.
func (p *Participant) ExtractFacts(ctx context.Context, source string) (sourcecheck.Extraction, error) {
	prompt, err := renderExtractFactsPrompt(source)
	if err != nil {
		return sourcecheck.Extraction{}, err
	}

	content, err := p.complete(ctx, extractFactsSystem, prompt)
	if err != nil {
		return sourcecheck.Extraction{}, err
	}

	var payload struct {
		Facts []struct {
			Statement   string `json:"statement"`
			Start       int    `json:"start"`
			End         int    `json:"end"`
			Contradicts string `json:"contradicts"`
		} `json:"facts"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return sourcecheck.Extraction{}, fmt.Errorf("%s: malformed extraction response: %w", p.id, err)
	}

	extraction := sourcecheck.Extraction{
		ModelID:    p.id,
		Confidence: payload.Confidence,
		Facts:      make([]sourcecheck.Fact, 0, len(payload.Facts)),
	}
	for _, f := range payload.Facts {
		fact := sourcecheck.Fact{Statement: f.Statement, Contradicts: f.Contradicts}
		if f.Start != 0 || f.End != 0 {
			fact.Citations = []sourcecheck.Citation{{Start: f.Start, End: f.End}}
		}
		extraction.Facts = append(extraction.Facts, fact)
	}
	return extraction, nil
}

// complete runs one provider call under the participant's timeout.
func (p *Participant) complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.provider.Complete(ctx, provider.Request{
		Model:  p.model,
		System: system,
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// extractJSON tolerates models that wrap their JSON in code fences or
// surrounding prose by slicing from the first brace to the last.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
