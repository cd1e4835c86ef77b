package participant

import (
	"context"
	"strings"
	"testing"

	"github.com/johnayoung/quiz-consensus/internal/consensus"
	"github.com/johnayoung/quiz-consensus/internal/provider"
)

func canned(content string) provider.Provider {
	return provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		return provider.Response{Model: req.Model, Content: content}, nil
	})
}

func TestParticipant_Generate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kind    consensus.AnswerKind
		wantErr bool
		check   func(t *testing.T, c consensus.Candidate)
	}{
		{
			name:    "scalar answer",
			content: `{"answer": {"kind": "scalar", "value": "Paris"}, "reasoning": "capital since 987", "confidence": 0.95}`,
			kind:    consensus.AnswerScalar,
			check: func(t *testing.T, c consensus.Candidate) {
				if c.Answer.Scalar != "Paris" || c.Confidence != 0.95 {
					t.Errorf("candidate = %+v", c)
				}
			},
		},
		{
			name: "json wrapped in code fences",
			content: "```json\n" +
				`{"answer": {"kind": "free_text", "text": "photosynthesis"}, "reasoning": "", "confidence": 0.8}` +
				"\n```",
			kind: consensus.AnswerFreeText,
			check: func(t *testing.T, c consensus.Candidate) {
				if c.Answer.Text != "photosynthesis" {
					t.Errorf("answer = %+v", c.Answer)
				}
			},
		},
		{
			name:    "kind mismatch rejected",
			content: `{"answer": {"kind": "free_text", "text": "Paris"}, "confidence": 0.9}`,
			kind:    consensus.AnswerScalar,
			wantErr: true,
		},
		{
			name:    "malformed json rejected",
			content: `not json at all`,
			kind:    consensus.AnswerScalar,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{Model: "test-model", Weight: 1}, canned(tt.content))
			cand, err := p.Generate(context.Background(), consensus.Question{
				ID: "q1", Prompt: "capital of France?", Kind: tt.kind,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cand)
			}
		})
	}
}

func TestParticipant_ReEvaluate(t *testing.T) {
	req := consensus.ReEvaluationRequest{
		Question:       consensus.Question{ID: "q1", Prompt: "capital?", Kind: consensus.AnswerScalar},
		RoundNumber:    2,
		OriginalAnswer: consensus.ScalarAnswer("Lyon"),
		Alternatives: []consensus.AnonymizedAnswer{
			{AnswerID: "tok-1", Answer: consensus.ScalarAnswer("Paris"), Confidence: 0.9},
		},
	}

	t.Run("changed answer", func(t *testing.T) {
		p := New(Config{Model: "m", Weight: 1},
			canned(`{"answer": {"kind": "scalar", "value": "Paris"}, "reasoning": "convinced", "confidence": 0.85}`))
		resp, err := p.ReEvaluate(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if !resp.Success || resp.Answer.Scalar != "Paris" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("signaled failure", func(t *testing.T) {
		p := New(Config{Model: "m", Weight: 1}, canned(`{"error": "cannot determine"}`))
		resp, err := p.ReEvaluate(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Success || resp.Error != "cannot determine" {
			t.Errorf("resp = %+v, want signaled failure", resp)
		}
	})

	t.Run("prompt carries anonymized alternatives", func(t *testing.T) {
		var captured provider.Request
		p := New(Config{Model: "m", Weight: 1}, provider.ProviderFunc(
			func(ctx context.Context, r provider.Request) (provider.Response, error) {
				captured = r
				return provider.Response{Content: `{"answer": {"kind": "scalar", "value": "Paris"}, "confidence": 0.5}`}, nil
			}))
		if _, err := p.ReEvaluate(context.Background(), req); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(captured.Prompt, "tok-1") {
			t.Error("prompt missing the anonymized answer token")
		}
		if !strings.Contains(captured.Prompt, "Round 2") {
			t.Error("prompt missing the round number")
		}
		if strings.Contains(captured.Prompt, "model_id") {
			t.Error("prompt must not reveal participant identities")
		}
	})
}

func TestParticipant_ExtractFacts(t *testing.T) {
	content := `{"facts": [
		{"statement": "water boils at 100C", "start": 0, "end": 24},
		{"statement": "water boils at 90C", "start": 30, "end": 50, "contradicts": "water boils at 100C"}
	], "confidence": 0.9}`

	p := New(Config{ID: "model-a", Model: "m", Weight: 1}, canned(content))
	ext, err := p.ExtractFacts(context.Background(), "water boils at 100C ... water boils at 90C")
	if err != nil {
		t.Fatal(err)
	}
	if ext.ModelID != "model-a" {
		t.Errorf("model id = %q", ext.ModelID)
	}
	if len(ext.Facts) != 2 {
		t.Fatalf("got %d facts, want 2", len(ext.Facts))
	}
	if ext.Facts[0].Citations[0].End != 24 {
		t.Errorf("citation = %+v", ext.Facts[0].Citations[0])
	}
	if ext.Facts[1].Contradicts == "" {
		t.Error("contradiction flag lost in translation")
	}
}

func TestRenderGeneratePrompt(t *testing.T) {
	prompt, err := renderGeneratePrompt(consensus.Question{
		ID: "q1", Prompt: "name the primary colors", Kind: consensus.AnswerMultiSelect,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "name the primary colors") {
		t.Error("prompt missing the question text")
	}
	if !strings.Contains(prompt, `"kind": "multi_select"`) {
		t.Error("prompt missing the expected answer shape")
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{Model: "gpt-test", Weight: 2}, canned("{}"))
	if p.ID() != "gpt-test" {
		t.Errorf("id = %q, want model name fallback", p.ID())
	}
	if p.Weight() != 2 {
		t.Errorf("weight = %v", p.Weight())
	}
	if p.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want default", p.timeout)
	}
}
