package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/johnayoung/quiz-consensus/internal/consensus"
	"github.com/johnayoung/quiz-consensus/internal/sourcecheck"
)

func sampleResult() *consensus.Result {
	q := consensus.Question{ID: "q1", Prompt: "capital of France?", Kind: consensus.AnswerScalar}
	return &consensus.Result{
		Success: true,
		Quiz: consensus.Quiz{Items: []consensus.QuizItem{
			{Question: q, Answer: consensus.ScalarAnswer("Paris")},
		}},
		AuditTrail: consensus.AuditTrail{
			TotalDuration: 3 * time.Second,
			QuestionTrails: []consensus.QuestionTrail{{
				Question:         q,
				RoundsRequired:   2,
				ConsensusReached: true,
				Agreement:        1,
				Termination:      consensus.TerminationReached,
				FinalAnswer:      consensus.ScalarAnswer("Paris"),
				AgreeingModels:   []string{"a", "b"},
				Rounds: []consensus.Round{
					{Number: 1, Responses: []consensus.ModelResponse{
						{ModelID: "a", Answer: consensus.ScalarAnswer("Paris"), Confidence: 0.9},
						{ModelID: "b", Answer: consensus.ScalarAnswer("Lyon"), Confidence: 0.4},
					}},
					{Number: 2, Responses: []consensus.ModelResponse{
						{ModelID: "a", Answer: consensus.ScalarAnswer("Paris"), Confidence: 0.9},
						{ModelID: "b", Answer: consensus.ScalarAnswer("Paris"), Confidence: 0.7, Changed: true},
					}},
				},
			}},
			ParticipatingModels: []string{"a", "b"},
			SourceValidation: &sourcecheck.Result{
				SourceContent: "the secret chapter text",
				Confidence:    0.9,
			},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	run := Run{GeneratedAt: time.Now().UTC(), Models: []string{"a", "b"}, Result: sampleResult()}
	if err := WriteJSON(&buf, run); err != nil {
		t.Fatal(err)
	}

	var back map[string]any
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := back["result"]; !ok {
		t.Error("result missing from JSON output")
	}
}

func TestRenderTrailMarkdown(t *testing.T) {
	md := RenderTrailMarkdown(sampleResult(), false)

	for _, want := range []string{
		"capital of France?",
		"Round 1",
		"Round 2",
		"(changed)",
		"the secret chapter text",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderTrailMarkdown_RedactsSource(t *testing.T) {
	md := RenderTrailMarkdown(sampleResult(), true)
	if strings.Contains(md, "the secret chapter text") {
		t.Error("redacted trail still contains the source text")
	}
}
