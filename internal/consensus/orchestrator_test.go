package consensus

import (
	"context"
	"errors"
	"testing"

	"github.com/johnayoung/quiz-consensus/internal/logging"
	"github.com/johnayoung/quiz-consensus/internal/sourcecheck"
	"github.com/johnayoung/quiz-consensus/internal/textmatch"
)

// fakeParticipant is a scriptable Participant for engine tests.
type fakeParticipant struct {
	id         string
	weight     float64
	generate   func(ctx context.Context, q Question) (Candidate, error)
	reEvaluate func(ctx context.Context, req ReEvaluationRequest) (ReEvaluationResponse, error)
	extract    func(ctx context.Context, source string) (sourcecheck.Extraction, error)
}

func (f *fakeParticipant) ID() string      { return f.id }
func (f *fakeParticipant) Weight() float64 { return f.weight }

func (f *fakeParticipant) Generate(ctx context.Context, q Question) (Candidate, error) {
	if f.generate == nil {
		return Candidate{}, errors.New("no generate scripted")
	}
	return f.generate(ctx, q)
}

func (f *fakeParticipant) ReEvaluate(ctx context.Context, req ReEvaluationRequest) (ReEvaluationResponse, error) {
	if f.reEvaluate == nil {
		// Default: stand by the original answer.
		return ReEvaluationResponse{
			Success:    true,
			Answer:     req.OriginalAnswer,
			Confidence: 0.5,
		}, nil
	}
	return f.reEvaluate(ctx, req)
}

func (f *fakeParticipant) ExtractFacts(ctx context.Context, source string) (sourcecheck.Extraction, error) {
	if f.extract == nil {
		return sourcecheck.Extraction{}, errors.New("no extract scripted")
	}
	return f.extract(ctx, source)
}

// answering builds a fake that proposes the given scalar and keeps it
// through every round.
func answering(id string, weight float64, scalar string) *fakeParticipant {
	return &fakeParticipant{
		id:     id,
		weight: weight,
		generate: func(ctx context.Context, q Question) (Candidate, error) {
			return Candidate{Answer: ScalarAnswer(scalar), Confidence: 0.8}, nil
		},
	}
}

func testOrchestrator(parts []Participant, threshold float64, maxIter int) *orchestrator {
	weights := make(map[string]float64, len(parts))
	for _, p := range parts {
		weights[p.ID()] = p.Weight()
	}
	return &orchestrator{
		question:     Question{ID: "q1", Prompt: "capital of France?", Kind: AnswerScalar},
		participants: parts,
		weights:      weights,
		threshold:    threshold,
		maxIter:      maxIter,
		matcher:      textmatch.NewLevenshtein(),
		logger:       logging.Discard(),
		anon:         newAnonymizer(),
	}
}

func initialFrom(t *testing.T, parts []Participant) []ModelResponse {
	t.Helper()
	var out []ModelResponse
	for _, p := range parts {
		cand, err := p.Generate(context.Background(), Question{ID: "q1", Kind: AnswerScalar})
		if err != nil {
			continue
		}
		out = append(out, ModelResponse{
			ModelID:    p.ID(),
			Answer:     cand.Answer,
			Confidence: cand.Confidence,
		})
	}
	return out
}

func TestOrchestrator_FirstRoundConsensus(t *testing.T) {
	parts := []Participant{
		answering("a", 1, "Paris"),
		answering("b", 1, "Paris"),
		answering("c", 1, "paris"),
	}
	o := testOrchestrator(parts, 1.0, 3)

	trail, err := o.run(context.Background(), initialFrom(t, parts))
	if err != nil {
		t.Fatal(err)
	}
	if !trail.ConsensusReached || trail.Termination != TerminationReached {
		t.Fatalf("trail = %+v, want first-round consensus", trail)
	}
	if trail.RoundsRequired != 1 || len(trail.Rounds) != 1 {
		t.Errorf("rounds = %d, want 1", trail.RoundsRequired)
	}
	if trail.FinalAnswer.Key() != ScalarAnswer("Paris").Key() {
		t.Errorf("final answer = %q", trail.FinalAnswer.Display())
	}
}

func TestOrchestrator_ConvergesInSecondRound(t *testing.T) {
	holdout := &fakeParticipant{id: "c", weight: 1}
	holdout.generate = func(ctx context.Context, q Question) (Candidate, error) {
		return Candidate{Answer: ScalarAnswer("Lyon"), Confidence: 0.4}, nil
	}
	holdout.reEvaluate = func(ctx context.Context, req ReEvaluationRequest) (ReEvaluationResponse, error) {
		if req.RoundNumber != 2 {
			t.Errorf("re-evaluation round = %d, want 2", req.RoundNumber)
		}
		if req.OriginalAnswer.Scalar != "Lyon" {
			t.Errorf("original answer = %q, want Lyon", req.OriginalAnswer.Scalar)
		}
		if len(req.Alternatives) != 2 {
			t.Errorf("got %d alternatives, want 2", len(req.Alternatives))
		}
		for _, alt := range req.Alternatives {
			if alt.Answer.Scalar == "Lyon" {
				t.Error("alternatives include the participant's own answer")
			}
		}
		// Persuaded by the majority.
		return ReEvaluationResponse{Success: true, Answer: ScalarAnswer("Paris"), Confidence: 0.7}, nil
	}

	parts := []Participant{
		answering("a", 1, "Paris"),
		answering("b", 1, "Paris"),
		holdout,
	}
	o := testOrchestrator(parts, 1.0, 3)

	trail, err := o.run(context.Background(), initialFrom(t, parts))
	if err != nil {
		t.Fatal(err)
	}
	if !trail.ConsensusReached {
		t.Fatalf("expected consensus, got %s", trail.Termination)
	}
	if trail.RoundsRequired != 2 {
		t.Fatalf("rounds = %d, want 2", trail.RoundsRequired)
	}
	for i, round := range trail.Rounds {
		if round.Number != i+1 {
			t.Errorf("round %d has number %d, numbers must be gapless", i, round.Number)
		}
	}

	var changed *ModelResponse
	for i, r := range trail.Rounds[1].Responses {
		if r.ModelID == "c" {
			changed = &trail.Rounds[1].Responses[i]
		}
	}
	if changed == nil || !changed.Changed {
		t.Error("holdout's round-2 response should be marked changed")
	}
	if changed != nil && (changed.PreviousAnswer == nil || changed.PreviousAnswer.Scalar != "Lyon") {
		t.Error("previous answer should be recorded on change")
	}
}

func TestOrchestrator_CircularReasoning(t *testing.T) {
	// Everyone keeps their answer, so round 2 repeats round 1 exactly and
	// the remaining iterations are pointless.
	parts := []Participant{
		answering("a", 1, "Paris"),
		answering("b", 1, "Lyon"),
		answering("c", 1, "Marseille"),
	}
	o := testOrchestrator(parts, 1.0, 10)

	trail, err := o.run(context.Background(), initialFrom(t, parts))
	if err != nil {
		t.Fatal(err)
	}
	if trail.ConsensusReached {
		t.Fatal("split vote must not reach consensus")
	}
	if trail.Termination != TerminationCircular {
		t.Errorf("termination = %s, want circular", trail.Termination)
	}
	if trail.RoundsRequired != 2 {
		t.Errorf("rounds = %d, want 2 (detect on first repeat)", trail.RoundsRequired)
	}
}

func TestOrchestrator_MaxIterations(t *testing.T) {
	// Participant c oscillates so no two consecutive rounds repeat.
	flip := false
	osc := &fakeParticipant{id: "c", weight: 1}
	osc.generate = func(ctx context.Context, q Question) (Candidate, error) {
		return Candidate{Answer: ScalarAnswer("Lyon"), Confidence: 0.4}, nil
	}
	osc.reEvaluate = func(ctx context.Context, req ReEvaluationRequest) (ReEvaluationResponse, error) {
		flip = !flip
		answer := "Marseille"
		if flip {
			answer = "Nice"
		}
		return ReEvaluationResponse{Success: true, Answer: ScalarAnswer(answer), Confidence: 0.4}, nil
	}

	parts := []Participant{
		answering("a", 1, "Paris"),
		answering("b", 1, "Toulouse"),
		osc,
	}
	o := testOrchestrator(parts, 1.0, 3)

	trail, err := o.run(context.Background(), initialFrom(t, parts))
	if err != nil {
		t.Fatal(err)
	}
	if trail.Termination != TerminationMaxIterations {
		t.Errorf("termination = %s, want max iterations", trail.Termination)
	}
	if trail.RoundsRequired != 3 {
		t.Errorf("rounds = %d, want 3", trail.RoundsRequired)
	}
}

func TestOrchestrator_ToleratesRoundFailures(t *testing.T) {
	// b errors during re-evaluation, d signals failure. The round proceeds
	// with a and c, whose agreement clears the threshold over the weight
	// that actually answered.
	failing := &fakeParticipant{id: "b", weight: 1}
	failing.generate = func(ctx context.Context, q Question) (Candidate, error) {
		return Candidate{Answer: ScalarAnswer("Lyon"), Confidence: 0.4}, nil
	}
	failing.reEvaluate = func(ctx context.Context, req ReEvaluationRequest) (ReEvaluationResponse, error) {
		return ReEvaluationResponse{}, errors.New("rate limited")
	}

	signaling := &fakeParticipant{id: "d", weight: 1}
	signaling.generate = func(ctx context.Context, q Question) (Candidate, error) {
		return Candidate{Answer: ScalarAnswer("Nice"), Confidence: 0.4}, nil
	}
	signaling.reEvaluate = func(ctx context.Context, req ReEvaluationRequest) (ReEvaluationResponse, error) {
		return ReEvaluationResponse{Success: false, Error: "model declined"}, nil
	}

	parts := []Participant{
		answering("a", 1, "Paris"),
		failing,
		answering("c", 1, "Paris"),
		signaling,
	}
	o := testOrchestrator(parts, 1.0, 3)

	trail, err := o.run(context.Background(), initialFrom(t, parts))
	if err != nil {
		t.Fatal(err)
	}
	if !trail.ConsensusReached {
		t.Fatalf("expected consensus among survivors, got %s", trail.Termination)
	}
	if trail.RoundsRequired != 2 {
		t.Errorf("rounds = %d, want 2", trail.RoundsRequired)
	}
	if got := len(trail.Rounds[1].Responses); got != 2 {
		t.Errorf("round 2 has %d responses, want 2 survivors", got)
	}
}

func TestOrchestrator_AllModelsFailed(t *testing.T) {
	parts := []Participant{answering("a", 1, "Paris")}
	o := testOrchestrator(parts, 1.0, 3)

	trail, err := o.run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if trail.Termination != TerminationAllModelsFailed {
		t.Errorf("termination = %s, want all models failed", trail.Termination)
	}
	if trail.ConsensusReached {
		t.Error("no responses cannot mean consensus")
	}
}

func TestOrchestrator_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parts := []Participant{answering("a", 1, "Paris"), answering("b", 1, "Lyon")}
	o := testOrchestrator(parts, 1.0, 3)

	_, err := o.run(ctx, initialFrom(t, parts))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
