package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnayoung/quiz-consensus/internal/logging"
	"github.com/johnayoung/quiz-consensus/internal/textmatch"
)

// unitState is the per-question state machine. Reached and exhausted are
// terminal.
type unitState int

const (
	stateEvaluating unitState = iota
	stateIterating
	stateReached
	stateExhausted
)

// orchestrator drives the propose/anonymize/redistribute/re-evaluate cycle
// for a single question. It is the sole owner and writer of that
// question's trail; the coordinator reads the trail only after run
// returns it.
type orchestrator struct {
	question     Question
	participants []Participant
	weights      map[string]float64
	threshold    float64
	maxIter      int
	matcher      textmatch.Matcher
	callbacks    *Callbacks
	logger       *logging.Logger
	anon         *anonymizer
	onRound      func(round int) // notifies the coordinator of round transitions
}

// run executes rounds until consensus, exhaustion, or cancellation. The
// initial responses come from the coordinator's generation phase; the
// orchestrator never re-requests them. Round numbers are 1-indexed,
// strictly increasing, and gapless.
func (o *orchestrator) run(ctx context.Context, initial []ModelResponse) (QuestionTrail, error) {
	trail := QuestionTrail{Question: o.question}
	responses := sortedByModel(initial)

	var (
		state     unitState
		lastEval  Evaluation
		prevPrint string
	)

	roundStart := time.Now()
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return QuestionTrail{}, err
		}

		lastEval = Evaluate(responses, o.weights, o.threshold, o.matcher)
		trail.Rounds = append(trail.Rounds, Round{
			Number:           round,
			Responses:        responses,
			ConsensusReached: lastEval.Reached,
			Duration:         time.Since(roundStart),
		})

		print := answerFingerprint(responses)
		switch {
		case len(responses) == 0:
			state = stateExhausted
			trail.Termination = TerminationAllModelsFailed
		case lastEval.Reached:
			state = stateReached
			trail.Termination = TerminationReached
		case print == prevPrint:
			// Two consecutive rounds with an identical answer multiset:
			// nobody is moving, so burning the remaining iterations would
			// change nothing.
			state = stateExhausted
			trail.Termination = TerminationCircular
		case round >= o.maxIter:
			state = stateExhausted
			trail.Termination = TerminationMaxIterations
		default:
			state = stateIterating
		}

		if state != stateIterating {
			break
		}

		prevPrint = print
		if o.onRound != nil {
			o.onRound(round + 1)
		}
		roundStart = time.Now()
		responses = o.reEvaluateRound(ctx, round+1, responses)
	}

	trail.RoundsRequired = len(trail.Rounds)
	trail.ConsensusReached = state == stateReached
	trail.Agreement = lastEval.Agreement
	trail.AgreeingModels = lastEval.AgreeingModels
	trail.DisagreeingModels = lastEval.DisagreeingModels
	if trail.ConsensusReached && lastEval.DominantAnswer != nil {
		trail.FinalAnswer = *lastEval.DominantAnswer
	}

	o.logger.Info("question terminal",
		"question", o.question.ID,
		"termination", trail.Termination,
		"rounds", trail.RoundsRequired,
		"agreement", trail.Agreement)

	return trail, nil
}

// reEvaluateRound redistributes the current answers anonymously and asks
// every participant to reconsider, concurrently. A participant erroring
// (or signaling failure) drops out of this round only; it may rejoin
// later. Participants without a prior answer still receive the request so
// they can rejoin.
func (o *orchestrator) reEvaluateRound(ctx context.Context, roundNumber int, current []ModelResponse) []ModelResponse {
	wrapped := o.anon.wrapRound(current)

	prior := make(map[string]ModelResponse, len(current))
	for _, r := range current {
		prior[r.ModelID] = r
	}

	var (
		mu   sync.Mutex
		next []ModelResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range o.participants {
		g.Go(func() error {
			req := ReEvaluationRequest{
				Question:     o.question,
				RoundNumber:  roundNumber,
				Alternatives: wrapped.alternativesFor(p.ID()),
			}
			if prev, ok := prior[p.ID()]; ok {
				req.OriginalAnswer = prev.Answer
				req.OriginalReasoning = prev.Reasoning
			}

			resp, err := p.ReEvaluate(gctx, req)
			if err == nil && !resp.Success {
				// Signaled failure path, handled identically to an error.
				err = fmt.Errorf("re-evaluation failed: %s", resp.Error)
			}
			if err != nil {
				o.callbacks.modelError(p.ID(), err, SeverityWarning, true)
				o.logger.Warn("participant dropped from round",
					"question", o.question.ID, "round", roundNumber, "model", p.ID(), "error", err)
				return nil // the round proceeds with the remainder
			}

			mr := ModelResponse{
				ModelID:    p.ID(),
				Answer:     resp.Answer,
				Reasoning:  resp.Reasoning,
				Confidence: clamp01(resp.Confidence),
			}
			if prev, ok := prior[p.ID()]; ok {
				prevAnswer := prev.Answer
				mr.PreviousAnswer = &prevAnswer
				mr.Changed = prevAnswer.Key() != mr.Answer.Key()
			}

			mu.Lock()
			next = append(next, mr)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutines always return nil

	return sortedByModel(next)
}

// answerFingerprint produces a canonical form of one round's answer
// multiset, used for circular-reasoning detection.
func answerFingerprint(responses []ModelResponse) string {
	parts := make([]string, len(responses))
	for i, r := range responses {
		parts[i] = r.ModelID + "=" + r.Answer.Key()
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}

func sortedByModel(responses []ModelResponse) []ModelResponse {
	sort.Slice(responses, func(i, j int) bool { return responses[i].ModelID < responses[j].ModelID })
	return responses
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
