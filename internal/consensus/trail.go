package consensus

import (
	"sort"
	"time"

	"github.com/johnayoung/quiz-consensus/internal/sourcecheck"
)

// This file is the audit-trail builder: it assembles the final Result
// deterministically from frozen per-question trails. Nothing here mutates
// a trail's rounds; finalization only stamps the fallback marker and
// computes run-level aggregates.

type buildInput struct {
	participants     []Participant
	opts             Options
	start            time.Time
	trails           []QuestionTrail
	initial          map[string][]ModelResponse
	sourceValidation *sourcecheck.Result
}

// buildResult computes overall success, applies the single-model fallback
// policy when configured, and assembles the quiz plus audit trail.
func buildResult(in buildInput) *Result {
	reached := 0
	for _, t := range in.trails {
		if t.ConsensusReached {
			reached++
		}
	}
	fraction := float64(reached) / float64(len(in.trails))
	success := fraction >= in.opts.SuccessFraction

	items := make([]QuizItem, len(in.trails))
	for i, t := range in.trails {
		items[i] = QuizItem{Question: t.Question, Answer: t.FinalAnswer}
	}

	if !success && in.opts.FallbackToSingleModel {
		// Substitute the highest-weight participant's initial answer for
		// every unreached question. The trail keeps consensusReached=false
		// and gains an explicit fallback marker so the audit stays honest.
		recovered := true
		for i := range in.trails {
			if in.trails[i].ConsensusReached {
				continue
			}
			answer, ok := fallbackAnswer(in.participants, in.initial[in.trails[i].Question.ID])
			if !ok {
				recovered = false
				continue
			}
			in.trails[i].FallbackApplied = true
			in.trails[i].FinalAnswer = answer
			items[i].Answer = answer
			items[i].FromFallback = true
		}
		success = recovered
	}

	participating, failed := partitionParticipants(in.participants, in.trails, in.initial)

	result := &Result{
		Quiz: Quiz{Items: items},
		AuditTrail: AuditTrail{
			TotalDuration:       time.Since(in.start),
			QuestionTrails:      in.trails,
			SourceValidation:    in.sourceValidation,
			ParticipatingModels: participating,
			FailedModels:        failed,
		},
		Success: success,
	}
	if !success {
		result.FailureReason = runFailureReason(in.trails)
	}
	return result
}

// failedResult builds the terminal result for runs aborted before
// consensus building (insufficient models, or nothing usable at all).
// usable is the set of participants that produced at least one answer in
// initial generation; the partition invariant holds even for aborted runs.
func failedResult(participants []Participant, usable map[string]bool, start time.Time, sv *sourcecheck.Result, reason FailureReason) *Result {
	var participating, failed []string
	for _, p := range participants {
		if usable[p.ID()] {
			participating = append(participating, p.ID())
		} else {
			failed = append(failed, p.ID())
		}
	}
	sort.Strings(participating)
	sort.Strings(failed)

	return &Result{
		AuditTrail: AuditTrail{
			TotalDuration:       time.Since(start),
			SourceValidation:    sv,
			ParticipatingModels: participating,
			FailedModels:        failed,
		},
		Success:       false,
		FailureReason: reason,
	}
}

// fallbackAnswer picks the highest-weight participant's initial answer,
// breaking weight ties by lowest model id.
func fallbackAnswer(participants []Participant, initial []ModelResponse) (Answer, bool) {
	weights := make(map[string]float64, len(participants))
	for _, p := range participants {
		weights[p.ID()] = p.Weight()
	}

	best := -1
	for i, r := range initial {
		if best < 0 {
			best = i
			continue
		}
		bw, rw := weights[initial[best].ModelID], weights[r.ModelID]
		if rw > bw || (rw == bw && r.ModelID < initial[best].ModelID) {
			best = i
		}
	}
	if best < 0 {
		return Answer{}, false
	}
	return initial[best].Answer, true
}

// partitionParticipants splits the configured set into participating
// (at least one usable answer anywhere in the run) and failed (zero usable
// answers across the entire run). Every participant lands in exactly one.
func partitionParticipants(participants []Participant, trails []QuestionTrail, initial map[string][]ModelResponse) (participating, failed []string) {
	produced := make(map[string]bool)
	for _, responses := range initial {
		for _, r := range responses {
			produced[r.ModelID] = true
		}
	}
	for _, t := range trails {
		for _, round := range t.Rounds {
			for _, r := range round.Responses {
				produced[r.ModelID] = true
			}
		}
	}

	for _, p := range participants {
		if produced[p.ID()] {
			participating = append(participating, p.ID())
		} else {
			failed = append(failed, p.ID())
		}
	}
	sort.Strings(participating)
	sort.Strings(failed)
	return participating, failed
}

// runFailureReason picks the most specific run-level reason from the
// terminal trails.
func runFailureReason(trails []QuestionTrail) FailureReason {
	allFailed := true
	for _, t := range trails {
		if t.Termination != TerminationAllModelsFailed {
			allFailed = false
			break
		}
	}
	if allFailed {
		return FailureAllModelsFailed
	}
	return FailureMaxIterations
}
