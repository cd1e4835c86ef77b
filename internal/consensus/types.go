// Package consensus implements the multi-participant agreement engine:
// weighted answer evaluation, per-question re-evaluation rounds with
// anonymized alternatives, phase-sequenced coordination across questions,
// and the audit trail that records how every answer was settled.
package consensus

import (
	"context"
	"time"

	"github.com/johnayoung/quiz-consensus/internal/sourcecheck"
)

// Participant is one configured model endpoint taking part in a run.
// The set of participants is fixed once a run starts.
type Participant interface {
	ID() string
	Weight() float64

	// Generate produces a candidate answer for one question.
	Generate(ctx context.Context, q Question) (Candidate, error)

	// ReEvaluate asks the participant to reconsider its answer given the
	// other participants' anonymized answers.
	ReEvaluate(ctx context.Context, req ReEvaluationRequest) (ReEvaluationResponse, error)

	// ExtractFacts pulls factual claims from source material.
	ExtractFacts(ctx context.Context, source string) (sourcecheck.Extraction, error)
}

// Question is one output unit for which consensus is independently sought.
type Question struct {
	ID     string     `json:"id"`
	Prompt string     `json:"prompt"`
	Kind   AnswerKind `json:"kind"` // expected answer shape
}

// Candidate is one participant's proposed answer for a question.
type Candidate struct {
	Answer     Answer  `json:"answer"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"` // in [0,1]
}

// AnonymizedAnswer is another participant's answer stripped of identity.
// AnswerID is a fresh opaque token scoped to a single round; it is never
// a participant id and never reused across rounds.
type AnonymizedAnswer struct {
	AnswerID   string  `json:"answer_id"`
	Answer     Answer  `json:"answer"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// ReEvaluationRequest asks one participant to reconsider its answer.
// Alternatives never contains the participant's own answer.
type ReEvaluationRequest struct {
	Question          Question           `json:"question"`
	RoundNumber       int                `json:"round_number"`
	OriginalAnswer    Answer             `json:"original_answer"`
	OriginalReasoning string             `json:"original_reasoning,omitempty"`
	Alternatives      []AnonymizedAnswer `json:"alternatives"`
}

// ReEvaluationResponse carries the reconsidered answer. Success=false with
// Error set is the signaled failure path; the engine treats it identically
// to a returned error.
type ReEvaluationResponse struct {
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	Answer     Answer  `json:"answer"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// ModelResponse is one participant's answer in one round.
type ModelResponse struct {
	ModelID        string  `json:"model_id"`
	Answer         Answer  `json:"answer"`
	Reasoning      string  `json:"reasoning,omitempty"`
	Confidence     float64 `json:"confidence"`
	Changed        bool    `json:"changed"`
	PreviousAnswer *Answer `json:"previous_answer,omitempty"`
}

// Round is one propose/re-evaluate iteration within a question.
type Round struct {
	Number           int             `json:"round_number"` // 1-indexed
	Responses        []ModelResponse `json:"responses"`
	ConsensusReached bool            `json:"consensus_reached"`
	Duration         time.Duration   `json:"duration_ms"`
}

// TerminationReason records why a question's consensus process stopped.
type TerminationReason string

const (
	TerminationReached         TerminationReason = "consensus_reached"
	TerminationMaxIterations   TerminationReason = "max_iterations_exceeded"
	TerminationCircular        TerminationReason = "circular_reasoning"
	TerminationAllModelsFailed TerminationReason = "all_models_failed"
)

// QuestionTrail is the terminal, immutable record of one question's
// consensus process. Invariant: AgreeingModels and DisagreeingModels
// together cover exactly the participants with a usable answer in the
// final round.
type QuestionTrail struct {
	Question          Question          `json:"question"`
	RoundsRequired    int               `json:"rounds_required"`
	Rounds            []Round           `json:"rounds"`
	ConsensusReached  bool              `json:"consensus_reached"`
	Agreement         float64           `json:"agreement_percentage"` // in [0,1]
	AgreeingModels    []string          `json:"agreeing_models"`
	DisagreeingModels []string          `json:"disagreeing_models"`
	Termination       TerminationReason `json:"termination"`
	FinalAnswer       Answer            `json:"final_answer"`
	FallbackApplied   bool              `json:"fallback_applied"`
}

// AuditTrail is the complete record of a run. ParticipatingModels and
// FailedModels partition the configured participant set: a participant is
// failed only if it produced zero usable answers across the entire run.
type AuditTrail struct {
	TotalDuration       time.Duration       `json:"total_duration_ms"`
	QuestionTrails      []QuestionTrail     `json:"question_trails"`
	SourceValidation    *sourcecheck.Result `json:"source_validation,omitempty"`
	ParticipatingModels []string            `json:"participating_models"`
	FailedModels        []string            `json:"failed_models"`
}

// QuizItem is one finalized question/answer pair.
type QuizItem struct {
	Question     Question `json:"question"`
	Answer       Answer   `json:"answer"`
	FromFallback bool     `json:"from_fallback,omitempty"`
}

// Quiz is the assembled output of a run.
type Quiz struct {
	Items []QuizItem `json:"items"`
}

// FailureReason identifies why a run failed.
type FailureReason string

const (
	FailureInsufficientModels FailureReason = "insufficient_models"
	FailureAllModelsFailed    FailureReason = "all_models_failed"
	FailureMaxIterations      FailureReason = "max_iterations_exceeded"
	FailureValidation         FailureReason = "validation_failure"
	FailureCancelled          FailureReason = "cancelled"
)

// Result is the final outcome of a run. FailureReason is set iff
// Success is false.
type Result struct {
	Quiz          Quiz          `json:"quiz"`
	AuditTrail    AuditTrail    `json:"audit_trail"`
	Success       bool          `json:"success"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
}

// Phase identifies a coordinator phase.
type Phase int

const (
	PhaseSourceValidation Phase = iota
	PhaseInitialGeneration
	PhaseConsensusBuilding
	PhaseFinalization
)

func (p Phase) String() string {
	switch p {
	case PhaseSourceValidation:
		return "source_validation"
	case PhaseInitialGeneration:
		return "initial_generation"
	case PhaseConsensusBuilding:
		return "consensus_building"
	case PhaseFinalization:
		return "finalization"
	default:
		return "unknown"
	}
}

// Progress reports phase and round transitions to a consumer.
type Progress struct {
	Phase           Phase
	PhaseProgress   float64 // in [0,1]
	OverallProgress float64 // in [0,1]
	Message         string
	QuestionID      string // set during consensus building
	Round           int    // set during consensus building
}

// PartialResult is emitted the instant one question reaches a terminal
// state, before the run as a whole finishes. Exactly one is emitted per
// question.
type PartialResult struct {
	Trail          QuestionTrail
	QuestionsDone  int
	QuestionsTotal int
}

// Severity grades a participant-level error.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Callbacks receive engine events as they happen. Any field may be nil.
// Callbacks are invoked synchronously; slow consumers slow the run.
type Callbacks struct {
	OnProgress      func(Progress)
	OnPartialResult func(PartialResult)
	OnModelError    func(modelID string, err error, severity Severity, willRetry bool)
}

func (c *Callbacks) progress(p Progress) {
	if c != nil && c.OnProgress != nil {
		c.OnProgress(p)
	}
}

func (c *Callbacks) partialResult(p PartialResult) {
	if c != nil && c.OnPartialResult != nil {
		c.OnPartialResult(p)
	}
}

func (c *Callbacks) modelError(modelID string, err error, severity Severity, willRetry bool) {
	if c != nil && c.OnModelError != nil {
		c.OnModelError(modelID, err, severity, willRetry)
	}
}
