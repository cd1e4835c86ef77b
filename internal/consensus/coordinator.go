package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/johnayoung/quiz-consensus/internal/logging"
	"github.com/johnayoung/quiz-consensus/internal/sourcecheck"
	"github.com/johnayoung/quiz-consensus/internal/textmatch"
)

// Options tune a consensus run.
type Options struct {
	// Threshold is the weighted agreement fraction required per question.
	Threshold float64
	// MaxIterations caps rounds per question.
	MaxIterations int
	// MinModelsRequired aborts the run when fewer participants survive
	// initial generation.
	MinModelsRequired int
	// SuccessFraction is the share of questions that must reach consensus
	// for the run to succeed without fallback.
	SuccessFraction float64
	// UnitConcurrency bounds how many questions build consensus at once,
	// trading provider rate-limit pressure against latency.
	UnitConcurrency int

	EnableSourceValidation bool
	EnableCaching          bool
	FallbackToSingleModel  bool
}

func (o Options) withDefaults() Options {
	if o.MaxIterations < 1 {
		o.MaxIterations = 3
	}
	if o.UnitConcurrency < 1 {
		o.UnitConcurrency = 4
	}
	if o.SuccessFraction <= 0 {
		o.SuccessFraction = 1
	}
	return o
}

// Task is one run's input: optional source material plus the questions to
// reach consensus on.
type Task struct {
	Source    string
	Questions []Question
}

// Coordinator sequences the four phases of a run: source validation,
// initial generation, per-question consensus building, and finalization.
type Coordinator struct {
	participants []Participant
	opts         Options
	callbacks    *Callbacks
	logger       *logging.Logger
	matcher      textmatch.Matcher
	validator    *sourcecheck.Validator
	cache        *generationCache

	cbMu sync.Mutex // serializes callback invocations across goroutines
}

// NewCoordinator creates a Coordinator over an immutable participant set.
func NewCoordinator(participants []Participant, opts Options) *Coordinator {
	c := &Coordinator{
		participants: participants,
		opts:         opts.withDefaults(),
		logger:       logging.Discard(),
		matcher:      textmatch.NewLevenshtein(),
	}
	if c.opts.EnableCaching {
		c.cache = newGenerationCache()
	}
	return c
}

// WithCallbacks attaches event callbacks. Callbacks are invoked one at a
// time; a slow consumer slows the run.
func (c *Coordinator) WithCallbacks(cb *Callbacks) *Coordinator {
	c.callbacks = cb
	return c
}

// WithLogger attaches a structured logger.
func (c *Coordinator) WithLogger(l *logging.Logger) *Coordinator {
	c.logger = l
	return c
}

// WithMatcher overrides the answer/fact similarity strategy.
func (c *Coordinator) WithMatcher(m textmatch.Matcher) *Coordinator {
	c.matcher = m
	return c
}

// Run executes a full consensus run. Cancellation via ctx is honored at
// every phase and round boundary; a cancelled run returns the context
// error and no partial result.
func (c *Coordinator) Run(ctx context.Context, task Task) (*Result, error) {
	if len(task.Questions) == 0 {
		return nil, errors.New("no questions to run")
	}
	if len(c.participants) == 0 {
		return nil, errors.New("no participants configured")
	}

	start := time.Now()
	c.logger.Info("consensus run starting",
		"questions", len(task.Questions),
		"participants", len(c.participants),
		"threshold", c.opts.Threshold)

	// Phase 1: source validation (optional, degradable).
	sourceValidation, err := c.validateSource(ctx, task)
	if err != nil {
		return nil, err
	}

	// Phase 2: initial generation.
	initial, usable, err := c.generateInitial(ctx, task.Questions)
	if err != nil {
		return nil, err
	}
	if len(usable) == 0 {
		c.logger.Error("no participant produced any usable answer")
		return failedResult(c.participants, usable, start, sourceValidation, FailureAllModelsFailed), nil
	}
	if len(usable) < c.opts.MinModelsRequired {
		c.logger.Error("insufficient models after initial generation",
			"usable", len(usable), "required", c.opts.MinModelsRequired)
		return failedResult(c.participants, usable, start, sourceValidation, FailureInsufficientModels), nil
	}

	// Phase 3: per-question consensus building.
	trails, err := c.buildConsensus(ctx, task.Questions, initial)
	if err != nil {
		return nil, err
	}

	// Phase 4: finalization.
	c.emitProgress(Progress{
		Phase:           PhaseFinalization,
		OverallProgress: 0.95,
		Message:         "Assembling audit trail",
	})
	result := buildResult(buildInput{
		participants:     c.participants,
		opts:             c.opts,
		start:            start,
		trails:           trails,
		initial:          initial,
		sourceValidation: sourceValidation,
	})
	c.emitProgress(Progress{
		Phase:           PhaseFinalization,
		PhaseProgress:   1,
		OverallProgress: 1,
		Message:         "Run complete",
	})

	c.logger.Info("consensus run finished",
		"success", result.Success,
		"reason", result.FailureReason,
		"duration", result.AuditTrail.TotalDuration)
	return result, nil
}

// validateSource runs phase 1. Total extraction failure degrades the run
// (validation unset) rather than blocking generation.
func (c *Coordinator) validateSource(ctx context.Context, task Task) (*sourcecheck.Result, error) {
	if !c.opts.EnableSourceValidation || task.Source == "" {
		return nil, nil
	}

	c.emitProgress(Progress{
		Phase:   PhaseSourceValidation,
		Message: "Validating source material",
	})

	validator := sourcecheck.New(c.matcher, func(modelID string, err error) {
		c.emitModelError(modelID, err, SeverityWarning, false)
	})
	extractors := make([]sourcecheck.Extractor, len(c.participants))
	for i, p := range c.participants {
		extractors[i] = p
	}

	result, err := validator.Validate(ctx, task.Source, extractors)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("source validation degraded, proceeding without it", "error", err)
		result = nil
	}

	c.emitProgress(Progress{
		Phase:           PhaseSourceValidation,
		PhaseProgress:   1,
		OverallProgress: 0.1,
		Message:         "Source validation complete",
	})
	return result, nil
}

// generateInitial runs phase 2: one Generate call per participant per
// question, fully in parallel. It returns the initial responses keyed by
// question id and the set of participants with at least one usable answer.
func (c *Coordinator) generateInitial(ctx context.Context, questions []Question) (map[string][]ModelResponse, map[string]bool, error) {
	c.emitProgress(Progress{
		Phase:           PhaseInitialGeneration,
		OverallProgress: 0.1,
		Message:         fmt.Sprintf("Generating initial answers from %d models", len(c.participants)),
	})

	var (
		mu         sync.Mutex
		byQuestion = make(map[string][]ModelResponse, len(questions))
		usable     = make(map[string]bool)
		done       atomic.Int64
	)
	total := len(questions) * len(c.participants)

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range questions {
		for _, p := range c.participants {
			g.Go(func() error {
				cand, err := c.generate(gctx, p, q)

				n := done.Add(1)
				phaseProgress := float64(n) / float64(total)
				c.emitProgress(Progress{
					Phase:           PhaseInitialGeneration,
					PhaseProgress:   phaseProgress,
					OverallProgress: 0.1 + 0.3*phaseProgress,
					QuestionID:      q.ID,
					Message:         fmt.Sprintf("Initial generation %d/%d", n, total),
				})

				if err != nil {
					// Excluded from this question's initial set, but may
					// still answer in later rounds.
					c.emitModelError(p.ID(), err, SeverityWarning, true)
					c.logger.Warn("initial generation failed",
						"question", q.ID, "model", p.ID(), "error", err)
					return nil
				}

				mu.Lock()
				byQuestion[q.ID] = append(byQuestion[q.ID], ModelResponse{
					ModelID:    p.ID(),
					Answer:     cand.Answer,
					Reasoning:  cand.Reasoning,
					Confidence: clamp01(cand.Confidence),
				})
				usable[p.ID()] = true
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return byQuestion, usable, nil
}

func (c *Coordinator) generate(ctx context.Context, p Participant, q Question) (Candidate, error) {
	if c.cache == nil {
		return p.Generate(ctx, q)
	}
	return c.cache.generate(ctx, p, q)
}

// buildConsensus runs phase 3: one orchestrator per question, concurrently
// up to UnitConcurrency. Each orchestrator owns its own trail; this method
// only writes the i-th slot of the result slice, and a partial result is
// emitted the instant each question goes terminal.
func (c *Coordinator) buildConsensus(ctx context.Context, questions []Question, initial map[string][]ModelResponse) ([]QuestionTrail, error) {
	weights := make(map[string]float64, len(c.participants))
	for _, p := range c.participants {
		weights[p.ID()] = p.Weight()
	}

	trails := make([]QuestionTrail, len(questions))
	sem := semaphore.NewWeighted(int64(c.opts.UnitConcurrency))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range questions {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			o := &orchestrator{
				question:     q,
				participants: c.participants,
				weights:      weights,
				threshold:    c.opts.Threshold,
				maxIter:      c.opts.MaxIterations,
				matcher:      c.matcher,
				callbacks:    c.serializedCallbacks(),
				logger:       c.logger,
				anon:         newAnonymizer(),
				onRound: func(round int) {
					c.emitProgress(Progress{
						Phase:      PhaseConsensusBuilding,
						QuestionID: q.ID,
						Round:      round,
						Message:    fmt.Sprintf("Question %s: round %d", q.ID, round),
					})
				},
			}

			trail, err := o.run(gctx, initial[q.ID])
			if err != nil {
				return err
			}
			trails[i] = trail

			n := done.Add(1)
			phaseProgress := float64(n) / float64(len(questions))
			c.emitPartialResult(PartialResult{
				Trail:          trail,
				QuestionsDone:  int(n),
				QuestionsTotal: len(questions),
			})
			c.emitProgress(Progress{
				Phase:           PhaseConsensusBuilding,
				PhaseProgress:   phaseProgress,
				OverallProgress: 0.4 + 0.55*phaseProgress,
				QuestionID:      q.ID,
				Message:         fmt.Sprintf("Questions settled %d/%d", n, len(questions)),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trails, nil
}

// serializedCallbacks returns a Callbacks view that routes through the
// coordinator's callback mutex, so concurrent orchestrators never invoke
// consumer code in parallel.
func (c *Coordinator) serializedCallbacks() *Callbacks {
	return &Callbacks{
		OnModelError: func(modelID string, err error, severity Severity, willRetry bool) {
			c.emitModelError(modelID, err, severity, willRetry)
		},
	}
}

func (c *Coordinator) emitProgress(p Progress) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks.progress(p)
}

func (c *Coordinator) emitPartialResult(p PartialResult) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks.partialResult(p)
}

func (c *Coordinator) emitModelError(modelID string, err error, severity Severity, willRetry bool) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks.modelError(modelID, err, severity, willRetry)
}
