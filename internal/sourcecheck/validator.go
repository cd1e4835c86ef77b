package sourcecheck

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/johnayoung/quiz-consensus/internal/textmatch"
)

// ErrAllExtractorsFailed signals that no participant produced a usable
// extraction. Callers treat this as a degraded (non-fatal) state.
var ErrAllExtractorsFailed = errors.New("source validation: all extractors failed")

// ErrorFunc receives per-extractor failures as they happen.
type ErrorFunc func(modelID string, err error)

// Validator aggregates fact extractions into a consensus view.
type Validator struct {
	matcher textmatch.Matcher
	onError ErrorFunc
}

// New creates a Validator. A nil matcher falls back to the default
// Levenshtein matcher.
func New(matcher textmatch.Matcher, onError ErrorFunc) *Validator {
	if matcher == nil {
		matcher = textmatch.NewLevenshtein()
	}
	return &Validator{matcher: matcher, onError: onError}
}

// Validate dispatches ExtractFacts to every extractor concurrently and
// computes fact-level consensus over the results. A single extractor
// failing drops only that extractor; ErrAllExtractorsFailed is returned
// when none succeed.
func (v *Validator) Validate(ctx context.Context, source string, extractors []Extractor) (*Result, error) {
	var (
		mu          sync.Mutex
		extractions []Extraction
		failed      []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, ex := range extractors {
		g.Go(func() error {
			extraction, err := ex.ExtractFacts(gctx, source)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, ex.ID())
				if v.onError != nil {
					v.onError(ex.ID(), err)
				}
				return nil // best effort: one extractor failing never aborts validation
			}
			extraction.ModelID = ex.ID()
			extraction.Facts = validCitations(extraction.Facts, len(source))
			extractions = append(extractions, extraction)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(extractions) == 0 {
		return nil, ErrAllExtractorsFailed
	}

	// Deterministic regardless of goroutine completion order.
	sort.Slice(extractions, func(i, j int) bool { return extractions[i].ModelID < extractions[j].ModelID })
	sort.Strings(failed)

	weights := make(map[string]float64, len(extractors))
	for _, ex := range extractors {
		weights[ex.ID()] = ex.Weight()
	}

	clusters := v.clusterFacts(extractions)
	consensus := v.scoreClusters(clusters, extractions, weights)

	return &Result{
		SourceContent: source,
		Extractions:   extractions,
		FactConsensus: consensus,
		Discrepancies: collectDiscrepancies(extractions),
		Confidence:    confidence(consensus, weights),
		FailedModels:  failed,
	}, nil
}

// factCluster groups equivalent statements across extractors.
type factCluster struct {
	representative string
	members        map[string]bool // model ids that reported it
}

// clusterFacts greedily assigns each fact to the first cluster whose
// representative it matches. Extractions arrive sorted by model id, so the
// clustering is deterministic.
func (v *Validator) clusterFacts(extractions []Extraction) []*factCluster {
	var clusters []*factCluster
	for _, ex := range extractions {
		for _, f := range ex.Facts {
			placed := false
			for _, c := range clusters {
				if v.matcher.Match(c.representative, f.Statement) {
					c.members[ex.ModelID] = true
					placed = true
					break
				}
			}
			if !placed {
				clusters = append(clusters, &factCluster{
					representative: f.Statement,
					members:        map[string]bool{ex.ModelID: true},
				})
			}
		}
	}
	return clusters
}

func (v *Validator) scoreClusters(clusters []*factCluster, extractions []Extraction, weights map[string]float64) []FactConsensus {
	var totalWeight float64
	for _, ex := range extractions {
		totalWeight += weights[ex.ModelID]
	}

	out := make([]FactConsensus, 0, len(clusters))
	for _, c := range clusters {
		var agreeing, disagreeing []string
		var clusterWeight float64
		for _, ex := range extractions {
			if c.members[ex.ModelID] {
				agreeing = append(agreeing, ex.ModelID)
				clusterWeight += weights[ex.ModelID]
			} else {
				disagreeing = append(disagreeing, ex.ModelID)
			}
		}

		status := FactDisagreed
		switch {
		case len(agreeing) == len(extractions):
			status = FactAgreed
		case len(agreeing) > 1:
			status = FactPartial
		}

		fraction := 0.0
		if totalWeight > 0 {
			fraction = clusterWeight / totalWeight
		}

		out = append(out, FactConsensus{
			Statement:         c.representative,
			Status:            status,
			AgreeingModels:    agreeing,
			DisagreeingModels: disagreeing,
			Fraction:          fraction,
		})
	}
	return out
}

// confidence is the weighted share of agreed facts over all distinct facts,
// where each fact carries the total weight of the models reporting it.
func confidence(consensus []FactConsensus, weights map[string]float64) float64 {
	var agreed, total float64
	for _, fc := range consensus {
		var w float64
		for _, id := range fc.AgreeingModels {
			w += weights[id]
		}
		total += w
		if fc.Status == FactAgreed {
			agreed += w
		}
	}
	if total == 0 {
		return 0
	}
	return agreed / total
}

// collectDiscrepancies merges extractor-flagged contradictions, grouping
// identical flags reported by multiple models.
func collectDiscrepancies(extractions []Extraction) []Discrepancy {
	byKey := make(map[string]*Discrepancy)
	var order []string
	for _, ex := range extractions {
		for _, f := range ex.Facts {
			if f.Contradicts == "" {
				continue
			}
			key := f.Statement + "\x00" + f.Contradicts
			d, ok := byKey[key]
			if !ok {
				d = &Discrepancy{Statement: f.Statement, Contradicts: f.Contradicts}
				byKey[key] = d
				order = append(order, key)
			}
			d.ModelIDs = append(d.ModelIDs, ex.ModelID)
		}
	}

	out := make([]Discrepancy, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// validCitations drops citations that violate the [start,end) range
// invariant rather than failing the whole extraction.
func validCitations(facts []Fact, sourceLen int) []Fact {
	for i := range facts {
		kept := facts[i].Citations[:0]
		for _, c := range facts[i].Citations {
			if c.Start >= 0 && c.Start < c.End && c.End <= sourceLen {
				kept = append(kept, c)
			}
		}
		facts[i].Citations = kept
	}
	return facts
}
