// Package sourcecheck validates source material by running fact extraction
// across every participant and measuring fact-level agreement between the
// independent extractions.
package sourcecheck

import "context"

// Extractor is one participant's fact-extraction capability.
type Extractor interface {
	ID() string
	Weight() float64
	ExtractFacts(ctx context.Context, source string) (Extraction, error)
}

// Citation references a half-open [Start,End) character range in the
// source text. Invariant: 0 <= Start < End <= len(source).
type Citation struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Fact is a single statement an extractor pulled from the source.
// Contradicts is set when the extractor judged the statement to conflict
// with another claim about the same section; the validator only aggregates
// these flags, it never re-derives contradiction itself.
type Fact struct {
	Statement   string     `json:"statement"`
	Citations   []Citation `json:"citations,omitempty"`
	Contradicts string     `json:"contradicts,omitempty"`
}

// Extraction is one extractor's complete read of the source.
type Extraction struct {
	ModelID    string  `json:"model_id"`
	Facts      []Fact  `json:"facts"`
	Confidence float64 `json:"confidence"`
}

// FactStatus classifies how widely a fact was corroborated.
type FactStatus int

const (
	// FactAgreed: every extractor that succeeded reported an equivalent fact.
	FactAgreed FactStatus = iota
	// FactPartial: more than one but not all extractors reported it.
	FactPartial
	// FactDisagreed: a single extractor reported it with no correspondence.
	FactDisagreed
)

func (s FactStatus) String() string {
	switch s {
	case FactAgreed:
		return "agreed"
	case FactPartial:
		return "partial"
	case FactDisagreed:
		return "disagreed"
	default:
		return "unknown"
	}
}

// FactConsensus is the merged view of one distinct fact across extractors.
type FactConsensus struct {
	Statement         string     `json:"statement"` // representative phrasing
	Status            FactStatus `json:"status"`
	AgreeingModels    []string   `json:"agreeing_models"`
	DisagreeingModels []string   `json:"disagreeing_models"`
	Fraction          float64    `json:"fraction"` // weighted share of extractors reporting it
}

// Discrepancy records two extractors making contradictory claims about the
// same source section, as flagged by the extraction step.
type Discrepancy struct {
	Statement   string   `json:"statement"`
	Contradicts string   `json:"contradicts"`
	ModelIDs    []string `json:"model_ids"`
}

// Result is the outcome of validating one piece of source material.
type Result struct {
	SourceContent string          `json:"source_content"`
	Extractions   []Extraction    `json:"extractions"`
	FactConsensus []FactConsensus `json:"fact_consensus"`
	Discrepancies []Discrepancy   `json:"discrepancies,omitempty"`
	Confidence    float64         `json:"validation_confidence"`
	FailedModels  []string        `json:"failed_models,omitempty"`
}
