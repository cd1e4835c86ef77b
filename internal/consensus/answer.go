package consensus

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/johnayoung/quiz-consensus/internal/textmatch"
)

// AnswerKind tags the closed set of answer shapes a question can take.
// Equality and clustering dispatch on the tag rather than on runtime
// inspection of the payload.
type AnswerKind string

const (
	AnswerScalar       AnswerKind = "scalar"        // single choice or short factual value
	AnswerMultiSelect  AnswerKind = "multi_select"  // unordered set of selections
	AnswerOrderedPairs AnswerKind = "ordered_pairs" // matching/ordering questions
	AnswerFreeText     AnswerKind = "free_text"     // open-ended prose
)

// Pair is one left/right association in an ordered-pairs answer.
type Pair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Answer is the tagged variant holding one participant's answer payload.
// Exactly one payload field is meaningful for a given Kind.
type Answer struct {
	Kind    AnswerKind
	Scalar  string
	Choices []string
	Pairs   []Pair
	Text    string
}

// ScalarAnswer builds a scalar answer.
func ScalarAnswer(value string) Answer { return Answer{Kind: AnswerScalar, Scalar: value} }

// MultiSelectAnswer builds a multi-select answer.
func MultiSelectAnswer(choices ...string) Answer {
	return Answer{Kind: AnswerMultiSelect, Choices: choices}
}

// OrderedPairsAnswer builds an ordered-pairs answer.
func OrderedPairsAnswer(pairs ...Pair) Answer {
	return Answer{Kind: AnswerOrderedPairs, Pairs: pairs}
}

// FreeTextAnswer builds a free-text answer.
func FreeTextAnswer(text string) Answer { return Answer{Kind: AnswerFreeText, Text: text} }

// IsZero reports whether the answer carries no payload at all.
func (a Answer) IsZero() bool {
	return a.Kind == "" && a.Scalar == "" && len(a.Choices) == 0 && len(a.Pairs) == 0 && a.Text == ""
}

// Key returns the normalized equality key used to group answers.
// Scalar answers compare after trimming and case folding; multi-select
// compares as a sorted set; ordered pairs compare structurally in order.
// Free text has no exact key (Key returns the normalized text, which the
// evaluator clusters fuzzily rather than comparing byte-for-byte).
func (a Answer) Key() string {
	switch a.Kind {
	case AnswerScalar:
		return "s:" + textmatch.Normalize(a.Scalar)
	case AnswerMultiSelect:
		normalized := make([]string, len(a.Choices))
		for i, c := range a.Choices {
			normalized[i] = textmatch.Normalize(c)
		}
		sort.Strings(normalized)
		return "m:" + strings.Join(normalized, "\x1f")
	case AnswerOrderedPairs:
		parts := make([]string, len(a.Pairs))
		for i, p := range a.Pairs {
			parts[i] = textmatch.Normalize(p.Left) + "\x1e" + textmatch.Normalize(p.Right)
		}
		return "p:" + strings.Join(parts, "\x1f")
	case AnswerFreeText:
		return "t:" + textmatch.Normalize(a.Text)
	default:
		return ""
	}
}

// Display renders the answer for prompts, trails, and terminal output.
func (a Answer) Display() string {
	switch a.Kind {
	case AnswerScalar:
		return a.Scalar
	case AnswerMultiSelect:
		return strings.Join(a.Choices, ", ")
	case AnswerOrderedPairs:
		parts := make([]string, len(a.Pairs))
		for i, p := range a.Pairs {
			parts[i] = p.Left + " -> " + p.Right
		}
		return strings.Join(parts, "; ")
	case AnswerFreeText:
		return a.Text
	default:
		return ""
	}
}

// answerJSON is the tagged wire form of an Answer.
type answerJSON struct {
	Kind    AnswerKind `json:"kind"`
	Value   string     `json:"value,omitempty"`
	Choices []string   `json:"choices,omitempty"`
	Pairs   []Pair     `json:"pairs,omitempty"`
	Text    string     `json:"text,omitempty"`
}

// MarshalJSON encodes the answer in tagged form.
func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(answerJSON{
		Kind:    a.Kind,
		Value:   a.Scalar,
		Choices: a.Choices,
		Pairs:   a.Pairs,
		Text:    a.Text,
	})
}

// UnmarshalJSON decodes the tagged form, rejecting unknown kinds.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var w answerJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case AnswerScalar, AnswerMultiSelect, AnswerOrderedPairs, AnswerFreeText:
	default:
		return fmt.Errorf("unknown answer kind %q", w.Kind)
	}
	*a = Answer{
		Kind:    w.Kind,
		Scalar:  w.Value,
		Choices: w.Choices,
		Pairs:   w.Pairs,
		Text:    w.Text,
	}
	return nil
}
