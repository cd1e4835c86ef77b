// Package textmatch decides when two pieces of free text mean the same thing.
// Both answer clustering and fact-level validation depend on this choice, so
// the rule is pluggable rather than a hidden constant. The default is
// normalized Levenshtein similarity with a 0.82 threshold.
package textmatch

import (
	"strings"
	"unicode"
)

// DefaultThreshold is the similarity at or above which two normalized
// strings are considered equivalent.
const DefaultThreshold = 0.82

// Matcher reports whether two strings express the same content.
// Implementations must be symmetric and safe for concurrent use.
type Matcher interface {
	Match(a, b string) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(a, b string) bool

func (f MatcherFunc) Match(a, b string) bool { return f(a, b) }

// Normalize lowercases, strips punctuation, and collapses whitespace so
// that trivial formatting differences never affect matching.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Levenshtein matches strings whose normalized edit-distance similarity
// meets the configured threshold.
type Levenshtein struct {
	Threshold float64
}

// NewLevenshtein returns a Levenshtein matcher with the default threshold.
func NewLevenshtein() *Levenshtein {
	return &Levenshtein{Threshold: DefaultThreshold}
}

// Match reports whether a and b are equivalent under the threshold.
// Exact matches after normalization short-circuit the distance computation.
func (l *Levenshtein) Match(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return true
	}
	if na == "" || nb == "" {
		return false
	}
	return Similarity(na, nb) >= l.Threshold
}

// Similarity returns 1 - distance/maxLen over the rune representation of
// the inputs, in [0,1]. Inputs are compared as given; callers normalize.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(Distance(ra, rb))/float64(longest)
}

// Distance computes the Levenshtein edit distance between two rune slices
// using a two-row dynamic program.
func Distance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
