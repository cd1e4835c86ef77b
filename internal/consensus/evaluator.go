package consensus

import (
	"sort"

	"github.com/johnayoung/quiz-consensus/internal/textmatch"
)

// Evaluation is the outcome of scoring one round's responses.
// DominantAnswer is nil only when zero participants returned a usable
// answer, which is a distinct state from agreement below threshold.
type Evaluation struct {
	DominantAnswer    *Answer
	Agreement         float64
	Reached           bool
	AgreeingModels    []string
	DisagreeingModels []string
}

// Evaluate groups responses into equivalence clusters and computes the
// weighted agreement fraction of the dominant cluster. It is a pure
// function: the same inputs always produce the same outputs, and the
// result is independent of the order of responses.
//
// The weighted fraction of a cluster is the sum of its members' weights
// over the sum of weights of every participant that produced a usable
// answer this round. Ties between clusters break by higher raw confidence
// sum, then by lowest member model id, so the choice is reproducible.
// A threshold of 0 is trivially met by the highest-weight cluster.
func Evaluate(responses []ModelResponse, weights map[string]float64, threshold float64, matcher textmatch.Matcher) Evaluation {
	if matcher == nil {
		matcher = textmatch.NewLevenshtein()
	}
	if len(responses) == 0 {
		return Evaluation{}
	}

	// Sort a copy by model id so fuzzy clustering of free-text answers is
	// insensitive to input order.
	sorted := make([]ModelResponse, len(responses))
	copy(sorted, responses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ModelID < sorted[j].ModelID })

	clusters := clusterResponses(sorted, matcher)

	var totalWeight float64
	for _, r := range sorted {
		totalWeight += weights[r.ModelID]
	}
	if totalWeight == 0 {
		return Evaluation{}
	}

	dominant := pickDominant(clusters, weights)

	agreement := dominant.weight(weights) / totalWeight
	answer := dominant.members[0].Answer

	agreeing := make([]string, 0, len(dominant.members))
	for _, m := range dominant.members {
		agreeing = append(agreeing, m.ModelID)
	}
	var disagreeing []string
	for _, r := range sorted {
		if !contains(agreeing, r.ModelID) {
			disagreeing = append(disagreeing, r.ModelID)
		}
	}

	return Evaluation{
		DominantAnswer:    &answer,
		Agreement:         agreement,
		Reached:           agreement >= threshold,
		AgreeingModels:    agreeing,
		DisagreeingModels: disagreeing,
	}
}

// answerCluster is one equivalence group of responses.
type answerCluster struct {
	key     string
	members []ModelResponse
}

func (c *answerCluster) weight(weights map[string]float64) float64 {
	var w float64
	for _, m := range c.members {
		w += weights[m.ModelID]
	}
	return w
}

func (c *answerCluster) confidenceSum() float64 {
	var sum float64
	for _, m := range c.members {
		sum += m.Confidence
	}
	return sum
}

// minModelID returns the lexically lowest member id, the final tie-break.
func (c *answerCluster) minModelID() string {
	id := c.members[0].ModelID
	for _, m := range c.members[1:] {
		if m.ModelID < id {
			id = m.ModelID
		}
	}
	return id
}

// clusterResponses groups responses by answer equivalence. Structured
// answers (scalar, multi-select, ordered pairs) compare by exact
// normalized key; free-text answers join the first cluster whose
// representative the matcher accepts. Input must already be sorted.
func clusterResponses(sorted []ModelResponse, matcher textmatch.Matcher) []*answerCluster {
	var clusters []*answerCluster
	for _, r := range sorted {
		key := r.Answer.Key()
		placed := false
		for _, c := range clusters {
			if c.key == key {
				c.members = append(c.members, r)
				placed = true
				break
			}
			if r.Answer.Kind == AnswerFreeText && c.members[0].Answer.Kind == AnswerFreeText &&
				matcher.Match(c.members[0].Answer.Text, r.Answer.Text) {
				c.members = append(c.members, r)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &answerCluster{key: key, members: []ModelResponse{r}})
		}
	}
	return clusters
}

func pickDominant(clusters []*answerCluster, weights map[string]float64) *answerCluster {
	best := clusters[0]
	for _, c := range clusters[1:] {
		cw, bw := c.weight(weights), best.weight(weights)
		switch {
		case cw > bw:
			best = c
		case cw == bw:
			cc, bc := c.confidenceSum(), best.confidenceSum()
			if cc > bc || (cc == bc && c.minModelID() < best.minModelID()) {
				best = c
			}
		}
	}
	return best
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
