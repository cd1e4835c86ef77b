package consensus

import "github.com/google/uuid"

// anonymizer issues round-scoped opaque tokens for answers. The reverse
// mapping from token to participant never leaves the round that created
// it, and a token is never reused: each round wraps answers afresh and the
// issued set guards against the (vanishing) chance of a UUID collision
// within a run.
type anonymizer struct {
	issued map[string]bool
}

func newAnonymizer() *anonymizer {
	return &anonymizer{issued: make(map[string]bool)}
}

// token returns a fresh opaque answer id.
func (a *anonymizer) token() string {
	for {
		t := uuid.NewString()
		if !a.issued[t] {
			a.issued[t] = true
			return t
		}
	}
}

// wrapRound wraps one round's responses with fresh tokens. The returned
// value is only valid for that round.
func (a *anonymizer) wrapRound(responses []ModelResponse) *roundAnswers {
	r := &roundAnswers{
		wrapped: make([]AnonymizedAnswer, len(responses)),
		owners:  make([]string, len(responses)),
	}
	for i, resp := range responses {
		r.wrapped[i] = AnonymizedAnswer{
			AnswerID:   a.token(),
			Answer:     resp.Answer,
			Reasoning:  resp.Reasoning,
			Confidence: resp.Confidence,
		}
		r.owners[i] = resp.ModelID
	}
	return r
}

// roundAnswers holds one round's anonymized answers together with the
// round-local reverse mapping (owners), which never escapes the round.
type roundAnswers struct {
	wrapped []AnonymizedAnswer
	owners  []string
}

// alternativesFor returns every wrapped answer except the given
// participant's own. A participant that did not respond this round (and
// so owns nothing) sees all of them.
func (r *roundAnswers) alternativesFor(modelID string) []AnonymizedAnswer {
	out := make([]AnonymizedAnswer, 0, len(r.wrapped))
	for i := range r.wrapped {
		if r.owners[i] != modelID {
			out = append(out, r.wrapped[i])
		}
	}
	return out
}
