package consensus

import "testing"

func TestAnonymizer_FreshTokens(t *testing.T) {
	anon := newAnonymizer()
	responses := []ModelResponse{
		respOf("a", ScalarAnswer("X"), 0.9),
		respOf("b", ScalarAnswer("Y"), 0.8),
	}

	seen := make(map[string]bool)
	for round := 0; round < 3; round++ {
		wrapped := anon.wrapRound(responses)
		for _, alt := range wrapped.wrapped {
			if alt.AnswerID == "" {
				t.Fatal("empty answer token")
			}
			if alt.AnswerID == "a" || alt.AnswerID == "b" {
				t.Fatalf("token %q leaks a participant id", alt.AnswerID)
			}
			if seen[alt.AnswerID] {
				t.Fatalf("token %q reused across rounds", alt.AnswerID)
			}
			seen[alt.AnswerID] = true
		}
	}
}

func TestRoundAnswers_ExcludesOwnAnswer(t *testing.T) {
	anon := newAnonymizer()
	wrapped := anon.wrapRound([]ModelResponse{
		respOf("a", ScalarAnswer("X"), 0.9),
		respOf("b", ScalarAnswer("Y"), 0.8),
		respOf("c", ScalarAnswer("Z"), 0.7),
	})

	alts := wrapped.alternativesFor("b")
	if len(alts) != 2 {
		t.Fatalf("got %d alternatives, want 2", len(alts))
	}
	for _, alt := range alts {
		if alt.Answer.Scalar == "Y" {
			t.Error("participant b received its own answer")
		}
	}

	// A participant that did not answer this round sees everything.
	all := wrapped.alternativesFor("d")
	if len(all) != 3 {
		t.Errorf("non-responder got %d alternatives, want 3", len(all))
	}
}
