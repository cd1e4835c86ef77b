package consensus

import (
	"context"
	"sync"
)

// generationCache memoizes successful Generate calls within a single run,
// keyed by participant and question. Identical prompts (e.g. a re-run of a
// question list that repeats a prompt) hit the provider once. Errors are
// never cached; a failed call stays retryable.
type generationCache struct {
	mu sync.Mutex
	m  map[string]Candidate
}

func newGenerationCache() *generationCache {
	return &generationCache{m: make(map[string]Candidate)}
}

func (c *generationCache) generate(ctx context.Context, p Participant, q Question) (Candidate, error) {
	key := p.ID() + "\x00" + string(q.Kind) + "\x00" + q.Prompt

	c.mu.Lock()
	if cand, ok := c.m[key]; ok {
		c.mu.Unlock()
		return cand, nil
	}
	c.mu.Unlock()

	cand, err := p.Generate(ctx, q)
	if err != nil {
		return Candidate{}, err
	}

	c.mu.Lock()
	c.m[key] = cand
	c.mu.Unlock()
	return cand, nil
}
