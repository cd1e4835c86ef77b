// Command model-registry-sync refreshes the model catalog (models.yaml)
// from provider listing APIs. The catalog is what config validation
// resolves model references against, so run this when providers ship new
// models.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johnayoung/quiz-consensus/internal/config"
)

type openAIListModelsResponse struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type openRouterListModelsResponse struct {
	Data []openRouterModel `json:"data"`
}

type openRouterModel struct {
	ID            string `json:"id"`
	CanonicalSlug string `json:"canonical_slug"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	Description   string `json:"description"`
}

func main() {
	var (
		outPath        string
		openaiEnabled  bool
		orEnabled      bool
		timeoutSeconds int
	)
	flag.StringVar(&outPath, "out", "models.yaml", "output catalog path (- for stdout)")
	flag.BoolVar(&openaiEnabled, "openai", true, "fetch OpenAI models (requires OPENAI_API_KEY)")
	flag.BoolVar(&orEnabled, "openrouter", true, "fetch OpenRouter models (uses OPENROUTER_API_KEY if set)")
	flag.IntVar(&timeoutSeconds, "timeout", 20, "HTTP timeout in seconds")
	flag.Parse()

	ctx := context.Background()
	client := &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}

	var entries []config.CatalogEntry
	var errs []error

	if openaiEnabled {
		recs, err := fetchOpenAIModels(ctx, client)
		if err != nil {
			errs = append(errs, fmt.Errorf("openai: %w", err))
		} else {
			entries = append(entries, recs...)
		}
	}

	if orEnabled {
		recs, err := fetchOpenRouterModels(ctx, client)
		if err != nil {
			errs = append(errs, fmt.Errorf("openrouter: %w", err))
		} else {
			entries = append(entries, recs...)
		}
	}

	entries = dedupe(entries)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Provider == entries[j].Provider {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Provider < entries[j].Provider
	})

	payload, err := yaml.Marshal(config.Catalog{Models: entries})
	if err != nil {
		fatal(err)
	}

	if outPath == "-" {
		_, _ = os.Stdout.Write(payload)
	} else {
		if err := os.WriteFile(outPath, payload, 0o644); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "wrote %d models to %s\n", len(entries), outPath)
	}

	// Non-fatal: show fetch errors at the end (so you still get partial output).
	if len(errs) > 0 {
		_, _ = fmt.Fprintln(os.Stderr, "\nWARN: some sources failed:")
		for _, e := range errs {
			_, _ = fmt.Fprintln(os.Stderr, " -", e.Error())
		}
	}
}

func fetchOpenAIModels(ctx context.Context, client *http.Client) ([]config.CatalogEntry, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.openai.com/v1/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(body), 600))
	}

	var parsed openAIListModelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal: %w; body=%s", err, truncate(string(body), 600))
	}

	out := make([]config.CatalogEntry, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		out = append(out, config.CatalogEntry{
			ID:       m.ID,
			Provider: "openai",
		})
	}
	return out, nil
}

func fetchOpenRouterModels(ctx context.Context, client *http.Client) ([]config.CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://openrouter.ai/api/v1/models", nil)
	if err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(body), 600))
	}

	var parsed openRouterListModelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal: %w; body=%s", err, truncate(string(body), 600))
	}

	out := make([]config.CatalogEntry, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		provider, id := providerFromSlug(m.ID)
		if provider == "" {
			continue // not a provider this engine can call directly
		}
		out = append(out, config.CatalogEntry{
			ID:            id,
			Provider:      provider,
			Name:          m.Name,
			ContextLength: m.ContextLength,
		})
	}
	return out, nil
}

// providerFromSlug maps an OpenRouter "vendor/model" slug to one of the
// engine's native providers. Unknown vendors are skipped.
func providerFromSlug(slug string) (provider, id string) {
	vendor, model, ok := strings.Cut(slug, "/")
	if !ok {
		return "", ""
	}
	switch vendor {
	case "openai":
		return "openai", model
	case "anthropic":
		return "anthropic", model
	case "google":
		return "google", model
	default:
		return "", ""
	}
}

// dedupe keeps the richest entry per model id. OpenRouter entries carry
// names and context lengths that the OpenAI listing lacks.
func dedupe(entries []config.CatalogEntry) []config.CatalogEntry {
	byID := make(map[string]config.CatalogEntry, len(entries))
	for _, e := range entries {
		existing, ok := byID[e.ID]
		if !ok || (existing.Name == "" && e.Name != "") {
			byID[e.ID] = e
		}
	}
	out := make([]config.CatalogEntry, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, "ERROR:", err.Error())
	os.Exit(1)
}
