package config

import (
	"strings"
	"testing"
)

func validSettings() *Settings {
	return &Settings{
		Enabled: true,
		Models: []ModelRef{
			{ID: "model-a", Weight: 1, Enabled: true},
			{ID: "model-b", Weight: 1, Enabled: true},
			{ID: "model-c", Weight: 2, Enabled: true},
		},
		MinModelsRequired:  2,
		ConsensusThreshold: 0.66,
		MaxIterations:      3,
		SuccessFraction:    1.0,
	}
}

func TestValidate_CleanSettings(t *testing.T) {
	if errs := validSettings().Validate(nil); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Settings)
		wantField string
	}{
		{
			name: "too few enabled models",
			mutate: func(s *Settings) {
				s.Models = s.Models[:1]
			},
			wantField: "models",
		},
		{
			name: "disabled models do not count toward the floor",
			mutate: func(s *Settings) {
				s.Models[1].Enabled = false
				s.Models[2].Enabled = false
			},
			wantField: "models",
		},
		{
			name:      "threshold above one",
			mutate:    func(s *Settings) { s.ConsensusThreshold = 1.5 },
			wantField: "consensus_threshold",
		},
		{
			name:      "threshold negative",
			mutate:    func(s *Settings) { s.ConsensusThreshold = -0.1 },
			wantField: "consensus_threshold",
		},
		{
			name:      "threshold below achievable minimum",
			mutate:    func(s *Settings) { s.ConsensusThreshold = 0.2 },
			wantField: "consensus_threshold",
		},
		{
			name:      "max iterations zero",
			mutate:    func(s *Settings) { s.MaxIterations = 0 },
			wantField: "max_iterations",
		},
		{
			name:      "success fraction out of range",
			mutate:    func(s *Settings) { s.SuccessFraction = 2 },
			wantField: "success_fraction",
		},
		{
			name: "empty model id",
			mutate: func(s *Settings) {
				s.Models[0].ID = ""
			},
			wantField: "models[0].id",
		},
		{
			name: "duplicate model id",
			mutate: func(s *Settings) {
				s.Models[1].ID = "model-a"
			},
			wantField: "models[1].id",
		},
		{
			name: "non-positive weight",
			mutate: func(s *Settings) {
				s.Models[2].Weight = 0
			},
			wantField: "models[2].weight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			errs := s.Validate(nil)
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("no error on field %q, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestValidate_ThresholdZeroAlwaysAchievable(t *testing.T) {
	s := validSettings()
	s.ConsensusThreshold = 0
	if errs := s.Validate(nil); len(errs) != 0 {
		t.Errorf("threshold 0 should be allowed: %v", errs)
	}
}

func TestValidate_AgainstCatalog(t *testing.T) {
	catalog := NewCatalog(
		CatalogEntry{ID: "model-a", Provider: "openai"},
		CatalogEntry{ID: "model-b", Provider: "anthropic"},
		CatalogEntry{ID: "model-c", Provider: "google"},
	)

	if errs := validSettings().Validate(catalog); len(errs) != 0 {
		t.Errorf("known models should validate: %v", errs)
	}

	s := validSettings()
	s.Models[0].ID = "model-x"
	errs := s.Validate(catalog)
	if len(errs) != 1 {
		t.Fatalf("got %v, want exactly one unknown-model error", errs)
	}
	if !strings.Contains(errs[0].Message, "unknown model") {
		t.Errorf("message = %q", errs[0].Message)
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	s := validSettings()
	s.ConsensusThreshold = 2
	s.MaxIterations = 0
	s.Models[2].Weight = -1

	errs := s.Validate(nil)
	if len(errs) != 3 {
		t.Errorf("got %d errors, want all 3 reported at once: %v", len(errs), errs)
	}
}
