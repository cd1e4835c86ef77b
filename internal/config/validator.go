package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single pre-flight validation failure.
type ValidationError struct {
	Field   string // the config field path (e.g. "models[1].weight")
	Value   any    // the invalid value
	Message string // human-actionable description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the settings before a run starts and returns every
// violation found, not just the first. When catalog is non-nil, model
// references must resolve against it. Configuration errors are never
// surfaced mid-run; a run only starts on a clean validation.
func (s *Settings) Validate(catalog *Catalog) ValidationErrors {
	var errs ValidationErrors

	enabled := s.EnabledModels()

	if s.Enabled && len(enabled) < s.MinModelsRequired {
		errs = append(errs, ValidationError{
			Field: "models",
			Value: len(enabled),
			Message: fmt.Sprintf(
				"consensus requires at least %d enabled models; enable more models or lower min_models_required",
				s.MinModelsRequired),
		})
	}

	if s.ConsensusThreshold < 0 || s.ConsensusThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "consensus_threshold",
			Value:   s.ConsensusThreshold,
			Message: "must be between 0.0 and 1.0",
		})
	} else if s.ConsensusThreshold > 0 && len(enabled) > 0 {
		// A non-zero threshold below 1/n can never distinguish agreement:
		// even a single model alone would clear it.
		minAchievable := 1.0 / float64(len(enabled))
		if s.ConsensusThreshold < minAchievable {
			errs = append(errs, ValidationError{
				Field: "consensus_threshold",
				Value: s.ConsensusThreshold,
				Message: fmt.Sprintf(
					"below the achievable minimum %.3f for %d enabled models; raise the threshold or set it to 0",
					minAchievable, len(enabled)),
			})
		}
	}

	if s.MaxIterations < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_iterations",
			Value:   s.MaxIterations,
			Message: "must be at least 1",
		})
	}

	if s.SuccessFraction < 0 || s.SuccessFraction > 1 {
		errs = append(errs, ValidationError{
			Field:   "success_fraction",
			Value:   s.SuccessFraction,
			Message: "must be between 0.0 and 1.0",
		})
	}

	seen := make(map[string]bool)
	for i, m := range s.Models {
		field := fmt.Sprintf("models[%d]", i)
		if m.ID == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Value:   m.ID,
				Message: "model id must not be empty",
			})
			continue
		}
		if seen[m.ID] {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Value:   m.ID,
				Message: "duplicate model reference; each model may appear only once",
			})
		}
		seen[m.ID] = true

		if m.Weight <= 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".weight",
				Value:   m.Weight,
				Message: "weight must be positive",
			})
		}

		if catalog != nil {
			if _, ok := catalog.Lookup(m.ID); !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".id",
					Value:   m.ID,
					Message: "unknown model; run model-registry-sync to refresh the catalog or fix the id",
				})
			}
		}
	}

	return errs
}
