// Package config loads and validates consensus settings. Configuration is
// layered: defaults, then an optional YAML file, then QUIZCONSENSUS_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ModelRef selects one model to participate in consensus runs.
type ModelRef struct {
	ID      string  `mapstructure:"id"`
	Weight  float64 `mapstructure:"weight"`
	Enabled bool    `mapstructure:"enabled"`
}

// Privacy controls what leaves the local machine and what is persisted.
type Privacy struct {
	// ShareSourceWithProviders permits sending source material to model
	// providers for validation and generation.
	ShareSourceWithProviders bool `mapstructure:"share_source_with_providers"`
	// RedactSourceInTrail omits the full source text from saved trails.
	RedactSourceInTrail bool `mapstructure:"redact_source_in_trail"`
}

// Logging controls structured log output.
type Logging struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Settings is the complete configuration surface for a run.
type Settings struct {
	Enabled                bool       `mapstructure:"enabled"`
	Models                 []ModelRef `mapstructure:"models"`
	MinModelsRequired      int        `mapstructure:"min_models_required"`
	ConsensusThreshold     float64    `mapstructure:"consensus_threshold"`
	MaxIterations          int        `mapstructure:"max_iterations"`
	EnableSourceValidation bool       `mapstructure:"enable_source_validation"`
	EnableCaching          bool       `mapstructure:"enable_caching"`
	FallbackToSingleModel  bool       `mapstructure:"fallback_to_single_model"`
	SuccessFraction        float64    `mapstructure:"success_fraction"`
	UnitConcurrency        int        `mapstructure:"unit_concurrency"`
	TimeoutSeconds         int        `mapstructure:"timeout_seconds"`
	DataDir                string     `mapstructure:"data_dir"`
	CatalogPath            string     `mapstructure:"catalog_path"`
	Privacy                Privacy    `mapstructure:"privacy"`
	Logging                Logging    `mapstructure:"logging"`
}

// Timeout returns the per-call timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// EnabledModels returns the enabled subset of Models.
func (s *Settings) EnabledModels() []ModelRef {
	var out []ModelRef
	for _, m := range s.Models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", true)
	v.SetDefault("min_models_required", 2)
	v.SetDefault("consensus_threshold", 0.66)
	v.SetDefault("max_iterations", 3)
	v.SetDefault("enable_source_validation", true)
	v.SetDefault("enable_caching", true)
	v.SetDefault("fallback_to_single_model", true)
	v.SetDefault("success_fraction", 1.0)
	v.SetDefault("unit_concurrency", 4)
	v.SetDefault("timeout_seconds", 120)
	v.SetDefault("data_dir", "data")
	v.SetDefault("privacy.share_source_with_providers", true)
	v.SetDefault("privacy.redact_source_in_trail", false)
	v.SetDefault("logging.level", "info")
}

// Load reads settings from the given file path (optional) with
// environment overrides.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUIZCONSENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &s, nil
}
