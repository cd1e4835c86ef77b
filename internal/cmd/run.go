package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/johnayoung/quiz-consensus/internal/config"
	"github.com/johnayoung/quiz-consensus/internal/consensus"
	"github.com/johnayoung/quiz-consensus/internal/logging"
	"github.com/johnayoung/quiz-consensus/internal/output"
	"github.com/johnayoung/quiz-consensus/internal/participant"
	"github.com/johnayoung/quiz-consensus/internal/provider"
	"github.com/johnayoung/quiz-consensus/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a consensus session over a question file",
	Long: `Run queries every enabled model for each question, then iterates
anonymized re-evaluation rounds until weighted agreement clears the
configured threshold or the iteration cap is reached.

Examples:
  # Run against a question file, models from config
  quiz-consensus run -f questions.yaml

  # Validate answers against source material first
  quiz-consensus run -f questions.yaml --source chapter3.txt

  # Machine-readable output, no auto-save
  quiz-consensus run -f questions.yaml --json`,
	RunE: runConsensus,
}

var (
	runQuestionsFile string
	runSourceFile    string
	runModels        string
	runOutputPath    string
	runThreshold     float64
	runMaxIterations int
	runJSON          bool
	runQuiet         bool
	runNoSave        bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runQuestionsFile, "file", "f", "", "YAML question file (required)")
	runCmd.Flags().StringVarP(&runSourceFile, "source", "s", "", "Source material file for validation and grounding")
	runCmd.Flags().StringVar(&runModels, "models", "", "Comma-separated model IDs (overrides config, equal weights)")
	runCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "Write JSON result to specific file (overrides auto-save)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output JSON to stdout (no interactive display, no auto-save)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "Consensus threshold override (0.0-1.0)")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Max re-evaluation rounds override")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Don't auto-save results to the data directory")
	_ = runCmd.MarkFlagRequired("file")
}

// questionFile is the on-disk YAML format for a question set. Source text
// may be inline or supplied separately via --source.
type questionFile struct {
	Source    string `yaml:"source,omitempty"`
	Questions []struct {
		ID     string `yaml:"id"`
		Prompt string `yaml:"prompt"`
		Kind   string `yaml:"kind,omitempty"`
	} `yaml:"questions"`
}

func runConsensus(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	if runModels != "" {
		cfg.Models = nil
		for _, id := range strings.Split(runModels, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			cfg.Models = append(cfg.Models, config.ModelRef{ID: id, Weight: 1, Enabled: true})
		}
	}

	if cmd.Flags().Changed("threshold") {
		cfg.ConsensusThreshold = runThreshold
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.MaxIterations = runMaxIterations
	}

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(catalog); len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", errs.Error())
	}
	if !cfg.Enabled {
		return fmt.Errorf("consensus is disabled in configuration (set enabled: true)")
	}

	task, err := loadTask(runQuestionsFile, runSourceFile)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	showUI := ui.IsTerminal(os.Stderr) && !runQuiet && !runJSON
	start := time.Now()

	// Resolve the run directory early so debug logs land next to the
	// result.
	var runDir string
	if !runJSON && !runNoSave && runOutputPath == "" {
		runDir = filepath.Join(cfg.DataDir, generateRunID())
		if err := os.MkdirAll(runDir, 0755); err != nil {
			return fmt.Errorf("creating run directory: %w", err)
		}
	}

	logger := logging.Discard()
	if runDir != "" {
		logger, err = logging.New(runDir, cfg.Logging.Level)
		if err != nil {
			return err
		}
		defer logger.Close()
	}

	participants, modelIDs, err := buildParticipants(cfg, catalog)
	if err != nil {
		return err
	}

	if !cfg.Privacy.ShareSourceWithProviders && task.Source != "" {
		logger.Warn("source sharing disabled, running without source material")
		task.Source = ""
	}

	if showUI {
		ui.PrintHeader(os.Stderr, len(task.Questions), len(participants))
	}

	reporter := ui.NewReporter(os.Stderr, !showUI)
	coordinator := consensus.NewCoordinator(participants, consensus.Options{
		Threshold:              cfg.ConsensusThreshold,
		MaxIterations:          cfg.MaxIterations,
		MinModelsRequired:      cfg.MinModelsRequired,
		SuccessFraction:        cfg.SuccessFraction,
		UnitConcurrency:        cfg.UnitConcurrency,
		EnableSourceValidation: cfg.EnableSourceValidation,
		EnableCaching:          cfg.EnableCaching,
		FallbackToSingleModel:  cfg.FallbackToSingleModel,
	}).WithCallbacks(reporter.Callbacks()).WithLogger(logger)

	result, err := coordinator.Run(ctx, task)
	if err != nil {
		return fmt.Errorf("consensus run: %w", err)
	}

	run := output.Run{
		GeneratedAt: time.Now().UTC(),
		Models:      modelIDs,
		Result:      result,
	}

	if err := saveRun(run, runDir, task, cfg.Privacy.RedactSourceInTrail, showUI); err != nil {
		return err
	}

	if runJSON || !showUI {
		if err := output.WriteJSON(os.Stdout, run); err != nil {
			return err
		}
	}

	if showUI {
		reached := 0
		for _, qt := range result.AuditTrail.QuestionTrails {
			if qt.ConsensusReached {
				reached++
			}
		}
		ui.PrintSummary(os.Stderr, reached, len(task.Questions),
			len(result.AuditTrail.FailedModels), time.Since(start))
		if runDir != "" {
			ui.PrintSuccess(os.Stderr, fmt.Sprintf("Run saved to %s", runDir))
		}
	}

	if !result.Success {
		return fmt.Errorf("consensus failed: %s", result.FailureReason)
	}
	return nil
}

// loadSettings reads configuration from --config, falling back to
// ./quiz-consensus.yaml when present.
func loadSettings() (*config.Settings, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("quiz-consensus.yaml"); err == nil {
			path = "quiz-consensus.yaml"
		}
	}
	return config.Load(path)
}

func loadCatalog(path string) (*config.Catalog, error) {
	if path == "" {
		return nil, nil
	}
	catalog, err := config.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("loading model catalog: %w", err)
	}
	return catalog, nil
}

func loadTask(questionsPath, sourcePath string) (consensus.Task, error) {
	data, err := os.ReadFile(questionsPath)
	if err != nil {
		return consensus.Task{}, fmt.Errorf("reading question file: %w", err)
	}

	var qf questionFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return consensus.Task{}, fmt.Errorf("parsing question file: %w", err)
	}
	if len(qf.Questions) == 0 {
		return consensus.Task{}, fmt.Errorf("question file %s contains no questions", questionsPath)
	}

	task := consensus.Task{Source: qf.Source}
	for i, q := range qf.Questions {
		if q.Prompt == "" {
			return consensus.Task{}, fmt.Errorf("question %d has no prompt", i+1)
		}
		id := q.ID
		if id == "" {
			id = fmt.Sprintf("q%d", i+1)
		}
		kind, err := parseKind(q.Kind)
		if err != nil {
			return consensus.Task{}, fmt.Errorf("question %s: %w", id, err)
		}
		task.Questions = append(task.Questions, consensus.Question{
			ID:     id,
			Prompt: q.Prompt,
			Kind:   kind,
		})
	}

	if sourcePath != "" {
		src, err := os.ReadFile(sourcePath)
		if err != nil {
			return consensus.Task{}, fmt.Errorf("reading source file: %w", err)
		}
		task.Source = string(src)
	}
	return task, nil
}

func parseKind(s string) (consensus.AnswerKind, error) {
	switch consensus.AnswerKind(s) {
	case "":
		return consensus.AnswerFreeText, nil
	case consensus.AnswerScalar, consensus.AnswerMultiSelect, consensus.AnswerOrderedPairs, consensus.AnswerFreeText:
		return consensus.AnswerKind(s), nil
	default:
		return "", fmt.Errorf("unknown answer kind %q", s)
	}
}

// buildParticipants constructs one participant per enabled model, routing
// each to its provider by catalog entry or model name prefix.
func buildParticipants(cfg *config.Settings, catalog *config.Catalog) ([]consensus.Participant, []string, error) {
	registry := provider.NewRegistry()
	byVendor := make(map[string]provider.Provider)
	enabled := cfg.EnabledModels()

	for _, ref := range enabled {
		vendor := providerFor(ref.ID, catalog)
		prov, ok := byVendor[vendor]
		if !ok {
			var err error
			prov, err = createProvider(vendor)
			if err != nil {
				return nil, nil, fmt.Errorf("model %s: %w", ref.ID, err)
			}
			byVendor[vendor] = prov
		}
		registry.Register(ref.ID, prov)
	}

	participants := make([]consensus.Participant, 0, len(enabled))
	for _, ref := range enabled {
		prov, err := registry.Get(ref.ID)
		if err != nil {
			return nil, nil, err
		}
		participants = append(participants, participant.New(participant.Config{
			ID:      ref.ID,
			Model:   ref.ID,
			Weight:  ref.Weight,
			Timeout: cfg.Timeout(),
		}, prov))
	}
	return participants, registry.Models(), nil
}

func providerFor(modelID string, catalog *config.Catalog) string {
	if catalog != nil {
		if entry, ok := catalog.Lookup(modelID); ok && entry.Provider != "" {
			return entry.Provider
		}
	}
	switch {
	case strings.HasPrefix(modelID, "claude"):
		return "anthropic"
	case strings.HasPrefix(modelID, "gemini"):
		return "google"
	default:
		return "openai"
	}
}

func createProvider(name string) (provider.Provider, error) {
	switch name {
	case "openai":
		return provider.NewOpenAI()
	case "anthropic":
		return provider.NewAnthropic()
	case "google":
		return provider.NewGoogle()
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// saveRun writes the result JSON, audit trail markdown, and question set
// into the run directory, or to --output when given.
func saveRun(run output.Run, runDir string, task consensus.Task, redactSource, showUI bool) error {
	path := runOutputPath
	if path == "" && runDir != "" {
		path = filepath.Join(runDir, "result.json")
	}
	if path == "" {
		return nil
	}

	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer w.Close()
	if err := output.WriteJSON(w, run); err != nil {
		return err
	}

	if runDir == "" {
		return nil
	}

	trailPath := filepath.Join(runDir, "trail.md")
	trail := output.RenderTrailMarkdown(run.Result, redactSource)
	if err := os.WriteFile(trailPath, []byte(trail), 0644); err != nil {
		// Non-fatal, the JSON result is already on disk.
		if showUI {
			ui.PrintError(os.Stderr, fmt.Sprintf("Failed to save trail: %v", err))
		}
	}

	var prompts strings.Builder
	for _, q := range task.Questions {
		fmt.Fprintf(&prompts, "%s: %s\n", q.ID, q.Prompt)
	}
	if err := os.WriteFile(filepath.Join(runDir, "questions.txt"), []byte(prompts.String()), 0644); err != nil {
		if showUI {
			ui.PrintError(os.Stderr, fmt.Sprintf("Failed to save questions: %v", err))
		}
	}
	return nil
}

// generateRunID creates a unique run identifier using timestamp + random suffix.
// Format: 20260829-143052-a1b2c3
func generateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	suffix := make([]byte, 3)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%s", timestamp, hex.EncodeToString(suffix))
}
