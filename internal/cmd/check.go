package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/johnayoung/quiz-consensus/internal/ui"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration without running",
	Long: `Check loads the configuration and model catalog, runs the same
pre-flight validation as run, and reports every problem found.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	if errs := cfg.Validate(catalog); len(errs) > 0 {
		for _, e := range errs {
			ui.PrintError(os.Stderr, e.Error())
		}
		return fmt.Errorf("%d configuration problem(s) found", len(errs))
	}

	enabled := cfg.EnabledModels()
	ui.PrintSuccess(os.Stderr, fmt.Sprintf("Configuration valid: %d models enabled, threshold %.2f, max %d iterations",
		len(enabled), cfg.ConsensusThreshold, cfg.MaxIterations))
	return nil
}
