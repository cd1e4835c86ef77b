// Package ui renders run progress and results to a terminal. It consumes
// the engine's callback events; nothing in here affects consensus
// correctness.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/johnayoung/quiz-consensus/internal/consensus"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	phaseStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// PrintHeader prints the run banner.
func PrintHeader(w io.Writer, questions, models int) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("quiz-consensus: %d questions, %d models", questions, models)))
}

// PrintSuccess prints a green checkmark line.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("✓ "+msg))
}

// PrintError prints a red cross line.
func PrintError(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render("✗ "+msg))
}

// PrintSummary prints the end-of-run totals.
func PrintSummary(w io.Writer, reached, total, failedModels int, elapsed time.Duration) {
	fmt.Fprintln(w)
	line := fmt.Sprintf("%d/%d questions reached consensus in %s", reached, total, elapsed.Round(time.Millisecond))
	if failedModels > 0 {
		line += fmt.Sprintf(" (%d models produced nothing)", failedModels)
	}
	fmt.Fprintln(w, headerStyle.Render(line))
}

// Reporter translates engine callbacks into terminal output. Callback
// invocations are already serialized by the coordinator.
type Reporter struct {
	w         io.Writer
	quiet     bool
	lastPhase consensus.Phase
	started   bool
}

// NewReporter creates a Reporter. When quiet, only terminal per-question
// results are printed.
func NewReporter(w io.Writer, quiet bool) *Reporter {
	return &Reporter{w: w, quiet: quiet, lastPhase: -1}
}

// Callbacks returns the callback set to attach to a Coordinator.
func (r *Reporter) Callbacks() *consensus.Callbacks {
	return &consensus.Callbacks{
		OnProgress:      r.onProgress,
		OnPartialResult: r.onPartialResult,
		OnModelError:    r.onModelError,
	}
}

func (r *Reporter) onProgress(p consensus.Progress) {
	if r.quiet {
		return
	}
	if p.Phase != r.lastPhase {
		r.lastPhase = p.Phase
		fmt.Fprintln(r.w, phaseStyle.Render("▸ "+phaseLabel(p.Phase)))
	}
	if p.Phase == consensus.PhaseConsensusBuilding && p.Round > 1 {
		fmt.Fprintln(r.w, dimStyle.Render(fmt.Sprintf("  %s: re-evaluation round %d", p.QuestionID, p.Round)))
	}
}

func (r *Reporter) onPartialResult(p consensus.PartialResult) {
	t := p.Trail
	label := fmt.Sprintf("%s: %s after %d round(s), %.0f%% agreement [%d/%d]",
		t.Question.ID, verdict(t), t.RoundsRequired, t.Agreement*100, p.QuestionsDone, p.QuestionsTotal)
	if t.ConsensusReached {
		fmt.Fprintln(r.w, successStyle.Render("  ✓ "+label))
	} else {
		fmt.Fprintln(r.w, warnStyle.Render("  ✗ "+label))
	}
}

func (r *Reporter) onModelError(modelID string, err error, severity consensus.Severity, willRetry bool) {
	if r.quiet {
		return
	}
	suffix := ""
	if willRetry {
		suffix = " (will retry)"
	}
	msg := fmt.Sprintf("  %s: %v%s", modelID, err, suffix)
	if severity == consensus.SeverityError {
		fmt.Fprintln(r.w, errorStyle.Render(msg))
	} else {
		fmt.Fprintln(r.w, dimStyle.Render(msg))
	}
}

func phaseLabel(p consensus.Phase) string {
	switch p {
	case consensus.PhaseSourceValidation:
		return "Validating source material"
	case consensus.PhaseInitialGeneration:
		return "Generating initial answers"
	case consensus.PhaseConsensusBuilding:
		return "Building consensus"
	case consensus.PhaseFinalization:
		return "Finalizing"
	default:
		return p.String()
	}
}

func verdict(t consensus.QuestionTrail) string {
	if t.ConsensusReached {
		return "consensus"
	}
	return "no consensus (" + string(t.Termination) + ")"
}
