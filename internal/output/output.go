// Package output serializes finished runs: machine-readable JSON plus a
// human-reviewable markdown rendering of the audit trail.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/johnayoung/quiz-consensus/internal/consensus"
)

// Run is the JSON output structure for the CLI.
type Run struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Models      []string          `json:"models"`
	Result      *consensus.Result `json:"result"`
}

// WriteJSON writes the run as indented JSON.
func WriteJSON(w io.Writer, run Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// RenderTrailMarkdown renders the audit trail so a saved run can be
// reviewed without tooling. redactSource omits the source text body.
func RenderTrailMarkdown(result *consensus.Result, redactSource bool) string {
	var sb strings.Builder
	trail := result.AuditTrail

	sb.WriteString("# Consensus audit trail\n\n")
	if result.Success {
		sb.WriteString("**Outcome:** success\n\n")
	} else {
		fmt.Fprintf(&sb, "**Outcome:** failed (%s)\n\n", result.FailureReason)
	}
	fmt.Fprintf(&sb, "- Total duration: %s\n", trail.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "- Participating models: %s\n", joinOrNone(trail.ParticipatingModels))
	fmt.Fprintf(&sb, "- Failed models: %s\n\n", joinOrNone(trail.FailedModels))

	if sv := trail.SourceValidation; sv != nil {
		sb.WriteString("## Source validation\n\n")
		fmt.Fprintf(&sb, "- Validation confidence: %.0f%%\n", sv.Confidence*100)
		fmt.Fprintf(&sb, "- Extractors: %d succeeded, %d failed\n", len(sv.Extractions), len(sv.FailedModels))
		for _, fc := range sv.FactConsensus {
			fmt.Fprintf(&sb, "- [%s] %s (%s)\n", fc.Status, fc.Statement, strings.Join(fc.AgreeingModels, ", "))
		}
		for _, d := range sv.Discrepancies {
			fmt.Fprintf(&sb, "- **discrepancy:** %q vs %q (flagged by %s)\n",
				d.Statement, d.Contradicts, strings.Join(d.ModelIDs, ", "))
		}
		if !redactSource {
			fmt.Fprintf(&sb, "\n<details><summary>Source</summary>\n\n%s\n\n</details>\n", sv.SourceContent)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Questions\n")
	for _, t := range trail.QuestionTrails {
		fmt.Fprintf(&sb, "\n### %s\n\n", t.Question.ID)
		fmt.Fprintf(&sb, "%s\n\n", t.Question.Prompt)
		fmt.Fprintf(&sb, "- Outcome: %s after %d round(s), %.0f%% agreement\n",
			t.Termination, t.RoundsRequired, t.Agreement*100)
		fmt.Fprintf(&sb, "- Final answer: %s\n", t.FinalAnswer.Display())
		if t.FallbackApplied {
			sb.WriteString("- **Fallback applied:** consensus was not reached; this answer is the highest-weight model's original answer\n")
		}
		fmt.Fprintf(&sb, "- Agreeing: %s; disagreeing: %s\n",
			joinOrNone(t.AgreeingModels), joinOrNone(t.DisagreeingModels))

		for _, round := range t.Rounds {
			fmt.Fprintf(&sb, "\n#### Round %d (%s)\n\n", round.Number, round.Duration.Round(time.Millisecond))
			for _, r := range round.Responses {
				changed := ""
				if r.Changed {
					changed = " (changed)"
				}
				fmt.Fprintf(&sb, "- %s%s: %s (confidence %.2f)\n",
					r.ModelID, changed, r.Answer.Display(), r.Confidence)
			}
		}
	}

	return sb.String()
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
