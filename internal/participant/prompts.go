package participant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/johnayoung/quiz-consensus/internal/consensus"
)

const generateSystem = `You are one of several independent expert answerers. Answer the question yourself, from your own knowledge. Respond with a single JSON object and nothing else.`

const generatePromptTemplate = `Question ({{.Kind}}):
{{.Prompt}}

Respond with exactly this JSON shape:
{"answer": {{.AnswerShape}}, "reasoning": "<why, one or two sentences>", "confidence": <0.0-1.0>}

Rules
- "answer.kind" must be "{{.Kind}}".
- Output only the JSON object. No prose, no code fences.`

const reEvaluateSystem = `You are one of several independent expert answerers reconsidering your answer. The alternatives shown are from anonymous peers; their identities are deliberately hidden. Stand by your answer when you believe it is right, change it when an alternative convinces you. Respond with a single JSON object and nothing else.`

const reEvaluatePromptTemplate = `Question ({{.Question.Kind}}):
{{.Question.Prompt}}

Round {{.RoundNumber}}.{{if not .OriginalAnswer.IsZero}}

Your previous answer:
{{.OwnAnswerJSON}}{{if .OriginalReasoning}}
Your previous reasoning: {{.OriginalReasoning}}{{end}}{{else}}

You did not manage to answer in the previous round. Answer now.{{end}}

Anonymous alternative answers from other participants:
{{.AlternativesJSON}}

Reconsider. Respond with exactly this JSON shape:
{"answer": {"kind": "{{.Question.Kind}}", ...}, "reasoning": "<why you kept or changed your answer>", "confidence": <0.0-1.0>}

If you cannot answer, respond with {"error": "<reason>"} instead.
Output only the JSON object. No prose, no code fences.`

const extractFactsSystem = `You are a careful fact extractor. List the discrete factual claims made by the source text, citing character offsets. Respond with a single JSON object and nothing else.`

const extractFactsPromptTemplate = `Source text ({{.Length}} characters):
---
{{.Source}}
---

Extract every discrete factual claim. Respond with exactly this JSON shape:
{"facts": [{"statement": "<claim>", "start": <offset>, "end": <offset>, "contradicts": "<conflicting claim in the text, or omit>"}], "confidence": <0.0-1.0>}

Rules
- "start"/"end" are character offsets into the source, half-open, 0-based.
- Set "contradicts" only when the source itself makes conflicting claims about the same thing.
- Output only the JSON object. No prose, no code fences.`

var (
	generateTmpl     = template.Must(template.New("generate").Parse(generatePromptTemplate))
	reEvaluateTmpl   = template.Must(template.New("reevaluate").Parse(reEvaluatePromptTemplate))
	extractFactsTmpl = template.Must(template.New("extract").Parse(extractFactsPromptTemplate))
)

// answerShape gives the model a concrete example of the expected payload
// for each answer kind.
func answerShape(kind consensus.AnswerKind) string {
	switch kind {
	case consensus.AnswerMultiSelect:
		return `{"kind": "multi_select", "choices": ["<selection>", "..."]}`
	case consensus.AnswerOrderedPairs:
		return `{"kind": "ordered_pairs", "pairs": [{"left": "<item>", "right": "<match>"}]}`
	case consensus.AnswerFreeText:
		return `{"kind": "free_text", "text": "<answer>"}`
	default:
		return `{"kind": "scalar", "value": "<answer>"}`
	}
}

func renderGeneratePrompt(q consensus.Question) (string, error) {
	var buf bytes.Buffer
	err := generateTmpl.Execute(&buf, struct {
		Prompt      string
		Kind        consensus.AnswerKind
		AnswerShape string
	}{q.Prompt, q.Kind, answerShape(q.Kind)})
	if err != nil {
		return "", fmt.Errorf("executing generate template: %w", err)
	}
	return buf.String(), nil
}

func renderReEvaluatePrompt(req consensus.ReEvaluationRequest) (string, error) {
	own, err := json.Marshal(req.OriginalAnswer)
	if err != nil {
		return "", fmt.Errorf("marshaling own answer: %w", err)
	}
	alternatives, err := json.MarshalIndent(req.Alternatives, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling alternatives: %w", err)
	}

	var buf bytes.Buffer
	err = reEvaluateTmpl.Execute(&buf, struct {
		Question          consensus.Question
		RoundNumber       int
		OriginalAnswer    consensus.Answer
		OriginalReasoning string
		OwnAnswerJSON     string
		AlternativesJSON  string
	}{req.Question, req.RoundNumber, req.OriginalAnswer, req.OriginalReasoning, string(own), string(alternatives)})
	if err != nil {
		return "", fmt.Errorf("executing re-evaluate template: %w", err)
	}
	return buf.String(), nil
}

func renderExtractFactsPrompt(source string) (string, error) {
	var buf bytes.Buffer
	err := extractFactsTmpl.Execute(&buf, struct {
		Source string
		Length int
	}{source, len(source)})
	if err != nil {
		return "", fmt.Errorf("executing extract-facts template: %w", err)
	}
	return buf.String(), nil
}
