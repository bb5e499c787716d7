package prompts

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// DefaultPassageMaxChars caps each retrieved passage in the prompt.
const DefaultPassageMaxChars = 500

// TruncationMarker is appended to passages cut at the cap.
const TruncationMarker = "..."

const knowledgeHeader = "### Information from the knowledge base:"

// AnswerTemplate is rendered with Go text/template syntax. The history and
// knowledge sections drop out entirely when empty.
const AnswerTemplate = `You are an IT career advisor who answers accurately, concisely and with a clear structure.

{{if .history}}{{.history}}

{{end}}{{if .knowledge}}{{.knowledge}}

{{end}}**Question:** {{.question}}

**Answer requirements:**
- Answer CONCISELY and FOCUS on the main point
- Only give information DIRECTLY RELATED to the question
- Use Markdown for formatting:
  • Headings: ## or ###
  • Lists: - or numbers
  • Emphasis: **text**
  • Code: ` + "```code```" + `
- Answer structure:
  1. Direct answer (1-2 sentences)
  2. Key details (as a list, at most 3-5 points)
  3. Advice/next step (if needed, 1-2 sentences)
- AVOID: repeating the question, verbosity, unrelated information
- If there is no information: say so plainly and suggest where to look

Answer:`

// Builder assembles the single prompt sent for each turn.
type Builder struct {
	template        prompts.PromptTemplate
	passageMaxChars int
}

// NewBuilder creates a Builder truncating passages to passageMaxChars
// characters (DefaultPassageMaxChars when <= 0).
func NewBuilder(passageMaxChars int) *Builder {
	if passageMaxChars <= 0 {
		passageMaxChars = DefaultPassageMaxChars
	}
	return &Builder{
		template:        prompts.NewPromptTemplate(AnswerTemplate, []string{"history", "knowledge", "question"}),
		passageMaxChars: passageMaxChars,
	}
}

// Build renders the prompt from the rendered conversation history, the
// retrieved passages (in ranking order) and the user's question.
func (b *Builder) Build(question, history string, passages []string) (string, error) {
	prompt, err := b.template.Format(map[string]any{
		"history":   history,
		"knowledge": b.buildKnowledgeSection(passages),
		"question":  question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return prompt, nil
}

func (b *Builder) buildKnowledgeSection(passages []string) string {
	if len(passages) == 0 {
		return ""
	}

	var builder strings.Builder
	builder.WriteString(knowledgeHeader)
	for i, passage := range passages {
		builder.WriteString(fmt.Sprintf("\n%d. %s", i+1, Truncate(passage, b.passageMaxChars)))
	}
	return builder.String()
}

// Truncate cuts s to max characters (runes) and appends TruncationMarker.
// Strings of max characters or fewer are returned unchanged.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + TruncationMarker
}
