// Package sqlgen turns a natural-language question plus assembled
// context into a SQL statement via a model invocation.
package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/fault"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/retrieval"
)

// Bundle is everything the prompt embeds besides the question itself.
type Bundle struct {
	Database     string
	Schema       string
	Passages     []retrieval.Passage
	Conversation string
}

// CandidateQuery is the model's reply before validation. Raw keeps the
// unmodified completion for diagnostics; SQL is the cleaned statement.
type CandidateQuery struct {
	Raw string
	SQL string
}

type Options struct {
	MaxTokens        int
	Temperature      float64
	ExplainMaxTokens int
	ExplainTemp      float64
}

type Generator struct {
	invoker llm.Invoker
	opts    Options
}

func New(invoker llm.Invoker, opts Options) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.ExplainMaxTokens <= 0 {
		opts.ExplainMaxTokens = 500
	}
	return &Generator{invoker: invoker, opts: opts}
}

// Generate asks the model for a statement answering the question. An
// empty completion after cleanup is a generation failure.
func (g *Generator) Generate(ctx context.Context, question string, bundle Bundle) (CandidateQuery, error) {
	prompt := BuildPrompt(question, bundle)
	raw, err := g.invoker.Invoke(ctx, llm.Request{
		Prompt:      prompt,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return CandidateQuery{}, err
	}

	sql := CleanSQL(raw)
	if sql == "" {
		return CandidateQuery{}, fault.New(fault.GenerationFailed, "model returned no usable SQL")
	}
	return CandidateQuery{Raw: raw, SQL: sql}, nil
}

// Explain asks the model to describe what a statement does in plain
// language. Best effort: failures return a placeholder instead of an
// error.
func (g *Generator) Explain(ctx context.Context, sql string) string {
	prompt := fmt.Sprintf(
		"Explain in plain language, for a non-technical reader, what this SQL query does:\n\n%s\n\nKeep it to two or three sentences.",
		sql,
	)
	text, err := g.invoker.Invoke(ctx, llm.Request{
		Prompt:      prompt,
		MaxTokens:   g.opts.ExplainMaxTokens,
		Temperature: g.opts.ExplainTemp,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		return "No explanation available."
	}
	return strings.TrimSpace(text)
}

// BuildPrompt assembles the generation prompt. Table references must
// come out fully qualified, so that rule leads the list.
func BuildPrompt(question string, bundle Bundle) string {
	var sb strings.Builder
	sb.WriteString("You are an expert SQL analyst. Generate a SQL query that answers the question below.\n\n")

	fmt.Fprintf(&sb, "Database: %s\n\n", bundle.Database)
	sb.WriteString("Schema:\n")
	sb.WriteString(bundle.Schema)
	sb.WriteString("\n")

	if len(bundle.Passages) > 0 {
		sb.WriteString("\nRelevant documentation:\n")
		for _, passage := range bundle.Passages {
			fmt.Fprintf(&sb, "[confidence %.2f] %s\n", passage.Confidence, strings.TrimSpace(passage.Text))
		}
	}

	if bundle.Conversation != "" {
		sb.WriteString("\n")
		sb.WriteString(bundle.Conversation)
		sb.WriteString("\n")
	}

	sb.WriteString("\nRules:\n")
	fmt.Fprintf(&sb, "1. Always reference tables by their fully qualified name: %s.table_name\n", bundle.Database)
	sb.WriteString("2. Use standard ANSI SQL. Prefer explicit column lists over SELECT *.\n")
	sb.WriteString("3. Only generate SELECT statements. Never modify data.\n")
	sb.WriteString("4. Use a LIMIT clause unless the question asks for an aggregate.\n")
	sb.WriteString("5. Quote string literals with single quotes.\n")

	fmt.Fprintf(&sb, "\nQuestion: %s\n\n", question)
	sb.WriteString("Generate ONLY the SQL query. No explanation, no markdown.")
	return sb.String()
}

// CleanSQL strips markdown fences and comment-only lines from a model
// completion and collapses it to the statement text.
func CleanSQL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "```") {
			continue
		}
		if strings.HasPrefix(line, "--") || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSuffix(strings.TrimSpace(strings.Join(lines, " ")), ";")
}
