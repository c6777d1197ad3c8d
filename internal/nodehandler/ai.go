package nodehandler

import (
	"context"
	"fmt"
	"strings"
)

func handleRagQA(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	content, ok := firstNonEmpty(task.Inputs, "content")
	if !ok {
		return Result{}, fmt.Errorf("ai.rag_qa: no content")
	}
	query, _ := configString(task.Config, "query")
	if query == "" {
		query, _ = firstNonEmpty(task.Inputs, "query")
	}

	prompt := fmt.Sprintf("Answer the question using only the provided context.\n\nContext:\n%s\n\nQuestion: %s", content, query)
	answer, fallback, err := deps.AI.Complete(ctx, prompt)
	if err != nil && answer == "" {
		return Result{}, fmt.Errorf("ai.rag_qa: provider error: %w", err)
	}

	outputs := map[string]interface{}{
		"answer":    answer,
		"citations": []string{},
		"query":     query,
	}
	if docID, ok := task.Inputs["document_id"]; ok {
		outputs["citations"] = []string{fmt.Sprintf("%v", docID)}
	}
	return Result{Outputs: outputs, FallbackUsed: fallback}, nil
}

func handleSummarize(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	content, ok := firstNonEmpty(task.Inputs, "content")
	if !ok {
		return Result{}, fmt.Errorf("ai.summarize: no content")
	}

	maxLength := 100
	if v, ok := task.Config["max_length"]; ok {
		if n, ok := toInt(v); ok {
			maxLength = n
		}
	}
	summaryType, _ := configString(task.Config, "type")
	if summaryType == "" {
		summaryType = "brief"
	}

	prompt := fmt.Sprintf("Summarize the following text in at most %d words, style %q:\n\n%s", maxLength, summaryType, content)
	draft, fallback, err := deps.AI.Complete(ctx, prompt)
	if err != nil && draft == "" {
		return Result{}, fmt.Errorf("ai.summarize: provider error: %w", err)
	}

	summary := enforceWordLimit(draft, maxLength)
	if summaryType == "bullet_points" {
		summary = bulletize(summary)
	}

	return Result{Outputs: map[string]interface{}{
		"summary":         summary,
		"original_length": len(strings.Fields(content)),
		"summary_length":  len(strings.Fields(summary)),
		"summary_type":    summaryType,
	}, FallbackUsed: fallback}, nil
}

func handleClassify(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	content, ok := firstNonEmpty(task.Inputs, "content")
	if !ok {
		return Result{}, fmt.Errorf("ai.classify: no content")
	}

	categories, ok := toStringSlice(task.Config["categories"])
	if !ok || len(categories) == 0 {
		return Result{}, fmt.Errorf("ai.classify: categories required")
	}

	prompt := fmt.Sprintf("Classify the following text into exactly one of %v:\n\n%s", categories, content)
	response, fallback, err := deps.AI.Complete(ctx, prompt)
	if err != nil && response == "" {
		return Result{}, fmt.Errorf("ai.classify: provider error: %w", err)
	}

	category := pickCategory(response, categories)
	return Result{Outputs: map[string]interface{}{
		"category":       category,
		"confidence":     confidenceFor(response, category),
		"all_categories": categories,
	}, FallbackUsed: fallback}, nil
}

// enforceWordLimit truncates s to at most n whitespace-separated tokens.
func enforceWordLimit(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) <= n {
		return s
	}
	return strings.Join(fields[:n], " ")
}

func bulletize(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return "- " + strings.Join(fields, " ")
}

// pickCategory returns the first configured category that appears
// (case-insensitively) in response, or the first category as a
// deterministic default otherwise.
func pickCategory(response string, categories []string) string {
	lower := strings.ToLower(response)
	for _, c := range categories {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c
		}
	}
	return categories[0]
}

// confidenceFor reports 1.0 when the chosen category was found verbatim in
// the model's response, and a fixed lower value for the deterministic
// default case (no category name matched).
func confidenceFor(response, category string) float64 {
	if strings.Contains(strings.ToLower(response), strings.ToLower(category)) {
		return 1.0
	}
	return 0.5
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch vals := v.(type) {
	case []string:
		return vals, true
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, e := range vals {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}
