package nodehandler

import (
	"context"
	"fmt"
	"strings"
)

func handleTextTransform(_ context.Context, _ *Dependencies, task Task) (Result, error) {
	content, ok := firstNonEmpty(task.Inputs, "content")
	if !ok {
		return Result{}, fmt.Errorf("text.transform: no content")
	}
	operation, _ := configString(task.Config, "operation")

	var transformed string
	switch operation {
	case "uppercase":
		transformed = strings.ToUpper(content)
	case "lowercase":
		transformed = strings.ToLower(content)
	case "title_case":
		transformed = titleCase(content)
	case "reverse":
		transformed = reverseString(content)
	default:
		return Result{}, fmt.Errorf("text.transform: unknown operation %q", operation)
	}

	return Result{Outputs: map[string]interface{}{
		"transformed_text": transformed,
		"operation":        operation,
	}}, nil
}

// titleCase upper-cases the first letter of every whitespace-separated
// word and lower-cases the rest, the simple ASCII-oriented rule the
// operation's contract expects.
func titleCase(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		r := []rune(f)
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		fields[i] = string(r)
	}
	return strings.Join(fields, " ")
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
