// Package corpus merges fetched page texts into the context handed to the LLM.
package corpus

import "strings"

// Separator sits between two page texts in the corpus.
const Separator = "\n\n"

// Aggregate joins the non-empty texts with Separator, preserving their order.
func Aggregate(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, Separator)
}
