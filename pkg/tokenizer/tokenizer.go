// Package tokenizer estimates token counts for text handed to language
// models.
package tokenizer

import "strings"

// EstimateTokens returns a rough token count for English text: the mean of
// a word-based (~1.3 tokens per word) and a character-based (~4 characters
// per token) estimate.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	return (words*13/10 + len(text)/4) / 2
}

// Overhead is the per-item allowance for separators and field names when a
// list of texts is serialised.
const Overhead = 8

// FitCount returns how many leading texts fit within budget tokens, counting
// Overhead for each. A budget <= 0 means unlimited.
func FitCount(texts []string, budget int) int {
	if budget <= 0 {
		return len(texts)
	}
	used := 0
	for i, t := range texts {
		used += EstimateTokens(t) + Overhead
		if used > budget {
			return i
		}
	}
	return len(texts)
}
