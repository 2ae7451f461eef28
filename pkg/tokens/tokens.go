// Package tokens estimates generation-service token cost from text length.
package tokens

// CharsPerToken is the fixed characters-per-token ratio used for every
// admission and usage decision.
const CharsPerToken = 2.5

// Estimate returns the estimated token cost of s. Empty input costs nothing;
// anything else costs at least one token.
func Estimate(s string) int {
	return EstimateLen(len(s))
}

// EstimateLen is Estimate for a known byte length.
func EstimateLen(n int) int {
	if n <= 0 {
		return 0
	}
	return int(float64(n)/CharsPerToken) + 1
}

// Budget returns the character allowance for a token budget.
func Budget(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return int(float64(tokens) * CharsPerToken)
}
