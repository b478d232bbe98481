package diff

// EstimateTokens provides a fast, monotonic, provider-agnostic approximation
// of the token count of a text. Exact counts are provider-specific and only
// needed for the final request bound; chunk sizing works on this estimate.
func EstimateTokens(text string) int {
	return len(text) / 3
}
