package provider

import (
	"strings"

	"github.com/joss/chapterd/internal/domain"
)

// categoryPatterns map message substrings to a category. Checked in order;
// the first hit wins. Matching is case-insensitive and purely cosmetic: the
// category drives a user-facing suggestion, never control flow.
var categoryPatterns = []struct {
	category domain.ErrorCategory
	needles  []string
}{
	{domain.CategoryInvalidAPIKey, []string{
		"api key not valid", "invalid api key", "invalid_api_key",
		"incorrect api key", "unauthorized", "401", "no auth credentials",
	}},
	{domain.CategoryFreeModelUnavailable, []string{
		"free model", "no endpoints found", ":free",
	}},
	{domain.CategoryRateLimit, []string{
		"rate limit", "rate-limited", "429", "quota", "resource has been exhausted",
		"too many requests",
	}},
	{domain.CategoryContentTooLong, []string{
		"too long", "maximum context", "context length", "token limit",
		"exceeds the maximum", "request entity too large",
	}},
	{domain.CategoryContentFiltered, []string{
		"safety", "blocked", "content filter", "prohibited_content", "recitation",
	}},
}

// Classify buckets an error message into a category for the user-facing
// suggestion. Unrecognized messages are general errors.
func Classify(message string) domain.ErrorCategory {
	msg := strings.ToLower(message)
	for _, p := range categoryPatterns {
		for _, needle := range p.needles {
			if strings.Contains(msg, needle) {
				return p.category
			}
		}
	}
	return domain.CategoryGeneral
}

// Suggestion returns the user-facing hint for a category.
func Suggestion(category domain.ErrorCategory) string {
	switch category {
	case domain.CategoryInvalidAPIKey:
		return "Check the API key for the selected provider in settings."
	case domain.CategoryRateLimit:
		return "The provider is rate limiting requests. Wait a minute and try again."
	case domain.CategoryFreeModelUnavailable:
		return "The free model is currently unavailable. Try a paid model or retry later."
	case domain.CategoryContentTooLong:
		return "The transcript is too long for this model. Try a model with a larger context window."
	case domain.CategoryContentFiltered:
		return "The provider's content filter blocked this transcript."
	default:
		return "Generation failed. Try again, or switch models."
	}
}
