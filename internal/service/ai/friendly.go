package ai

import "strings"

// FriendlyError rewrites known upstream failure modes into text fit for
// end users. Unknown errors pass through unchanged.
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "429"), strings.Contains(lower, "too many requests"):
		return "The model provider is rate limiting requests. Wait a moment and retry this reviewer."
	case strings.Contains(lower, "overloaded"), strings.Contains(lower, "capacity"):
		return "The model provider is overloaded right now. Retry this reviewer shortly."
	case strings.Contains(lower, "context deadline exceeded"), strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return "The model took too long to respond. Retry this reviewer."
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"), strings.Contains(lower, "connection reset"):
		return "Could not reach the model gateway. Check connectivity and retry."
	}
	return msg
}
