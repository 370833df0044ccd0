package ai

import (
	"fmt"
	"strings"

	"github.com/browsium/roundtable/backend/internal/model/review"
)

// DefaultProviders is the allowlist used when configuration supplies none.
var DefaultProviders = []string{"anthropic", "openai", "google"}

// providerAliases rewrites values that earlier clients supplied in the
// provider slot. Model names used as providers map to their canonical
// provider with the model preserved.
var providerAliases = map[string]string{
	"claude":      "anthropic",
	"claude-code": "anthropic",
	"gpt":         "openai",
	"chatgpt":     "openai",
	"codex":       "openai",
	"gemini":      "google",
}

// ResolveBackend validates a loose (provider, model) pair against the
// allowlist and returns the canonical backend. It fails closed: unknown
// providers, an empty provider, or an empty model are rejected before any
// network call is made. Pure over its inputs.
func ResolveBackend(ref review.BackendRef, allowlist []string) (review.Backend, error) {
	if len(allowlist) == 0 {
		allowlist = DefaultProviders
	}

	provider := strings.ToLower(strings.TrimSpace(ref.Provider))
	model := strings.TrimSpace(ref.Model)

	if provider == "" {
		return review.Backend{}, fmt.Errorf("backend provider is required")
	}
	if model == "" {
		return review.Backend{}, fmt.Errorf("backend model is required for provider %q", provider)
	}

	if canonical, ok := providerAliases[provider]; ok {
		provider = canonical
	}

	for _, allowed := range allowlist {
		if provider == allowed {
			return review.Backend{Provider: provider, Model: model}, nil
		}
	}

	if hint := closestProvider(provider, allowlist); hint != "" {
		return review.Backend{}, fmt.Errorf("unsupported provider %q (did you mean %q?)", ref.Provider, hint)
	}
	return review.Backend{}, fmt.Errorf("unsupported provider %q (allowed: %s)", ref.Provider, strings.Join(allowlist, ", "))
}

// ResolveFirst resolves the first ref that carries any value, in
// precedence order, falling through on empty refs only. A ref that is
// present but invalid is an error, not a fallthrough.
func ResolveFirst(allowlist []string, refs ...review.BackendRef) (review.Backend, error) {
	for _, ref := range refs {
		if strings.TrimSpace(ref.Provider) == "" && strings.TrimSpace(ref.Model) == "" {
			continue
		}
		return ResolveBackend(ref, allowlist)
	}
	return review.Backend{}, fmt.Errorf("no backend configured")
}

func closestProvider(provider string, allowlist []string) string {
	for _, allowed := range allowlist {
		if strings.HasPrefix(allowed, provider) || strings.HasPrefix(provider, allowed) {
			return allowed
		}
	}
	return ""
}
