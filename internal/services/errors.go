package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Generation failures fall into four classes with different handling upstream:
// content rejections and overloads mark the attempt failed (overloads are worth
// retrying, content rejections need a prompt edit first), unauthorized errors
// abort batch runs and go to the credential handler, everything else is a
// generic failure.
var (
	ErrContentRejected = errors.New("generation request rejected by content policy")
	ErrOverloaded      = errors.New("generation service overloaded")
	ErrUnauthorized    = errors.New("generation service rejected credentials")
)

// classifyHTTPError maps a provider HTTP status + body to the shared taxonomy.
// The body is included so operators can see the provider's own wording.
func classifyHTTPError(provider string, status int, body string) error {
	snippet := body
	if len(snippet) > 300 {
		snippet = snippet[:300] + "..."
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s returned status %d: %s: %w", provider, status, snippet, ErrUnauthorized)
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return fmt.Errorf("%s returned status %d: %s: %w", provider, status, snippet, ErrOverloaded)
	case status == http.StatusBadRequest && looksLikeSafetyBlock(body):
		return fmt.Errorf("%s returned status %d: %s: %w", provider, status, snippet, ErrContentRejected)
	default:
		return fmt.Errorf("%s returned status %d: %s", provider, status, snippet)
	}
}

// looksLikeSafetyBlock sniffs the provider error body for safety-filter
// wording. Providers do not agree on a machine-readable code for this.
func looksLikeSafetyBlock(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"safety", "blocked", "prohibited", "moderation", "policy"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
