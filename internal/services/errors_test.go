package services

import (
	"errors"
	"testing"
)

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", 401, `{"error":"invalid api key"}`, ErrUnauthorized},
		{"forbidden", 403, `{"error":"no access"}`, ErrUnauthorized},
		{"rate limited", 429, `{"error":"quota exceeded"}`, ErrOverloaded},
		{"unavailable", 503, `{"error":"try later"}`, ErrOverloaded},
		{"safety block", 400, `{"error":"blocked by safety filter"}`, ErrContentRejected},
		{"moderation block", 400, `{"error":"content moderation rejected this prompt"}`, ErrContentRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyHTTPError("gemini", tt.status, tt.body)
			if !errors.Is(err, tt.want) {
				t.Errorf("classifyHTTPError(%d) = %v, want %v", tt.status, err, tt.want)
			}
		})
	}
}

func TestClassifyHTTPErrorPlainBadRequest(t *testing.T) {
	err := classifyHTTPError("veo", 400, `{"error":"invalid aspect_ratio"}`)
	for _, sentinel := range []error{ErrUnauthorized, ErrOverloaded, ErrContentRejected} {
		if errors.Is(err, sentinel) {
			t.Errorf("plain 400 must stay a generic error, matched %v", sentinel)
		}
	}
	if err == nil {
		t.Fatal("plain 400 must still be an error")
	}
}

func TestClassifyHTTPErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	err := classifyHTTPError("grok", 500, string(long))
	if len(err.Error()) > 400 {
		t.Errorf("error message not truncated, %d chars", len(err.Error()))
	}
}

func TestLooksLikeSafetyBlock(t *testing.T) {
	if !looksLikeSafetyBlock("Request BLOCKED by policy") {
		t.Error("case-insensitive safety wording must match")
	}
	if looksLikeSafetyBlock("field duration_sec out of range") {
		t.Error("ordinary validation wording must not match")
	}
}
