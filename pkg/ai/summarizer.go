package ai

import (
	"context"
	"errors"
)

// Summarizer errors. The pipeline persists which one occurred so an operator
// can tell transient network trouble from credential or input problems.
var (
	ErrRemoteUnavailable = errors.New("summarization endpoint unavailable")
	ErrRateLimited       = errors.New("summarization rate limited")
	ErrInvalidResponse   = errors.New("invalid summarization response")
	ErrAuth              = errors.New("summarization auth failure")
)

// Options tunes a single summarization call.
type Options struct {
	// MaxTokens caps the response length when > 0.
	MaxTokens int
	// Model overrides the client's default model when non-empty.
	Model string
}

// Summary is a structured summarization result.
type Summary struct {
	Text       string
	Model      string
	Truncated  bool
	InputRunes int
}

// Summarizer produces a summary for extracted document text.
type Summarizer interface {
	Summarize(ctx context.Context, text string, opts Options) (Summary, error)
}

// Truncate returns the longest prefix of text that fits in maxRunes, and
// whether anything was cut. maxRunes <= 0 means no limit. The cut is
// deterministic so retried calls send identical input.
func Truncate(text string, maxRunes int) (string, bool) {
	if maxRunes <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text, false
	}
	return string(runes[:maxRunes]), true
}

const defaultSystemPrompt = "You are a document summarization assistant. " +
	"Summarize the provided document text in at most three sentences, keeping key facts and names."
