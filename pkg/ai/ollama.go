package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaSummarizer implements Summarizer against a local Ollama /api/chat
// endpoint. Ollama does not authenticate, so the auth error class never
// occurs here.
type OllamaSummarizer struct {
	baseURL       string
	model         string
	maxInputRunes int
	httpClient    *http.Client
}

// NewOllamaSummarizer builds an Ollama-based Summarizer.
func NewOllamaSummarizer(baseURL, model string, maxInputRunes int, timeout time.Duration) *OllamaSummarizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaSummarizer{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:         strings.TrimSpace(model),
		maxInputRunes: maxInputRunes,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Summarize implements Summarizer using Ollama /api/chat.
func (s *OllamaSummarizer) Summarize(ctx context.Context, text string, opts Options) (Summary, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = s.model
	}
	if model == "" {
		return Summary{}, fmt.Errorf("%w: no model configured", ErrInvalidResponse)
	}
	input, truncated := Truncate(text, s.maxInputRunes)

	reqBody := ollamaChatRequest{
		Model: model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: defaultSystemPrompt},
			{Role: "user", Content: input},
		},
		Stream: false,
	}
	if opts.MaxTokens > 0 {
		reqBody.Options = &ollamaOptions{NumPredict: opts.MaxTokens}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Summary{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Summary{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Summary{}, fmt.Errorf("%w: %s", ErrRateLimited, resp.Status)
	case resp.StatusCode >= 500:
		return Summary{}, fmt.Errorf("%w: %s", ErrRemoteUnavailable, resp.Status)
	case resp.StatusCode >= 400:
		return Summary{}, fmt.Errorf("%w: %s", ErrInvalidResponse, resp.Status)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Summary{}, fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	out := strings.TrimSpace(chatResp.Message.Content)
	if out == "" {
		return Summary{}, fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}
	return Summary{
		Text:       out,
		Model:      model,
		Truncated:  truncated,
		InputRunes: len([]rune(input)),
	}, nil
}

// Ollama /api/chat request/response types.

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}
