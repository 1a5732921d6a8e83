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

// OpenAISummarizer calls any OpenAI-compatible /v1/chat/completions endpoint.
// Works with vLLM, LiteLLM, LocalAI, Deepseek, OpenRouter, self-hosted models, etc.
type OpenAISummarizer struct {
	baseURL       string
	apiKey        string
	model         string
	maxInputRunes int
	httpClient    *http.Client
}

// NewOpenAISummarizer builds an OpenAI-compatible Summarizer.
// baseURL should include the /v1 prefix, e.g. "http://localhost:8000/v1".
// apiKey can be empty for local models that do not require authentication.
// timeout bounds each remote call; expiry surfaces as ErrRemoteUnavailable.
func NewOpenAISummarizer(baseURL, apiKey, model string, maxInputRunes int, timeout time.Duration) *OpenAISummarizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAISummarizer{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:        strings.TrimSpace(apiKey),
		model:         strings.TrimSpace(model),
		maxInputRunes: maxInputRunes,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Summarize implements Summarizer using the OpenAI chat completions API.
func (s *OpenAISummarizer) Summarize(ctx context.Context, text string, opts Options) (Summary, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = s.model
	}
	if model == "" {
		return Summary{}, fmt.Errorf("%w: no model configured", ErrInvalidResponse)
	}
	input, truncated := Truncate(text, s.maxInputRunes)

	reqBody := oaiChatRequest{
		Model: model,
		Messages: []oaiMessage{
			{Role: "system", Content: defaultSystemPrompt},
			{Role: "user", Content: input},
		},
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Summary{}, err
	}

	url := s.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Summary{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Summary{}, classifyStatus(resp)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Summary{}, fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	if len(chatResp.Choices) == 0 {
		return Summary{}, fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}
	out := strings.TrimSpace(chatResp.Choices[0].Message.Content)
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

// classifyStatus maps an HTTP error status onto the summarizer taxonomy.
func classifyStatus(resp *http.Response) error {
	var errResp oaiErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	detail := errResp.Error.Message
	if detail == "" {
		detail = resp.Status
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuth, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, detail)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidResponse, detail)
	}
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
