package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAIBackend calls an OpenAI-compatible /v1/chat/completions endpoint,
// such as a local vLLM server or a hosted provider.
type OpenAIBackend struct {
	name    string
	baseURL string
	apiKey  string
	// model, when set, overrides the model requested by the caller.
	model  string
	client HTTPClient
}

// NewOpenAIBackend creates a backend. An empty model means the request's
// model is used.
func NewOpenAIBackend(name, baseURL, apiKey, model string, timeout time.Duration) *OpenAIBackend {
	return &OpenAIBackend{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *OpenAIBackend) Name() string { return b.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	model := b.model
	if model == "" {
		model = req.Model
	}
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	apiKey := b.apiKey
	if apiKey == "" {
		apiKey = "not-needed"
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", b.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", b.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("%s returned status %d: %s", b.name, resp.StatusCode, snippet)
	}

	res := gjson.ParseBytes(data)
	text := StripThinking(res.Get("choices.0.message.content").String())
	if text == "" {
		return nil, fmt.Errorf("%s returned an empty answer", b.name)
	}
	return &Response{
		Text:    text,
		Model:   model,
		Backend: b.name,
		Usage: Usage{
			PromptTokens:     int(res.Get("usage.prompt_tokens").Int()),
			CompletionTokens: int(res.Get("usage.completion_tokens").Int()),
			TotalTokens:      int(res.Get("usage.total_tokens").Int()),
		},
	}, nil
}
