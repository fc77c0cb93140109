// Package inference runs chat completions against a prioritized chain of
// model backends.
package inference

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrUnavailable is returned when no backend could answer.
var ErrUnavailable = errors.New("inference: no backend available")

// Request is one single-turn completion.
type Request struct {
	System      string
	Prompt      string
	// Model is the preferred model for backends that serve several.
	Model       string
	MaxTokens   int
	Temperature float32
}

// Usage is the token accounting reported by a backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed answer.
type Response struct {
	Text    string
	Model   string
	Backend string
	Usage   Usage
}

// Backend answers completion requests.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes reasoning blocks emitted by some models.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}
