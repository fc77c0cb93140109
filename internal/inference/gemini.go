package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiBackend answers through the Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini client for apiKey.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (g *GeminiBackend) Name() string { return "gemini" }

func (g *GeminiBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	text := StripThinking(responseText(resp))
	if text == "" {
		return nil, fmt.Errorf("gemini returned an empty answer")
	}

	out := &Response{Text: text, Model: g.model, Backend: g.Name()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Close releases the underlying client.
func (g *GeminiBackend) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
