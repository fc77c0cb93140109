package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func postJSON(ctx context.Context, client HTTPClient, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// DiscordSender posts messages as Discord embeds.
type DiscordSender struct {
	url    string
	client HTTPClient
}

func NewDiscordSender(url string, timeout time.Duration) *DiscordSender {
	return &DiscordSender{url: url, client: &http.Client{Timeout: timeout}}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Timestamp string         `json:"timestamp"`
	Footer    *struct {
		Text string `json:"text"`
	} `json:"footer,omitempty"`
}

func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:     truncate(msg.Title, 256),
		Color:     msg.Color,
		Timestamp: stamp(msg.Timestamp),
	}
	for _, f := range msg.Fields {
		value := f.Value
		if value == "" {
			value = "-"
		}
		// Discord rejects field values over 1024 characters.
		embed.Fields = append(embed.Fields, discordField{Name: f.Name, Value: truncate(value, 1024), Inline: f.Inline})
	}
	if msg.Footer != "" {
		embed.Footer = &struct {
			Text string `json:"text"`
		}{Text: msg.Footer}
	}
	return postJSON(ctx, d.client, d.url, map[string]any{"embeds": []discordEmbed{embed}})
}

// RocketChatSender posts messages as Rocket.Chat incoming-webhook attachments.
type RocketChatSender struct {
	url    string
	client HTTPClient
}

func NewRocketChatSender(url string, timeout time.Duration) *RocketChatSender {
	return &RocketChatSender{url: url, client: &http.Client{Timeout: timeout}}
}

type rocketField struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

type rocketAttachment struct {
	Color  string        `json:"color"`
	Fields []rocketField `json:"fields"`
	TS     string        `json:"ts"`
}

func (r *RocketChatSender) Send(ctx context.Context, msg Message) error {
	att := rocketAttachment{Color: fmt.Sprintf("#%06X", msg.Color), TS: stamp(msg.Timestamp)}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, rocketField{Short: f.Inline, Title: f.Name, Value: f.Value})
	}
	payload := map[string]any{
		"text":        "**" + msg.Title + "**",
		"attachments": []rocketAttachment{att},
	}
	return postJSON(ctx, r.client, r.url, payload)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
