// Package notify posts operational messages to chat webhooks.
package notify

import (
	"context"
	"errors"
	"time"

	"swarmgate/internal/config"
)

// ErrNotConfigured is returned when a channel has no destination.
var ErrNotConfigured = errors.New("notify: no webhook configured")

// Channel selects which webhook set receives a message.
type Channel string

const (
	// ChannelLeads receives form submissions and medical chat audit messages.
	ChannelLeads Channel = "leads"
	// ChannelData receives key lifecycle and data API activity.
	ChannelData Channel = "data"
)

// Colors used by the site's chat embeds.
const (
	ColorGold   = 0xB89B3C
	ColorGreen  = 0x5A9A6A
	ColorBlue   = 0x4A90D9
	ColorRed    = 0xFF0000
	ColorAlert  = 0xFF4444
	ColorOrange = 0xE67E22
	ColorPurple = 0x9A6A9A
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Message struct {
	Channel   Channel
	Title     string
	Color     int
	Fields    []Field
	Footer    string
	Timestamp time.Time
}

// Sender delivers one message to one destination.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Fallback tries each sender in order and stops at the first success.
type Fallback []Sender

func (f Fallback) Send(ctx context.Context, msg Message) error {
	if len(f) == 0 {
		return ErrNotConfigured
	}
	var errs []error
	for _, s := range f {
		err := s.Send(ctx, msg)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SendersFromConfig builds the channel table from the webhook configuration.
// Leads go to Discord first and Rocket.Chat second.
func SendersFromConfig(cfg config.NotifyConfig) map[Channel]Sender {
	senders := make(map[Channel]Sender)

	var leads Fallback
	if cfg.DiscordWebhookURL != "" {
		leads = append(leads, NewDiscordSender(cfg.DiscordWebhookURL, cfg.Timeout))
	}
	if cfg.RocketChatWebhookURL != "" {
		leads = append(leads, NewRocketChatSender(cfg.RocketChatWebhookURL, cfg.Timeout))
	}
	if len(leads) > 0 {
		senders[ChannelLeads] = leads
	}
	if cfg.DataWebhookURL != "" {
		senders[ChannelData] = NewDiscordSender(cfg.DataWebhookURL, cfg.Timeout)
	}
	return senders
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
