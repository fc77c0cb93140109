// Package medchat serves the guarded medical question endpoint: prompts with
// personal identifiers or emergency language are refused before inference,
// everything else is answered by the backend chain with an audit receipt.
package medchat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"swarmgate/internal/apierr"
	"swarmgate/internal/inference"
	"swarmgate/internal/metrics"
	"swarmgate/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	maxPromptRunes = 2000
	footer         = "swarmandbee.com/ask"
)

// Completer answers completion requests.
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (*inference.Response, error)
}

// Notifier queues a detached notification.
type Notifier interface {
	Dispatch(msg notify.Message)
}

type Handler struct {
	backend  Completer
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewHandler(backend Completer, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		backend:  backend,
		notifier: notifier,
		logger:   logger.With("component", "medchat"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type askRequest struct {
	Prompt    string `json:"prompt"`
	Mode      string `json:"mode"`
	SessionID string `json:"session_id"`
}

type safetyFlags struct {
	PHIDetected bool     `json:"phi_detected"`
	Emergency   bool     `json:"emergency"`
	PHITypes    []string `json:"phi_types"`
}

// Ask handles POST /api/ask-med.
func (h *Handler) Ask(c *gin.Context) {
	start := h.now()

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidParameter, "Invalid JSON body."))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonMissingParameter, "Prompt is required."))
		return
	}
	if utf8.RuneCountInString(req.Prompt) > maxPromptRunes {
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidParameter, "Prompt too long. Maximum 2,000 characters."))
		return
	}

	mode := ParseMode(req.Mode)
	promptHash := sha256Hex(normalize(req.Prompt))[:16]
	ip := c.ClientIP()

	if phiTypes := DetectPHI(req.Prompt); len(phiTypes) > 0 {
		metrics.AskOutcomes.WithLabelValues("phi_blocked").Inc()
		h.logger.Info("Prompt blocked for PHI", "phi_types", phiTypes, "prompt_hash", promptHash)
		h.notifier.Dispatch(notify.Message{
			Channel: notify.ChannelLeads,
			Title:   "Ask SwarmMed: PHI Blocked",
			Color:   notify.ColorAlert,
			Fields: []notify.Field{
				{Name: "PHI Types", Value: strings.Join(phiTypes, ", "), Inline: true},
				{Name: "Prompt Hash", Value: promptHash, Inline: true},
				{Name: "IP", Value: ip, Inline: true},
			},
			Footer: footer,
		})
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"ok":           false,
			"blocked":      true,
			"reason":       "phi_detected",
			"phi_types":    phiTypes,
			"message":      PHIBlockedMessage,
			"safety_flags": safetyFlags{PHIDetected: true, PHITypes: phiTypes},
			"receipt":      refusalReceipt(h.newID(), req.Prompt, mode, "blocked", "phi_detected", phiTypes, h.now()),
		})
		return
	}

	if IsEmergency(req.Prompt) {
		metrics.AskOutcomes.WithLabelValues("emergency").Inc()
		h.logger.Warn("Emergency trigger", "prompt_hash", promptHash)
		h.notifier.Dispatch(notify.Message{
			Channel: notify.ChannelLeads,
			Title:   "Ask SwarmMed: EMERGENCY TRIGGER",
			Color:   notify.ColorRed,
			Fields: []notify.Field{
				{Name: "Prompt Hash", Value: promptHash, Inline: true},
				{Name: "IP", Value: ip, Inline: true},
			},
			Footer: footer + ": EMERGENCY",
		})
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"ok":           false,
			"blocked":      true,
			"reason":       "emergency_trigger",
			"message":      EmergencyMessage,
			"safety_flags": safetyFlags{Emergency: true, PHITypes: []string{}},
			"receipt":      refusalReceipt(h.newID(), req.Prompt, mode, "emergency", "emergency_trigger", nil, h.now()),
		})
		return
	}

	resp, err := h.backend.Complete(c.Request.Context(), inference.Request{
		System:      mode.SystemPrompt(),
		Prompt:      req.Prompt,
		Model:       mode.Model(),
		MaxTokens:   mode.MaxTokens(),
		Temperature: temperature,
	})
	if err != nil {
		metrics.AskOutcomes.WithLabelValues("failed").Inc()
		h.logger.Error("Inference failed", "mode", mode, "error", err)
		apierr.Respond(c, apierr.BackendUnavailable("Inference failed. Please try again.", err))
		return
	}

	now := h.now()
	elapsed := now.Sub(start)
	receipt := completedReceipt(h.newID(), req.Prompt, mode, resp, elapsed, now)
	metrics.AskOutcomes.WithLabelValues("completed").Inc()
	h.logger.Info("Answered prompt", "mode", mode, "backend", resp.Backend, "model", resp.Model, "execution_ms", elapsed.Milliseconds())

	h.notifier.Dispatch(notify.Message{
		Channel: notify.ChannelLeads,
		Title:   "Ask SwarmMed: " + strings.ToUpper(string(mode)),
		Color:   modeColor(mode),
		Fields: []notify.Field{
			{Name: "Mode", Value: string(mode), Inline: true},
			{Name: "Model", Value: shortModel(resp.Model), Inline: true},
			{Name: "Latency", Value: fmt.Sprintf("%dms", elapsed.Milliseconds()), Inline: true},
			{Name: "Prompt", Value: truncate(req.Prompt, 256)},
			{Name: "Answer", Value: truncate(resp.Text, 512)},
			{Name: "Task Hash", Value: receipt.TaskHash[:16], Inline: true},
			{Name: "IP", Value: ip, Inline: true},
		},
		Footer: footer,
	})

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"answer":       resp.Text,
		"mode":         mode,
		"safety_flags": safetyFlags{PHITypes: []string{}},
		"receipt":      receipt,
	})
}

func modeColor(mode Mode) int {
	switch mode {
	case ModeVerified:
		return notify.ColorPurple
	case ModeTriage:
		return notify.ColorOrange
	default:
		return notify.ColorGold
	}
}

func shortModel(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
