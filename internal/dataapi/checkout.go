package dataapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"swarmgate/internal/apierr"
	"swarmgate/internal/config"
	"swarmgate/internal/metrics"
	"swarmgate/internal/payment"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 64 << 10

type checkoutRequest struct {
	Tier   string `json:"tier"`
	Origin string `json:"origin"`
}

// Checkout handles POST /api/data/checkout for one-time data packs.
func (h *Handler) Checkout(c *gin.Context) {
	h.createCheckout(c, h.stripe.Packs)
}

// Subscribe handles POST /api/data/subscribe for recurring plans.
func (h *Handler) Subscribe(c *gin.Context) {
	h.createCheckout(c, h.stripe.Subscriptions)
}

func (h *Handler) createCheckout(c *gin.Context, products map[string]config.ProductConfig) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidParameter, "Invalid JSON body."))
		return
	}
	product, ok := products[req.Tier]
	if !ok {
		tiers := make([]string, 0, len(products))
		for name := range products {
			tiers = append(tiers, name)
		}
		sort.Strings(tiers)
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidParameter, `Invalid tier. Use "`+strings.Join(tiers, `" or "`)+`".`).
			With("available_tiers", tiers))
		return
	}
	if h.provider == nil {
		apierr.Respond(c, notConfigured())
		return
	}

	checkout, err := h.provider.CreateCheckout(c.Request.Context(), req.Tier, product)
	if err != nil {
		var rejected *payment.RejectedError
		if errors.As(err, &rejected) {
			apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidParameter, rejected.Message))
			return
		}
		apierr.Respond(c, apierr.BackendUnavailable("Server error creating checkout session.", err))
		return
	}
	h.logger.Info("Created checkout session", "tier", req.Tier, "session_id", checkout.ID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "url": checkout.URL, "session_id": checkout.ID})
}

// Activate handles GET /api/data/activate. The session is verified with the
// payment provider and a key is issued, or the existing key returned.
func (h *Handler) Activate(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonMissingParameter, "Missing session_id parameter.").With("parameter", "session_id"))
		return
	}
	if h.provider == nil {
		apierr.Respond(c, notConfigured())
		return
	}

	ctx := c.Request.Context()
	status, err := h.provider.GetSession(ctx, sessionID)
	if errors.Is(err, payment.ErrSessionNotFound) {
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidSession, "Invalid session."))
		return
	}
	if err != nil {
		apierr.Respond(c, apierr.BackendUnavailable("Payment provider unavailable.", err))
		return
	}
	if !status.Paid {
		apierr.Respond(c, apierr.New(apierr.KindPaymentRequired, apierr.ReasonPaymentRequired, "Payment not completed."))
		return
	}

	res, err := h.keys.Issue(ctx, status.Payment)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if res.Created {
		metrics.KeysIssued.Inc()
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"api_key":    res.Record.Key,
		"tier":       res.Record.Tier,
		"email":      res.Record.Email,
		"quota":      res.Record.Quota,
		"created_at": res.Record.CreatedAt,
	})
}

// Webhook handles POST /api/data/webhook.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidParameter, "Unreadable body."))
		return
	}

	event, err := payment.ParseWebhook(payload, c.GetHeader("Stripe-Signature"), h.stripe.WebhookSecret)
	switch {
	case errors.Is(err, payment.ErrNotConfigured):
		h.logger.Error("Webhook secret not configured")
		apierr.Respond(c, apierr.New(apierr.KindInternal, apierr.ReasonNotConfigured, "Webhook not configured."))
		return
	case errors.Is(err, payment.ErrInvalidSignature):
		h.logger.Warn("Rejected webhook", "error", err)
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidSignature, "Invalid signature."))
		return
	case err != nil:
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidParameter, "Invalid event payload."))
		return
	}

	result, err := h.applyEvent(c.Request.Context(), event)
	if err != nil {
		h.logger.Error("Webhook processing failed", "event_id", event.ID, "type", event.Type, "error", err)
		apierr.Respond(c, err)
		return
	}
	metrics.WebhookEvents.WithLabelValues(event.Type, result["action"].(string)).Inc()
	h.logger.Info("Processed webhook", "event_id", event.ID, "type", event.Type, "action", result["action"])
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": result})
}

func (h *Handler) applyEvent(ctx context.Context, event *payment.Event) (gin.H, error) {
	switch {
	case event.Payment != nil:
		res, err := h.keys.Issue(ctx, *event.Payment)
		if err != nil {
			return nil, err
		}
		if !res.Created {
			return gin.H{"action": "skip", "reason": "already_activated"}, nil
		}
		metrics.KeysIssued.Inc()
		return gin.H{"action": "created", "tier": res.Record.Tier, "email": res.Record.Email}, nil

	case event.Renewal != nil:
		if event.Renewal.CustomerID == "" {
			return gin.H{"action": "skip", "reason": "no_customer"}, nil
		}
		n, err := h.keys.Renew(ctx, *event.Renewal)
		if err != nil {
			return nil, err
		}
		return matched("renewed", n), nil

	case event.Cancellation != nil:
		if event.Cancellation.SubscriptionID == "" {
			return gin.H{"action": "skip", "reason": "no_subscription_id"}, nil
		}
		n, err := h.keys.Cancel(ctx, *event.Cancellation)
		if err != nil {
			return nil, err
		}
		return matched("cancelled", n), nil
	}
	return gin.H{"action": "ignored", "event_type": event.Type}, nil
}

func matched(action string, n int) gin.H {
	if n == 0 {
		return gin.H{"action": "no_match"}
	}
	return gin.H{"action": action, "keys": n}
}

func notConfigured() *apierr.Error {
	return apierr.New(apierr.KindInternal, apierr.ReasonNotConfigured, "Payment system not configured.")
}
