// Package dataapi serves the metered data API: key-gated pulls, the public
// catalog endpoints, and the payment flow that issues keys.
package dataapi

import (
	"context"
	"log/slog"

	"swarmgate/internal/config"
	"swarmgate/internal/keymanager"
	"swarmgate/internal/model"
	"swarmgate/internal/notify"
	"swarmgate/internal/partition"
	"swarmgate/internal/payment"
	"swarmgate/internal/quota"

	"github.com/gin-gonic/gin"
)

// Enforcer authenticates keys and serves metered pulls.
type Enforcer interface {
	Authenticate(ctx context.Context, token string) (*quota.Principal, error)
	Pull(ctx context.Context, token string, req partition.Request, clientIP string) (*quota.Result, error)
}

// Catalog serves the public, unmetered views of the data.
type Catalog interface {
	Catalog(ctx context.Context, vertical string) ([]byte, error)
	Sample(ctx context.Context, vertical, specialty string) (*partition.SampleResult, error)
	Counts(ctx context.Context) map[string]interface{}
}

// Keys issues keys and applies subscription lifecycle events.
type Keys interface {
	Issue(ctx context.Context, ev model.PaymentEvent) (keymanager.IssueResult, error)
	Renew(ctx context.Context, ev model.RenewalEvent) (int, error)
	Cancel(ctx context.Context, ev model.CancellationEvent) (int, error)
}

// Notifier accepts detached notifications.
type Notifier interface {
	Dispatch(msg notify.Message)
}

type Handler struct {
	enforcer Enforcer
	catalog  Catalog
	keys     Keys
	// provider is nil when no payment credentials are configured.
	provider payment.Provider
	stripe   config.StripeConfig
	notifier Notifier
	logger   *slog.Logger
}

func NewHandler(enforcer Enforcer, catalog Catalog, keys Keys, provider payment.Provider, stripe config.StripeConfig, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		enforcer: enforcer,
		catalog:  catalog,
		keys:     keys,
		provider: provider,
		stripe:   stripe,
		notifier: notifier,
		logger:   logger.With("component", "dataapi"),
	}
}

// Register mounts the data API under r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/pull", h.Pull)
	r.GET("/key", h.KeyStatus)
	r.GET("/catalog", h.Catalog)
	r.GET("/sample", h.Sample)
	r.GET("/count", h.Count)
	r.POST("/checkout", h.Checkout)
	r.POST("/subscribe", h.Subscribe)
	r.GET("/activate", h.Activate)
	r.POST("/webhook", h.Webhook)
}

var _ Keys = (*keymanager.Manager)(nil)
