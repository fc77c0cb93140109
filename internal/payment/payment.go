// Package payment talks to the payment provider: checkout sessions, session
// lookups and signed webhook events.
package payment

import (
	"context"
	"errors"

	"swarmgate/internal/config"
	"swarmgate/internal/model"
)

var (
	// ErrNotConfigured is returned when no provider credentials are set.
	ErrNotConfigured = errors.New("payment: provider not configured")
	// ErrSessionNotFound is returned for unknown or malformed session ids.
	ErrSessionNotFound = errors.New("payment: session not found")
	// ErrInvalidSignature is returned for webhook payloads that fail verification.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
)

// RejectedError is a request the provider refused, with the provider's
// explanation.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "payment: request rejected: " + e.Message
}

// Checkout is a created checkout session.
type Checkout struct {
	ID  string
	URL string
}

// SessionStatus is the payment state of a checkout session.
type SessionStatus struct {
	Paid    bool
	Payment model.PaymentEvent
}

// Provider creates and inspects checkout sessions.
type Provider interface {
	CreateCheckout(ctx context.Context, tier string, product config.ProductConfig) (*Checkout, error)
	GetSession(ctx context.Context, id string) (*SessionStatus, error)
}
