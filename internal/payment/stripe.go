package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"swarmgate/internal/config"
	"swarmgate/internal/model"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeProvider implements Provider with the Stripe API.
type StripeProvider struct {
	api    *client.API
	logger *slog.Logger
}

// NewStripeProvider returns nil when cfg carries no secret key.
func NewStripeProvider(cfg config.StripeConfig, logger *slog.Logger) *StripeProvider {
	if cfg.SecretKey == "" {
		return nil
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	return newStripeProvider(cfg.SecretKey, backend, logger)
}

func newStripeProvider(key string, backend stripe.Backend, logger *slog.Logger) *StripeProvider {
	api := client.New(key, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeProvider{api: api, logger: logger.With("component", "stripe")}
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, tier string, product config.ProductConfig) (*Checkout, error) {
	mode := stripe.CheckoutSessionModePayment
	if product.Mode == "subscription" {
		mode = stripe.CheckoutSessionModeSubscription
	}
	currency := product.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency: stripe.String(currency),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:        stripe.String(product.Name),
			Description: stripe.String(product.Description),
		},
		UnitAmount: stripe.Int64(product.Amount),
	}
	if mode == stripe.CheckoutSessionModeSubscription {
		interval := product.Interval
		if interval == "" {
			interval = "month"
		}
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(interval),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(product.SuccessURL),
		CancelURL:  stripe.String(product.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("tier", tier)
	if product.Product != "" {
		params.AddMetadata("product", product.Product)
	}
	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"tier": tier, "product": product.Product},
		}
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			p.logger.Warn("Checkout session rejected", "tier", tier, "error", stripeErr.Msg)
			return nil, &RejectedError{Message: stripeErr.Msg}
		}
		p.logger.Error("Failed to create checkout session", "tier", tier, "error", err)
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &Checkout{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) GetSession(ctx context.Context, id string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, stripeErr.Msg)
		}
		p.logger.Error("Failed to retrieve checkout session", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}
	return &SessionStatus{
		Paid:    sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Payment: paymentEvent(sess),
	}, nil
}

// paymentEvent maps a checkout session onto the issuance input.
func paymentEvent(sess *stripe.CheckoutSession) model.PaymentEvent {
	ev := model.PaymentEvent{
		SessionID:   sess.ID,
		AmountTotal: sess.AmountTotal,
		Currency:    string(sess.Currency),
		Tier:        sess.Metadata["tier"],
		Origin:      sess.Metadata["origin"],
	}
	if sess.Customer != nil {
		ev.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		ev.SubscriptionID = sess.Subscription.ID
	}
	switch {
	case sess.CustomerDetails != nil && sess.CustomerDetails.Email != "":
		ev.Email = sess.CustomerDetails.Email
	case sess.CustomerEmail != "":
		ev.Email = sess.CustomerEmail
	}
	return ev
}
