package payment

import (
	"encoding/json"
	"fmt"

	"swarmgate/internal/model"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Event types the gateway acts on.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.paid"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is a verified webhook event. At most one of the payloads is set;
// none is set for event types the gateway ignores.
type Event struct {
	ID           string
	Type         string
	Payment      *model.PaymentEvent
	Renewal      *model.RenewalEvent
	Cancellation *model.CancellationEvent
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func ParseWebhook(payload []byte, signature, secret string) (*Event, error) {
	if secret == "" {
		return nil, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("invalid checkout session payload: %w", err)
		}
		ev := paymentEvent(&sess)
		out.Payment = &ev
	case EventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("invalid invoice payload: %w", err)
		}
		ev := model.RenewalEvent{AmountPaid: inv.AmountPaid}
		if inv.Customer != nil {
			ev.CustomerID = inv.Customer.ID
		}
		out.Renewal = &ev
	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("invalid subscription payload: %w", err)
		}
		out.Cancellation = &model.CancellationEvent{SubscriptionID: sub.ID}
	}
	return out, nil
}
