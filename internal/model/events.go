package model

// PaymentEvent is a confirmed payment for a checkout session.
type PaymentEvent struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	Email          string
	Tier           string
	AmountTotal    int64
	Currency       string
	Origin         string
}

// RenewalEvent is a paid subscription invoice for a customer.
type RenewalEvent struct {
	CustomerID string
	AmountPaid int64
}

// CancellationEvent is a deleted subscription.
type CancellationEvent struct {
	SubscriptionID string
}
