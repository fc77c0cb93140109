package model

import (
	"encoding/json"
	"time"
)

// KeyStatus is the lifecycle state of an issued API key.
type KeyStatus string

const (
	StatusActive KeyStatus = "active"
	// StatusCancelled is terminal.
	StatusCancelled KeyStatus = "cancelled"
)

// KeyRecord represents one issued data API key together with its quota and usage.
// The JSON form is the persisted registry layout; the gorm tags back the keyed store.
type KeyRecord struct {
	ID               uint       `gorm:"primaryKey" json:"-"`
	Key              string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"key"`
	Email            string     `gorm:"type:varchar(320);index" json:"email"`
	Tier             string     `gorm:"type:varchar(64);not null" json:"tier"`
	Status           KeyStatus  `gorm:"type:varchar(32);default:'active';not null" json:"status"`
	Quota            *int64     `json:"quota"`
	PairsPulled      int64      `gorm:"default:0;not null" json:"pairs_pulled"`
	PaymentSessionID string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"payment_session_id"`
	CustomerID       string     `gorm:"type:varchar(255);index" json:"customer_id,omitempty"`
	SubscriptionID   string     `gorm:"type:varchar(255);index" json:"subscription_id,omitempty"`
	AmountPaid       int64      `json:"amount_paid"`
	Currency         string     `gorm:"type:varchar(8)" json:"currency,omitempty"`
	Origin           string     `gorm:"type:varchar(64)" json:"origin,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastRenewal      *time.Time `json:"last_renewal,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	LastPullAt       *time.Time `json:"last_pull_at,omitempty"`
	Version          int64      `gorm:"default:0;not null" json:"-"`
}

// UnmarshalJSON accepts both the current layout and documents written by the
// older checkout handlers (stripe_* field names, no status or quota).
func (r *KeyRecord) UnmarshalJSON(data []byte) error {
	type plain KeyRecord
	aux := struct {
		*plain
		LegacySession      string  `json:"stripe_session"`
		LegacyCustomer     *string `json:"stripe_customer_id"`
		LegacySubscription *string `json:"stripe_subscription_id"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.PaymentSessionID == "" {
		r.PaymentSessionID = aux.LegacySession
	}
	if r.CustomerID == "" && aux.LegacyCustomer != nil {
		r.CustomerID = *aux.LegacyCustomer
	}
	if r.SubscriptionID == "" && aux.LegacySubscription != nil {
		r.SubscriptionID = *aux.LegacySubscription
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	return nil
}

// Active reports whether the key may still be used.
func (r *KeyRecord) Active() bool {
	return r.Status == StatusActive
}

// Remaining returns how many pairs the key may still pull. The boolean is
// false for unlimited keys.
func (r *KeyRecord) Remaining() (int64, bool) {
	if r.Quota == nil {
		return 0, false
	}
	left := *r.Quota - r.PairsPulled
	if left < 0 {
		left = 0
	}
	return left, true
}

// Exhausted reports whether a quota-bearing key has used its whole quota.
func (r *KeyRecord) Exhausted() bool {
	left, limited := r.Remaining()
	return limited && left <= 0
}
