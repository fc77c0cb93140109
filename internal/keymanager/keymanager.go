package keymanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"swarmgate/internal/apierr"
	"swarmgate/internal/logger"
	"swarmgate/internal/model"
	"swarmgate/internal/notify"
	"swarmgate/internal/registry"
)

// KeyPrefix marks every generated key.
const KeyPrefix = "sk_swarm_"

const (
	defaultEmail  = "unknown"
	defaultOrigin = "hq"
	defaultTier   = "unknown"
)

// Notifier accepts detached notifications.
type Notifier interface {
	Dispatch(msg notify.Message)
}

// IssueResult is the outcome of an issuance. Created is false when the
// payment session had already been redeemed.
type IssueResult struct {
	Record  model.KeyRecord
	Created bool
}

// Manager issues keys and applies subscription lifecycle events to them.
type Manager struct {
	store    registry.Store
	tiers    map[string]*int64
	notifier Notifier
	logger   *slog.Logger

	now      func() time.Time
	generate func() (string, error)
}

// NewManager creates a Manager. tiers maps a tier name to its quota, nil meaning unlimited.
func NewManager(store registry.Store, tiers map[string]*int64, notifier Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		tiers:    tiers,
		notifier: notifier,
		logger:   logger.With("component", "keymanager"),
		now:      func() time.Time { return time.Now().UTC() },
		generate: GenerateKey,
	}
}

// GenerateKey returns a new key: the prefix followed by 48 hex characters.
func GenerateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// QuotaFor returns the quota for tier. known is false for tiers missing from the table.
func (m *Manager) QuotaFor(tier string) (quota *int64, known bool) {
	q, ok := m.tiers[tier]
	if !ok || q == nil {
		return nil, ok
	}
	v := *q
	return &v, true
}

// Issue creates a key for a completed payment. Repeating the same session id
// returns the existing record.
func (m *Manager) Issue(ctx context.Context, ev model.PaymentEvent) (IssueResult, error) {
	if ev.SessionID == "" {
		return IssueResult{}, apierr.BadRequest(apierr.ReasonMissingParameter, "Missing payment session id.")
	}

	tier := ev.Tier
	if tier == "" {
		tier = defaultTier
	}
	quota, known := m.QuotaFor(tier)
	if !known {
		m.logger.Warn("Unknown tier, issuing key without quota", "tier", tier, "session_id", ev.SessionID)
	}

	key, err := m.generate()
	if err != nil {
		return IssueResult{}, apierr.Wrap(apierr.KindInternal, apierr.ReasonInternal, "Failed to generate key.", err)
	}

	rec := model.KeyRecord{
		Key:              key,
		Email:            orDefault(ev.Email, defaultEmail),
		Tier:             tier,
		Status:           model.StatusActive,
		Quota:            quota,
		PaymentSessionID: ev.SessionID,
		CustomerID:       ev.CustomerID,
		SubscriptionID:   ev.SubscriptionID,
		AmountPaid:       ev.AmountTotal,
		Currency:         ev.Currency,
		Origin:           orDefault(ev.Origin, defaultOrigin),
		CreatedAt:        m.now(),
	}

	stored, created, err := m.store.Insert(ctx, rec)
	if err != nil {
		m.logger.Error("Failed to persist issued key", "session_id", ev.SessionID, "error", err)
		return IssueResult{}, storageError(err)
	}

	if created {
		m.logger.Info("Issued API key", "tier", stored.Tier, "key_suffix", logger.KeySuffix(stored.Key), "session_id", ev.SessionID)
		m.notifier.Dispatch(notify.Message{
			Channel: notify.ChannelData,
			Title:   "Webhook: Key Activated",
			Color:   notify.ColorGreen,
			Fields: []notify.Field{
				{Name: "Email", Value: stored.Email, Inline: true},
				{Name: "Tier", Value: stored.Tier, Inline: true},
				{Name: "Amount", Value: formatAmount(stored.AmountPaid, stored.Currency), Inline: true},
				{Name: "Origin", Value: stored.Origin, Inline: true},
				{Name: "Key", Value: logger.KeyPrefix(stored.Key, 12), Inline: true},
			},
		})
	} else {
		m.logger.Info("Payment session already redeemed", "session_id", ev.SessionID, "key_suffix", logger.KeySuffix(stored.Key))
	}

	return IssueResult{Record: stored, Created: created}, nil
}

// Renew resets usage on every active key owned by the customer. Cancelled
// keys stay untouched. It returns the number of renewed keys.
func (m *Manager) Renew(ctx context.Context, ev model.RenewalEvent) (int, error) {
	if ev.CustomerID == "" {
		return 0, nil
	}
	now := m.now()
	n, err := m.store.UpdateEach(ctx, func(rec *model.KeyRecord) bool {
		if rec.CustomerID != ev.CustomerID || !rec.Active() {
			return false
		}
		rec.PairsPulled = 0
		rec.LastRenewal = &now
		return true
	})
	if err != nil {
		m.logger.Error("Failed to renew keys", "customer_id", ev.CustomerID, "error", err)
		return 0, storageError(err)
	}

	if n > 0 {
		m.logger.Info("Renewed keys", "customer_id", ev.CustomerID, "count", n)
		m.notifier.Dispatch(notify.Message{
			Channel: notify.ChannelData,
			Title:   "Webhook: Subscription Renewed",
			Color:   notify.ColorBlue,
			Fields: []notify.Field{
				{Name: "Customer", Value: ev.CustomerID, Inline: true},
				{Name: "Keys", Value: strconv.Itoa(n), Inline: true},
				{Name: "Amount", Value: formatAmount(ev.AmountPaid, ""), Inline: true},
			},
		})
	}
	return n, nil
}

// Cancel marks every key tied to the subscription as cancelled. Keys that
// are already cancelled keep their original cancellation time.
func (m *Manager) Cancel(ctx context.Context, ev model.CancellationEvent) (int, error) {
	if ev.SubscriptionID == "" {
		return 0, nil
	}
	now := m.now()
	n, err := m.store.UpdateEach(ctx, func(rec *model.KeyRecord) bool {
		if rec.SubscriptionID != ev.SubscriptionID || !rec.Active() {
			return false
		}
		rec.Status = model.StatusCancelled
		rec.CancelledAt = &now
		return true
	})
	if err != nil {
		m.logger.Error("Failed to cancel keys", "subscription_id", ev.SubscriptionID, "error", err)
		return 0, storageError(err)
	}

	if n > 0 {
		m.logger.Info("Cancelled keys", "subscription_id", ev.SubscriptionID, "count", n)
		m.notifier.Dispatch(notify.Message{
			Channel: notify.ChannelData,
			Title:   "Webhook: Subscription Cancelled",
			Color:   notify.ColorRed,
			Fields: []notify.Field{
				{Name: "Subscription", Value: ev.SubscriptionID, Inline: true},
				{Name: "Keys", Value: strconv.Itoa(n), Inline: true},
			},
		})
	}
	return n, nil
}

// Status returns the record for key.
func (m *Manager) Status(ctx context.Context, key string) (*model.KeyRecord, error) {
	rec, err := m.store.Find(ctx, key)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, apierr.Unauthorized(apierr.ReasonInvalidAPIKey, "Invalid API key.")
	}
	if err != nil {
		return nil, storageError(err)
	}
	return rec, nil
}

// List returns every record in the registry.
func (m *Manager) List(ctx context.Context) ([]model.KeyRecord, error) {
	records, err := m.store.Load(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return records, nil
}

// Revoke cancels a single key. Revoking a cancelled key is a no-op.
func (m *Manager) Revoke(ctx context.Context, key string) (model.KeyRecord, error) {
	rec, err := m.store.Update(ctx, key, func(rec *model.KeyRecord) error {
		if rec.Active() {
			now := m.now()
			rec.Status = model.StatusCancelled
			rec.CancelledAt = &now
		}
		return nil
	})
	if err != nil {
		return model.KeyRecord{}, m.keyError(err)
	}
	m.logger.Info("Revoked key", "key_suffix", logger.KeySuffix(key))
	return rec, nil
}

// Reset zeroes the usage of a single active key, as a renewal would.
func (m *Manager) Reset(ctx context.Context, key string) (model.KeyRecord, error) {
	rec, err := m.store.Update(ctx, key, func(rec *model.KeyRecord) error {
		if !rec.Active() {
			return apierr.Forbidden(apierr.ReasonKeyCancelled, "Key is cancelled.")
		}
		now := m.now()
		rec.PairsPulled = 0
		rec.LastRenewal = &now
		return nil
	})
	if err != nil {
		return model.KeyRecord{}, m.keyError(err)
	}
	m.logger.Info("Reset key usage", "key_suffix", logger.KeySuffix(key))
	return rec, nil
}

func (m *Manager) keyError(err error) error {
	var apiErr *apierr.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, registry.ErrNotFound):
		return apierr.NotFound(apierr.ReasonNotFound, "Key not found.")
	default:
		return storageError(err)
	}
}

func storageError(err error) error {
	return apierr.StorageUnavailable(err)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatAmount(cents int64, currency string) string {
	s := fmt.Sprintf("$%d.%02d", cents/100, cents%100)
	if currency != "" && currency != "usd" {
		s += " " + currency
	}
	return s
}
