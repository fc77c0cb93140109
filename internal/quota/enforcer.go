// Package quota authenticates data API keys and meters the records they pull.
package quota

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"swarmgate/internal/apierr"
	"swarmgate/internal/logger"
	"swarmgate/internal/model"
	"swarmgate/internal/notify"
	"swarmgate/internal/partition"
	"swarmgate/internal/registry"
)

// Reader serves pages of data partitions.
type Reader interface {
	Normalize(req partition.Request) (partition.Request, error)
	Read(ctx context.Context, req partition.Request) (*partition.Page, error)
}

// Notifier accepts detached notifications.
type Notifier interface {
	Dispatch(msg notify.Message)
}

// Principal is an authenticated caller. Record is nil for static keys.
type Principal struct {
	Key    string
	Static bool
	Record *model.KeyRecord
}

// Usage is the quota state reported back to the client.
type Usage struct {
	Quota     *int64
	Used      int64
	Remaining *int64
}

func usageOf(rec *model.KeyRecord) *Usage {
	if rec == nil {
		return nil
	}
	u := &Usage{Quota: rec.Quota, Used: rec.PairsPulled}
	if left, limited := rec.Remaining(); limited {
		u.Remaining = &left
	}
	return u
}

// Result is a served page together with the key's usage after the pull.
type Result struct {
	Page  *partition.Page
	Usage *Usage
}

// Enforcer gates data pulls by key status and quota.
type Enforcer struct {
	store    registry.Store
	reader   Reader
	static   map[string]struct{}
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewEnforcer creates an Enforcer. staticKeys are operator keys with no quota.
func NewEnforcer(store registry.Store, reader Reader, staticKeys []string, notifier Notifier, logger *slog.Logger) *Enforcer {
	static := make(map[string]struct{}, len(staticKeys))
	for _, k := range staticKeys {
		if k != "" {
			static[k] = struct{}{}
		}
	}
	return &Enforcer{
		store:    store,
		reader:   reader,
		static:   static,
		notifier: notifier,
		logger:   logger.With("component", "quota"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate resolves token. The static allow-list is consulted before the
// registry, so static keys keep working while the registry is unreachable.
func (e *Enforcer) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apierr.Unauthorized(apierr.ReasonMissingAPIKey,
			"Missing API key. Include Authorization: Bearer sk_swarm_xxx header.")
	}
	if _, ok := e.static[token]; ok {
		return &Principal{Key: token, Static: true}, nil
	}

	rec, err := e.store.Find(ctx, token)
	if errors.Is(err, registry.ErrNotFound) {
		e.logger.Debug("Rejected unknown key", "key_suffix", logger.KeySuffix(token))
		return nil, apierr.Unauthorized(apierr.ReasonInvalidAPIKey, "Invalid API key.")
	}
	if err != nil {
		e.logger.Error("Failed to look up key", "key_suffix", logger.KeySuffix(token), "error", err)
		return nil, apierr.StorageUnavailable(err)
	}
	return &Principal{Key: token, Record: rec}, nil
}

// refuse reports why rec may not pull, or nil.
func refuse(rec *model.KeyRecord) error {
	if !rec.Active() {
		return withUsage(apierr.Forbidden(apierr.ReasonKeyCancelled, "API key has been cancelled."), rec)
	}
	if rec.Exhausted() {
		return withUsage(apierr.Forbidden(apierr.ReasonQuotaExhausted, "Quota exhausted. Renew or upgrade to continue."), rec)
	}
	return nil
}

func withUsage(e *apierr.Error, rec *model.KeyRecord) *apierr.Error {
	if rec.Quota != nil {
		e.With("quota", *rec.Quota)
	}
	return e.With("used", rec.PairsPulled)
}

// Pull serves one page for token and records the usage.
func (e *Enforcer) Pull(ctx context.Context, token string, req partition.Request, clientIP string) (*Result, error) {
	principal, err := e.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	req, err = e.reader.Normalize(req)
	if err != nil {
		return nil, err
	}

	rec := principal.Record
	if rec != nil {
		if err := refuse(rec); err != nil {
			return nil, err
		}
		if left, limited := rec.Remaining(); limited && int64(req.Limit) > left {
			req.Limit = int(left)
		}
		if req.Limit <= 0 {
			return nil, withUsage(apierr.Forbidden(apierr.ReasonQuotaExhausted, "Quota exhausted. Renew or upgrade to continue."), rec)
		}
	}

	page, err := e.reader.Read(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Result{Page: page}
	if rec != nil {
		if page.Count() > 0 {
			rec, err = e.commit(ctx, principal.Key, page, rec)
			if err != nil {
				return nil, err
			}
		}
		result.Usage = usageOf(rec)
	}

	e.notifyPull(principal.Key, req, page.Count(), clientIP)
	return result, nil
}

// commit adds the page to the key's usage. The quota is re-checked against
// the freshly read record and the page is trimmed to what could be committed.
// Storage failures are logged and the page is served uncommitted.
func (e *Enforcer) commit(ctx context.Context, key string, page *partition.Page, seen *model.KeyRecord) (*model.KeyRecord, error) {
	var committed int
	updated, err := e.store.Update(ctx, key, func(rec *model.KeyRecord) error {
		if err := refuse(rec); err != nil {
			return err
		}
		n := int64(page.Count())
		if left, limited := rec.Remaining(); limited && n > left {
			n = left
		}
		now := e.now()
		rec.PairsPulled += n
		rec.LastPullAt = &now
		committed = int(n)
		return nil
	})

	var apiErr *apierr.Error
	switch {
	case err == nil:
		page.Trim(committed)
		return &updated, nil
	case errors.As(err, &apiErr):
		return nil, apiErr
	default:
		e.logger.Error("Failed to record usage, serving page anyway",
			"key_suffix", logger.KeySuffix(key), "count", page.Count(), "error", err)
		guess := *seen
		guess.PairsPulled += int64(page.Count())
		return &guess, nil
	}
}

func (e *Enforcer) notifyPull(key string, req partition.Request, returned int, clientIP string) {
	if clientIP == "" {
		clientIP = "unknown"
	}
	e.notifier.Dispatch(notify.Message{
		Channel: notify.ChannelData,
		Title:   "Data API: Pull Request",
		Color:   notify.ColorGold,
		Fields: []notify.Field{
			{Name: "API Key", Value: logger.KeyPrefix(key, 12), Inline: true},
			{Name: "Category", Value: req.Category + "/" + req.DataTier, Inline: true},
			{Name: "Sub-category", Value: req.SubCategory, Inline: true},
			{Name: "Offset/Limit", Value: strconv.Itoa(req.Offset) + "/" + strconv.Itoa(req.Limit), Inline: true},
			{Name: "Returned", Value: strconv.Itoa(returned), Inline: true},
			{Name: "IP", Value: clientIP, Inline: true},
		},
		Footer: "/api/data/pull",
	})
}
