package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type managedBackend struct {
	Backend
	failures   int
	disabled   bool
	disabledAt time.Time
}

// BackendStatus is a snapshot of one backend's health.
type BackendStatus struct {
	Name       string    `json:"name"`
	Failures   int       `json:"failures"`
	Disabled   bool      `json:"disabled"`
	DisabledAt time.Time `json:"disabled_at,omitempty"`
}

// Chain tries backends in order. A backend that fails disableThreshold times
// in a row is skipped until revivalInterval has passed, then tried again.
type Chain struct {
	mutex            sync.Mutex
	backends         []*managedBackend
	disableThreshold int
	revivalInterval  time.Duration
	logger           *slog.Logger
	now              func() time.Time
}

func NewChain(backends []Backend, disableThreshold int, revivalInterval time.Duration, logger *slog.Logger) *Chain {
	if disableThreshold <= 0 {
		disableThreshold = 3
	}
	managed := make([]*managedBackend, len(backends))
	for i, b := range backends {
		managed[i] = &managedBackend{Backend: b}
	}
	return &Chain{
		backends:         managed,
		disableThreshold: disableThreshold,
		revivalInterval:  revivalInterval,
		logger:           logger.With("component", "inference"),
		now:              time.Now,
	}
}

// Len is the number of configured backends.
func (c *Chain) Len() int { return len(c.backends) }

// Complete returns the first successful answer.
func (c *Chain) Complete(ctx context.Context, req Request) (*Response, error) {
	var errs []error
	for _, b := range c.candidates() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := b.Complete(ctx, req)
		if err == nil {
			c.handleSuccess(b)
			return resp, nil
		}
		c.logger.Warn("Backend failed, falling back", "backend", b.Name(), "error", err)
		c.handleFailure(b)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrUnavailable
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// candidates lists enabled backends and disabled ones due for a retry.
func (c *Chain) candidates() []*managedBackend {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	out := make([]*managedBackend, 0, len(c.backends))
	for _, b := range c.backends {
		if b.disabled && c.now().Sub(b.disabledAt) < c.revivalInterval {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (c *Chain) handleFailure(b *managedBackend) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b.failures++
	if b.failures >= c.disableThreshold {
		if !b.disabled {
			c.logger.Warn("Disabling backend due to reaching failure threshold", "backend", b.Name(), "failures", b.failures)
		}
		b.disabled = true
		// Restart the revival timer on every failed retry.
		b.disabledAt = c.now()
	}
}

func (c *Chain) handleSuccess(b *managedBackend) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if b.disabled {
		c.logger.Info("Backend revived", "backend", b.Name())
	}
	b.failures = 0
	b.disabled = false
	b.disabledAt = time.Time{}
}

// Status reports the health of every backend.
func (c *Chain) Status() []BackendStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	out := make([]BackendStatus, len(c.backends))
	for i, b := range c.backends {
		out[i] = BackendStatus{Name: b.Name(), Failures: b.failures, Disabled: b.disabled, DisabledAt: b.disabledAt}
	}
	return out
}
