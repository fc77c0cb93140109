// Package scheduler runs the periodic maintenance jobs: registry snapshots
// to the ops store and a usage digest to the data channel.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"swarmgate/internal/blob"
	"swarmgate/internal/config"
	"swarmgate/internal/model"
	"swarmgate/internal/notify"
	"swarmgate/internal/registry"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 2 * time.Minute

type Notifier interface {
	Dispatch(msg notify.Message)
}

type Scheduler struct {
	store    registry.Store
	ops      blob.Store
	notifier Notifier
	cfg      config.SchedulerConfig
	logger   *slog.Logger
	c        *cron.Cron
	now      func() time.Time
}

func NewScheduler(store registry.Store, ops blob.Store, notifier Notifier, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		ops:      ops,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "scheduler"),
		c:        cron.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the jobs and starts the cron loop. A job whose schedule is
// "off" is not registered.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{"snapshot", s.cfg.SnapshotSchedule, s.Snapshot},
		{"digest", s.cfg.DigestSchedule, s.Digest},
	}
	for _, job := range jobs {
		if job.schedule == "" || job.schedule == "off" {
			continue
		}
		job := job
		_, err := s.c.AddFunc(job.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			s.logger.Info("Running scheduled job", "job", job.name)
			if err := job.run(ctx); err != nil {
				s.logger.Error("Scheduled job failed", "job", job.name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("error scheduling %s job: %w", job.name, err)
		}
	}
	s.c.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// SnapshotKey is the object a snapshot taken at t is written to. Snapshots
// taken on the same day overwrite each other.
func (s *Scheduler) SnapshotKey(t time.Time) string {
	return s.cfg.SnapshotPrefix + "api-keys-" + t.Format("2006-01-02") + ".json"
}

// Snapshot copies the whole registry to the ops store.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	records, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	data, err := json.MarshalIndent(registry.Document{Keys: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	key := s.SnapshotKey(s.now())
	if _, err := s.ops.Put(ctx, key, data, blob.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	s.logger.Info("Wrote registry snapshot", "object", key, "keys", len(records))
	return nil
}

// Usage summarizes the registry.
type Usage struct {
	Keys        int
	Active      int
	Cancelled   int
	Exhausted   int
	PairsPulled int64
	IssuedToday int
	PulledToday int
}

func summarize(records []model.KeyRecord, since time.Time) Usage {
	var u Usage
	for i := range records {
		rec := &records[i]
		u.Keys++
		u.PairsPulled += rec.PairsPulled
		if rec.Active() {
			u.Active++
			if rec.Exhausted() {
				u.Exhausted++
			}
		} else {
			u.Cancelled++
		}
		if !rec.CreatedAt.Before(since) {
			u.IssuedToday++
		}
		if rec.LastPullAt != nil && !rec.LastPullAt.Before(since) {
			u.PulledToday++
		}
	}
	return u
}

// Digest posts a usage summary of the last 24 hours to the data channel.
func (s *Scheduler) Digest(ctx context.Context) error {
	records, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	now := s.now()
	u := summarize(records, now.Add(-24*time.Hour))

	s.notifier.Dispatch(notify.Message{
		Channel: notify.ChannelData,
		Title:   "Data API: Daily Digest",
		Color:   notify.ColorPurple,
		Fields: []notify.Field{
			{Name: "Keys", Value: strconv.Itoa(u.Keys), Inline: true},
			{Name: "Active", Value: strconv.Itoa(u.Active), Inline: true},
			{Name: "Cancelled", Value: strconv.Itoa(u.Cancelled), Inline: true},
			{Name: "Exhausted", Value: strconv.Itoa(u.Exhausted), Inline: true},
			{Name: "Issued (24h)", Value: strconv.Itoa(u.IssuedToday), Inline: true},
			{Name: "Pulling (24h)", Value: strconv.Itoa(u.PulledToday), Inline: true},
			{Name: "Pairs Pulled", Value: strconv.FormatInt(u.PairsPulled, 10)},
		},
		Footer:    "scheduler",
		Timestamp: now,
	})
	return nil
}
