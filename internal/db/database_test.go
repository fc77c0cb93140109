package db

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"swarmgate/internal/config"
	"swarmgate/internal/model"
	"swarmgate/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB creates a new in-memory SQLite database and returns a Service and the raw *gorm.DB.
func setupTestDB(t *testing.T) (*Service, *gorm.DB) {
	service, err := NewService(config.DatabaseConfig{
		Type: "sqlite",
		DSN:  fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	if err != nil {
		t.Fatalf("Failed to create test db service: %v", err)
	}
	t.Cleanup(func() { service.Close() })
	return service, service.GetDB()
}

func quota(n int64) *int64 { return &n }

func TestNewService(t *testing.T) {
	service, err := NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	assert.NoError(t, err)
	assert.NotNil(t, service)

	_, err = NewService(config.DatabaseConfig{Type: "unsupported"})
	assert.Error(t, err)
}

func TestInsertIsIdempotentPerSession(t *testing.T) {
	service, db := setupTestDB(t)
	ctx := context.Background()

	first, created, err := service.Insert(ctx, model.KeyRecord{Key: "sk_1", PaymentSessionID: "cs_1", Tier: "starter", Status: model.StatusActive})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := service.Insert(ctx, model.KeyRecord{Key: "sk_2", PaymentSessionID: "cs_1", Tier: "starter", Status: model.StatusActive})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Key, second.Key)

	var count int64
	db.Model(&model.KeyRecord{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestFind(t *testing.T) {
	service, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := service.Find(ctx, "sk_missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, _, err = service.Insert(ctx, model.KeyRecord{Key: "sk_1", PaymentSessionID: "cs_1", Quota: quota(10), Status: model.StatusActive})
	require.NoError(t, err)

	rec, err := service.Find(ctx, "sk_1")
	require.NoError(t, err)
	require.NotNil(t, rec.Quota)
	assert.Equal(t, int64(10), *rec.Quota)
}

func TestEmptyLookupsMatchNothing(t *testing.T) {
	service, _ := setupTestDB(t)
	ctx := context.Background()
	_, _, err := service.Insert(ctx, model.KeyRecord{Key: "sk_1", PaymentSessionID: "cs_1", Status: model.StatusActive})
	require.NoError(t, err)

	_, err = service.Find(ctx, "")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = service.Update(ctx, "", func(r *model.KeyRecord) error {
		r.Status = model.StatusCancelled
		return nil
	})
	assert.ErrorIs(t, err, registry.ErrNotFound)

	rec, err := service.Find(ctx, "sk_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, rec.Status)

	_, err = service.findBySession(ctx, "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	stored, created, err := service.Insert(ctx, model.KeyRecord{Key: "sk_2", Status: model.StatusActive})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sk_2", stored.Key)
}

func TestUpdateBumpsVersion(t *testing.T) {
	service, _ := setupTestDB(t)
	ctx := context.Background()
	_, _, err := service.Insert(ctx, model.KeyRecord{Key: "sk_1", PaymentSessionID: "cs_1", Status: model.StatusActive})
	require.NoError(t, err)

	updated, err := service.Update(ctx, "sk_1", func(r *model.KeyRecord) error {
		r.PairsPulled = 4
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated.PairsPulled)
	assert.Equal(t, int64(1), updated.Version)

	rec, err := service.Find(ctx, "sk_1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.PairsPulled)

	_, err = service.Update(ctx, "sk_1", func(r *model.KeyRecord) error {
		r.PairsPulled = 99
		return fmt.Errorf("refused")
	})
	assert.Error(t, err)
	rec, _ = service.Find(ctx, "sk_1")
	assert.Equal(t, int64(4), rec.PairsPulled)
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	service, _ := setupTestDB(t)
	ctx := context.Background()
	_, _, err := service.Insert(ctx, model.KeyRecord{Key: "sk_1", PaymentSessionID: "cs_1", Status: model.StatusActive})
	require.NoError(t, err)

	stale, err := service.Find(ctx, "sk_1")
	require.NoError(t, err)

	_, err = service.Update(ctx, "sk_1", func(r *model.KeyRecord) error {
		r.PairsPulled += 5
		return nil
	})
	require.NoError(t, err)

	stale.PairsPulled += 3
	ok, err := service.apply(ctx, stale, stale.Version)
	require.NoError(t, err)
	assert.False(t, ok, "a write based on a stale version must not land")

	rec, _ := service.Find(ctx, "sk_1")
	assert.Equal(t, int64(5), rec.PairsPulled)
}

func TestConcurrentUpdates(t *testing.T) {
	service, _ := setupTestDB(t)
	ctx := context.Background()
	_, _, err := service.Insert(ctx, model.KeyRecord{Key: "sk_1", PaymentSessionID: "cs_1", Status: model.StatusActive})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Update(ctx, "sk_1", func(r *model.KeyRecord) error {
				r.PairsPulled++
				return nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rec, err := service.Find(ctx, "sk_1")
	require.NoError(t, err)
	assert.Equal(t, int64(succeeded), rec.PairsPulled, "every successful update is counted exactly once")
}

func TestUpdateEach(t *testing.T) {
	service, _ := setupTestDB(t)
	ctx := context.Background()
	for i, customer := range []string{"cus_a", "cus_a", "cus_b"} {
		_, _, err := service.Insert(ctx, model.KeyRecord{
			Key:              fmt.Sprintf("sk_%d", i),
			PaymentSessionID: fmt.Sprintf("cs_%d", i),
			CustomerID:       customer,
			PairsPulled:      7,
			Status:           model.StatusActive,
		})
		require.NoError(t, err)
	}

	n, err := service.UpdateEach(ctx, func(r *model.KeyRecord) bool {
		if r.CustomerID != "cus_a" {
			return false
		}
		r.PairsPulled = 0
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := service.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(0), records[0].PairsPulled)
	assert.Equal(t, int64(0), records[1].PairsPulled)
	assert.Equal(t, int64(7), records[2].PairsPulled)
}

func TestSaveUpserts(t *testing.T) {
	service, _ := setupTestDB(t)
	ctx := context.Background()
	_, _, err := service.Insert(ctx, model.KeyRecord{Key: "sk_1", PaymentSessionID: "cs_1", Status: model.StatusActive})
	require.NoError(t, err)

	err = service.Save(ctx, []model.KeyRecord{
		{Key: "sk_1", PaymentSessionID: "cs_1", Status: model.StatusCancelled},
		{Key: "sk_2", PaymentSessionID: "cs_2", Status: model.StatusActive},
	})
	require.NoError(t, err)

	records, err := service.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	rec, _ := service.Find(ctx, "sk_1")
	assert.Equal(t, model.StatusCancelled, rec.Status)
}
