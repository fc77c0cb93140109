// Package registry persists issued API keys and their usage.
package registry

import (
	"context"
	"errors"

	"swarmgate/internal/model"
)

var (
	// ErrNotFound is returned when no record carries the requested key.
	ErrNotFound = errors.New("registry: key not found")
	// ErrStorageUnavailable wraps every failure to reach or decode the backing store.
	ErrStorageUnavailable = errors.New("registry: storage unavailable")
	// ErrConflict means a mutation kept losing compare-and-swap races.
	ErrConflict = errors.New("registry: too many concurrent writers")
)

// Store is the key registry contract. Mutations are read-modify-write
// operations that never leave a partially applied change behind.
type Store interface {
	// Load returns every record; an empty registry is not an error.
	Load(ctx context.Context) ([]model.KeyRecord, error)
	// Save replaces the whole registry.
	Save(ctx context.Context, records []model.KeyRecord) error
	Find(ctx context.Context, key string) (*model.KeyRecord, error)
	// Insert appends rec unless a record with the same payment session id
	// exists, in which case that record is returned with created == false.
	Insert(ctx context.Context, rec model.KeyRecord) (stored model.KeyRecord, created bool, err error)
	// Update applies fn to the record for key. An error from fn aborts the write.
	Update(ctx context.Context, key string, fn func(*model.KeyRecord) error) (model.KeyRecord, error)
	// UpdateEach offers every record to fn and persists the ones it reports as changed.
	UpdateEach(ctx context.Context, fn func(*model.KeyRecord) bool) (int, error)
}

// Document is the persisted layout of the registry.
type Document struct {
	Keys []model.KeyRecord `json:"keys"`
}

func findBySession(records []model.KeyRecord, sessionID string) int {
	if sessionID == "" {
		return -1
	}
	for i := range records {
		if records[i].PaymentSessionID == sessionID {
			return i
		}
	}
	return -1
}

func findByKey(records []model.KeyRecord, key string) int {
	for i := range records {
		if records[i].Key == key {
			return i
		}
	}
	return -1
}
