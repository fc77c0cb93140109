package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"swarmgate/internal/blob"
	"swarmgate/internal/model"
)

// DocumentStore keeps the registry as a single JSON document in object storage.
// Writes hold a process-wide mutex and are conditional on the etag that was
// read, so concurrent writers in other processes cannot lose each other's updates.
type DocumentStore struct {
	store      blob.Store
	object     string
	maxRetries int
	logger     *slog.Logger
	mu         sync.Mutex
}

func NewDocumentStore(store blob.Store, object string, maxRetries int, logger *slog.Logger) *DocumentStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &DocumentStore{
		store:      store,
		object:     object,
		maxRetries: maxRetries,
		logger:     logger.With("component", "registry"),
	}
}

func (d *DocumentStore) read(ctx context.Context) (doc Document, etag string, exists bool, err error) {
	obj, err := d.store.Get(ctx, d.object)
	if errors.Is(err, blob.ErrNotFound) {
		return Document{Keys: []model.KeyRecord{}}, "", false, nil
	}
	if err != nil {
		return doc, "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := json.Unmarshal(obj.Data, &doc); err != nil {
		return doc, "", false, fmt.Errorf("%w: corrupt registry document: %v", ErrStorageUnavailable, err)
	}
	if doc.Keys == nil {
		doc.Keys = []model.KeyRecord{}
	}
	return doc, obj.ETag, true, nil
}

// mutate re-reads the document and re-applies fn after every lost race.
// fn reports whether it changed the document; unchanged documents are not written.
func (d *DocumentStore) mutate(ctx context.Context, fn func(doc *Document) (bool, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		doc, etag, exists, err := d.read(ctx)
		if err != nil {
			return err
		}
		changed, err := fn(&doc)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode registry document: %w", err)
		}
		opts := blob.PutOptions{ContentType: "application/json"}
		if exists {
			opts.IfMatch = etag
		} else {
			opts.IfNoneMatch = true
		}

		_, err = d.store.Put(ctx, d.object, data, opts)
		if err == nil {
			return nil
		}
		if errors.Is(err, blob.ErrPreconditionFailed) {
			d.logger.Debug("Registry write lost a race, retrying", "attempt", attempt)
			continue
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, ErrConflict)
}

func (d *DocumentStore) Load(ctx context.Context) ([]model.KeyRecord, error) {
	doc, _, _, err := d.read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Keys, nil
}

func (d *DocumentStore) Save(ctx context.Context, records []model.KeyRecord) error {
	return d.mutate(ctx, func(doc *Document) (bool, error) {
		doc.Keys = append([]model.KeyRecord{}, records...)
		return true, nil
	})
}

func (d *DocumentStore) Find(ctx context.Context, key string) (*model.KeyRecord, error) {
	doc, _, _, err := d.read(ctx)
	if err != nil {
		return nil, err
	}
	i := findByKey(doc.Keys, key)
	if i < 0 {
		return nil, ErrNotFound
	}
	rec := doc.Keys[i]
	return &rec, nil
}

func (d *DocumentStore) Insert(ctx context.Context, rec model.KeyRecord) (model.KeyRecord, bool, error) {
	var stored model.KeyRecord
	var created bool
	err := d.mutate(ctx, func(doc *Document) (bool, error) {
		if i := findBySession(doc.Keys, rec.PaymentSessionID); i >= 0 {
			stored, created = doc.Keys[i], false
			return false, nil
		}
		if findByKey(doc.Keys, rec.Key) >= 0 {
			return false, fmt.Errorf("registry: duplicate key %s", rec.Key)
		}
		doc.Keys = append(doc.Keys, rec)
		stored, created = rec, true
		return true, nil
	})
	if err != nil {
		return model.KeyRecord{}, false, err
	}
	return stored, created, nil
}

func (d *DocumentStore) Update(ctx context.Context, key string, fn func(*model.KeyRecord) error) (model.KeyRecord, error) {
	var updated model.KeyRecord
	err := d.mutate(ctx, func(doc *Document) (bool, error) {
		i := findByKey(doc.Keys, key)
		if i < 0 {
			return false, ErrNotFound
		}
		rec := doc.Keys[i]
		if err := fn(&rec); err != nil {
			return false, err
		}
		doc.Keys[i] = rec
		updated = rec
		return true, nil
	})
	if err != nil {
		return model.KeyRecord{}, err
	}
	return updated, nil
}

func (d *DocumentStore) UpdateEach(ctx context.Context, fn func(*model.KeyRecord) bool) (int, error) {
	var count int
	err := d.mutate(ctx, func(doc *Document) (bool, error) {
		count = 0
		for i := range doc.Keys {
			if fn(&doc.Keys[i]) {
				count++
			}
		}
		return count > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
