// Package partition reads line-delimited data partitions from the object stores.
package partition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"swarmgate/internal/apierr"
	"swarmgate/internal/blob"
	"swarmgate/internal/config"
	"swarmgate/internal/model"
)

// DefaultStore names the store used when a category does not pick one.
const DefaultStore = "data"

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Request addresses one page of one partition.
type Request struct {
	Category    string
	DataTier    string
	SubCategory string
	Offset      int
	Limit       int
}

// Page is one page of projected records.
type Page struct {
	Category    string
	DataTier    string
	SubCategory string
	Total       int
	Offset      int
	Limit       int
	HasMore     bool
	Records     []model.Pair
}

// Count is the number of records in the page.
func (p *Page) Count() int { return len(p.Records) }

// Trim drops records beyond n and recomputes HasMore.
func (p *Page) Trim(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(p.Records) {
		p.Records = p.Records[:n]
	}
	p.HasMore = p.Offset+len(p.Records) < p.Total
}

// Reader resolves partitions through the configured category table.
type Reader struct {
	stores     map[string]blob.Store
	categories map[string]config.CategoryConfig
	verticals  map[string]config.CategoryConfig
	legacy     bool

	defaultCategory string
	defaultVertical string
	defaultTier     string
	defaultLimit    int
	maxLimit        int
	sampleSize      int
	fallbackCounts  map[string]interface{}

	logger *slog.Logger
}

// NewReader creates a Reader. stores must contain DefaultStore.
func NewReader(stores map[string]blob.Store, cfg config.DataConfig, logger *slog.Logger) *Reader {
	r := &Reader{
		stores:          stores,
		categories:      cfg.Categories,
		verticals:       cfg.Verticals,
		legacy:          cfg.LegacyLayout,
		defaultCategory: cfg.DefaultCategory,
		defaultVertical: cfg.DefaultVertical,
		defaultTier:     cfg.DefaultTier,
		defaultLimit:    cfg.DefaultLimit,
		maxLimit:        cfg.MaxLimit,
		sampleSize:      cfg.SampleSize,
		fallbackCounts:  cfg.FallbackCounts,
		logger:          logger.With("component", "partition"),
	}
	if r.defaultLimit <= 0 {
		r.defaultLimit = 100
	}
	if r.maxLimit <= 0 {
		r.maxLimit = 1000
	}
	if r.sampleSize <= 0 {
		r.sampleSize = 10
	}
	return r
}

// Normalize fills defaults, clamps limit and offset and validates path segments.
func (r *Reader) Normalize(req Request) (Request, error) {
	if req.SubCategory == "" {
		return req, apierr.BadRequest(apierr.ReasonMissingParameter,
			"sub_category parameter required. Use /api/data/catalog to list available sub-categories.")
	}
	if req.Category == "" {
		req.Category = r.defaultCategory
	}
	if req.DataTier == "" {
		req.DataTier = r.defaultTier
	}
	for _, seg := range []struct{ name, value string }{
		{"category", req.Category},
		{"data_tier", req.DataTier},
		{"sub_category", req.SubCategory},
	} {
		if !validSegment(seg.value) {
			return req, apierr.BadRequest(apierr.ReasonInvalidParameter, "Invalid "+seg.name+".").With("parameter", seg.name)
		}
	}

	switch {
	case req.Limit == 0:
		req.Limit = r.defaultLimit
	case req.Limit < 1:
		req.Limit = 1
	case req.Limit > r.maxLimit:
		req.Limit = r.maxLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return req, nil
}

func validSegment(s string) bool {
	return segmentPattern.MatchString(s) && !strings.Contains(s, "..")
}

type location struct {
	store  string
	key    string
	prefix string
}

// locations lists where a partition may live, in lookup order. The
// partitioned location of a configured category always comes before the
// legacy flat layout.
func (r *Reader) locations(req Request) []location {
	var out []location
	if c, ok := r.categories[req.Category]; ok {
		out = append(out, location{
			store:  storeName(c.Store),
			key:    c.Prefix + req.DataTier + "/" + req.SubCategory + ".jsonl",
			prefix: c.Prefix,
		})
	}
	if r.legacy {
		out = append(out, location{
			store: DefaultStore,
			key:   req.Category + "/" + req.DataTier + "/" + req.SubCategory + ".jsonl",
		})
	}
	return out
}

func storeName(s string) string {
	if s == "" {
		return DefaultStore
	}
	return s
}

func (r *Reader) store(name string) (blob.Store, error) {
	s, ok := r.stores[name]
	if !ok {
		return nil, apierr.Wrap(apierr.KindInternal, apierr.ReasonNotConfigured, "Server error.",
			fmt.Errorf("partition: store %q is not configured", name))
	}
	return s, nil
}

func (r *Reader) get(ctx context.Context, storeName, key string) (*blob.Object, error) {
	s, err := r.store(storeName)
	if err != nil {
		return nil, err
	}
	obj, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, err
		}
		r.logger.Error("Failed to read object", "store", storeName, "object", key, "error", err)
		return nil, apierr.StorageUnavailable(err)
	}
	return obj, nil
}

// Read returns one page of the partition addressed by req. req must already
// be normalized.
func (r *Reader) Read(ctx context.Context, req Request) (*Page, error) {
	locs := r.locations(req)
	if len(locs) == 0 {
		return nil, apierr.BadRequest(apierr.ReasonInvalidParameter, "Unknown category: "+req.Category).
			With("category", req.Category).
			With("available_categories", r.Categories())
	}

	var obj *blob.Object
	for _, loc := range locs {
		o, err := r.get(ctx, loc.store, loc.key)
		if errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.logger.Debug("Resolved partition", "store", loc.store, "object", loc.key)
		obj = o
		break
	}
	if obj == nil {
		e := apierr.NotFound(apierr.ReasonPartitionNotFound, "Sub-category not found: "+req.SubCategory).
			With("category", req.Category).
			With("data_tier", req.DataTier).
			With("sub_category", req.SubCategory)
		if available := r.Available(ctx, req.Category, req.DataTier); len(available) > 0 {
			e.With("available", available)
		}
		return nil, e
	}

	lines := splitLines(obj.Data)
	page := &Page{
		Category:    req.Category,
		DataTier:    req.DataTier,
		SubCategory: req.SubCategory,
		Total:       len(lines),
		Offset:      req.Offset,
		Limit:       req.Limit,
		Records:     []model.Pair{},
	}
	if req.Offset >= page.Total {
		return page, nil
	}

	end := req.Offset + req.Limit
	if end > page.Total {
		end = page.Total
	}
	for _, line := range lines[req.Offset:end] {
		page.Records = append(page.Records, project(line, req.SubCategory, req.DataTier))
	}
	page.HasMore = end < page.Total
	return page, nil
}

// Categories lists the categories the reader can resolve without the legacy layout.
func (r *Reader) Categories() []string {
	out := make([]string, 0, len(r.categories))
	for name := range r.categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
