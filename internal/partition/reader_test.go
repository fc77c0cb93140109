package partition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"swarmgate/internal/apierr"
	"swarmgate/internal/blob"
	"swarmgate/internal/config"
	"swarmgate/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*blob.Object, error) {
	return nil, errors.New("connection reset")
}

func (brokenStore) Put(context.Context, string, []byte, blob.PutOptions) (string, error) {
	return "", errors.New("connection reset")
}

func put(t *testing.T, s blob.Store, key, data string) {
	t.Helper()
	_, err := s.Put(context.Background(), key, []byte(data), blob.PutOptions{})
	require.NoError(t, err)
}

func lines(n int, tier string) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"question":"q%d","answer":"a%d","specialty":"surgery","fingerprint":"fp%d","tier":%q,"internal_score":0.9,"source_model":"x"}`+"\n", i, i, i, tier)
	}
	return b.String()
}

func testDataConfig() config.DataConfig {
	return config.DataConfig{
		DefaultCategory: "med-vault",
		DefaultVertical: "medical",
		DefaultTier:     "platinum",
		DefaultLimit:    100,
		MaxLimit:        1000,
		SampleSize:      10,
		Categories: map[string]config.CategoryConfig{
			"med-vault": {Store: "medical", Prefix: "vault/"},
		},
		Verticals: map[string]config.CategoryConfig{
			"medical":  {Store: "medical", Prefix: "vault/"},
			"aviation": {Store: "data", Prefix: "aviation/"},
		},
		LegacyLayout:   true,
		FallbackCounts: map[string]interface{}{"total": 42},
	}
}

func newTestReader(t *testing.T) (*Reader, *blob.MemoryStore, *blob.MemoryStore) {
	t.Helper()
	data, medical := blob.NewMemoryStore(), blob.NewMemoryStore()
	r := NewReader(map[string]blob.Store{"data": data, "medical": medical}, testDataConfig(), logger.Discard())
	return r, data, medical
}

func TestNormalize(t *testing.T) {
	r, _, _ := newTestReader(t)

	req, err := r.Normalize(Request{SubCategory: "surgery"})
	require.NoError(t, err)
	assert.Equal(t, Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Limit: 100}, req)

	req, err = r.Normalize(Request{SubCategory: "surgery", Limit: 5000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, 1000, req.Limit)
	assert.Equal(t, 0, req.Offset)

	req, err = r.Normalize(Request{SubCategory: "surgery", Limit: -1})
	require.NoError(t, err)
	assert.Equal(t, 1, req.Limit)

	_, err = r.Normalize(Request{})
	require.Error(t, err)
	assert.Equal(t, apierr.ReasonMissingParameter, apierr.From(err).Reason)

	for _, bad := range []string{"../keys", "a/b", "..", "x y"} {
		_, err = r.Normalize(Request{SubCategory: bad})
		require.Error(t, err, bad)
		assert.Equal(t, apierr.ReasonInvalidParameter, apierr.From(err).Reason)
	}
}

func TestReadPage(t *testing.T) {
	ctx := context.Background()
	r, _, medical := newTestReader(t)
	put(t, medical, "vault/platinum/surgery.jsonl", lines(5, "platinum"))

	page, err := r.Read(ctx, Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Count())
	assert.True(t, page.HasMore)
	assert.Equal(t, "q1", page.Records[0].Question)
	assert.Equal(t, "surgery", page.Records[0].Category)
	assert.Equal(t, "platinum", page.Records[0].DataTier)
	assert.Equal(t, "fp1", page.Records[0].Fingerprint)

	page, err = r.Read(ctx, Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Offset: 3, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count())
	assert.False(t, page.HasMore)

	t.Run("offset past the end", func(t *testing.T) {
		page, err := r.Read(ctx, Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Offset: 5, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 0, page.Count())
		assert.NotNil(t, page.Records)
		assert.False(t, page.HasMore)
		assert.Equal(t, 5, page.Total)
	})
}

func TestPaginationCompleteness(t *testing.T) {
	ctx := context.Background()
	r, _, medical := newTestReader(t)
	put(t, medical, "vault/platinum/surgery.jsonl", lines(23, "platinum"))

	for _, limit := range []int{1, 4, 7, 23, 100} {
		var got []string
		offset := 0
		for {
			page, err := r.Read(ctx, Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Offset: offset, Limit: limit})
			require.NoError(t, err)
			for _, p := range page.Records {
				got = append(got, p.Question)
			}
			if !page.HasMore {
				break
			}
			offset += limit
		}
		require.Len(t, got, 23, "limit %d", limit)
		for i, q := range got {
			assert.Equal(t, fmt.Sprintf("q%d", i), q)
		}
	}
}

func TestReadSkipsUnservableLines(t *testing.T) {
	r, _, medical := newTestReader(t)
	put(t, medical, "vault/gold/cardiology.jsonl", "{\"question\":\"a\",\"answer\":\"b\"}\n\n   \nnot json\r\n{\"question\":\"c\",\"answer\":\"d\",\"category\":\"heart\"}\n")

	page, err := r.Read(context.Background(), Request{Category: "med-vault", DataTier: "gold", SubCategory: "cardiology", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "cardiology", page.Records[0].Category)
	assert.Equal(t, "gold", page.Records[0].DataTier)
	assert.Equal(t, "heart", page.Records[1].Category)
}

func TestProjectionDropsInternalFields(t *testing.T) {
	p := project(`{"question":"q","answer":"a","specialty":"s","fingerprint":"f","tier":"t","internal_score":1,"source_model":"m"}`, "x", "y")
	assert.Equal(t, "q", p.Question)
	assert.Equal(t, "s", p.Category)
	assert.Equal(t, "t", p.DataTier)
	assert.Empty(t, p.Vertical)
}

func TestLayoutPrecedence(t *testing.T) {
	ctx := context.Background()
	r, data, medical := newTestReader(t)
	put(t, data, "med-vault/platinum/surgery.jsonl", `{"question":"legacy","answer":"a"}`)

	// Only the legacy layout has the partition.
	page, err := r.Read(ctx, Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "legacy", page.Records[0].Question)

	// Once the partitioned layout has it, it wins.
	put(t, medical, "vault/platinum/surgery.jsonl", `{"question":"partitioned","answer":"a"}`)
	page, err = r.Read(ctx, Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "partitioned", page.Records[0].Question)

	// Unconfigured categories fall through to the legacy layout only.
	put(t, data, "aviation-vault/gold/faa.jsonl", `{"question":"faa","answer":"a"}`)
	page, err = r.Read(ctx, Request{Category: "aviation-vault", DataTier: "gold", SubCategory: "faa", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "faa", page.Records[0].Question)
}

func TestUnknownCategoryWithoutLegacy(t *testing.T) {
	cfg := testDataConfig()
	cfg.LegacyLayout = false
	r := NewReader(map[string]blob.Store{"data": blob.NewMemoryStore(), "medical": blob.NewMemoryStore()}, cfg, logger.Discard())

	_, err := r.Read(context.Background(), Request{Category: "nope", DataTier: "gold", SubCategory: "x", Limit: 10})
	require.Error(t, err)
	e := apierr.From(err)
	assert.Equal(t, apierr.KindBadRequest, e.Kind)
	assert.Equal(t, []string{"med-vault"}, e.Details["available_categories"])
}

func TestNotFoundSuggestsAvailable(t *testing.T) {
	ctx := context.Background()
	r, data, medical := newTestReader(t)
	put(t, medical, "vault/catalog.json", `{"vaults":{"med-vault":{"tiers":{"platinum":{"specialties":[{"specialty":"surgery","count":10},{"specialty":"neurology","count":4}]}}}}}`)

	_, err := r.Read(ctx, Request{Category: "med-vault", DataTier: "platinum", SubCategory: "dermatology", Limit: 10})
	require.Error(t, err)
	e := apierr.From(err)
	assert.Equal(t, apierr.KindNotFound, e.Kind)
	assert.Equal(t, apierr.ReasonPartitionNotFound, e.Reason)
	assert.Equal(t, []string{"surgery", "neurology"}, e.Details["available"])
	assert.Equal(t, "platinum", e.Details["data_tier"])

	t.Run("legacy catalog", func(t *testing.T) {
		put(t, data, "catalog.json", `{"vaults":{"cre-vault":{"tiers":{"gold":{"specialties":[{"specialty":"leases"}]}}}}}`)
		_, err := r.Read(ctx, Request{Category: "cre-vault", DataTier: "gold", SubCategory: "x", Limit: 10})
		assert.Equal(t, []string{"leases"}, apierr.From(err).Details["available"])
	})

	t.Run("no catalog", func(t *testing.T) {
		_, err := r.Read(ctx, Request{Category: "med-vault", DataTier: "gold", SubCategory: "x", Limit: 10})
		_, ok := apierr.From(err).Details["available"]
		assert.False(t, ok)
	})
}

func TestReadStorageUnavailable(t *testing.T) {
	r := NewReader(map[string]blob.Store{"data": brokenStore{}, "medical": brokenStore{}}, testDataConfig(), logger.Discard())
	_, err := r.Read(context.Background(), Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Limit: 10})
	assert.True(t, apierr.Is(err, apierr.KindStorageUnavailable))
}

func TestPageTrim(t *testing.T) {
	r, _, medical := newTestReader(t)
	put(t, medical, "vault/platinum/surgery.jsonl", lines(10, "platinum"))
	page, err := r.Read(context.Background(), Request{Category: "med-vault", DataTier: "platinum", SubCategory: "surgery", Limit: 5})
	require.NoError(t, err)

	page.Trim(2)
	assert.Equal(t, 2, page.Count())
	assert.True(t, page.HasMore)
}
