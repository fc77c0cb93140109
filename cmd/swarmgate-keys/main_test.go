package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"swarmgate/internal/blob"
	"swarmgate/internal/config"
	"swarmgate/internal/logger"
	"swarmgate/internal/model"
	"swarmgate/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store registry.Store
	ops   *blob.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := registry.NewDocumentStore(blob.NewMemoryStore(), "keys/api-keys.json", 5, logger.Discard())
	q := int64(500)
	require.NoError(t, store.Save(context.Background(), []model.KeyRecord{
		{Key: "sk_swarm_aaaa1111", PaymentSessionID: "cs_1", Email: "a@acme.io", Tier: "starter", Status: model.StatusActive, Quota: &q, PairsPulled: 120},
		{Key: "sk_swarm_bbbb2222", PaymentSessionID: "cs_2", Email: "b@acme.io", Tier: "starter", Status: model.StatusCancelled, Quota: &q},
	}))
	return &testEnv{store: store, ops: blob.NewMemoryStore()}
}

func (te *testEnv) opener() opener {
	return func(ctx context.Context, configPath string, debug bool) (*env, error) {
		cfg := &config.Config{
			Tiers:     config.DefaultTiers(),
			Scheduler: config.SchedulerConfig{SnapshotPrefix: "keys/snapshots/"},
		}
		return newEnv(te.store, te.ops, cfg, logger.Discard(), func() {}), nil
	}
}

func run(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	te := newTestEnv(t)

	out, err := run(t, te.opener(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "...1111")
	assert.Contains(t, out, "...2222")
	assert.NotContains(t, out, "sk_swarm_aaaa1111")

	out, err = run(t, te.opener(), "list", "--status", "active", "--json")
	require.NoError(t, err)
	var records []model.KeyRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "sk_swarm_aaaa1111", records[0].Key)
}

func TestIssueRevokeReset(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()

	out, err := run(t, te.opener(), "issue", "--email", "pilot@acme.io", "--tier", "pro")
	require.NoError(t, err)
	var issued model.KeyRecord
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.Equal(t, "pro", issued.Tier)
	assert.Equal(t, "cli", issued.Origin)
	assert.True(t, strings.HasPrefix(issued.PaymentSessionID, "manual_"))

	out, err = run(t, te.opener(), "reset", "sk_swarm_aaaa1111")
	require.NoError(t, err)
	assert.Contains(t, out, "quota 500")
	rec, err := te.store.Find(ctx, "sk_swarm_aaaa1111")
	require.NoError(t, err)
	assert.Zero(t, rec.PairsPulled)

	out, err = run(t, te.opener(), "revoke", "sk_swarm_aaaa1111")
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")

	_, err = run(t, te.opener(), "reset", "sk_swarm_aaaa1111")
	assert.Error(t, err)
}

func TestShow(t *testing.T) {
	te := newTestEnv(t)

	out, err := run(t, te.opener(), "show", "sk_swarm_bbbb2222")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "cancelled"`)

	_, err = run(t, te.opener(), "show", "sk_swarm_missing")
	assert.Error(t, err)

	_, err = run(t, te.opener(), "show")
	assert.Error(t, err)
}

func TestIssueRequiresTier(t *testing.T) {
	te := newTestEnv(t)
	_, err := run(t, te.opener(), "issue", "--email", "x@acme.io")
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	te := newTestEnv(t)

	out, err := run(t, te.opener(), "snapshot")
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot written")
}

func TestOpenFailure(t *testing.T) {
	failing := func(context.Context, string, bool) (*env, error) {
		return nil, errors.New("no bucket")
	}
	_, err := run(t, failing, "list")
	assert.ErrorContains(t, err, "no bucket")
}
