package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"swarmgate/internal/apierr"
	"swarmgate/internal/config"
	"swarmgate/internal/db"
	"swarmgate/internal/keymanager"
	"swarmgate/internal/logger"
	"swarmgate/internal/model"
	"swarmgate/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testAdmin = config.AdminConfig{Username: "admin", Password: "test-password"}

type nopNotifier struct{}

func (nopNotifier) Dispatch(notify.Message) {}

type MockKeys struct {
	mock.Mock
}

func (m *MockKeys) Issue(ctx context.Context, ev model.PaymentEvent) (keymanager.IssueResult, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(keymanager.IssueResult), args.Error(1)
}

func (m *MockKeys) Status(ctx context.Context, key string) (*model.KeyRecord, error) {
	args := m.Called(ctx, key)
	rec, _ := args.Get(0).(*model.KeyRecord)
	return rec, args.Error(1)
}

func (m *MockKeys) List(ctx context.Context) ([]model.KeyRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]model.KeyRecord)
	return records, args.Error(1)
}

func (m *MockKeys) Revoke(ctx context.Context, key string) (model.KeyRecord, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(model.KeyRecord), args.Error(1)
}

func (m *MockKeys) Reset(ctx context.Context, key string) (model.KeyRecord, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(model.KeyRecord), args.Error(1)
}

func setupTestRouter(keys Keys) *gin.Engine {
	router := gin.New()
	SetupRoutes(router, keys, testAdmin)
	return router
}

func setupRealManager(t *testing.T) *keymanager.Manager {
	service, err := db.NewService(config.DatabaseConfig{
		Type: "sqlite",
		DSN:  fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
	})
	if err != nil {
		t.Fatalf("Failed to create real db service: %v", err)
	}
	t.Cleanup(func() { service.Close() })
	return keymanager.NewManager(service, config.DefaultTiers(), nopNotifier{}, logger.Discard())
}

func do(router *gin.Engine, method, target, body string, authed bool) (*httptest.ResponseRecorder, map[string]any) {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.SetBasicAuth("admin", "test-password")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	return resp, out
}

func TestKeyHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := setupTestRouter(setupRealManager(t))

	// Test without auth
	resp, _ := do(router, http.MethodGet, "/admin/keys", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	// 1. Issue a key
	resp, body := do(router, http.MethodPost, "/admin/keys", `{"email":"pilot@acme.io","tier":"pro"}`, true)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	issued := body["key"].(map[string]any)
	key := issued["key"].(string)
	assert.Equal(t, "pro", issued["tier"])
	assert.Equal(t, "admin", issued["origin"])
	assert.Equal(t, float64(50000), issued["quota"])

	// 2. List keys
	resp, body = do(router, http.MethodGet, "/admin/keys", "", true)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(1), body["count"])

	resp, body = do(router, http.MethodGet, "/admin/keys?tier=starter", "", true)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(0), body["count"])

	// 3. Get the key
	resp, body = do(router, http.MethodGet, "/admin/keys/"+key, "", true)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "active", body["key"].(map[string]any)["status"])

	// 4. Reset usage
	resp, body = do(router, http.MethodPost, "/admin/keys/"+key+"/reset", "", true)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(0), body["key"].(map[string]any)["pairs_pulled"])

	// 5. Revoke
	resp, body = do(router, http.MethodDelete, "/admin/keys/"+key, "", true)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "cancelled", body["key"].(map[string]any)["status"])

	resp, body = do(router, http.MethodGet, "/admin/keys?status=active", "", true)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(0), body["count"])

	// A cancelled key cannot be reset.
	resp, body = do(router, http.MethodPost, "/admin/keys/"+key+"/reset", "", true)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "key_cancelled", body["reason"])
}

func TestKeyHandlers_ErrorCases(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("issue with invalid body", func(t *testing.T) {
		router := setupTestRouter(new(MockKeys))
		resp, body := do(router, http.MethodPost, "/admin/keys", `{"email":"not-an-email","tier":"pro"}`, true)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "invalid_parameter", body["reason"])
	})

	t.Run("unknown key", func(t *testing.T) {
		router := setupTestRouter(setupRealManager(t))
		resp, body := do(router, http.MethodGet, "/admin/keys/sk_swarm_missing", "", true)
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, "not_found", body["reason"])

		resp, _ = do(router, http.MethodDelete, "/admin/keys/sk_swarm_missing", "", true)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		keys := new(MockKeys)
		keys.On("List", mock.Anything).Return(nil, apierr.StorageUnavailable(errors.New("db down")))
		router := setupTestRouter(keys)

		resp, body := do(router, http.MethodGet, "/admin/keys", "", true)
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.Equal(t, "storage_unavailable", body["reason"])
		keys.AssertExpectations(t)
	})

	t.Run("issue passes a manual session", func(t *testing.T) {
		keys := new(MockKeys)
		keys.On("Issue", mock.Anything, mock.MatchedBy(func(ev model.PaymentEvent) bool {
			return len(ev.SessionID) > len("manual_") && ev.SessionID[:7] == "manual_" && ev.Tier == "starter"
		})).Return(keymanager.IssueResult{Record: model.KeyRecord{Key: "sk_swarm_x", Tier: "starter"}, Created: true}, nil)
		router := setupTestRouter(keys)

		resp, _ := do(router, http.MethodPost, "/admin/keys", `{"email":"ops@acme.io","tier":"starter"}`, true)
		assert.Equal(t, http.StatusCreated, resp.Code)
		keys.AssertExpectations(t)
	})
}
