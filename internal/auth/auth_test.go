package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"swarmgate/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"no headers", nil, ""},
		{"bearer", map[string]string{"Authorization": "Bearer sk_swarm_abc"}, "sk_swarm_abc"},
		{"lowercase scheme", map[string]string{"Authorization": "bearer  sk_swarm_abc "}, "sk_swarm_abc"},
		{"basic is ignored", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, ""},
		{"x-api-key", map[string]string{"X-API-Key": "sk_swarm_xyz"}, "sk_swarm_xyz"},
		{"bearer wins", map[string]string{"Authorization": "Bearer a", "X-API-Key": "b"}, "a"},
		{"falls back to x-api-key", map[string]string{"Authorization": "Token a", "X-API-Key": "b"}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, BearerToken(c))
		})
	}
}

func serveAdmin(cfg config.AdminConfig, user, password string, withAuth bool) int {
	router := gin.New()
	router.Use(AdminAuthMiddleware(cfg))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if withAuth {
		req.SetBasicAuth(user, password)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr.Code
}

func TestAdminAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	plain := config.AdminConfig{Username: "admin", Password: "secret"}
	assert.Equal(t, http.StatusUnauthorized, serveAdmin(plain, "", "", false))
	assert.Equal(t, http.StatusUnauthorized, serveAdmin(plain, "admin", "wrong", true))
	assert.Equal(t, http.StatusUnauthorized, serveAdmin(plain, "root", "secret", true))
	assert.Equal(t, http.StatusOK, serveAdmin(plain, "admin", "secret", true))

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	hashed := config.AdminConfig{Username: "ops", Password: "ignored", PasswordHash: string(hash)}
	assert.Equal(t, http.StatusOK, serveAdmin(hashed, "ops", "hashed-secret", true))
	assert.Equal(t, http.StatusUnauthorized, serveAdmin(hashed, "ops", "ignored", true))

	disabled := config.AdminConfig{Username: "admin"}
	assert.Equal(t, http.StatusUnauthorized, serveAdmin(disabled, "admin", "", true))
}
