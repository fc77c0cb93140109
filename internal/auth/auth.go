// Package auth extracts client credentials and guards the admin endpoints.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"swarmgate/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// BearerToken returns the API key presented by the client: the bearer token
// of the Authorization header, or the X-API-Key header.
func BearerToken(c *gin.Context) string {
	if token := extractBearer(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(c.GetHeader("X-API-Key"))
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AdminAuthMiddleware requires HTTP basic auth with the configured admin
// credentials. A bcrypt PasswordHash takes precedence over a plain Password.
func AdminAuthMiddleware(cfg config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, password, hasAuth := c.Request.BasicAuth()
		if !hasAuth || !cfg.Enabled() || user != cfg.Username || !checkPassword(cfg, password) {
			c.Header("WWW-Authenticate", `Basic realm="Restricted"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Unauthorized", "reason": "unauthorized"})
			return
		}
		c.Next()
	}
}

func checkPassword(cfg config.AdminConfig, password string) bool {
	if cfg.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(cfg.Password), []byte(password)) == 1
}
