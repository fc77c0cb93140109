package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthorized:       http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindBadRequest:         http.StatusBadRequest,
		KindNotFound:           http.StatusNotFound,
		KindPaymentRequired:    http.StatusPaymentRequired,
		KindUnprocessable:      http.StatusUnprocessableEntity,
		KindRateLimited:        http.StatusTooManyRequests,
		KindStorageUnavailable: http.StatusInternalServerError,
		KindBackendUnavailable: http.StatusBadGateway,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.Status(), kind.String())
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")
	e := From(fmt.Errorf("context: %w", cause))
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, ReasonInternal, e.Reason)
	assert.ErrorIs(t, e, cause)

	typed := Forbidden(ReasonQuotaExhausted, "Quota exhausted.")
	assert.Same(t, typed, From(fmt.Errorf("pull: %w", typed)))
	assert.True(t, Is(fmt.Errorf("pull: %w", typed), KindForbidden))
	assert.False(t, Is(cause, KindForbidden))
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Respond(c, Forbidden(ReasonQuotaExhausted, "Quota exhausted.").With("quota", 10).With("used", 10))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.True(t, c.IsAborted())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "quota_exhausted", body["reason"])
	assert.Equal(t, "Quota exhausted.", body["error"])
	assert.Equal(t, float64(10), body["quota"])
	assert.Equal(t, float64(10), body["used"])
}
