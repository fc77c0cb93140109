package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/health", "GET", "204"))
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/health", "GET", "204")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("unmatched", "GET", "404")), 1.0)
}

func TestHandlerExposesCollectors(t *testing.T) {
	PairsServed.Add(3)
	AskOutcomes.WithLabelValues("completed").Inc()

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "swarmgate_pairs_served_total")
	assert.Contains(t, string(body), `swarmgate_ask_outcomes_total{outcome="completed"}`)
}
