package dataapi

import (
	"net/http"
	"strconv"

	"swarmgate/internal/apierr"
	"swarmgate/internal/auth"
	"swarmgate/internal/metrics"
	"swarmgate/internal/partition"
	"swarmgate/internal/quota"

	"github.com/gin-gonic/gin"
)

// queryAlias returns the first non-empty query parameter among names.
func queryAlias(c *gin.Context, names ...string) string {
	for _, name := range names {
		if v := c.Query(name); v != "" {
			return v
		}
	}
	return ""
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.BadRequest(apierr.ReasonInvalidParameter, name+" must be an integer.").With("parameter", name)
	}
	return n, nil
}

func pullRequest(c *gin.Context) (partition.Request, error) {
	req := partition.Request{
		Category:    queryAlias(c, "category", "vault"),
		DataTier:    queryAlias(c, "data_tier", "tier"),
		SubCategory: queryAlias(c, "sub_category", "specialty"),
	}
	var err error
	if req.Limit, err = queryInt(c, "limit"); err != nil {
		return req, err
	}
	if req.Offset, err = queryInt(c, "offset"); err != nil {
		return req, err
	}
	return req, nil
}

// Pull handles GET /api/data/pull.
func (h *Handler) Pull(c *gin.Context) {
	ctx := c.Request.Context()
	token := auth.BearerToken(c)

	req, err := pullRequest(c)
	if err != nil {
		// Credentials are judged before parameters.
		if _, authErr := h.enforcer.Authenticate(ctx, token); authErr != nil {
			err = authErr
		}
		h.respondPullError(c, err)
		return
	}

	res, err := h.enforcer.Pull(ctx, token, req, c.ClientIP())
	if err != nil {
		h.respondPullError(c, err)
		return
	}

	page := res.Page
	metrics.PairsServed.Add(float64(page.Count()))
	body := gin.H{
		"ok":           true,
		"category":     page.Category,
		"data_tier":    page.DataTier,
		"sub_category": page.SubCategory,
		"total":        page.Total,
		"offset":       page.Offset,
		"limit":        page.Limit,
		"count":        page.Count(),
		"has_more":     page.HasMore,
		"records":      page.Records,
	}
	if res.Usage != nil {
		body["quota"] = res.Usage.Quota
		body["used"] = res.Usage.Used
		body["remaining"] = res.Usage.Remaining
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) respondPullError(c *gin.Context, err error) {
	e := apierr.From(err)
	if e.Kind == apierr.KindForbidden {
		metrics.PullsRefused.WithLabelValues(e.Reason).Inc()
	}
	if e.Kind == apierr.KindInternal || e.Kind == apierr.KindStorageUnavailable {
		h.logger.Error("Pull failed", "reason", e.Reason, "error", err)
	}
	apierr.Respond(c, e)
}

// KeyStatus handles GET /api/data/key. It reports the key's state without
// consuming quota.
func (h *Handler) KeyStatus(c *gin.Context) {
	principal, err := h.enforcer.Authenticate(c.Request.Context(), auth.BearerToken(c))
	if err != nil {
		e := apierr.From(err)
		if e.Kind == apierr.KindUnauthorized {
			e = e.With("valid", false)
		}
		apierr.Respond(c, e)
		return
	}

	if principal.Static {
		c.JSON(http.StatusOK, gin.H{
			"ok":           true,
			"valid":        true,
			"status":       "active",
			"tier":         "static",
			"quota":        nil,
			"pairs_pulled": 0,
			"remaining":    nil,
		})
		return
	}

	rec := principal.Record
	var remaining *int64
	if left, limited := rec.Remaining(); limited {
		remaining = &left
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"valid":        true,
		"status":       rec.Status,
		"tier":         rec.Tier,
		"quota":        rec.Quota,
		"pairs_pulled": rec.PairsPulled,
		"remaining":    remaining,
		"exhausted":    rec.Exhausted(),
		"created_at":   rec.CreatedAt,
		"last_renewal": rec.LastRenewal,
	})
}

var _ Enforcer = (*quota.Enforcer)(nil)
