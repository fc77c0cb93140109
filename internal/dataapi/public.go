package dataapi

import (
	"net/http"
	"strconv"

	"swarmgate/internal/apierr"
	"swarmgate/internal/notify"
	"swarmgate/internal/partition"

	"github.com/gin-gonic/gin"
)

// Catalog handles GET /api/data/catalog. The stored catalog is returned verbatim.
func (h *Handler) Catalog(c *gin.Context) {
	data, err := h.catalog.Catalog(c.Request.Context(), c.Query("vertical"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/json", data)
}

// Sample handles GET /api/data/sample.
func (h *Handler) Sample(c *gin.Context) {
	specialty := c.Query("specialty")
	res, err := h.catalog.Sample(c.Request.Context(), c.Query("vertical"), specialty)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	filter := specialty
	if filter == "" {
		filter = "all"
	}
	h.notifier.Dispatch(notify.Message{
		Channel: notify.ChannelData,
		Title:   "Data API: Sample Request",
		Color:   notify.ColorBlue,
		Fields: []notify.Field{
			{Name: "Vertical", Value: res.Vertical, Inline: true},
			{Name: "Specialty", Value: filter, Inline: true},
			{Name: "Returned", Value: strconv.Itoa(len(res.Pairs)), Inline: true},
			{Name: "IP", Value: c.ClientIP(), Inline: true},
			{Name: "User-Agent", Value: c.Request.UserAgent()},
		},
		Footer: "/api/data/sample",
	})

	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"vertical":         res.Vertical,
		"count":            len(res.Pairs),
		"specialty_filter": filter,
		"pairs":            res.Pairs,
	})
}

// Count handles GET /api/data/count. It never fails: the configured fallback
// counts are served when the ledger is unreadable.
func (h *Handler) Count(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, h.catalog.Counts(c.Request.Context()))
}

var _ Catalog = (*partition.Reader)(nil)
