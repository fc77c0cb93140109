package admin

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"swarmgate/internal/apierr"
	"swarmgate/internal/keymanager"
	"swarmgate/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Keys is the key lifecycle the admin endpoints drive.
type Keys interface {
	Issue(ctx context.Context, ev model.PaymentEvent) (keymanager.IssueResult, error)
	Status(ctx context.Context, key string) (*model.KeyRecord, error)
	List(ctx context.Context) ([]model.KeyRecord, error)
	Revoke(ctx context.Context, key string) (model.KeyRecord, error)
	Reset(ctx context.Context, key string) (model.KeyRecord, error)
}

type IssueRequest struct {
	Email string `json:"email" binding:"required,email"`
	Tier  string `json:"tier" binding:"required"`
}

type Handler struct {
	keys Keys
}

func NewHandler(keys Keys) *Handler {
	return &Handler{keys: keys}
}

// ListKeysHandler lists registry records, newest first. The status and tier
// query parameters filter the result.
func (h *Handler) ListKeysHandler(c *gin.Context) {
	records, err := h.keys.List(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	status, tier := c.Query("status"), c.Query("tier")
	out := make([]model.KeyRecord, 0, len(records))
	for _, rec := range records {
		if status != "" && string(rec.Status) != status {
			continue
		}
		if tier != "" && rec.Tier != tier {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(out), "keys": out})
}

// CreateKeyHandler issues a key without a payment, e.g. for a pilot customer.
func (h *Handler) CreateKeyHandler(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest(apierr.ReasonInvalidParameter, "email and tier are required."))
		return
	}

	res, err := h.keys.Issue(c.Request.Context(), model.PaymentEvent{
		SessionID: "manual_" + uuid.NewString(),
		Email:     strings.TrimSpace(req.Email),
		Tier:      req.Tier,
		Origin:    "admin",
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "key": res.Record})
}

func (h *Handler) GetKeyHandler(c *gin.Context) {
	rec, err := h.keys.Status(c.Request.Context(), c.Param("key"))
	if err != nil {
		if apierr.Is(err, apierr.KindUnauthorized) {
			err = apierr.NotFound(apierr.ReasonNotFound, "Key not found.")
		}
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "key": rec})
}

func (h *Handler) ResetKeyHandler(c *gin.Context) {
	rec, err := h.keys.Reset(c.Request.Context(), c.Param("key"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "key": rec})
}

func (h *Handler) RevokeKeyHandler(c *gin.Context) {
	rec, err := h.keys.Revoke(c.Request.Context(), c.Param("key"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "key": rec})
}

var _ Keys = (*keymanager.Manager)(nil)
