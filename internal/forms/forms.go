// Package forms forwards the site's lead forms to the team chat.
package forms

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"swarmgate/internal/apierr"
	"swarmgate/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Deliverer sends messages to the configured chat channels.
type Deliverer interface {
	Deliver(ctx context.Context, msg notify.Message) error
	Dispatch(msg notify.Message)
	Configured(channel notify.Channel) bool
}

type Handler struct {
	notifier Deliverer
	logger   *slog.Logger
}

func NewHandler(notifier Deliverer, logger *slog.Logger) *Handler {
	return &Handler{notifier: notifier, logger: logger.With("component", "forms")}
}

// Register mounts the form endpoints.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/contact", h.Contact)
	r.POST("/loi", h.LOI)
	r.POST("/rfp", h.RFP)
	r.POST("/sample-request", h.SampleRequest)
}

type contactForm struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Message string `json:"message" binding:"required"`
}

// Contact handles POST /api/contact. Delivery is synchronous so the visitor
// learns when no channel accepted the message.
func (h *Handler) Contact(c *gin.Context) {
	var form contactForm
	if err := c.ShouldBindJSON(&form); err != nil {
		apierr.Respond(c, bindError(err, "All fields required."))
		return
	}

	h.deliver(c, notify.Message{
		Channel: notify.ChannelLeads,
		Title:   "New Contact: swarmandbee.com",
		Color:   notify.ColorGold,
		Fields: []notify.Field{
			{Name: "Name", Value: form.Name, Inline: true},
			{Name: "Email", Value: form.Email, Inline: true},
			{Name: "IP", Value: c.ClientIP(), Inline: true},
			{Name: "Message", Value: form.Message},
		},
		Footer: "swarmandbee.com contact form",
	}, "Delivery failed. Try again.")
}

type loiForm struct {
	Company     string   `json:"company" binding:"required"`
	Name        string   `json:"name" binding:"required"`
	Email       string   `json:"email" binding:"required"`
	Phone       string   `json:"phone"`
	CompanyType string   `json:"companyType"`
	Tier        string   `json:"tier" binding:"required"`
	Specialties []string `json:"specialties"`
	Use         string   `json:"use"`
	BaseModel   string   `json:"baseModel"`
	Budget      string   `json:"budget"`
	Details     string   `json:"details"`
}

// LOI handles POST /api/loi.
func (h *Handler) LOI(c *gin.Context) {
	var form loiForm
	if err := c.ShouldBindJSON(&form); err != nil {
		apierr.Respond(c, bindError(err, "Required fields missing."))
		return
	}

	h.deliver(c, notify.Message{
		Channel: notify.ChannelLeads,
		Title:   "NEW LOI: Platinum Data License",
		Color:   notify.ColorGold,
		Fields: []notify.Field{
			{Name: "Company", Value: form.Company, Inline: true},
			{Name: "Contact", Value: contact(form.Name, form.Email, form.Phone), Inline: true},
			{Name: "Type", Value: orDefault(form.CompanyType, "Not specified"), Inline: true},
			{Name: "Tier", Value: form.Tier, Inline: true},
			{Name: "Budget", Value: orDefault(form.Budget, "Not specified"), Inline: true},
			{Name: "Use", Value: orDefault(form.Use, "Not specified"), Inline: true},
			{Name: "Specialties", Value: list(form.Specialties)},
			{Name: "Base Model", Value: orDefault(form.BaseModel, "Not specified"), Inline: true},
			{Name: "Details", Value: orDefault(form.Details, "None")},
			{Name: "IP", Value: c.ClientIP(), Inline: true},
		},
		Footer: "swarmandbee.com/loi",
	}, "Delivery failed.")
}

type rfpForm struct {
	Company      string   `json:"company" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Email        string   `json:"email" binding:"required"`
	Phone        string   `json:"phone"`
	ServiceType  string   `json:"serviceType" binding:"required"`
	UseCase      string   `json:"useCase" binding:"required"`
	Specialties  []string `json:"specialties"`
	BaseModel    string   `json:"baseModel"`
	Deployment   string   `json:"deployment"`
	Sovereignty  string   `json:"sovereignty"`
	Budget       string   `json:"budget"`
	Deliverables []string `json:"deliverables"`
	Details      string   `json:"details"`
}

// RFP handles POST /api/rfp.
func (h *Handler) RFP(c *gin.Context) {
	var form rfpForm
	if err := c.ShouldBindJSON(&form); err != nil {
		apierr.Respond(c, bindError(err, "Required fields missing."))
		return
	}

	h.deliver(c, notify.Message{
		Channel: notify.ChannelLeads,
		Title:   "NEW RFP: Managed Fine-Tuning",
		Color:   notify.ColorGreen,
		Fields: []notify.Field{
			{Name: "Company", Value: form.Company, Inline: true},
			{Name: "Contact", Value: contact(form.Name, form.Email, form.Phone), Inline: true},
			{Name: "Service", Value: form.ServiceType, Inline: true},
			{Name: "Budget", Value: orDefault(form.Budget, "Not specified"), Inline: true},
			{Name: "Base Model", Value: orDefault(form.BaseModel, "S&B Recommends"), Inline: true},
			{Name: "Deployment", Value: orDefault(form.Deployment, "Not specified"), Inline: true},
			{Name: "Sovereignty", Value: orDefault(form.Sovereignty, "No restriction"), Inline: true},
			{Name: "Specialties", Value: list(form.Specialties)},
			{Name: "Use Case", Value: form.UseCase},
			{Name: "Deliverables", Value: list(form.Deliverables)},
			{Name: "Details", Value: orDefault(form.Details, "None")},
			{Name: "IP", Value: c.ClientIP(), Inline: true},
		},
		Footer: "swarmandbee.com/rfp",
	}, "Delivery failed.")
}

type sampleRequestForm struct {
	Email    string `json:"email" binding:"required,email"`
	Vertical string `json:"vertical"`
	Company  string `json:"company"`
}

// SampleRequest handles POST /api/sample-request. The lead is logged in the
// background and the visitor is answered immediately.
func (h *Handler) SampleRequest(c *gin.Context) {
	var form sampleRequestForm
	if err := c.ShouldBindJSON(&form); err != nil {
		apierr.Respond(c, bindError(err, "Email required."))
		return
	}

	h.notifier.Dispatch(notify.Message{
		Channel: notify.ChannelLeads,
		Title:   "Dataset Lead: Sample Request",
		Color:   notify.ColorGold,
		Fields: []notify.Field{
			{Name: "Email", Value: form.Email, Inline: true},
			{Name: "Vertical", Value: orDefault(form.Vertical, "not specified"), Inline: true},
			{Name: "Company", Value: orDefault(form.Company, "not specified"), Inline: true},
			{Name: "IP", Value: c.ClientIP(), Inline: true},
			{Name: "Source", Value: "swarmandbee.com/datasets", Inline: true},
			{Name: "User-Agent", Value: truncate(orDefault(c.Request.UserAgent(), "unknown"), 256)},
		},
		Footer: "Dataset funnel: email capture",
	})
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Sample request received."})
}

func (h *Handler) deliver(c *gin.Context, msg notify.Message, failure string) {
	if !h.notifier.Configured(msg.Channel) {
		h.logger.Error("No delivery channel configured", "title", msg.Title)
		apierr.Respond(c, apierr.New(apierr.KindBackendUnavailable, apierr.ReasonNotConfigured, "Not configured."))
		return
	}
	if err := h.notifier.Deliver(c.Request.Context(), msg); err != nil {
		h.logger.Error("All delivery methods failed", "title", msg.Title, "error", err)
		apierr.Respond(c, apierr.Wrap(apierr.KindBackendUnavailable, apierr.ReasonDeliveryFailed, failure, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// bindError maps binding failures to the form's messages. A present but
// malformed email is reported separately from missing fields.
func bindError(err error, missing string) *apierr.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.BadRequest(apierr.ReasonInvalidParameter, "Invalid JSON body.")
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return apierr.BadRequest(apierr.ReasonMissingParameter, missing)
		}
	}
	return apierr.BadRequest(apierr.ReasonInvalidParameter, "Invalid email.").With("parameter", "email")
}

func contact(name, email, phone string) string {
	return name + "\n" + email + "\n" + orDefault(phone, "No phone")
}

func list(items []string) string {
	return orDefault(strings.Join(items, ", "), "Not specified")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
