package medchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"swarmgate/internal/inference"
	"swarmgate/internal/logger"
	"swarmgate/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req inference.Request) (*inference.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inference.Response), args.Error(1)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingNotifier) Dispatch(msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingNotifier) last(t *testing.T) notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.msgs)
	return r.msgs[len(r.msgs)-1]
}

var fixedNow = time.Date(2026, 3, 1, 12, 30, 15, 0, time.UTC)

func setupHandler(backend Completer) (*gin.Engine, *recordingNotifier) {
	gin.SetMode(gin.TestMode)
	notifier := &recordingNotifier{}
	h := NewHandler(backend, notifier, logger.Discard())
	h.now = func() time.Time { return fixedNow }
	h.newID = func() string { return "task-1" }

	router := gin.New()
	router.POST("/api/ask-med", h.Ask)
	return router, notifier
}

func ask(router *gin.Engine, body string) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask-med", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestAskCompleted(t *testing.T) {
	backend := new(MockCompleter)
	router, notifier := setupHandler(backend)

	backend.On("Complete", mock.Anything, mock.MatchedBy(func(req inference.Request) bool {
		return req.Model == ModeVerified.Model() && req.MaxTokens == 2048 && req.Prompt == "What is HbA1c?" &&
			strings.Contains(req.System, "verified mode")
	})).Return(&inference.Response{
		Text:    "A glycated hemoglobin measure.",
		Model:   "Qwen/Qwen3-235B-A22B-Instruct-2507-tput",
		Backend: "together",
		Usage:   inference.Usage{PromptTokens: 10, CompletionTokens: 6, TotalTokens: 16},
	}, nil)

	w, body := ask(router, `{"prompt":"What is HbA1c?","mode":"verified"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "A glycated hemoglobin measure.", body["answer"])
	assert.Equal(t, "verified", body["mode"])

	flags := body["safety_flags"].(map[string]any)
	assert.Equal(t, false, flags["phi_detected"])
	assert.Equal(t, []any{}, flags["phi_types"])

	receipt := body["receipt"].(map[string]any)
	contentHash := sha256Hex("A glycated hemoglobin measure.")
	wantTask := sha256Hex("what is hba1c?|verified|swarm-med|Qwen/Qwen3-235B-A22B-Instruct-2507-tput|" + contentHash + "|2026-03-01T12:30")
	assert.Equal(t, "task-1", receipt["task_id"])
	assert.Equal(t, wantTask, receipt["task_hash"])
	assert.Equal(t, "completed", receipt["status"])
	assert.Equal(t, contentHash, receipt["content_hash"])
	assert.Equal(t, sha256Hex("what is hba1c?")[:16], receipt["prompt_hash"])
	assert.Equal(t, "together", receipt["backend"])
	assert.Equal(t, []any{"swarm-appliance", "swarm-med"}, receipt["agent_chain"])
	assert.Equal(t, float64(16), receipt["tokens"].(map[string]any)["total_tokens"])
	assert.Equal(t, "2026-03-01T12:30:15.000Z", receipt["timestamp"])
	assert.Equal(t, "0.0.10291827", receipt["operator"])

	msg := notifier.last(t)
	assert.Equal(t, "Ask SwarmMed: VERIFIED", msg.Title)
	assert.Equal(t, notify.ChannelLeads, msg.Channel)
	assert.Equal(t, notify.ColorPurple, msg.Color)
	assert.Equal(t, "Qwen3-235B-A22B-Instruct-2507-tput", msg.Fields[1].Value)
	backend.AssertExpectations(t)
}

func TestAskPHIBlocked(t *testing.T) {
	backend := new(MockCompleter)
	router, notifier := setupHandler(backend)

	w, body := ask(router, `{"prompt":"patient: John Smith, email john@example.com, has a cough","mode":"triage"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	assert.Equal(t, false, body["ok"])
	assert.Equal(t, true, body["blocked"])
	assert.Equal(t, "phi_detected", body["reason"])
	assert.Equal(t, []any{"email", "patient_name"}, body["phi_types"])
	assert.Equal(t, PHIBlockedMessage, body["message"])

	receipt := body["receipt"].(map[string]any)
	assert.Equal(t, "blocked", receipt["status"])
	assert.Equal(t, "swarm-med", receipt["agent"])
	assert.Equal(t, sha256Hex("patient: john smith, email john@example.com, has a cough|triage|phi_blocked"), receipt["task_hash"])

	assert.Equal(t, "Ask SwarmMed: PHI Blocked", notifier.last(t).Title)
	backend.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAskEmergency(t *testing.T) {
	backend := new(MockCompleter)
	router, notifier := setupHandler(backend)

	w, body := ask(router, `{"prompt":"I have crushing chest pain and can't breathe"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	assert.Equal(t, "emergency_trigger", body["reason"])
	assert.Equal(t, EmergencyMessage, body["message"])
	assert.Nil(t, body["phi_types"])
	flags := body["safety_flags"].(map[string]any)
	assert.Equal(t, true, flags["emergency"])

	receipt := body["receipt"].(map[string]any)
	assert.Equal(t, "emergency", receipt["status"])
	assert.Equal(t, sha256Hex("i have crushing chest pain and can't breathe|explain|emergency"), receipt["task_hash"])

	msg := notifier.last(t)
	assert.Equal(t, notify.ColorRed, msg.Color)
	backend.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAskValidation(t *testing.T) {
	router, _ := setupHandler(new(MockCompleter))

	w, body := ask(router, `{"prompt":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Prompt is required.", body["error"])

	w, body = ask(router, `{"prompt":"`+strings.Repeat("a", 2001)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Prompt too long. Maximum 2,000 characters.", body["error"])

	w, _ = ask(router, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskBackendFailure(t *testing.T) {
	backend := new(MockCompleter)
	router, notifier := setupHandler(backend)
	backend.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("no backend"))

	w, body := ask(router, `{"prompt":"What is a normal resting heart rate?"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "backend_unavailable", body["reason"])
	assert.Empty(t, notifier.msgs)
}
