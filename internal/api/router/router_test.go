package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/lead-qualifier/internal/conversation"
	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/internal/extraction"
	"github.com/wolfman30/lead-qualifier/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/lead-qualifier/internal/http/middleware"
	"github.com/wolfman30/lead-qualifier/internal/leads"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

const testSecret = "admin-secret"

func newTestRouter(t *testing.T, secret string) (http.Handler, *leads.InMemoryRepository) {
	t.Helper()

	logger := logging.Default()
	repo := leads.NewInMemoryRepository()
	engine := conversation.NewEngine(
		conversation.NewMemoryStore(time.Second),
		events.NewMemoryGuard(time.Hour),
		extraction.NewHeuristicExtractor(),
		leads.NewEmitter(repo, logger),
		logger,
	)
	cfg := &Config{
		Logger:               logger,
		MessagesHandler:      handlers.NewMessagesHandler(engine, nil, logger),
		ConversationsHandler: handlers.NewConversationsHandler(engine, nil, logger),
		LeadsHandler:         leads.NewHandler(repo, logger),
		MetricsHandler:       http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
		AdminAuthSecret:      secret,
		RateLimiter:          httpmiddleware.NewRateLimiter(100, 100),
	}
	return New(cfg), repo
}

func do(t *testing.T, h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func adminToken(t *testing.T, scopes ...string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.AdminClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rr := do(t, router, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/metrics", "", "").Code)
}

func TestRouterConversationLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, "")
	sender := "whatsapp%3A%2B5215512345678"

	rr := do(t, router, http.MethodPost, "/v1/messages", `{"sender":"whatsapp:+5215512345678","text":"Hola, soy Ana y busco sofás","message_id":"SM1"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/admin/conversations/"+sender, "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var snap conversation.StatusSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Record.TurnCount)

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/admin/conversations/"+sender, "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/admin/conversations/"+sender, "", "").Code)
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router, repo := newTestRouter(t, testSecret)
	lead, err := repo.Create(context.Background(), &leads.CreateLeadRequest{Title: "Ana - sofás", Phone: "5215512345678", Source: leads.SourceWhatsApp})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/admin/leads/"+lead.ID, "", "").Code)

	rr := do(t, router, http.MethodGet, "/admin/leads/"+lead.ID, "", adminToken(t))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Ana - sofás")

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/v1/messages", `{"sender":"x","text":"hola"}`, "").Code,
		"message ingestion is not behind admin auth")
}

func TestRouterAdminResetNeedsWriteScope(t *testing.T) {
	router, _ := newTestRouter(t, testSecret)
	sender := "whatsapp%3A%2B5215512345678"

	rr := do(t, router, http.MethodPost, "/v1/messages", `{"sender":"whatsapp:+5215512345678","text":"Hola","message_id":"SM1"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodDelete, "/admin/conversations/"+sender, "", adminToken(t)).Code)
	assert.Equal(t, http.StatusNoContent,
		do(t, router, http.MethodDelete, "/admin/conversations/"+sender, "", adminToken(t, httpmiddleware.ScopeConversationsWrite)).Code)
}
