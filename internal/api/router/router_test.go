package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalon-labs/booking-ai-platform/internal/availability"
	"github.com/avalon-labs/booking-ai-platform/internal/bookings"
	"github.com/avalon-labs/booking-ai-platform/internal/conversation"
	"github.com/avalon-labs/booking-ai-platform/internal/http/handlers"
	"github.com/avalon-labs/booking-ai-platform/internal/llm"
)

type echoService struct{}

func (echoService) ProcessMessage(_ context.Context, req conversation.MessageRequest) (*conversation.Response, error) {
	return &conversation.Response{Response: "echo: " + req.Message}, nil
}

func (echoService) Clear(context.Context, string, string) error { return nil }

func (echoService) History(context.Context, string, string) ([]llm.ChatMessage, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	repo := bookings.NewInMemoryRepository()
	engine := availability.NewEngine(repo, nil, availability.WithNoise(availability.NoNoise))

	return New(&Config{
		ConversationHandler: conversation.NewHandler(echoService{}, nil),
		AdminBookings:       handlers.NewAdminBookingsHandler(repo, engine, nil),
		AdminAuthSecret:     "test-secret",
	})
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestRouter_ConversationMessage(t *testing.T) {
	r := newTestRouter(t)

	body := `{"message": "hi", "businessId": "biz-1"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/conversation/message", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echo: hi")
}

func TestRouter_AdminRequiresJWT(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/bookings?businessId=biz-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	claims := jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/bookings?businessId=biz-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
