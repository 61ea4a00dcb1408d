package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalon-labs/booking-ai-platform/internal/availability"
	"github.com/avalon-labs/booking-ai-platform/internal/bookings"
)

var testNow = time.Date(2031, 5, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*AdminBookingsHandler, *bookings.InMemoryRepository, *chi.Mux) {
	t.Helper()
	repo := bookings.NewInMemoryRepository()
	engine := availability.NewEngine(repo, nil,
		availability.WithClock(func() time.Time { return testNow }),
		availability.WithNoise(availability.NoNoise),
	)
	h := NewAdminBookingsHandler(repo, engine, nil)

	r := chi.NewRouter()
	r.Get("/admin/bookings", h.List)
	r.Get("/admin/bookings/{bookingID}", h.Get)
	r.Post("/admin/bookings/{bookingID}/cancel", h.Cancel)
	r.Get("/admin/availability", h.Availability)
	return h, repo, r
}

func seedBooking(t *testing.T, repo *bookings.InMemoryRepository, id, hhmm string) *bookings.Booking {
	t.Helper()
	scheduled, err := bookings.ParseSlot("2031-05-02", hhmm)
	require.NoError(t, err)
	b := &bookings.Booking{
		ID:            id,
		BusinessID:    "biz-1",
		CustomerID:    "cust-1",
		ScheduledTime: scheduled,
		Status:        bookings.StatusConfirmed,
	}
	require.NoError(t, repo.Save(context.Background(), b))
	return b
}

func TestAdminBookings_List(t *testing.T) {
	_, repo, r := newFixture(t)
	seedBooking(t, repo, "b1", "10:00")
	seedBooking(t, repo, "b2", "14:00")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/bookings?businessId=biz-1&date=2031-05-02", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Bookings []bookings.Booking `json:"bookings"`
		Count    int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestAdminBookings_ListRequiresBusiness(t *testing.T) {
	_, _, r := newFixture(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/bookings", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminBookings_Get(t *testing.T) {
	_, repo, r := newFixture(t)
	seedBooking(t, repo, "b1", "10:00")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/bookings/b1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/bookings/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBookings_CancelFreesSlot(t *testing.T) {
	_, repo, r := newFixture(t)
	seedBooking(t, repo, "b1", "10:00")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/bookings/b1/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := repo.FindByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCancelled, stored.Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/availability?businessId=biz-1&date=2031-05-02", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AvailableSlots []string `json:"availableSlots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.AvailableSlots, "10:00")
}

func TestAdminBookings_Availability(t *testing.T) {
	_, repo, r := newFixture(t)
	seedBooking(t, repo, "b1", "10:00")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/availability?businessId=biz-1&date=2031-05-02", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AllSlots       []string `json:"allSlots"`
		AvailableSlots []string `json:"availableSlots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.AllSlots, 9)
	assert.Len(t, resp.AvailableSlots, 8)
	assert.NotContains(t, resp.AvailableSlots, "10:00")
}
