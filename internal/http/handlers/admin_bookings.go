// Package handlers holds the admin HTTP surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avalon-labs/booking-ai-platform/internal/availability"
	"github.com/avalon-labs/booking-ai-platform/internal/bookings"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

// AdminBookingsHandler exposes booking inspection and management endpoints
// for business operators.
type AdminBookingsHandler struct {
	repo   bookings.Repository
	engine *availability.Engine
	logger *logging.Logger
}

// NewAdminBookingsHandler creates the admin bookings handler.
func NewAdminBookingsHandler(repo bookings.Repository, engine *availability.Engine, logger *logging.Logger) *AdminBookingsHandler {
	if repo == nil {
		panic("handlers: bookings repository cannot be nil")
	}
	if engine == nil {
		panic("handlers: availability engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminBookingsHandler{repo: repo, engine: engine, logger: logger}
}

// List handles GET /admin/bookings?businessId=...&date=YYYY-MM-DD.
// Date is optional; without it all bookings for the business are returned.
func (h *AdminBookingsHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("businessId")
	if businessID == "" {
		http.Error(w, "businessId is required", http.StatusBadRequest)
		return
	}

	var (
		found []*bookings.Booking
		err   error
	)
	if date := r.URL.Query().Get("date"); date != "" {
		if _, parseErr := time.Parse("2006-01-02", date); parseErr != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		found, err = h.repo.FindByBusinessDate(r.Context(), businessID, date)
	} else {
		found, err = h.repo.FindByBusinessID(r.Context(), businessID)
	}
	if err != nil {
		h.logger.Error("failed to list bookings", "business_id", businessID, "error", err)
		http.Error(w, "Failed to list bookings", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"bookings": found,
		"count":    len(found),
	})
}

// Get handles GET /admin/bookings/{bookingID}.
func (h *AdminBookingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	booking, err := h.repo.FindByID(r.Context(), bookingID)
	if errors.Is(err, bookings.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load booking", "booking_id", bookingID, "error", err)
		http.Error(w, "Failed to load booking", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, booking)
}

// Cancel handles POST /admin/bookings/{bookingID}/cancel. Cancelling frees
// the booking's slot for other customers.
func (h *AdminBookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	booking, err := h.repo.FindByID(r.Context(), bookingID)
	if errors.Is(err, bookings.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load booking", "booking_id", bookingID, "error", err)
		http.Error(w, "Failed to load booking", http.StatusInternalServerError)
		return
	}

	if booking.Status != bookings.StatusCancelled {
		booking.Status = bookings.StatusCancelled
		booking.UpdatedAt = time.Now().UTC()
		if err := h.repo.Save(r.Context(), booking); err != nil {
			h.logger.Error("failed to cancel booking", "booking_id", bookingID, "error", err)
			http.Error(w, "Failed to cancel booking", http.StatusInternalServerError)
			return
		}
		h.logger.Info("booking cancelled", "booking_id", bookingID, "business_id", booking.BusinessID)
	}

	h.writeJSON(w, http.StatusOK, booking)
}

// Availability handles GET /admin/availability?businessId=...&date=YYYY-MM-DD,
// showing the full grid next to the open slots.
func (h *AdminBookingsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("businessId")
	date := r.URL.Query().Get("date")
	if businessID == "" || date == "" {
		http.Error(w, "businessId and date are required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	open, err := h.engine.AvailableSlots(r.Context(), businessID, date)
	if err != nil {
		h.logger.Error("failed to compute availability", "business_id", businessID, "error", err)
		http.Error(w, "Failed to compute availability", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"date":           date,
		"allSlots":       h.engine.SlotsFor(businessID, date),
		"availableSlots": open,
	})
}

func (h *AdminBookingsHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
