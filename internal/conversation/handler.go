package conversation

import (
	"encoding/json"
	"net/http"

	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Message handles POST /api/conversation/message.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" || req.BusinessID == "" {
		http.Error(w, "message and businessId are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ProcessMessage(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to process message", "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type clearRequest struct {
	BusinessID string `json:"businessId"`
	CustomerID string `json:"customerId,omitempty"`
}

// Clear handles POST /api/conversation/clear.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode clear request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.BusinessID == "" {
		http.Error(w, "businessId is required", http.StatusBadRequest)
		return
	}

	if err := h.service.Clear(r.Context(), req.BusinessID, req.CustomerID); err != nil {
		h.logger.Error("failed to clear conversation", "error", err)
		http.Error(w, "Failed to clear conversation", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// History handles GET /api/conversation/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("businessId")
	if businessID == "" {
		http.Error(w, "businessId is required", http.StatusBadRequest)
		return
	}
	customerID := r.URL.Query().Get("customerId")

	history, err := h.service.History(r.Context(), businessID, customerID)
	if err != nil {
		h.logger.Error("failed to load conversation history", "error", err)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"messages": history})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
