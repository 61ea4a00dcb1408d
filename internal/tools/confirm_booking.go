package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avalon-labs/booking-ai-platform/internal/availability"
	"github.com/avalon-labs/booking-ai-platform/internal/bookings"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

// ConfirmBookingTool creates a confirmed booking for an open slot. It is the
// only tool that mutates shared state.
type ConfirmBookingTool struct {
	toolBase
	engine *availability.Engine
}

// NewConfirmBookingTool builds the confirm_booking tool.
func NewConfirmBookingTool(engine *availability.Engine, logger *logging.Logger, opts ...Option) *ConfirmBookingTool {
	if engine == nil {
		panic("tools: availability engine cannot be nil")
	}
	return &ConfirmBookingTool{toolBase: newToolBase(logger, opts...), engine: engine}
}

func (t *ConfirmBookingTool) Name() string { return "confirm_booking" }

func (t *ConfirmBookingTool) Description() string {
	return "Confirm an appointment at a specific date and time. Only call this after " +
		"the customer has clearly agreed to the slot."
}

func (t *ConfirmBookingTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"business_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the business.",
			},
			"customer_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the customer booking the slot.",
			},
			"date": map[string]any{
				"type":        "string",
				"description": "Appointment date, YYYY-MM-DD.",
			},
			"time": map[string]any{
				"type":        "string",
				"description": "Appointment start time, HH:mm 24-hour.",
			},
			"service_type": map[string]any{
				"type":        "string",
				"description": "Requested service. Optional.",
			},
			"notes": map[string]any{
				"type":        "string",
				"description": "Anything the business should know. Optional.",
			},
		},
		"required": []string{"business_id", "customer_id", "date", "time"},
	}
}

func (t *ConfirmBookingTool) Invoke(ctx context.Context, input json.RawMessage) string {
	var args struct {
		BusinessID  string `json:"business_id"`
		CustomerID  string `json:"customer_id"`
		Date        string `json:"date"`
		Time        string `json:"time"`
		ServiceType string `json:"service_type"`
		Notes       string `json:"notes"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return Failure("invalid_input", "Could not read the booking arguments.")
	}
	if args.BusinessID == "" || args.CustomerID == "" {
		return Failure("missing_field", "Both a business id and a customer id are required.")
	}

	scheduled, err := bookings.ParseSlot(args.Date, args.Time)
	if err != nil {
		return Failure("invalid_datetime",
			"Dates must be YYYY-MM-DD and times must be HH:mm, for example 2031-05-02 and 14:00.")
	}

	booking := &bookings.Booking{
		BusinessID:    args.BusinessID,
		CustomerID:    args.CustomerID,
		ScheduledTime: scheduled,
		ServiceType:   args.ServiceType,
		Notes:         args.Notes,
		Status:        bookings.StatusPending,
	}

	stored, err := t.engine.Confirm(ctx, booking)
	switch {
	case errors.Is(err, availability.ErrPastSlot):
		return Failure("past_date", "That time has already passed. Please pick a future slot.")
	case errors.Is(err, availability.ErrInvalidSlot):
		return Failure("invalid_datetime", "That date and time could not be understood.")
	case errors.Is(err, bookings.ErrSlotConflict):
		return Failure("slot_conflict",
			fmt.Sprintf("The %s slot on %s was just taken. Would another time work?", args.Time, args.Date))
	case err != nil:
		t.logger.Error("booking confirmation failed",
			"business_id", args.BusinessID, "date", args.Date, "time", args.Time, "error", err)
		return Failure("internal_error", "Something went wrong confirming the booking. Please try again.")
	}

	date, hhmm := stored.SlotKey()
	out := map[string]any{
		"success":       true,
		"bookingId":     stored.ID,
		"status":        string(stored.Status),
		"scheduledTime": stored.ScheduledTime.UTC().Format(time.RFC3339),
		"date":          date,
		"time":          hhmm,
		"message":       fmt.Sprintf("Booking confirmed for %s at %s.", date, hhmm),
	}
	if stored.ServiceType != "" {
		out["serviceType"] = stored.ServiceType
	}
	return mustMarshal(out)
}
