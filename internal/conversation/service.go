// Package conversation runs the AI booking dialogue: it classifies the
// customer's intent, extracts booking entities, and drives the bounded
// tool-calling loop that produces each assistant reply.
package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avalon-labs/booking-ai-platform/internal/llm"
)

// Service describes how the conversation engine behaves.
type Service interface {
	ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error)
	Clear(ctx context.Context, businessID, customerID string) error
	History(ctx context.Context, businessID, customerID string) ([]llm.ChatMessage, error)
}

// MessageRequest is one inbound customer turn, transport-agnostic.
type MessageRequest struct {
	Message      string `json:"message"`
	BusinessID   string `json:"businessId"`
	CustomerID   string `json:"customerId,omitempty"`
	BusinessType string `json:"businessType,omitempty"`
}

// ToolCallRecord captures one tool invocation made during a turn.
type ToolCallRecord struct {
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Result string          `json:"result"`
}

// BookingDetails carries the slot extracted from a confirmed booking.
type BookingDetails struct {
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`
}

// Response is the outcome of a processed turn.
type Response struct {
	Response       string           `json:"response"`
	ToolCalls      []ToolCallRecord `json:"toolCalls,omitempty"`
	BookingStatus  string           `json:"bookingStatus,omitempty"`
	BookingID      string           `json:"bookingId,omitempty"`
	BookingDetails *BookingDetails  `json:"bookingDetails,omitempty"`
	NextAction     string           `json:"nextAction,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

const (
	// BookingStatusConfirmed marks a turn in which confirm_booking succeeded.
	BookingStatusConfirmed = "confirmed"
	// NextActionSendConfirmation signals collaborators to notify the customer.
	NextActionSendConfirmation = "send_confirmation"

	anonymousCustomer = "guest"
)

// Key derives the conversation key retention is scoped by.
func Key(businessID, customerID string) string {
	if customerID == "" {
		customerID = anonymousCustomer
	}
	return businessID + ":" + customerID
}
