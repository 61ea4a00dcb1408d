// Package notify delivers operator notifications for confirmed bookings.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/avalon-labs/booking-ai-platform/internal/conversation"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

// Service emails the business operator whenever a conversation turn confirms
// a booking.
type Service struct {
	email         EmailSender
	operatorEmail string
	logger        *logging.Logger
}

// NewService creates a notification service. A nil sender or empty operator
// address disables delivery; notifications are then logged and dropped.
func NewService(email EmailSender, operatorEmail string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:         email,
		operatorEmail: strings.TrimSpace(operatorEmail),
		logger:        logger,
	}
}

var _ conversation.BookingNotifier = (*Service)(nil)

// SendBookingConfirmation emails the operator about a newly confirmed
// booking.
func (s *Service) SendBookingConfirmation(ctx context.Context, confirmation conversation.BookingConfirmation) error {
	if s.email == nil || s.operatorEmail == "" {
		s.logger.Debug("notify: email delivery not configured, dropping confirmation",
			"booking_id", confirmation.BookingID)
		return nil
	}

	msg := EmailMessage{
		To:      s.operatorEmail,
		Subject: confirmationSubject(confirmation),
		Body:    confirmationBody(confirmation),
		HTML:    confirmationHTML(confirmation),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: booking confirmation: %w", err)
	}

	s.logger.Info("booking confirmation sent",
		"booking_id", confirmation.BookingID, "business_id", confirmation.BusinessID)
	return nil
}

func confirmationSubject(c conversation.BookingConfirmation) string {
	if c.Date != "" && c.Time != "" {
		return fmt.Sprintf("New booking confirmed for %s at %s", c.Date, c.Time)
	}
	return "New booking confirmed"
}

func confirmationBody(c conversation.BookingConfirmation) string {
	var b strings.Builder
	b.WriteString("A new booking was just confirmed.\n\n")
	fmt.Fprintf(&b, "Booking ID: %s\n", c.BookingID)
	fmt.Fprintf(&b, "Business:   %s\n", c.BusinessID)
	fmt.Fprintf(&b, "Customer:   %s\n", c.CustomerID)
	if c.Date != "" {
		fmt.Fprintf(&b, "Date:       %s\n", c.Date)
	}
	if c.Time != "" {
		fmt.Fprintf(&b, "Time:       %s\n", c.Time)
	}
	return b.String()
}

func confirmationHTML(c conversation.BookingConfirmation) string {
	var b strings.Builder
	b.WriteString("<p>A new booking was just confirmed.</p><ul>")
	fmt.Fprintf(&b, "<li><strong>Booking ID:</strong> %s</li>", html.EscapeString(c.BookingID))
	fmt.Fprintf(&b, "<li><strong>Business:</strong> %s</li>", html.EscapeString(c.BusinessID))
	fmt.Fprintf(&b, "<li><strong>Customer:</strong> %s</li>", html.EscapeString(c.CustomerID))
	if c.Date != "" {
		fmt.Fprintf(&b, "<li><strong>Date:</strong> %s</li>", html.EscapeString(c.Date))
	}
	if c.Time != "" {
		fmt.Fprintf(&b, "<li><strong>Time:</strong> %s</li>", html.EscapeString(c.Time))
	}
	b.WriteString("</ul>")
	return b.String()
}
