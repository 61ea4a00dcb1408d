package bookings

import (
	"errors"
	"time"
)

// Status represents the lifecycle of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ErrNotFound indicates the requested booking does not exist.
var ErrNotFound = errors.New("bookings: booking not found")

// ErrSlotConflict indicates another non-cancelled booking already occupies the slot.
var ErrSlotConflict = errors.New("bookings: slot already booked")

// Booking is one confirmed or in-flight appointment. At most one
// non-cancelled booking may occupy a (businessID, date, HH:mm) slot.
type Booking struct {
	ID            string            `json:"id" dynamodbav:"id"`
	BusinessID    string            `json:"businessId" dynamodbav:"businessId"`
	CustomerID    string            `json:"customerId" dynamodbav:"customerId"`
	ScheduledTime time.Time         `json:"scheduledTime" dynamodbav:"scheduledTime"`
	Status        Status            `json:"status" dynamodbav:"status"`
	ServiceType   string            `json:"serviceType,omitempty" dynamodbav:"serviceType,omitempty"`
	Notes         string            `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt" dynamodbav:"updatedAt"`
}

// SlotKey returns the (date, time) pair identifying the booking's slot in UTC.
func (b *Booking) SlotKey() (date string, hhmm string) {
	t := b.ScheduledTime.UTC()
	return t.Format("2006-01-02"), t.Format("15:04")
}

// Active reports whether the booking still occupies its slot.
func (b *Booking) Active() bool {
	return b.Status != StatusCancelled
}
