package bookings

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository provides persistence for bookings. A durable implementation
// must preserve the same conflict-detection contract as the in-memory
// reference store: Save fails with ErrSlotConflict when a different
// non-cancelled booking already holds the slot.
type Repository interface {
	Save(ctx context.Context, booking *Booking) error
	FindByID(ctx context.Context, id string) (*Booking, error)
	FindByCustomerID(ctx context.Context, customerID string) ([]*Booking, error)
	FindByBusinessID(ctx context.Context, businessID string) ([]*Booking, error)
	// FindByBusinessDate returns non-cancelled bookings for the business on
	// the given YYYY-MM-DD day (UTC).
	FindByBusinessDate(ctx context.Context, businessID, date string) ([]*Booking, error)
}

// InMemoryRepository is the reference Repository used in development and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]*Booking
}

// NewInMemoryRepository creates an empty in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		bookings: make(map[string]*Booking),
	}
}

var _ Repository = (*InMemoryRepository)(nil)

// Save stores the booking, rejecting slot conflicts with other active bookings.
func (r *InMemoryRepository) Save(ctx context.Context, booking *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if booking.Active() {
		date, hhmm := booking.SlotKey()
		for _, existing := range r.bookings {
			if existing.ID == booking.ID || !existing.Active() {
				continue
			}
			if existing.BusinessID != booking.BusinessID {
				continue
			}
			d, t := existing.SlotKey()
			if d == date && t == hhmm {
				return ErrSlotConflict
			}
		}
	}

	clone := *booking
	r.bookings[booking.ID] = &clone
	return nil
}

// FindByID returns the booking or ErrNotFound.
func (r *InMemoryRepository) FindByID(ctx context.Context, id string) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *booking
	return &clone, nil
}

// FindByCustomerID returns all bookings for the customer, oldest first.
func (r *InMemoryRepository) FindByCustomerID(ctx context.Context, customerID string) ([]*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Booking
	for _, b := range r.bookings {
		if b.CustomerID == customerID {
			clone := *b
			out = append(out, &clone)
		}
	}
	sortByScheduledTime(out)
	return out, nil
}

// FindByBusinessID returns all bookings for the business, oldest first.
func (r *InMemoryRepository) FindByBusinessID(ctx context.Context, businessID string) ([]*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Booking
	for _, b := range r.bookings {
		if b.BusinessID == businessID {
			clone := *b
			out = append(out, &clone)
		}
	}
	sortByScheduledTime(out)
	return out, nil
}

// FindByBusinessDate returns non-cancelled bookings for the business on the given day.
func (r *InMemoryRepository) FindByBusinessDate(ctx context.Context, businessID, date string) ([]*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Booking
	for _, b := range r.bookings {
		if b.BusinessID != businessID || !b.Active() {
			continue
		}
		if b.ScheduledTime.UTC().Format("2006-01-02") == date {
			clone := *b
			out = append(out, &clone)
		}
	}
	sortByScheduledTime(out)
	return out, nil
}

func sortByScheduledTime(list []*Booking) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].ScheduledTime.Equal(list[j].ScheduledTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].ScheduledTime.Before(list[j].ScheduledTime)
	})
}

// ParseSlot combines a YYYY-MM-DD date and HH:mm time into a UTC timestamp.
func ParseSlot(date, hhmm string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04", date+" "+hhmm)
}
