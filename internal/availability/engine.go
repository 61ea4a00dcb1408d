package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avalon-labs/booking-ai-platform/internal/bookings"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

// ErrPastSlot indicates a confirm attempt for a time already in the past.
var ErrPastSlot = errors.New("availability: slot is in the past")

// ErrInvalidSlot indicates an unparseable or out-of-hours date/time.
var ErrInvalidSlot = errors.New("availability: invalid slot")

var availabilityTracer = otel.Tracer("booking.internal.availability")

var confirmTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "booking",
		Subsystem: "availability",
		Name:      "confirm_total",
		Help:      "Booking confirmation attempts by outcome",
	},
	[]string{"outcome"}, // outcome: confirmed, conflict, rejected, error
)

func init() {
	prometheus.MustRegister(confirmTotal)
}

// RegisterMetrics registers availability metrics with a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(confirmTotal)
}

// Hours describes a business's bookable day.
type Hours struct {
	Open         string // HH:mm, inclusive
	Close        string // HH:mm, exclusive
	SlotDuration time.Duration
}

// DefaultHours is the 09:00-18:00, 60-minute grid used when no
// business-specific configuration exists.
var DefaultHours = Hours{Open: "09:00", Close: "18:00", SlotDuration: time.Hour}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithHours overrides the default business hours.
func WithHours(hours Hours) EngineOption {
	return func(e *Engine) { e.hours = hours }
}

// WithNoise installs an availability noise policy. Use NoNoise in tests.
func WithNoise(filter NoiseFilter) EngineOption {
	return func(e *Engine) { e.noise = filter }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine owns bookable slots and is the single writer for conflict checks.
type Engine struct {
	repo   bookings.Repository
	hours  Hours
	noise  NoiseFilter
	logger *logging.Logger
	now    func() time.Time

	// mu makes check-then-insert atomic per process. Durable repositories
	// additionally enforce the slot constraint at the storage layer.
	mu sync.Mutex
}

// NewEngine builds an availability engine over the booking repository.
func NewEngine(repo bookings.Repository, logger *logging.Logger, opts ...EngineOption) *Engine {
	if repo == nil {
		panic("availability: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		repo:   repo,
		hours:  DefaultHours,
		noise:  NoNoise,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.noise == nil {
		e.noise = NoNoise
	}
	return e
}

// SlotsFor enumerates every HH:mm slot between open and close at the
// configured granularity.
func (e *Engine) SlotsFor(businessID, date string) []string {
	open, err1 := parseClock(e.hours.Open)
	close, err2 := parseClock(e.hours.Close)
	if err1 != nil || err2 != nil || !open.Before(close) {
		return nil
	}

	step := e.hours.SlotDuration
	if step <= 0 {
		step = time.Hour
	}

	var slots []string
	for t := open; t.Before(close); t = t.Add(step) {
		slots = append(slots, t.Format("15:04"))
	}
	return slots
}

// BookingsOn returns all non-cancelled bookings for the business on the day.
func (e *Engine) BookingsOn(ctx context.Context, businessID, date string) ([]*bookings.Booking, error) {
	return e.repo.FindByBusinessDate(ctx, businessID, date)
}

// AvailableSlots returns SlotsFor minus occupied slots, then applies the
// noise policy. Whenever any slot was free before filtering, at least three
// (or all, if fewer exist) survive it.
func (e *Engine) AvailableSlots(ctx context.Context, businessID, date string) ([]string, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.available_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.business_id", businessID),
		attribute.String("booking.date", date),
	)

	booked, err := e.BookingsOn(ctx, businessID, date)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: lookup bookings: %w", err)
	}

	taken := make(map[string]bool, len(booked))
	for _, b := range booked {
		_, hhmm := b.SlotKey()
		taken[hhmm] = true
	}

	var free []string
	for _, slot := range e.SlotsFor(businessID, date) {
		if !taken[slot] {
			free = append(free, slot)
		}
	}
	if len(free) == 0 {
		return nil, nil
	}

	filtered := e.noise(free)
	if min := minRemaining(len(free)); len(filtered) < min {
		filtered = free[:min]
	}
	return filtered, nil
}

// minRemaining is the noise-policy floor: never starve the caller below
// three slots when any were free.
func minRemaining(unfiltered int) int {
	if unfiltered < 3 {
		return unfiltered
	}
	return 3
}

// Confirm atomically checks the booking's slot and persists it. Exactly one
// of any set of concurrent attempts for the same slot succeeds; the rest
// fail with bookings.ErrSlotConflict.
func (e *Engine) Confirm(ctx context.Context, booking *bookings.Booking) (*bookings.Booking, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.confirm")
	defer span.End()

	if booking == nil {
		confirmTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: booking is nil", ErrInvalidSlot)
	}
	if booking.ScheduledTime.IsZero() {
		confirmTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: missing scheduled time", ErrInvalidSlot)
	}
	if booking.ScheduledTime.Before(e.now().UTC()) {
		confirmTotal.WithLabelValues("rejected").Inc()
		return nil, ErrPastSlot
	}

	date, hhmm := booking.SlotKey()
	span.SetAttributes(
		attribute.String("booking.business_id", booking.BusinessID),
		attribute.String("booking.date", date),
		attribute.String("booking.time", hhmm),
	)

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.repo.FindByBusinessDate(ctx, booking.BusinessID, date)
	if err != nil {
		confirmTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("availability: conflict check: %w", err)
	}
	for _, b := range existing {
		_, t := b.SlotKey()
		if t == hhmm && b.ID != booking.ID {
			confirmTotal.WithLabelValues("conflict").Inc()
			return nil, bookings.ErrSlotConflict
		}
	}

	stored := *booking
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := e.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Status = bookings.StatusConfirmed

	if err := e.repo.Save(ctx, &stored); err != nil {
		if errors.Is(err, bookings.ErrSlotConflict) {
			confirmTotal.WithLabelValues("conflict").Inc()
			return nil, err
		}
		confirmTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("availability: persist booking: %w", err)
	}

	confirmTotal.WithLabelValues("confirmed").Inc()
	e.logger.Info("booking confirmed",
		"booking_id", stored.ID,
		"business_id", stored.BusinessID,
		"slot", date+" "+hhmm,
	)
	return &stored, nil
}

func parseClock(hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSlot, hhmm)
	}
	return t, nil
}
