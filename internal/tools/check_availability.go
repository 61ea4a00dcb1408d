package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avalon-labs/booking-ai-platform/internal/availability"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

const defaultSlotMinutes = 60

// CheckAvailabilityTool reports the open slots for a business on a date.
// It is read-only and degrades to an empty slot list on engine failure.
type CheckAvailabilityTool struct {
	toolBase
	engine *availability.Engine
}

// NewCheckAvailabilityTool builds the check_availability tool.
func NewCheckAvailabilityTool(engine *availability.Engine, logger *logging.Logger, opts ...Option) *CheckAvailabilityTool {
	if engine == nil {
		panic("tools: availability engine cannot be nil")
	}
	return &CheckAvailabilityTool{toolBase: newToolBase(logger, opts...), engine: engine}
}

func (t *CheckAvailabilityTool) Name() string { return "check_availability" }

func (t *CheckAvailabilityTool) Description() string {
	return "Check which appointment slots are open for a business on a specific date. " +
		"Use this before suggesting or confirming any time."
}

func (t *CheckAvailabilityTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"business_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the business to check.",
			},
			"date": map[string]any{
				"type":        "string",
				"description": "Date to check, formatted YYYY-MM-DD.",
			},
			"duration": map[string]any{
				"type":        "integer",
				"description": "Requested appointment length in minutes. Optional.",
			},
		},
		"required": []string{"business_id", "date"},
	}
}

func (t *CheckAvailabilityTool) Invoke(ctx context.Context, input json.RawMessage) string {
	var args struct {
		BusinessID string `json:"business_id"`
		Date       string `json:"date"`
		Duration   int    `json:"duration"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return t.failed("", 0, "invalid_input", "Could not read the tool arguments.")
	}
	if args.Duration <= 0 {
		args.Duration = defaultSlotMinutes
	}
	if args.BusinessID == "" {
		return t.failed(args.Date, args.Duration, "missing_business", "A business id is required.")
	}
	if _, err := time.Parse("2006-01-02", args.Date); err != nil {
		return t.failed(args.Date, args.Duration, "invalid_date", "Dates must be formatted YYYY-MM-DD.")
	}

	slots, err := t.engine.AvailableSlots(ctx, args.BusinessID, args.Date)
	if err != nil {
		t.logger.Warn("availability lookup failed",
			"business_id", args.BusinessID, "date", args.Date, "error", err)
		return t.failed(args.Date, args.Duration, "availability_error", "Could not load availability for that date.")
	}
	if slots == nil {
		slots = []string{}
	}

	return mustMarshal(map[string]any{
		"date":           args.Date,
		"availableSlots": slots,
		"duration":       args.Duration,
		"count":          len(slots),
	})
}

func (t *CheckAvailabilityTool) failed(date string, duration int, code, message string) string {
	return mustMarshal(map[string]any{
		"date":           date,
		"availableSlots": []string{},
		"duration":       duration,
		"error":          code,
		"message":        message,
	})
}
