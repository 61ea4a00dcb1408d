package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/avalon-labs/booking-ai-platform/internal/llm"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

const classifierPrompt = `Classify the customer message into ONE intent. Respond with JSON only.

Intents:
- BOOKING: wants to schedule, reschedule, or confirm an appointment
- PRICE_QUERY: asks about prices, costs, or fees
- INFORMATION: asks about services, hours, location, or policies
- FOLLOW_UP: continues or references an earlier exchange
- OBJECTION_HANDLING: expresses doubt, hesitation, or a complaint
- UNKNOWN: none of the above

Message: %s

Respond with: {"intent": "<INTENT>", "confidence": <0.0-1.0>}`

var (
	// clockTimeRE matches explicit clock times: "14:00", "2pm", "9:30 AM".
	clockTimeRE = regexp.MustCompile(`(?i)\b(\d{1,2})(?::([0-5]\d))?\s*(am|pm)\b|\b([01]\d|2[0-3]):([0-5]\d)\b`)
	// dayWordRE matches day names and relative date words.
	dayWordRE = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|today|tomorrow|tonight|weekend|mañana)\b`)
	// priceRE matches money amounts; applied only to PRICE_QUERY messages.
	priceRE = regexp.MustCompile(`(?i)[$€£]\s?\d+(?:\.\d{2})?|\b\d+\s?(?:dollars|bucks|usd|eur|euros)\b`)
)

// Classifier maps raw messages to intents using the completion capability,
// supplemented by fast regex entity hints.
type Classifier struct {
	client llm.Client
	logger *logging.Logger
}

// NewClassifier builds an intent classifier over the given client.
func NewClassifier(client llm.Client, logger *logging.Logger) *Classifier {
	if client == nil {
		panic("intent: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{client: client, logger: logger}
}

// Classify scores the message against the taxonomy. Transport errors from
// the completion capability propagate so the caller can decide policy;
// malformed model output falls back to the first taxonomy entry with zero
// confidence instead of failing.
func (c *Classifier) Classify(ctx context.Context, message string) (Intent, error) {
	message = strings.TrimSpace(message)
	result := Intent{
		Type:           Taxonomy[0],
		Confidence:     0,
		SourceText:     message,
		HintedEntities: map[string][]string{},
	}
	if message == "" {
		result.Type = TypeUnknown
		return result, nil
	}

	prompt := fmt.Sprintf(classifierPrompt, message)
	resp, err := c.client.Complete(ctx, llm.Request{
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   60,
		Temperature: 0,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("intent: classification failed: %w", err)
	}

	if t, confidence, ok := parseClassification(resp.Text); ok {
		result.Type = t
		result.Confidence = confidence
	} else {
		c.logger.Warn("intent classifier returned malformed output, using fallback",
			"fallback", string(result.Type))
	}

	c.attachHints(&result, message)
	return result, nil
}

func parseClassification(raw string) (Type, float64, bool) {
	content := strings.TrimSpace(raw)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", 0, false
	}

	var decoded struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &decoded); err != nil {
		return "", 0, false
	}

	t := Type(strings.ToUpper(strings.TrimSpace(decoded.Intent)))
	if !validType(t) {
		return "", 0, false
	}

	confidence := decoded.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return t, confidence, true
}

// attachHints runs the regex supplement passes over the raw message.
func (c *Classifier) attachHints(result *Intent, message string) {
	if times := extractTimeHints(message); len(times) > 0 {
		result.HintedEntities["times"] = times
	}
	if dates := dayWordRE.FindAllString(strings.ToLower(message), -1); len(dates) > 0 {
		result.HintedEntities["dates"] = dedupe(dates)
	}
	if result.Type == TypePriceQuery {
		if prices := priceRE.FindAllString(message, -1); len(prices) > 0 {
			result.HintedEntities["prices"] = dedupe(prices)
		}
	}
}

// extractTimeHints normalizes clock-time mentions to HH:mm.
func extractTimeHints(message string) []string {
	var out []string
	for _, m := range clockTimeRE.FindAllStringSubmatch(message, -1) {
		var hhmm string
		switch {
		case m[3] != "": // hour with meridiem
			hhmm = to24Hour(m[1], m[2], strings.ToLower(m[3]))
		case m[4] != "": // already HH:mm
			hhmm = m[4] + ":" + m[5]
		}
		if hhmm != "" {
			out = append(out, hhmm)
		}
	}
	return dedupe(out)
}

func to24Hour(hourStr, minStr, ampm string) string {
	h := 0
	for _, c := range hourStr {
		h = h*10 + int(c-'0')
	}
	if h > 12 {
		return ""
	}
	m := 0
	if minStr != "" {
		for _, c := range minStr {
			m = m*10 + int(c-'0')
		}
	}
	if m > 59 {
		return ""
	}
	if ampm == "pm" && h != 12 {
		h += 12
	} else if ampm == "am" && h == 12 {
		h = 0
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
