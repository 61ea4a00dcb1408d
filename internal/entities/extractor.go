package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avalon-labs/booking-ai-platform/internal/llm"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

const extractorPromptTemplate = `Extract booking details from the customer message below.
Today's date is %s.

Respond with ONLY a JSON object in this exact shape, no prose and no markdown:
{"dates": ["YYYY-MM-DD"], "times": ["HH:mm"], "services": ["service name"], "location": "optional", "people": 0}

Rules:
- Resolve relative dates against today's date: "tomorrow"/"mañana" on %s means %s.
- Convert 12-hour times to 24-hour: "2pm" means "14:00", "9:30am" means "09:30".
- Use empty arrays for anything not mentioned. Omit "location" and "people" when absent.

Examples:
Message: "Can I come in tomorrow at 2pm for a haircut?"
{"dates": ["%s"], "times": ["14:00"], "services": ["haircut"], "people": 1}

Message: "Do you have anything on 2031-06-03 in the morning for two of us?"
{"dates": ["2031-06-03"], "times": [], "services": [], "people": 2}

Customer message: %s`

// Extractor turns free text into BookingEntities via the completion
// capability. It never fails its caller: any internal problem degrades to
// an empty-but-valid entity set.
type Extractor struct {
	client llm.Client
	logger *logging.Logger
	now    func() time.Time
}

// ExtractorOption configures the extractor.
type ExtractorOption func(*Extractor)

// WithClock overrides the time source used to resolve relative dates.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor builds an entity extractor over the given client.
func NewExtractor(client llm.Client, logger *logging.Logger, opts ...ExtractorOption) *Extractor {
	if client == nil {
		panic("entities: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Extractor{
		client: client,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses booking entities out of the message. Extraction is best
// effort by design; the zero-entity result is always valid.
func (e *Extractor) Extract(ctx context.Context, message string) BookingEntities {
	message = strings.TrimSpace(message)
	if message == "" {
		return Empty()
	}

	today := e.now().UTC().Format("2006-01-02")
	tomorrow := e.now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	prompt := fmt.Sprintf(extractorPromptTemplate, today, today, tomorrow, tomorrow, message)

	resp, err := e.client.Complete(ctx, llm.Request{
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		e.logger.Warn("entity extraction degraded to empty result", "error", err)
		return Empty()
	}

	return parseEntities(resp.Text)
}

// parseEntities applies the lenient decode strategy: isolate the first JSON
// object, decode it, and coerce malformed fields rather than rejecting the
// whole result.
func parseEntities(raw string) BookingEntities {
	content := strings.TrimSpace(raw)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Empty()
	}
	content = content[start : end+1]

	var loose struct {
		Dates    json.RawMessage `json:"dates"`
		Times    json.RawMessage `json:"times"`
		Services json.RawMessage `json:"services"`
		Location string          `json:"location"`
		People   json.RawMessage `json:"people"`
	}
	if err := json.Unmarshal([]byte(content), &loose); err != nil {
		return Empty()
	}

	result := BookingEntities{
		Dates:    coerceStrings(loose.Dates),
		Times:    coerceStrings(loose.Times),
		Services: coerceStrings(loose.Services),
		Location: strings.TrimSpace(loose.Location),
		PartySize: func() int {
			var n int
			if err := json.Unmarshal(loose.People, &n); err == nil && n > 0 {
				return n
			}
			return 0
		}(),
	}
	return result.sanitize()
}

// coerceStrings decodes a JSON array of strings, treating anything else
// (missing field, bare string, object) as empty.
func coerceStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
