package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avalon-labs/booking-ai-platform/internal/entities"
	"github.com/avalon-labs/booking-ai-platform/internal/intent"
	"github.com/avalon-labs/booking-ai-platform/internal/llm"
	"github.com/avalon-labs/booking-ai-platform/internal/tools"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

var conversationTracer = otel.Tracer("booking.internal.conversation")

const (
	defaultMaxToolRounds    = 5
	defaultClarifyThreshold = 0.7
	defaultMaxTokens        = 800

	apologyGeneric = "I'm sorry, something went wrong on my end. Could you try that again?"

	clarificationReply = "I want to make sure I help with the right thing. " +
		"Are you looking to book an appointment, or do you have a question about our services or prices?"

	exhaustedReply = "I'm sorry, I couldn't finish that just now. Could you rephrase or try again?"
)

// confirmedSlotRE recovers the slot from a confirmation message when the
// tool payload lacks explicit date/time fields.
var confirmedSlotRE = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}) at ([01]\d|2[0-3]):([0-5]\d)`)

type intentClassifier interface {
	Classify(ctx context.Context, message string) (intent.Intent, error)
}

// BookingConfirmation describes a booking a completed turn just confirmed.
type BookingConfirmation struct {
	BusinessID string
	CustomerID string
	BookingID  string
	Date       string
	Time       string
}

// BookingNotifier delivers out-of-band notifications after a turn confirms
// a booking. Delivery failures must not fail the turn.
type BookingNotifier interface {
	SendBookingConfirmation(ctx context.Context, confirmation BookingConfirmation) error
}

type entityExtractor interface {
	Extract(ctx context.Context, message string) entities.BookingEntities
}

// EngineConfig tunes the conversation engine.
type EngineConfig struct {
	Model            string
	MaxToolRounds    int
	ClarifyThreshold float64
	MaxTokens        int32
	Development      bool
}

// EngineOption adjusts engine construction.
type EngineOption func(*Engine)

// WithEngineClock overrides the clock, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithNotifier installs a notifier invoked after a turn confirms a booking.
func WithNotifier(notifier BookingNotifier) EngineOption {
	return func(e *Engine) { e.notifier = notifier }
}

// Engine is the conversation orchestrator: per turn it classifies intent,
// extracts entities, and runs the bounded tool-calling loop against the
// completion capability. A conversation has no terminal state; it stays
// usable until a collaborator clears its key.
type Engine struct {
	client     llm.Client
	classifier intentClassifier
	extractor  entityExtractor
	registry   *tools.Registry
	memory     MemoryStore
	notifier   BookingNotifier
	logger     *logging.Logger
	cfg        EngineConfig
	now        func() time.Time

	bindings sync.Map // lowercased business type -> cached system prompt
}

var _ Service = (*Engine)(nil)

// NewEngine wires the conversation engine.
func NewEngine(
	client llm.Client,
	classifier intentClassifier,
	extractor entityExtractor,
	registry *tools.Registry,
	memory MemoryStore,
	logger *logging.Logger,
	cfg EngineConfig,
	opts ...EngineOption,
) *Engine {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if classifier == nil {
		panic("conversation: classifier cannot be nil")
	}
	if extractor == nil {
		panic("conversation: extractor cannot be nil")
	}
	if registry == nil {
		panic("conversation: tool registry cannot be nil")
	}
	if memory == nil {
		panic("conversation: memory store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.ClarifyThreshold <= 0 {
		cfg.ClarifyThreshold = defaultClarifyThreshold
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	e := &Engine{
		client:     client,
		classifier: classifier,
		extractor:  extractor,
		registry:   registry,
		memory:     memory,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessMessage runs one conversation turn. Failures never propagate as
// errors to the caller: they degrade to an apology response and leave memory
// intact up to the last successfully recorded turn.
func (e *Engine) ProcessMessage(ctx context.Context, req MessageRequest) (resp *Response, err error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.process_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.business_id", req.BusinessID),
		attribute.String("conversation.business_type", req.BusinessType),
	)

	start := e.now()
	defer func() {
		turnDuration.Observe(e.now().Sub(start).Seconds())
		if rec := recover(); rec != nil {
			e.logger.Error("conversation turn panicked",
				"business_id", req.BusinessID, "panic", rec)
			turnsTotal.WithLabelValues("apologized").Inc()
			resp, err = e.apology(fmt.Errorf("panic: %v", rec)), nil
		}
	}()

	key := Key(req.BusinessID, req.CustomerID)
	log := e.logger.WithConversation(req.BusinessID, key)

	classified, classifyErr := e.classifier.Classify(ctx, req.Message)
	if classifyErr != nil {
		// Classification is advisory; the turn proceeds without it.
		log.Warn("intent classification unavailable, proceeding without intent", "error", classifyErr)
	} else {
		span.SetAttributes(attribute.String("conversation.intent", string(classified.Type)))
		if classified.NeedsClarification(e.cfg.ClarifyThreshold) {
			log.Info("clarification short-circuit",
				"intent", string(classified.Type), "confidence", classified.Confidence)
			turnsTotal.WithLabelValues("clarified").Inc()
			return e.recordedReply(ctx, key, req.Message, clarificationReply, nil), nil
		}
	}

	extracted := e.extractor.Extract(ctx, req.Message)

	history, loadErr := e.memory.Load(ctx, key)
	if loadErr != nil {
		log.Error("failed to load conversation history", "error", loadErr)
		turnsTotal.WithLabelValues("apologized").Inc()
		return e.apology(loadErr), nil
	}

	system := e.systemBlocks(req.BusinessType, extracted)
	messages := append(history, llm.ChatMessage{Role: llm.ChatRoleUser, Content: req.Message})

	final, records, loopErr := e.runToolLoop(ctx, req, system, messages)
	if loopErr != nil {
		log.Error("conversation turn failed", "error", loopErr)
		turnsTotal.WithLabelValues("apologized").Inc()
		return e.apology(loopErr), nil
	}

	out := e.recordedReply(ctx, key, req.Message, final, records)
	applyBookingOutcome(out, records)
	if out.BookingStatus == BookingStatusConfirmed {
		log.Info("turn confirmed a booking", "booking_id", out.BookingID)
		e.notifyConfirmation(ctx, req, out)
	}
	turnsTotal.WithLabelValues("completed").Inc()
	return out, nil
}

// Clear discards all retained history for the conversation key. The next
// turn under the same key behaves as first use.
func (e *Engine) Clear(ctx context.Context, businessID, customerID string) error {
	return e.memory.Clear(ctx, Key(businessID, customerID))
}

// History returns the retained transcript for the conversation key.
func (e *Engine) History(ctx context.Context, businessID, customerID string) ([]llm.ChatMessage, error) {
	return e.memory.Load(ctx, Key(businessID, customerID))
}

// InvalidateBinding drops the cached system prompt for a business type so
// the next turn rebuilds it.
func (e *Engine) InvalidateBinding(businessType string) {
	e.bindings.Delete(bindingKey(businessType))
}

// systemBlocks assembles the per-turn system prompt: the cached persona
// binding, fresh date context, and any entities already extracted.
func (e *Engine) systemBlocks(businessType string, extracted entities.BookingEntities) []string {
	key := bindingKey(businessType)
	cached, ok := e.bindings.Load(key)
	if !ok {
		cached, _ = e.bindings.LoadOrStore(key, systemPrompt(businessType))
	}
	blocks := []string{cached.(string), dateContext(e.now())}

	if extracted.HasEntities() {
		hints, err := json.Marshal(extracted.ToMap())
		if err == nil {
			blocks = append(blocks, "Details already mentioned by the customer: "+string(hints))
		}
	}
	return blocks
}

// runToolLoop drives the model until it produces a final assistant message
// or the round budget is exhausted.
func (e *Engine) runToolLoop(
	ctx context.Context,
	req MessageRequest,
	system []string,
	messages []llm.ChatMessage,
) (string, []ToolCallRecord, error) {
	var records []ToolCallRecord

	rounds := 0
	for {
		resp, err := e.client.Complete(ctx, llm.Request{
			Model:       e.cfg.Model,
			System:      system,
			Messages:    messages,
			Tools:       e.registry.Specs(),
			MaxTokens:   e.cfg.MaxTokens,
			Temperature: 0.4,
		})
		if err != nil {
			return "", records, fmt.Errorf("conversation: completion failed: %w", err)
		}

		if !resp.WantsTools() {
			toolRoundsPerTurn.Observe(float64(rounds))
			final := strings.TrimSpace(resp.Text)
			if final == "" {
				final = exhaustedReply
			}
			return final, records, nil
		}

		if rounds >= e.cfg.MaxToolRounds {
			e.logger.Warn("tool round budget exhausted",
				"business_id", req.BusinessID, "rounds", rounds)
			toolRoundsPerTurn.Observe(float64(rounds))
			final := strings.TrimSpace(resp.Text)
			if final == "" {
				final = exhaustedReply
			}
			return final, records, nil
		}
		rounds++

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			input := injectIdentity(call.Input, req.BusinessID, req.CustomerID)
			output := e.registry.Invoke(ctx, call.Name, input)
			records = append(records, ToolCallRecord{Name: call.Name, Input: input, Result: output})
			results = append(results, llm.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    output,
			})
		}

		messages = append(messages,
			llm.ChatMessage{Role: llm.ChatRoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls},
			llm.ChatMessage{Role: llm.ChatRoleTool, ToolResults: results},
		)
	}
}

// recordedReply appends the user turn and final assistant reply to memory
// and builds the response DTO. A memory write failure is logged but does not
// fail the turn.
func (e *Engine) recordedReply(ctx context.Context, key, userMessage, reply string, records []ToolCallRecord) *Response {
	history, err := e.memory.Load(ctx, key)
	if err == nil {
		history = append(history,
			llm.ChatMessage{Role: llm.ChatRoleUser, Content: userMessage},
			llm.ChatMessage{Role: llm.ChatRoleAssistant, Content: reply},
		)
		err = e.memory.Save(ctx, key, history)
	}
	if err != nil {
		e.logger.Warn("failed to record conversation turn", "key", key, "error", err)
	}

	return &Response{
		Response:  reply,
		ToolCalls: records,
		Timestamp: e.now().UTC(),
	}
}

// notifyConfirmation tells the configured notifier about a confirmed
// booking. Notification failures are logged and swallowed.
func (e *Engine) notifyConfirmation(ctx context.Context, req MessageRequest, resp *Response) {
	if e.notifier == nil {
		return
	}
	confirmation := BookingConfirmation{
		BusinessID: req.BusinessID,
		CustomerID: req.CustomerID,
		BookingID:  resp.BookingID,
	}
	if resp.BookingDetails != nil {
		confirmation.Date = resp.BookingDetails.Date
		confirmation.Time = resp.BookingDetails.Time
	}
	if err := e.notifier.SendBookingConfirmation(ctx, confirmation); err != nil {
		e.logger.Warn("booking confirmation notification failed",
			"booking_id", resp.BookingID, "error", err)
	}
}

func (e *Engine) apology(cause error) *Response {
	msg := apologyGeneric
	if e.cfg.Development && cause != nil {
		msg = fmt.Sprintf("I'm sorry, something went wrong on my end (%v). Could you try that again?", cause)
	}
	return &Response{Response: msg, Timestamp: e.now().UTC()}
}

type confirmOutcome struct {
	Success   bool   `json:"success"`
	BookingID string `json:"bookingId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Message   string `json:"message"`
}

// applyBookingOutcome scans the turn's tool invocations for a successful
// confirm_booking call and marks the response accordingly.
func applyBookingOutcome(resp *Response, records []ToolCallRecord) {
	for _, record := range records {
		if record.Name != "confirm_booking" {
			continue
		}
		var outcome confirmOutcome
		if err := json.Unmarshal([]byte(record.Result), &outcome); err != nil || !outcome.Success {
			continue
		}

		resp.BookingStatus = BookingStatusConfirmed
		resp.BookingID = outcome.BookingID
		resp.NextAction = NextActionSendConfirmation

		details := &BookingDetails{Date: outcome.Date, Time: outcome.Time}
		if details.Date == "" || details.Time == "" {
			if m := confirmedSlotRE.FindStringSubmatch(outcome.Message); m != nil {
				details.Date = m[1]
				details.Time = m[2] + ":" + m[3]
			}
		}
		if details.Date != "" || details.Time != "" {
			resp.BookingDetails = details
		}
	}
}

// injectIdentity fills business_id and customer_id into tool input when the
// model omitted them; the request is authoritative for both.
func injectIdentity(input json.RawMessage, businessID, customerID string) json.RawMessage {
	var args map[string]any
	if len(input) == 0 {
		args = map[string]any{}
	} else if err := json.Unmarshal(input, &args); err != nil {
		return input
	}

	if v, ok := args["business_id"].(string); !ok || v == "" {
		args["business_id"] = businessID
	}
	if v, ok := args["customer_id"].(string); !ok || v == "" {
		if customerID == "" {
			customerID = anonymousCustomer
		}
		args["customer_id"] = customerID
	}

	out, err := json.Marshal(args)
	if err != nil {
		return input
	}
	return out
}

func bindingKey(businessType string) string {
	key := strings.ToLower(strings.TrimSpace(businessType))
	if key == "" {
		return "default"
	}
	return key
}
