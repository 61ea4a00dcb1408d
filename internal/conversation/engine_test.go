package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalon-labs/booking-ai-platform/internal/availability"
	"github.com/avalon-labs/booking-ai-platform/internal/bookings"
	"github.com/avalon-labs/booking-ai-platform/internal/entities"
	"github.com/avalon-labs/booking-ai-platform/internal/intent"
	"github.com/avalon-labs/booking-ai-platform/internal/llm"
	"github.com/avalon-labs/booking-ai-platform/internal/tools"
)

var testNow = time.Date(2031, 5, 1, 8, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// scriptedClient replays canned responses in order and records every request.
type scriptedClient struct {
	responses []llm.Response
	err       error
	requests  []llm.Request
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return llm.Response{}, c.err
	}
	if len(c.responses) == 0 {
		return llm.Response{Text: "ok"}, nil
	}
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return resp, nil
}

type stubClassifier struct {
	result intent.Intent
	err    error
	panics bool
}

func (s *stubClassifier) Classify(_ context.Context, message string) (intent.Intent, error) {
	if s.panics {
		panic("classifier exploded")
	}
	if s.err != nil {
		return intent.Intent{}, s.err
	}
	out := s.result
	out.SourceText = message
	return out, nil
}

type stubExtractor struct {
	result entities.BookingEntities
}

func (s *stubExtractor) Extract(context.Context, string) entities.BookingEntities {
	return s.result
}

type engineFixture struct {
	engine *Engine
	client *scriptedClient
	repo   *bookings.InMemoryRepository
	memory *InMemoryStore
}

func newEngineFixture(t *testing.T, classifier intentClassifier, extractor entityExtractor, client *scriptedClient, cfg EngineConfig, opts ...EngineOption) *engineFixture {
	t.Helper()
	repo := bookings.NewInMemoryRepository()
	availEngine := availability.NewEngine(repo, nil,
		availability.WithClock(fixedNow),
		availability.WithNoise(availability.NoNoise),
	)
	registry := tools.NewRegistry(nil,
		tools.NewCheckAvailabilityTool(availEngine, nil),
		tools.NewSuggestTimesTool(availEngine, nil, tools.WithNow(fixedNow)),
		tools.NewConfirmBookingTool(availEngine, nil),
	)
	memory := NewInMemoryStore()

	if classifier == nil {
		classifier = &stubClassifier{result: intent.Intent{Type: intent.TypeBooking, Confidence: 0.9}}
	}
	if extractor == nil {
		extractor = &stubExtractor{}
	}

	return &engineFixture{
		engine: NewEngine(client, classifier, extractor, registry, memory, nil, cfg,
			append([]EngineOption{WithEngineClock(fixedNow)}, opts...)...),
		client: client,
		repo:   repo,
		memory: memory,
	}
}

func bookingTurn() MessageRequest {
	return MessageRequest{
		Message:      "Can I book tomorrow at 2pm?",
		BusinessID:   "biz-1",
		CustomerID:   "cust-1",
		BusinessType: "salon",
	}
}

func TestProcessMessage_PlainReply(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{{Text: "We have openings tomorrow!"}}}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{})

	resp, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	assert.Equal(t, "We have openings tomorrow!", resp.Response)
	assert.Empty(t, resp.ToolCalls)
	assert.Empty(t, resp.BookingStatus)

	history, err := f.engine.History(context.Background(), "biz-1", "cust-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, llm.ChatRoleUser, history[0].Role)
	assert.Equal(t, llm.ChatRoleAssistant, history[1].Role)
}

func TestProcessMessage_ClarificationShortCircuit(t *testing.T) {
	client := &scriptedClient{}
	classifier := &stubClassifier{result: intent.Intent{Type: intent.TypeInformation, Confidence: 0.6}}
	f := newEngineFixture(t, classifier, nil, client, EngineConfig{})

	req := bookingTurn()
	req.Message = "What is your address?"
	resp, err := f.engine.ProcessMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, clarificationReply, resp.Response)
	assert.Empty(t, client.requests, "clarification must not reach the completion capability")

	history, err := f.engine.History(context.Background(), "biz-1", "cust-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "What is your address?", history[0].Content)
}

func TestProcessMessage_ConfirmedBookingOutcome(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{
			StopReason: llm.StopReasonToolUse,
			ToolCalls: []llm.ToolCall{{
				ID:    "t1",
				Name:  "confirm_booking",
				Input: json.RawMessage(`{"date": "2031-05-02", "time": "14:00"}`),
			}},
		},
		{Text: "You're all set for May 2nd at 2pm!"},
	}}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{})

	resp, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	assert.Equal(t, "You're all set for May 2nd at 2pm!", resp.Response)
	assert.Equal(t, BookingStatusConfirmed, resp.BookingStatus)
	assert.NotEmpty(t, resp.BookingID)
	assert.Equal(t, NextActionSendConfirmation, resp.NextAction)
	require.NotNil(t, resp.BookingDetails)
	assert.Equal(t, "2031-05-02", resp.BookingDetails.Date)
	assert.Equal(t, "14:00", resp.BookingDetails.Time)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "confirm_booking", resp.ToolCalls[0].Name)

	// business and customer identity come from the request, not the model
	stored, err := f.repo.FindByBusinessID(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "cust-1", stored[0].CustomerID)
	assert.Equal(t, bookings.StatusConfirmed, stored[0].Status)
}

type captureNotifier struct {
	confirmations []BookingConfirmation
	err           error
}

func (n *captureNotifier) SendBookingConfirmation(_ context.Context, c BookingConfirmation) error {
	n.confirmations = append(n.confirmations, c)
	return n.err
}

func TestProcessMessage_NotifierReceivesConfirmation(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{
			StopReason: llm.StopReasonToolUse,
			ToolCalls: []llm.ToolCall{{
				ID:    "t1",
				Name:  "confirm_booking",
				Input: json.RawMessage(`{"date": "2031-05-02", "time": "14:00"}`),
			}},
		},
		{Text: "Booked!"},
	}}
	notifier := &captureNotifier{}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{}, WithNotifier(notifier))

	resp, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	require.Len(t, notifier.confirmations, 1)

	got := notifier.confirmations[0]
	assert.Equal(t, "biz-1", got.BusinessID)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, resp.BookingID, got.BookingID)
	assert.Equal(t, "2031-05-02", got.Date)
	assert.Equal(t, "14:00", got.Time)
}

func TestProcessMessage_NotifierFailureDoesNotFailTurn(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{
			StopReason: llm.StopReasonToolUse,
			ToolCalls: []llm.ToolCall{{
				ID:    "t1",
				Name:  "confirm_booking",
				Input: json.RawMessage(`{"date": "2031-05-02", "time": "14:00"}`),
			}},
		},
		{Text: "Booked!"},
	}}
	notifier := &captureNotifier{err: errors.New("mail server down")}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{}, WithNotifier(notifier))

	resp, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	assert.Equal(t, BookingStatusConfirmed, resp.BookingStatus)
	assert.Equal(t, "Booked!", resp.Response)
}

func TestProcessMessage_ToolRoundBudget(t *testing.T) {
	toolUse := llm.Response{
		StopReason: llm.StopReasonToolUse,
		ToolCalls: []llm.ToolCall{{
			ID:    "t1",
			Name:  "check_availability",
			Input: json.RawMessage(`{"date": "2031-05-02"}`),
		}},
	}
	client := &scriptedClient{responses: []llm.Response{toolUse}}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{MaxToolRounds: 2})

	resp, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	assert.Equal(t, exhaustedReply, resp.Response)
	assert.Len(t, client.requests, 3, "initial call plus two tool rounds")
	assert.Len(t, resp.ToolCalls, 2)
}

func TestProcessMessage_CompletionFailureApologizes(t *testing.T) {
	client := &scriptedClient{err: errors.New("model unavailable")}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{})

	resp, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	assert.Equal(t, apologyGeneric, resp.Response)

	history, err := f.engine.History(context.Background(), "biz-1", "cust-1")
	require.NoError(t, err)
	assert.Empty(t, history, "failed turns must not corrupt memory")
}

func TestProcessMessage_PanicRecovered(t *testing.T) {
	client := &scriptedClient{}
	classifier := &stubClassifier{panics: true}
	f := newEngineFixture(t, classifier, nil, client, EngineConfig{Development: true})

	resp, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	assert.Contains(t, resp.Response, "I'm sorry")
	assert.Contains(t, resp.Response, "classifier exploded")
}

func TestProcessMessage_ClassificationErrorProceeds(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{{Text: "Happy to help!"}}}
	classifier := &stubClassifier{err: errors.New("timeout")}
	f := newEngineFixture(t, classifier, nil, client, EngineConfig{})

	resp, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	assert.Equal(t, "Happy to help!", resp.Response)
	assert.Len(t, client.requests, 1)
}

func TestProcessMessage_SystemIncludesDateContextAndEntities(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{{Text: "ok"}}}
	extractor := &stubExtractor{result: entities.BookingEntities{
		Dates: []string{"2031-05-02"},
		Times: []string{"14:00"},
	}}
	f := newEngineFixture(t, nil, extractor, client, EngineConfig{})

	_, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	system := strings.Join(client.requests[0].System, "\n")
	assert.Contains(t, system, "salon")
	assert.Contains(t, system, "Today is Thursday, 2031-05-01")
	assert.Contains(t, system, "Tomorrow is Friday, 2031-05-02")
	assert.Contains(t, system, "Details already mentioned")
	assert.Contains(t, system, "2031-05-02")
}

func TestClear_NextTurnHasNoHistory(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{{Text: "first"}, {Text: "second"}}}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{})

	_, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)

	require.NoError(t, f.engine.Clear(context.Background(), "biz-1", "cust-1"))
	history, err := f.engine.History(context.Background(), "biz-1", "cust-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	last := client.requests[len(client.requests)-1]
	assert.Len(t, last.Messages, 1, "cleared conversations start from scratch")
}

func TestProcessMessage_DistinctKeysAreIsolated(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{{Text: "hi"}}}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{})

	req := bookingTurn()
	_, err := f.engine.ProcessMessage(context.Background(), req)
	require.NoError(t, err)

	other, err := f.engine.History(context.Background(), "biz-1", "someone-else")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestInvalidateBinding(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{{Text: "a"}}}
	f := newEngineFixture(t, nil, nil, client, EngineConfig{})

	_, err := f.engine.ProcessMessage(context.Background(), bookingTurn())
	require.NoError(t, err)
	_, ok := f.engine.bindings.Load("salon")
	assert.True(t, ok)

	f.engine.InvalidateBinding("salon")
	_, ok = f.engine.bindings.Load("salon")
	assert.False(t, ok)
}
