package entities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalon-labs/booking-ai-platform/internal/llm"
)

type fakeClient struct {
	response string
	err      error
	lastReq  llm.Request
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.response}, nil
}

func fixedNow() time.Time {
	return time.Date(2031, 5, 11, 9, 0, 0, 0, time.UTC)
}

func newTestExtractor(client llm.Client) *Extractor {
	return NewExtractor(client, nil, WithClock(fixedNow))
}

func TestExtract_ValidJSON(t *testing.T) {
	client := &fakeClient{
		response: `{"dates": ["2031-05-12"], "times": ["14:00"], "services": ["manicure"], "people": 2}`,
	}
	got := newTestExtractor(client).Extract(context.Background(), "Quiero reservar para mañana a las 2pm")

	assert.Equal(t, []string{"2031-05-12"}, got.Dates)
	assert.Contains(t, got.Times, "14:00")
	assert.Equal(t, []string{"manicure"}, got.Services)
	assert.Equal(t, 2, got.PartySize)
	assert.True(t, got.HasEntities())
}

func TestExtract_StripsMarkdownFencing(t *testing.T) {
	client := &fakeClient{
		response: "Sure! Here's the JSON:\n```json\n{\"dates\": [\"2031-05-12\"], \"times\": [], \"services\": []}\n```",
	}
	got := newTestExtractor(client).Extract(context.Background(), "tomorrow please")

	assert.Equal(t, []string{"2031-05-12"}, got.Dates)
	assert.Empty(t, got.Times)
}

func TestExtract_MalformedOutputsDegrade(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no json at all", "I could not find any booking details."},
		{"truncated object", `{"dates": ["2031-05-12"`},
		{"empty response", ""},
		{"bare array", `["2031-05-12"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{response: tt.response}
			got := newTestExtractor(client).Extract(context.Background(), "book me in")

			assert.False(t, got.HasEntities())
			assert.Empty(t, got.Dates)
			assert.Empty(t, got.Times)
			assert.Empty(t, got.Services)
		})
	}
}

func TestExtract_CoercesNonArrayFields(t *testing.T) {
	client := &fakeClient{
		response: `{"dates": "2031-05-12", "times": ["14:00"], "services": {"name": "massage"}, "people": -3}`,
	}
	got := newTestExtractor(client).Extract(context.Background(), "massage at 2")

	assert.Empty(t, got.Dates, "non-array dates coerce to empty")
	assert.Equal(t, []string{"14:00"}, got.Times)
	assert.Empty(t, got.Services)
	assert.Zero(t, got.PartySize, "non-positive people is dropped")
}

func TestExtract_DropsInvalidDateAndTimeShapes(t *testing.T) {
	client := &fakeClient{
		response: `{"dates": ["2031-05-12", "next tuesday"], "times": ["14:00", "2pm", "25:00"], "services": []}`,
	}
	got := newTestExtractor(client).Extract(context.Background(), "whenever")

	assert.Equal(t, []string{"2031-05-12"}, got.Dates)
	assert.Equal(t, []string{"14:00"}, got.Times)
}

func TestExtract_ClientErrorDegrades(t *testing.T) {
	client := &fakeClient{err: errors.New("timeout")}
	got := newTestExtractor(client).Extract(context.Background(), "book me in")

	assert.False(t, got.HasEntities())
}

func TestExtract_EmptyMessageSkipsLLM(t *testing.T) {
	client := &fakeClient{response: `{"dates":["2031-05-12"]}`}
	got := newTestExtractor(client).Extract(context.Background(), "   ")

	assert.False(t, got.HasEntities())
	assert.Empty(t, client.lastReq.Messages, "no completion call for empty input")
}

func TestExtract_PromptCarriesDateContext(t *testing.T) {
	client := &fakeClient{response: `{}`}
	newTestExtractor(client).Extract(context.Background(), "tomorrow at 2pm")

	require.Len(t, client.lastReq.Messages, 1)
	prompt := client.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "2031-05-11", "today")
	assert.Contains(t, prompt, "2031-05-12", "tomorrow")
}

func TestToMapRoundTrip(t *testing.T) {
	e := BookingEntities{
		Dates:     []string{"2031-05-12"},
		Times:     []string{"14:00"},
		Services:  []string{"haircut"},
		Location:  "downtown",
		PartySize: 3,
	}
	m := e.ToMap()

	assert.Equal(t, e.Dates, m["dates"])
	assert.Equal(t, e.Times, m["times"])
	assert.Equal(t, e.Services, m["services"])
	assert.Equal(t, "downtown", m["location"])
	assert.Equal(t, 3, m["people"])

	empty := Empty()
	assert.NotContains(t, empty.ToMap(), "location")
	assert.NotContains(t, empty.ToMap(), "people")
}
