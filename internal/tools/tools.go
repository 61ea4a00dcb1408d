// Package tools exposes the narrow operations the reasoning loop may invoke
// during a conversation turn. Every tool returns a JSON-encoded string and
// never lets an error cross the boundary back into the loop.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avalon-labs/booking-ai-platform/internal/llm"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

var toolsTracer = otel.Tracer("booking.internal.tools")

var invocationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "booking",
		Subsystem: "tools",
		Name:      "invocations_total",
		Help:      "Tool invocations by tool name and outcome.",
	},
	[]string{"tool", "outcome"},
)

func init() {
	prometheus.MustRegister(invocationsTotal)
}

// RegisterMetrics registers the package metrics on a custom registry.
// The default registry is already populated at init time.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(invocationsTotal)
}

// Tool is one independently invocable operation. Invoke returns a JSON
// document; failures are encoded in the document, never returned as errors.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Invoke(ctx context.Context, input json.RawMessage) string
}

// Option adjusts tool construction.
type Option func(*toolBase)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(b *toolBase) { b.now = now }
}

type toolBase struct {
	logger *logging.Logger
	now    func() time.Time
}

func newToolBase(logger *logging.Logger, opts ...Option) toolBase {
	if logger == nil {
		logger = logging.Default()
	}
	b := toolBase{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Failure encodes a structured tool failure payload.
func Failure(code, message string) string {
	return mustMarshal(map[string]any{
		"success": false,
		"error":   code,
		"message": message,
	})
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// All tool payloads are built from plain maps and slices;
		// marshal cannot fail on them.
		return `{"success":false,"error":"encoding_failed","message":"internal error"}`
	}
	return string(b)
}

// Registry holds the tool set offered to the reasoning loop, preserving
// registration order for prompt stability.
type Registry struct {
	logger *logging.Logger
	order  []string
	tools  map[string]Tool
}

// NewRegistry builds a registry over the given tools.
func NewRegistry(logger *logging.Logger, toolSet ...Tool) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Registry{logger: logger, tools: make(map[string]Tool, len(toolSet))}
	for _, t := range toolSet {
		if _, dup := r.tools[t.Name()]; dup {
			panic("tools: duplicate tool name " + t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Specs returns the tool declarations in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return specs
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Invoke dispatches to the named tool. Unknown names and tool panics are
// converted into failure payloads so the loop always receives a document.
func (r *Registry) Invoke(ctx context.Context, name string, input json.RawMessage) (result string) {
	ctx, span := toolsTracer.Start(ctx, "tools.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			invocationsTotal.WithLabelValues(name, "panic").Inc()
			result = Failure("internal_error", "The tool failed unexpectedly. Please try again.")
		}
	}()

	t, ok := r.tools[name]
	if !ok {
		invocationsTotal.WithLabelValues(name, "unknown").Inc()
		return Failure("unknown_tool", "No tool named "+name+" is available.")
	}

	result = t.Invoke(ctx, input)
	outcome := "ok"
	if isFailurePayload(result) {
		outcome = "failed"
	}
	invocationsTotal.WithLabelValues(name, outcome).Inc()
	return result
}

func isFailurePayload(payload string) bool {
	var probe struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return false
	}
	if probe.Success != nil && !*probe.Success {
		return true
	}
	return probe.Error != ""
}
