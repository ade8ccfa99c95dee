// Package observability provides Prometheus metrics and lightweight span
// tracing for the expenditure core's operation surface.
//
// Spans are tracked in-memory without an external OTel SDK dependency: the
// API layer opens a span per mutating operation and the ring buffer keeps
// the recent history for inspection.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Metrics ────────────────────────────────────────────────────────────────

// ExpendituresCreated counts expenditure allocations.
var ExpendituresCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "escrowd_expenditures_created_total",
	Help: "Number of expenditures created.",
})

// ExpenditureTransitions counts lifecycle transitions by target state.
var ExpenditureTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "escrowd_expenditure_transitions_total",
	Help: "Lifecycle transitions by target status.",
}, []string{"status"})

// ClaimsPaid counts successful nonzero claims.
var ClaimsPaid = promauto.NewCounter(prometheus.CounterOpts{
	Name: "escrowd_claims_paid_total",
	Help: "Number of successful claims with a nonzero payout.",
})

// ClaimedValue accumulates net value delivered to recipients, by token.
var ClaimedValue = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "escrowd_claimed_value_total",
	Help: "Net value delivered to recipients at claim time.",
}, []string{"token"})

// FeeValue accumulates network fees collected, by token.
var FeeValue = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "escrowd_fee_value_total",
	Help: "Network fee value delivered to the fee collector.",
}, []string{"token"})

// OperationErrors counts failed operations by name.
var OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "escrowd_operation_errors_total",
	Help: "Failed mutating operations by name.",
}, []string{"operation"})

// OperationDuration observes wall time per mutating operation.
var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "escrowd_operation_duration_seconds",
	Help:    "Duration of mutating operations.",
	Buckets: prometheus.DefBuckets,
}, []string{"operation"})

// ─── Trace Spans ────────────────────────────────────────────────────────────

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span represents one traced operation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

type ctxKey int

const spanKey ctxKey = 0

// Tracer stores completed spans in a ring buffer.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
}

// NewTracer creates a tracer keeping up to maxSpans recent spans.
func NewTracer(maxSpans int) *Tracer {
	if maxSpans <= 0 {
		maxSpans = 10_000
	}
	return &Tracer{maxSpans: maxSpans}
}

// StartSpan begins a span, inheriting trace identity from any parent span
// on the context. The caller must call EndSpan.
func (t *Tracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	span := &Span{
		SpanID:    uuid.NewString(),
		Operation: operation,
		StartTime: time.Now(),
	}
	if parent, ok := ctx.Value(spanKey).(*Span); ok {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, spanKey, span), span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns up to limit recent spans, newest last.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	out := make([]Span, limit)
	copy(out, t.spans[len(t.spans)-limit:])
	return out
}
