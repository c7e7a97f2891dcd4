// Package observability provides lightweight tracing and the Prometheus
// metrics of the ledger.
//
// This provides:
//   - Trace spans for every ledger operation (create → allocate → commit)
//   - Trace/span id propagation through context
//   - Ledger Prometheus metrics (creations, matched money, closures, rejections)
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans: in-process span tracking
// ═══════════════════════════════════════════════════════════════════════════

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
)

// Span represents a unit of work within a trace.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// SetAttr records an attribute on the span.
func (s *Span) SetAttr(key, value string) {
	if s == nil {
		return
	}
	if s.Attrs == nil {
		s.Attrs = make(map[string]string)
	}
	s.Attrs[key] = value
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent spans in a ring buffer for inspection
// through the admin API.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a new span with the given operation name.
// The returned context carries the new span as parent for nested spans.
// Callers must call EndSpan when done.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, *Span) {
	if t == nil || !t.enabled {
		return ctx, &Span{Operation: operation}
	}

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = generateID()
		ctx = WithTraceID(ctx, traceID)
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
	return WithSpanID(ctx, span.SpanID), span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		span.SetAttr("error", err.Error())
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, oldest first.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "fundbridge-trace-id"
	spanIDKey  contextKey = "fundbridge-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// TraceIDFromContext returns the trace ID carried by ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

func generateID() string {
	return uuid.NewString()
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Entity Metrics ─────────────────────────────────────────────────────────

// EntitiesCreated counts created entities by kind (target, contribution).
var EntitiesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "ledger",
	Name:      "entities_created_total",
	Help:      "Total ledger entities created by kind.",
}, []string{"kind"})

// EntitiesClosed counts entities that became fully invested, by kind.
var EntitiesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "ledger",
	Name:      "entities_closed_total",
	Help:      "Total ledger entities that became fully invested, by kind.",
}, []string{"kind"})

// TargetsDeleted counts deleted funding targets.
var TargetsDeleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "ledger",
	Name:      "targets_deleted_total",
	Help:      "Total funding targets deleted.",
})

// ─── Allocation Metrics ─────────────────────────────────────────────────────

// MatchedAmount counts money moved by allocation passes, by the kind of the
// entity that triggered the pass.
var MatchedAmount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "allocation",
	Name:      "matched_amount_total",
	Help:      "Total money matched by allocation passes, by triggering kind.",
}, []string{"trigger"})

// CounterpartsTouched records how many counterparts each pass filled.
var CounterpartsTouched = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "fundbridge",
	Subsystem: "allocation",
	Name:      "counterparts_touched",
	Help:      "Counterparts whose invested amount changed in one allocation pass.",
	Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50, 100},
})

// PassDuration records the wall time of a full allocate-and-commit pass.
var PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "fundbridge",
	Subsystem: "allocation",
	Name:      "pass_duration_seconds",
	Help:      "Duration of allocation passes including the store transaction.",
	Buckets:   prometheus.DefBuckets,
}, []string{"trigger"})

// ─── Error Metrics ──────────────────────────────────────────────────────────

// RequestsRejected counts validation-class rejections by reason.
var RequestsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "ledger",
	Name:      "requests_rejected_total",
	Help:      "Total rejected ledger requests by reason.",
}, []string{"reason"})

// InvariantViolations counts aborted passes caused by engine defects.
var InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "ledger",
	Name:      "invariant_violations_total",
	Help:      "Total transactions aborted because a ledger invariant was violated.",
})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})

// ─── HTTP Metrics ───────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fundbridge",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "API requests by route pattern and status code.",
}, []string{"route", "code"})

// HTTPDuration observes API latency by route pattern.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "fundbridge",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "API latency by route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})
