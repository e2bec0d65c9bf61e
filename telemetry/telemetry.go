// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package telemetry bridges the structured log records the Worker and
// Recorders emit into otel spans and metric instruments, so an
// embedding application's existing tracing backend sees pulsegrid
// activity without the application wiring that up itself.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Level constants for the trace-grained and metric-grained slog records
// this package understands, below slog's own Debug level so they never
// show up in a default handler's output.
const (
	LevelTrace  slog.Level = -16
	LevelMetric slog.Level = -8

	TraceStart = "start"
	TraceEvent = "event"
	TraceEnd   = "end"

	MetricFloat64Counter   = "float64counter"
	MetricInt64Counter     = "int64counter"
	MetricFloat64Histogram = "float64histogram"
	MetricInt64Histogram   = "int64histogram"
)

type ctxKey int

const holderKey ctxKey = iota

// spanHolder is a mutable cell threaded through a context value. A
// context's values are immutable, so a TraceStart record's Handle call
// cannot hand a span back to the caller by returning a new context from
// inside slog.Logger.LogAttrs — but it CAN mutate the *spanHolder that
// SpanStart already stored on ctx before logging, and a later TraceEnd record's
// Handle call reads that same pointer back out. This is the mechanism
// the teacher's telemetry/handler.go uses (`common.Store`/`common.Get`);
// folded into one field here since this package already merged
// common+telemetry.
type spanHolder struct {
	span trace.Span
}

func store(ctx context.Context, h *spanHolder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

func load(ctx context.Context) (*spanHolder, bool) {
	h, ok := ctx.Value(holderKey).(*spanHolder)
	return h, ok
}

// SpanStart logs the LevelTrace/TraceStart record that a registered
// Handler turns into an opened otel span named name, and returns a
// derived context carrying the cell that span will be stashed in.
// Callers MUST use the returned context for the matching SpanEvent/
// SpanEnd calls — passing the original ctx through unchanged silently
// loses the span. Callers that never install a Handler still see this
// as an ordinary structured log line below slog.LevelDebug, so
// instrumentation is never load-bearing.
func SpanStart(ctx context.Context, name string, attrs ...slog.Attr) context.Context {
	ctx = store(ctx, &spanHolder{})
	slog.LogAttrs(ctx, LevelTrace, TraceStart, append(attrs, slog.String("path", name))...)
	return ctx
}

// SpanEvent logs an in-span event under the span opened by SpanStart.
// ctx must be the context SpanStart returned.
func SpanEvent(ctx context.Context, name string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, LevelTrace, TraceEvent, append(attrs, slog.String("path", name))...)
}

// SpanEnd logs the LevelTrace/TraceEnd record that closes the span
// opened by SpanStart. ctx must be the context SpanStart returned.
func SpanEnd(ctx context.Context, name string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, LevelTrace, TraceEnd, append(attrs, slog.String("path", name))...)
}

// Int64Counter logs a LevelMetric record that a registered Handler
// forwards to the otel Int64Counter instrument named name.
func Int64Counter(ctx context.Context, name string, value int64, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, LevelMetric, name, append(attrs, slog.Int64("value", value))...)
}

// Float64Histogram logs a LevelMetric record that a registered Handler
// forwards to the otel Float64Histogram instrument named name.
func Float64Histogram(ctx context.Context, name string, value float64, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, LevelMetric, name, append(attrs, slog.Float64("value", value))...)
}

type instrumentRecorder func(ctx context.Context, val attribute.KeyValue, opt metric.MeasurementOption)

// Handler is a slog.Handler that additionally understands LevelMetric
// records whose message names an otel instrument registered with
// WithFloat64Counter et al., forwarding the measurement to it, and
// LevelTrace records whose message is TraceStart/TraceEvent/TraceEnd,
// opening, annotating and closing otel spans.
type Handler interface {
	slog.Handler
	WithFloat64Counter(name string, x metric.Float64Counter)
	WithInt64Counter(name string, x metric.Int64Counter)
	WithFloat64Histogram(name string, x metric.Float64Histogram)
	WithInt64Histogram(name string, x metric.Int64Histogram)
}

type handler struct {
	passthrough slog.Handler
	tracer      trace.Tracer
	teeToLog    bool

	mu      sync.Mutex
	metrics map[string]instrumentRecorder
}

// New returns a Handler that tees telemetry-flavored records into tracer
// and into the instruments later registered with its WithX methods, and (when teeToLog is true) still passes every record
// through to logHandler. A nil logHandler defaults to a text handler on
// stderr at LevelTrace, matching the Worker's own verbosity.
func New(logHandler slog.Handler, tracer trace.Tracer, teeToLog bool) Handler {
	if logHandler == nil {
		logHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: LevelTrace})
	}

	return &handler{
		passthrough: logHandler,
		tracer:      tracer,
		teeToLog:    teeToLog,
		metrics:     map[string]instrumentRecorder{},
	}
}

func (h *handler) WithFloat64Counter(name string, x metric.Float64Counter) {
	h.register(name, func(ctx context.Context, val attribute.KeyValue, opt metric.MeasurementOption) {
		x.Add(ctx, val.Value.AsFloat64(), opt)
	})
}

func (h *handler) WithInt64Counter(name string, x metric.Int64Counter) {
	h.register(name, func(ctx context.Context, val attribute.KeyValue, opt metric.MeasurementOption) {
		x.Add(ctx, val.Value.AsInt64(), opt)
	})
}

func (h *handler) WithFloat64Histogram(name string, x metric.Float64Histogram) {
	h.register(name, func(ctx context.Context, val attribute.KeyValue, opt metric.MeasurementOption) {
		x.Record(ctx, val.Value.AsFloat64(), opt)
	})
}

func (h *handler) WithInt64Histogram(name string, x metric.Int64Histogram) {
	h.register(name, func(ctx context.Context, val attribute.KeyValue, opt metric.MeasurementOption) {
		x.Record(ctx, val.Value.AsInt64(), opt)
	})
}

func (h *handler) register(name string, r instrumentRecorder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics[name] = r
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.passthrough.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, record slog.Record) error {
	switch record.Level {
	case LevelTrace:
		h.handleTrace(ctx, record)
	case LevelMetric:
		h.handleMetric(ctx, record)
	}

	if h.teeToLog || (record.Level != LevelTrace && record.Level != LevelMetric) {
		return h.passthrough.Handle(ctx, record)
	}

	return nil
}

func (h *handler) handleTrace(ctx context.Context, record slog.Record) {
	holder, ok := load(ctx)
	if !ok {
		return
	}

	switch record.Message {
	case TraceStart:
		_, span := h.tracer.Start(ctx, spanNameOf(record))
		holder.span = span
	case TraceEnd:
		if holder.span != nil {
			holder.span.End()
		}
	case TraceEvent:
		if holder.span != nil {
			attrs := []attribute.KeyValue{}
			record.Attrs(func(a slog.Attr) bool {
				attrs = append(attrs, attribute.String(a.Key, a.Value.String()))
				return true
			})
			holder.span.AddEvent("event", trace.WithAttributes(attrs...))
		}
	}
}

func spanNameOf(record slog.Record) string {
	name := "pulsegrid"
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == "path" {
			name = a.Value.String()
			return false
		}
		return true
	})
	return name
}

func (h *handler) handleMetric(ctx context.Context, record slog.Record) {
	h.mu.Lock()
	rec, ok := h.metrics[record.Message]
	h.mu.Unlock()

	if !ok {
		return
	}

	record.Attrs(func(a slog.Attr) bool {
		rec(ctx, attribute.KeyValue{Key: attribute.Key(a.Key), Value: toOtelValue(a.Value)}, nil)
		return true
	})
}

func toOtelValue(v slog.Value) attribute.Value {
	switch v.Kind() {
	case slog.KindFloat64:
		return attribute.Float64Value(v.Float64())
	case slog.KindInt64:
		return attribute.Int64Value(v.Int64())
	default:
		return attribute.Float64Value(0)
	}
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{
		passthrough: h.passthrough.WithAttrs(attrs),
		tracer:      h.tracer,
		teeToLog:    h.teeToLog,
		metrics:     h.metrics,
	}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{
		passthrough: h.passthrough.WithGroup(name),
		tracer:      h.tracer,
		teeToLog:    h.teeToLog,
		metrics:     h.metrics,
	}
}
