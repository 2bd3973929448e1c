package otlp

import (
	"context"
	"log/slog"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"brokle-tracehub/internal/engine"
	"brokle-tracehub/internal/tracedata"
)

// TraceHandler implements the OTLP TraceService gRPC contract, mapping
// each span to a Create span-event followed immediately by a Close
// (spec.md §6: "spans become a Create span-event at start_time/1000
// and a Close span-event at end_time/1000").
type TraceHandler struct {
	coltracepb.UnimplementedTraceServiceServer

	facade *engine.Facade
	logger *slog.Logger
}

func NewTraceHandler(facade *engine.Facade, logger *slog.Logger) *TraceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraceHandler{facade: facade, logger: logger}
}

func (h *TraceHandler) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	for _, rs := range req.GetResourceSpans() {
		resAttrs := attrsToMap(rs.GetResource().GetAttributes())
		res, err := h.facade.InsertResource(resAttrs)
		if err != nil {
			h.logger.Error("otlp: failed to insert resource", "error", err)
			continue
		}
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				h.ingestSpan(res.Key(), span)
			}
		}
	}
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

func (h *TraceHandler) ingestSpan(resourceKey tracedata.Timestamp, span *tracepb.Span) {
	id := otelSpanID(span.GetTraceId(), span.GetSpanId())
	var parent *tracedata.FullSpanId
	if len(span.GetParentSpanId()) > 0 {
		p := otelSpanID(span.GetTraceId(), span.GetParentSpanId())
		parent = &p
	}

	attrs := attrsToMap(span.GetAttributes())
	fields, residual := extractCodeFields(attrs)

	level := tracedata.LevelInfo
	if fields.Level != nil {
		level = *fields.Level
	}

	created := tracedata.Timestamp(span.GetStartTimeUnixNano() / 1000)
	_, err := h.facade.CreateSpan(created, tracedata.SpanIDOTel, tracedata.CreateSpanEvent{
		ResourceKey: resourceKey,
		ParentID:    parent,
		SpanID:      id,
		Name:        span.GetName(),
		Namespace:   fields.Namespace,
		Function:    fields.Function,
		Level:       level,
		FileName:    fields.File,
		FileLine:    fields.Line,
		FileColumn:  fields.Column,
		Attributes:  residual,
	})
	if err != nil {
		h.logger.Error("otlp: failed to create span", "error", err)
		return
	}

	closed := tracedata.Timestamp(span.GetEndTimeUnixNano() / 1000)
	if err := h.facade.CloseSpan(closed, id, tracedata.CloseSpanEvent{Busy: fields.BusyNanos}); err != nil {
		h.logger.Error("otlp: failed to close span", "error", err)
	}
}
