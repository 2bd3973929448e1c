package otlp

import (
	"context"
	"log/slog"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"brokle-tracehub/internal/engine"
	"brokle-tracehub/internal/tracedata"
)

// LogsHandler implements the OTLP LogsService gRPC contract; every log
// record becomes an event (spec.md §6: "Logs become events (timestamp
// from time_unix_nano/1000 or fall back to the observed or current
// time)").
type LogsHandler struct {
	collogspb.UnimplementedLogsServiceServer

	facade *engine.Facade
	logger *slog.Logger
}

func NewLogsHandler(facade *engine.Facade, logger *slog.Logger) *LogsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogsHandler{facade: facade, logger: logger}
}

func (h *LogsHandler) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	for _, rl := range req.GetResourceLogs() {
		resAttrs := attrsToMap(rl.GetResource().GetAttributes())
		res, err := h.facade.InsertResource(resAttrs)
		if err != nil {
			h.logger.Error("otlp: failed to insert resource", "error", err)
			continue
		}
		for _, sl := range rl.GetScopeLogs() {
			for _, rec := range sl.GetLogRecords() {
				h.ingestLogRecord(res.Key(), rec)
			}
		}
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

func (h *LogsHandler) ingestLogRecord(resourceKey tracedata.Timestamp, rec *logspb.LogRecord) {
	attrs := attrsToMap(rec.GetAttributes())
	fields, residual := extractCodeFields(attrs)

	level := tracedata.LevelFromOTelSeverity(int32(rec.GetSeverityNumber()))
	if fields.Level != nil {
		level = *fields.Level
	}

	ts := rec.GetTimeUnixNano()
	if ts == 0 {
		ts = rec.GetObservedTimeUnixNano()
	}
	if ts == 0 {
		ts = uint64(time.Now().UnixNano())
	}
	timestamp := tracedata.Timestamp(ts / 1000)

	content := anyValueToValue(rec.GetBody())
	if fields.Message != nil {
		content = *fields.Message
	}

	var parent *tracedata.FullSpanId
	if len(rec.GetSpanId()) > 0 {
		p := otelSpanID(rec.GetTraceId(), rec.GetSpanId())
		parent = &p
	}

	_, err := h.facade.InsertEvent(
		timestamp, tracedata.SpanIDOTel, resourceKey, parent,
		content, fields.Namespace, fields.Function, fields.File, fields.Line, fields.Column,
		level, residual,
	)
	if err != nil {
		h.logger.Error("otlp: failed to insert event", "error", err)
	}
}
