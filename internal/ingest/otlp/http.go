package otlp

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"brokle-tracehub/internal/engine"
)

// HTTPHandler serves the HTTP+protobuf/JSON half of the OTLP ingress
// (spec.md §6), handed the same facade the gRPC TraceHandler/
// LogsHandler use so both fronts converge on one code path.
type HTTPHandler struct {
	trace  *TraceHandler
	logs   *LogsHandler
	logger *slog.Logger
}

func NewHTTPHandler(facade *engine.Facade, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{trace: NewTraceHandler(facade, logger), logs: NewLogsHandler(facade, logger), logger: logger}
}

// Register mounts the three OTLP HTTP endpoints under a gin router.
func (h *HTTPHandler) Register(r gin.IRouter) {
	r.POST("/v1/traces", h.handleTraces)
	r.POST("/v1/logs", h.handleLogs)
	r.POST("/v1/metrics", h.handleMetrics)
}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if strings.Contains(c.GetHeader("Content-Encoding"), "gzip") {
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	}
	return body, nil
}

func isProtobuf(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Content-Type"), "application/x-protobuf")
}

func (h *HTTPHandler) handleTraces(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var req coltracepb.ExportTraceServiceRequest
	if isProtobuf(c) {
		err = proto.Unmarshal(body, &req)
	} else {
		err = protojson.Unmarshal(body, &req)
	}
	if err != nil {
		h.logger.Error("otlp: invalid trace export request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OTLP trace request"})
		return
	}

	resp, err := h.trace.Export(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writeOTLPResponse(c, resp)
}

func (h *HTTPHandler) handleLogs(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var req collogspb.ExportLogsServiceRequest
	if isProtobuf(c) {
		err = proto.Unmarshal(body, &req)
	} else {
		err = protojson.Unmarshal(body, &req)
	}
	if err != nil {
		h.logger.Error("otlp: invalid logs export request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OTLP logs request"})
		return
	}

	resp, err := h.logs.Export(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writeOTLPResponse(c, resp)
}

func (h *HTTPHandler) handleMetrics(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var req colmetricspb.ExportMetricsServiceRequest
	if isProtobuf(c) {
		err = proto.Unmarshal(body, &req)
	} else {
		err = protojson.Unmarshal(body, &req)
	}
	if err != nil {
		h.logger.Error("otlp: invalid metrics export request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OTLP metrics request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// writeOTLPResponse marshals resp per the caller's negotiated content
// type, protobuf unless JSON was explicitly requested.
func writeOTLPResponse(c *gin.Context, resp proto.Message) {
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.Header("Content-Type", "application/json")
		data, err := protojson.Marshal(resp)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to marshal response"})
			return
		}
		c.Data(http.StatusOK, "application/json", data)
		return
	}
	data, err := proto.Marshal(resp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to marshal response"})
		return
	}
	c.Data(http.StatusOK, "application/x-protobuf", data)
}
