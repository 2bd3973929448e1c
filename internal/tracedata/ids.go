package tracedata

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// SpanIDKind tags which producer convention a FullSpanId or TraceRoot
// follows; both are (128-bit, 64-bit) pairs, only the rendering and
// parsing differ.
type SpanIDKind int

const (
	SpanIDTracing SpanIDKind = iota
	SpanIDOTel
)

// FullSpanId globally identifies a span, across connections/traces for
// the tracing convention, and across the whole dataset for OpenTelemetry.
type FullSpanId struct {
	Kind    SpanIDKind
	TraceID [16]byte // instance_id for tracing, trace_id for OTel
	SpanID  uint64
}

// String renders "<instance>-<span>" for tracing ids (matching the
// original line-protocol convention) and "<trace-hex>:<span-hex>" for
// OTel ids.
func (id FullSpanId) String() string {
	switch id.Kind {
	case SpanIDTracing:
		instance := traceIDAsUint64(id.TraceID)
		return fmt.Sprintf("%d-%d", instance, id.SpanID)
	default:
		return fmt.Sprintf("%s:%016x", hex.EncodeToString(id.TraceID[:]), id.SpanID)
	}
}

// ParseFullSpanId parses either textual form produced by String.
func ParseFullSpanId(s string) (FullSpanId, error) {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		traceHex, spanHex := s[:idx], s[idx+1:]
		raw, err := hex.DecodeString(traceHex)
		if err != nil || len(raw) != 16 {
			return FullSpanId{}, fmt.Errorf("tracedata: invalid otel trace id %q", traceHex)
		}
		span, err := strconv.ParseUint(spanHex, 16, 64)
		if err != nil {
			return FullSpanId{}, fmt.Errorf("tracedata: invalid otel span id %q", spanHex)
		}
		var id FullSpanId
		id.Kind = SpanIDOTel
		copy(id.TraceID[:], raw)
		id.SpanID = span
		return id, nil
	}

	instance, span, ok := strings.Cut(s, "-")
	if !ok {
		return FullSpanId{}, fmt.Errorf("tracedata: malformed span id %q", s)
	}
	instanceID, err := strconv.ParseUint(instance, 10, 64)
	if err != nil {
		return FullSpanId{}, fmt.Errorf("tracedata: invalid instance id %q", instance)
	}
	spanID, err := strconv.ParseUint(span, 10, 64)
	if err != nil {
		return FullSpanId{}, fmt.Errorf("tracedata: invalid span id %q", span)
	}
	var id FullSpanId
	id.Kind = SpanIDTracing
	uint64ToTraceID(instanceID, &id.TraceID)
	id.SpanID = spanID
	return id, nil
}

// NewTracingSpanID builds a tracing-convention FullSpanId from a
// connection's instance id and a span id local to that connection.
func NewTracingSpanID(instanceID, spanID uint64) FullSpanId {
	var id FullSpanId
	id.Kind = SpanIDTracing
	uint64ToTraceID(instanceID, &id.TraceID)
	id.SpanID = spanID
	return id
}

// NewTracingInstanceID renders a bare instance id (no span component)
// as the 16-byte field shared by FullSpanId and TraceRoot.
func NewTracingInstanceID(instanceID uint64) [16]byte {
	var out [16]byte
	uint64ToTraceID(instanceID, &out)
	return out
}

func traceIDAsUint64(b [16]byte) uint64 {
	var v uint64
	for i := 8; i < 16; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func uint64ToTraceID(v uint64, out *[16]byte) {
	for i := 15; i >= 8; i-- {
		out[i] = byte(v)
		v >>= 8
	}
}

// TraceRoot is the topmost ancestor identity used to group spans,
// span-events and events for cascade delete and cross-entity traversal.
type TraceRoot struct {
	Kind        SpanIDKind
	InstanceID  [16]byte // instance_id (tracing) or trace_id (OTel)
	RootSpanKey Timestamp // unused (zero) for OTel
}
