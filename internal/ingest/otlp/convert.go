// Package otlp implements the OpenTelemetry ingress (spec.md §6 "Ingress
// OpenTelemetry protocol"): gRPC and HTTP endpoints accepting
// Export{Traces,Logs,Metrics}ServiceRequest, converting OTLP spans into
// Create/Close span-events and OTLP log records into events, carried
// through this engine's typed Value union and span-event model rather
// than collapsed into flat columns.
package otlp

import (
	"encoding/binary"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"

	"brokle-tracehub/internal/tracedata"
)

// anyValueToValue converts an OTLP AnyValue to the engine's tagged
// Value union, preserving each variant's native type (spec.md §3
// stores a typed Value, not a flattened string).
func anyValueToValue(v *commonpb.AnyValue) tracedata.Value {
	if v == nil {
		return tracedata.Null()
	}
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return tracedata.String(val.StringValue)
	case *commonpb.AnyValue_BoolValue:
		return tracedata.Bool(val.BoolValue)
	case *commonpb.AnyValue_IntValue:
		return tracedata.I64(val.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return tracedata.F64(val.DoubleValue)
	case *commonpb.AnyValue_BytesValue:
		return tracedata.Bytes(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		if val.ArrayValue == nil {
			return tracedata.Array(nil)
		}
		items := make([]tracedata.Value, len(val.ArrayValue.Values))
		for i, item := range val.ArrayValue.Values {
			items[i] = anyValueToValue(item)
		}
		return tracedata.Array(items)
	case *commonpb.AnyValue_KvlistValue:
		if val.KvlistValue == nil {
			return tracedata.Object(nil)
		}
		return tracedata.Object(attrsToMap(val.KvlistValue.Values))
	default:
		return tracedata.Null()
	}
}

func attrsToMap(kvs []*commonpb.KeyValue) map[string]tracedata.Value {
	out := make(map[string]tracedata.Value, len(kvs))
	for _, kv := range kvs {
		out[kv.GetKey()] = anyValueToValue(kv.GetValue())
	}
	return out
}

// codeFields is the set of well-known attribute keys spec.md §6
// extracts into first-class span/event fields instead of leaving them
// in the generic attribute map.
type codeFields struct {
	Namespace string
	Function  string
	File      string
	Line      *uint32
	Column    *uint32
	Level     *tracedata.Level
	BusyNanos *uint64
	IdleNanos *uint64
	Message   *tracedata.Value
}

// extractCodeFields pulls the well-known keys out of attrs, returning
// the extracted fields and the residual attribute map (a shallow copy
// with those keys removed, leaving the caller's map untouched).
func extractCodeFields(attrs map[string]tracedata.Value) (codeFields, map[string]tracedata.Value) {
	var f codeFields
	residual := make(map[string]tracedata.Value, len(attrs))
	for k, v := range attrs {
		switch k {
		case "code.namespace":
			f.Namespace = v.Str
		case "code.function":
			f.Function = v.Str
		case "code.filepath":
			f.File = v.Str
		case "code.lineno":
			line := uint32(valueAsUint(v))
			f.Line = &line
		case "code.column":
			col := uint32(valueAsUint(v))
			f.Column = &col
		case "level":
			lvl, ok := tracedata.ParseLevel(v.Str)
			if ok {
				f.Level = &lvl
			}
		case "busy_ns":
			n := valueAsUint(v)
			f.BusyNanos = &n
		case "idle_ns":
			n := valueAsUint(v)
			f.IdleNanos = &n
		case "message":
			mv := v
			f.Message = &mv
		default:
			residual[k] = v
		}
	}
	return f, residual
}

func valueAsUint(v tracedata.Value) uint64 {
	switch v.Kind {
	case tracedata.ValueU64:
		return v.U64
	case tracedata.ValueI64:
		if v.I64 < 0 {
			return 0
		}
		return uint64(v.I64)
	case tracedata.ValueF64:
		if v.F64 < 0 {
			return 0
		}
		return uint64(v.F64)
	default:
		return 0
	}
}

// traceIDFromBytes parses a big-endian 16-byte OTLP trace id into the
// 128-bit field FullSpanId/TraceRoot share.
func traceIDFromBytes(b []byte) [16]byte {
	var out [16]byte
	copy(out[:], b)
	return out
}

// spanIDFromBytes parses a big-endian 8-byte OTLP span id.
func spanIDFromBytes(b []byte) uint64 {
	var padded [8]byte
	copy(padded[8-len(b):], b)
	return binary.BigEndian.Uint64(padded[:])
}

func otelSpanID(traceID, spanID []byte) tracedata.FullSpanId {
	return tracedata.FullSpanId{Kind: tracedata.SpanIDOTel, TraceID: traceIDFromBytes(traceID), SpanID: spanIDFromBytes(spanID)}
}

