package otlp

import (
	"testing"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"

	"github.com/stretchr/testify/assert"

	"brokle-tracehub/internal/tracedata"
)

func strAttr(k, v string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}}}
}

func intAttr(k string, v int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v}}}
}

func TestAnyValueToValuePreservesType(t *testing.T) {
	assert.Equal(t, tracedata.String("x"), anyValueToValue(&commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "x"}}))
	assert.Equal(t, tracedata.I64(5), anyValueToValue(&commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: 5}}))
	assert.Equal(t, tracedata.Bool(true), anyValueToValue(&commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: true}}))
	assert.Equal(t, tracedata.Null(), anyValueToValue(nil))
}

func TestExtractCodeFieldsPullsWellKnownKeysOutOfResidual(t *testing.T) {
	attrs := attrsToMap([]*commonpb.KeyValue{
		strAttr("code.namespace", "myapp::handlers"),
		strAttr("code.function", "handle"),
		strAttr("code.filepath", "handlers.go"),
		intAttr("code.lineno", 42),
		strAttr("level", "warn"),
		strAttr("user.id", "abc123"),
	})

	fields, residual := extractCodeFields(attrs)

	assert.Equal(t, "myapp::handlers", fields.Namespace)
	assert.Equal(t, "handle", fields.Function)
	assert.Equal(t, "handlers.go", fields.File)
	if assert.NotNil(t, fields.Line) {
		assert.Equal(t, uint32(42), *fields.Line)
	}
	if assert.NotNil(t, fields.Level) {
		assert.Equal(t, tracedata.LevelWarn, *fields.Level)
	}

	_, stillPresent := residual["code.namespace"]
	assert.False(t, stillPresent)
	_, userIDPresent := residual["user.id"]
	assert.True(t, userIDPresent)
}

func TestOtelSpanIDParsesBigEndianIDs(t *testing.T) {
	traceID := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	spanID := []byte{0, 0, 0, 0, 0, 0, 0, 2}

	id := otelSpanID(traceID, spanID)
	assert.Equal(t, tracedata.SpanIDOTel, id.Kind)
	assert.Equal(t, uint64(2), id.SpanID)
	assert.Equal(t, byte(1), id.TraceID[15])
}
