package tracedata

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"f64 equal", F64(1.5), F64(1.5), true},
		{"f64 differ", F64(1.5), F64(2.5), false},
		{"kind mismatch", I64(1), U64(1), false},
		{"string equal", String("a"), String("a"), true},
		{"bytes equal", Bytes([]byte{1, 2}), Bytes([]byte{1, 2}), true},
		{"i128 equal", I128(big.NewInt(42)), I128(big.NewInt(42)), true},
		{
			"object equal unordered",
			Object(map[string]Value{"a": I64(1), "b": String("x")}),
			Object(map[string]Value{"b": String("x"), "a": I64(1)}),
			true,
		},
		{
			"array differ length",
			Array([]Value{I64(1)}),
			Array([]Value{I64(1), I64(2)}),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}

func TestAttributeMapEqual(t *testing.T) {
	a := map[string]Value{"x": String("1")}
	b := map[string]Value{"x": String("1")}
	c := map[string]Value{"x": String("2")}

	assert.True(t, AttributeMapEqual(a, b))
	assert.False(t, AttributeMapEqual(a, c))
	assert.False(t, AttributeMapEqual(a, map[string]Value{}))
}

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel("WARN")
	require.True(t, ok)
	assert.Equal(t, LevelWarn, lvl)

	_, ok = ParseLevel("bogus")
	assert.False(t, ok)
}

func TestLevelFromOTelSeverity(t *testing.T) {
	assert.Equal(t, LevelTrace, LevelFromOTelSeverity(1))
	assert.Equal(t, LevelDebug, LevelFromOTelSeverity(8))
	assert.Equal(t, LevelInfo, LevelFromOTelSeverity(9))
	assert.Equal(t, LevelWarn, LevelFromOTelSeverity(16))
	assert.Equal(t, LevelError, LevelFromOTelSeverity(20))
	assert.Equal(t, LevelFatal, LevelFromOTelSeverity(24))
}

func TestFullSpanIdRoundTrip(t *testing.T) {
	var id FullSpanId
	id.Kind = SpanIDTracing
	uint64ToTraceID(7, &id.TraceID)
	id.SpanID = 42

	s := id.String()
	assert.Equal(t, "7-42", s)

	parsed, err := ParseFullSpanId(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}
