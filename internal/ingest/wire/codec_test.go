package wire

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle-tracehub/internal/tracedata"
)

func TestEncodeDecodeHandshakeRoundTrip(t *testing.T) {
	h := Handshake{Attributes: map[string]tracedata.Value{
		"service.name": tracedata.String("api"),
		"pid":          tracedata.U64(4242),
	}}
	frame := EncodeHandshake(h)
	got, err := decodeHandshake(frame)
	require.NoError(t, err)
	assert.Equal(t, h.Attributes, got.Attributes)
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	spanID := uint64(7)
	parent := uint64(3)
	line := uint32(42)

	msg := Message{
		Timestamp: 1000,
		SpanID:    &spanID,
		Kind:      MessageCreate,
		Create: &CreateData{
			ParentID: &parent,
			Target:   "myapp::module",
			Name:     "handle_request",
			Level:    2,
			FileName: "main.rs",
			FileLine: &line,
			Attributes: map[string]tracedata.Value{
				"count":  tracedata.I64(-5),
				"amount": tracedata.F64(3.25),
				"big":    tracedata.U128(big.NewInt(123456789)),
				"ok":     tracedata.Bool(true),
				"tags":   tracedata.Array([]tracedata.Value{tracedata.String("a"), tracedata.String("b")}),
			},
		},
	}

	frame := EncodeMessage(msg)
	got, err := decodeMessage(frame)
	require.NoError(t, err)

	require.NotNil(t, got.Create)
	assert.Equal(t, msg.Timestamp, got.Timestamp)
	require.NotNil(t, got.SpanID)
	assert.Equal(t, *msg.SpanID, *got.SpanID)
	assert.Equal(t, msg.Create.Target, got.Create.Target)
	assert.Equal(t, msg.Create.Name, got.Create.Name)
	assert.Equal(t, msg.Create.Level, got.Create.Level)
	assert.Equal(t, msg.Create.FileName, got.Create.FileName)
	require.NotNil(t, got.Create.FileLine)
	assert.Equal(t, *msg.Create.FileLine, *got.Create.FileLine)
	for k, v := range msg.Create.Attributes {
		assert.True(t, v.Equal(got.Create.Attributes[k]), "attribute %s mismatch", k)
	}
}

func TestEncodeDecodeEventMessage(t *testing.T) {
	msg := Message{
		Timestamp: 55,
		Kind:      MessageEvent,
		Event: &EventData{
			Target: "myapp",
			Name:   "tick",
			Level:  1,
			Attributes: map[string]tracedata.Value{
				"seq": tracedata.U64(9),
			},
		},
	}
	frame := EncodeMessage(msg)
	got, err := decodeMessage(frame)
	require.NoError(t, err)
	require.Nil(t, got.SpanID)
	require.NotNil(t, got.Event)
	assert.Equal(t, msg.Event.Name, got.Event.Name)
	assert.True(t, msg.Event.Attributes["seq"].Equal(got.Event.Attributes["seq"]))
}

func TestEncodeDecodeExitCloseHaveNoPayload(t *testing.T) {
	spanID := uint64(1)
	for _, kind := range []MessageKind{MessageExit, MessageClose} {
		msg := Message{Timestamp: 1, SpanID: &spanID, Kind: kind}
		frame := EncodeMessage(msg)
		got, err := decodeMessage(frame)
		require.NoError(t, err)
		assert.Equal(t, kind, got.Kind)
	}
}
