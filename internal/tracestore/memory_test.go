package tracestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle-tracehub/internal/tracedata"
)

func TestMemoryInsertAndGet(t *testing.T) {
	m := NewMemory()
	r := &tracedata.Resource{CreatedAt: 1, Attributes: map[string]tracedata.Value{"service.name": tracedata.String("api")}}
	require.NoError(t, m.InsertResource(r))

	got, err := m.GetResource(1)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = m.GetResource(2)
	assert.ErrorIs(t, err, tracedata.ErrNotFound)
}

func TestMemoryInsertDuplicateKeyFails(t *testing.T) {
	m := NewMemory()
	s := &tracedata.Span{CreatedAt: 5}
	require.NoError(t, m.InsertSpan(s))
	err := m.InsertSpan(&tracedata.Span{CreatedAt: 5})
	assert.Error(t, err)
}

func TestMemoryUpdateSpanClosedRejectsDoubleClose(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.InsertSpan(&tracedata.Span{CreatedAt: 1}))
	require.NoError(t, m.UpdateSpanClosed(1, 10, nil))

	err := m.UpdateSpanClosed(1, 20, nil)
	assert.ErrorIs(t, err, tracedata.ErrSpanAlreadyClosed)
}

func TestMemoryUpdateSpanClosedUnknownKey(t *testing.T) {
	m := NewMemory()
	err := m.UpdateSpanClosed(99, 10, nil)
	assert.ErrorIs(t, err, tracedata.ErrUnknownSpanID)
}

func TestMemoryGetAllSpansOrdered(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.InsertSpan(&tracedata.Span{CreatedAt: 30}))
	require.NoError(t, m.InsertSpan(&tracedata.Span{CreatedAt: 10}))
	require.NoError(t, m.InsertSpan(&tracedata.Span{CreatedAt: 20}))

	it := m.GetAllSpans()
	var keys []tracedata.Timestamp
	for {
		s, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, s.Key())
	}
	assert.Equal(t, []tracedata.Timestamp{10, 20, 30}, keys)
}

func TestMemoryDropIsIdempotent(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.InsertEvent(&tracedata.Event{Timestamp: 1}))
	require.NoError(t, m.DropEvents([]tracedata.Timestamp{1}))
	require.NoError(t, m.DropEvents([]tracedata.Timestamp{1}))

	_, err := m.GetEvent(1)
	assert.ErrorIs(t, err, tracedata.ErrNotFound)
}

func TestMemoryUpdateSpanAttributesMerges(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.InsertSpan(&tracedata.Span{
		CreatedAt:  1,
		Attributes: map[string]tracedata.Value{"a": tracedata.I64(1)},
	}))
	require.NoError(t, m.UpdateSpanAttributes(1, map[string]tracedata.Value{"b": tracedata.I64(2)}))

	got, err := m.GetSpan(1)
	require.NoError(t, err)
	assert.Equal(t, tracedata.I64(1), got.Attributes["a"])
	assert.Equal(t, tracedata.I64(2), got.Attributes["b"])
}
