package tracestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle-tracehub/internal/tracedata"
)

func TestBatchedReadsPendingBeforeSync(t *testing.T) {
	backing := NewMemory()
	b := NewBatched(backing)

	require.NoError(t, b.InsertSpan(&tracedata.Span{CreatedAt: 1, Name: "root"}))

	// not yet visible in the backing store
	_, err := backing.GetSpan(1)
	assert.ErrorIs(t, err, tracedata.ErrNotFound)

	got, err := b.GetSpan(1)
	require.NoError(t, err)
	assert.Equal(t, "root", got.Name)
}

func TestBatchedSyncFlushesToBacking(t *testing.T) {
	backing := NewMemory()
	b := NewBatched(backing)

	require.NoError(t, b.InsertResource(&tracedata.Resource{CreatedAt: 1}))
	require.NoError(t, b.Sync())

	_, err := backing.GetResource(1)
	assert.NoError(t, err)
}

func TestBatchedDropHidesPendingInsert(t *testing.T) {
	backing := NewMemory()
	b := NewBatched(backing)

	require.NoError(t, b.InsertEvent(&tracedata.Event{Timestamp: 1}))
	require.NoError(t, b.DropEvents([]tracedata.Timestamp{1}))

	_, err := b.GetEvent(1)
	assert.ErrorIs(t, err, tracedata.ErrNotFound)
}

func TestBatchedUpdateSpanClosedCopiesOnWrite(t *testing.T) {
	backing := NewMemory()
	original := &tracedata.Span{CreatedAt: 1}
	require.NoError(t, backing.InsertSpan(original))

	b := NewBatched(backing)
	require.NoError(t, b.UpdateSpanClosed(1, 10, nil))

	// backing's copy must be untouched until Sync
	assert.Nil(t, original.ClosedAt)

	got, err := b.GetSpan(1)
	require.NoError(t, err)
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, tracedata.Timestamp(10), *got.ClosedAt)
}

func TestBatchedGetAllMergesPendingAndBacking(t *testing.T) {
	backing := NewMemory()
	require.NoError(t, backing.InsertSpan(&tracedata.Span{CreatedAt: 5}))

	b := NewBatched(backing)
	require.NoError(t, b.InsertSpan(&tracedata.Span{CreatedAt: 10}))

	var keys []tracedata.Timestamp
	it := b.GetAllSpans()
	for {
		s, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, s.Key())
	}
	assert.ElementsMatch(t, []tracedata.Timestamp{5, 10}, keys)
}
