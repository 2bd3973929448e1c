package filterexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/pkg/pagination"
)

func keys(vs ...int) []tracedata.Timestamp {
	out := make([]tracedata.Timestamp, len(vs))
	for i, v := range vs {
		out[i] = tracedata.Timestamp(v)
	}
	return out
}

func drainForward(it KeyIterator) []tracedata.Timestamp {
	var out []tracedata.Timestamp
	for {
		k, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, k)
	}
}

func drainBackward(it KeyIterator) []tracedata.Timestamp {
	var out []tracedata.Timestamp
	for {
		k, ok := it.NextBack()
		if !ok {
			return out
		}
		out = append(out, k)
	}
}

func TestIntersectIterMatchesOnlyCommonKeys(t *testing.T) {
	a := NewSliceIter(keys(1, 2, 3, 5, 8))
	b := NewSliceIter(keys(2, 3, 5, 9))
	c := NewSliceIter(keys(2, 3, 4, 5))
	it := NewIntersectIter([]KeyIterator{a, b, c})
	assert.Equal(t, keys(2, 3, 5), drainForward(it))
}

func TestIntersectIterBackwardMatchesForward(t *testing.T) {
	a := NewSliceIter(keys(1, 2, 3, 5, 8))
	b := NewSliceIter(keys(2, 3, 5, 9))
	c := NewSliceIter(keys(2, 3, 4, 5))
	it := NewIntersectIter([]KeyIterator{a, b, c})
	got := drainBackward(it)
	assert.Equal(t, keys(5, 3, 2), got)
}

func TestIntersectIterDoubleEnded(t *testing.T) {
	a := NewSliceIter(keys(1, 2, 3, 5, 8))
	b := NewSliceIter(keys(2, 3, 5, 9))
	it := NewIntersectIter([]KeyIterator{a, b})

	front, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, tracedata.Timestamp(2), front)

	back, ok := it.NextBack()
	require.True(t, ok)
	assert.Equal(t, tracedata.Timestamp(5), back)

	next, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, tracedata.Timestamp(3), next)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestIntersectIterEmptyWhenNoOverlap(t *testing.T) {
	a := NewSliceIter(keys(1, 2, 3))
	b := NewSliceIter(keys(4, 5, 6))
	it := NewIntersectIter([]KeyIterator{a, b})
	assert.Empty(t, drainForward(it))
}

func TestUnionIterDedupsOverlappingOperands(t *testing.T) {
	a := NewSliceIter(keys(1, 3, 5))
	b := NewSliceIter(keys(2, 3, 5, 7))
	it := NewUnionIter([]KeyIterator{a, b}, false)
	assert.Equal(t, keys(1, 2, 3, 5, 7), drainForward(it))
}

func TestUnionIterDistinctSkipsDedupCheck(t *testing.T) {
	a := NewSliceIter(keys(1, 3))
	b := NewSliceIter(keys(2, 4))
	it := NewUnionIter([]KeyIterator{a, b}, true)
	assert.Equal(t, keys(1, 2, 3, 4), drainForward(it))
}

func TestUnionIterBackwardMatchesForwardReversed(t *testing.T) {
	a := NewSliceIter(keys(1, 3, 5))
	b := NewSliceIter(keys(2, 3, 5, 7))
	it := NewUnionIter([]KeyIterator{a, b}, false)
	assert.Equal(t, keys(7, 5, 3, 2, 1), drainBackward(it))
}

func TestNotIterExcludesInnerMatches(t *testing.T) {
	all := NewSliceIter(keys(1, 2, 3, 4, 5))
	inner := NewSliceIter(keys(2, 4))
	it := NewNotIter(all, inner)
	assert.Equal(t, keys(1, 3, 5), drainForward(it))
}

func TestNotIterBackward(t *testing.T) {
	all := NewSliceIter(keys(1, 2, 3, 4, 5))
	inner := NewSliceIter(keys(2, 4))
	it := NewNotIter(all, inner)
	assert.Equal(t, keys(5, 3, 1), drainBackward(it))
}

func TestBuildAndNodeIntersectsChildren(t *testing.T) {
	f := And(Single(keys(1, 2, 3, 5), nil), Single(keys(2, 3, 5, 9), nil))
	it := Build(f)
	assert.Equal(t, keys(2, 3, 5), drainForward(it))
}

func TestBuildOrNodeUnionsChildren(t *testing.T) {
	f := Or(false, Single(keys(1, 3), nil), Single(keys(2, 3, 4), nil))
	it := Build(f)
	assert.Equal(t, keys(1, 2, 3, 4), drainForward(it))
}

func TestBuildNotNodeNegatesInner(t *testing.T) {
	f := NotNode(keys(1, 2, 3, 4), Single(keys(2, 3), nil))
	it := Build(f)
	assert.Equal(t, keys(1, 4), drainForward(it))
}

func TestTrimWindowNarrowsSingleByUpperBoundOnly(t *testing.T) {
	f := Single(keys(1, 2, 3, 4, 5, 6), nil)
	trimmed := TrimWindow(f, 3, 5)
	// Single nodes are trimmed on the upper bound only -- the lower
	// bound is enforced by the residual InTimeframe check at the call
	// site, since an entity created before the window may still
	// overlap it.
	assert.Equal(t, keys(1, 2, 3, 4, 5), trimmed.Slice)
}

func TestTrimPaginationAscendingDropsThroughPrevious(t *testing.T) {
	f := Single(keys(1, 2, 3, 4, 5), nil)
	trimmed := TrimPagination(f, 3, pagination.Asc)
	assert.Equal(t, keys(4, 5), trimmed.Slice)
}

func TestTrimPaginationDescendingDropsFromPrevious(t *testing.T) {
	f := Single(keys(1, 2, 3, 4, 5), nil)
	trimmed := TrimPagination(f, 3, pagination.Desc)
	assert.Equal(t, keys(1, 2), trimmed.Slice)
}

func TestTrimWindowAndRecursesIntoChildren(t *testing.T) {
	f := And(Single(keys(1, 2, 3, 4), nil), Single(keys(2, 3, 4, 5), nil))
	trimmed := TrimWindow(f, 0, 3)
	require.Len(t, trimmed.Children, 2)
	it := Build(trimmed)
	assert.Equal(t, keys(2, 3), drainForward(it))
}
