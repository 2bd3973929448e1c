package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle-tracehub/internal/tracedata"
)

func TestSortedInsertAscending(t *testing.T) {
	s := NewSorted()
	for _, k := range []tracedata.Timestamp{1, 2, 3, 10, 11, 12} {
		s.Insert(k)
	}
	assert.Equal(t, []tracedata.Timestamp{1, 2, 3, 10, 11, 12}, s.Slice())
}

func TestSortedInsertOutOfOrder(t *testing.T) {
	s := NewSorted()
	for _, k := range []tracedata.Timestamp{10, 1, 5, 3, 9, 2} {
		s.Insert(k)
	}
	assert.Equal(t, []tracedata.Timestamp{1, 2, 3, 5, 9, 10}, s.Slice())
}

func TestSortedInsertDuplicateIgnored(t *testing.T) {
	s := NewSorted()
	s.Insert(5)
	s.Insert(5)
	assert.Equal(t, []tracedata.Timestamp{5}, s.Slice())
}

func TestSortedRemove(t *testing.T) {
	s := NewSorted()
	for _, k := range []tracedata.Timestamp{1, 2, 3, 4} {
		s.Insert(k)
	}
	s.Remove(2)
	assert.Equal(t, []tracedata.Timestamp{1, 3, 4}, s.Slice())
	assert.False(t, s.Contains(2))
}

func TestSortedRandomizedAlwaysAscending(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	s := NewSorted()
	seen := map[tracedata.Timestamp]bool{}
	for i := 0; i < 2000; i++ {
		k := tracedata.Timestamp(r.Intn(500))
		if seen[k] {
			continue
		}
		seen[k] = true
		s.Insert(k)
	}
	prev := tracedata.Timestamp(0)
	for i, k := range s.Slice() {
		if i > 0 {
			require.Greater(t, k, prev)
		}
		prev = k
	}
}

func TestSortedBounds(t *testing.T) {
	s := NewSorted()
	for _, k := range []tracedata.Timestamp{1, 3, 5, 7} {
		s.Insert(k)
	}
	assert.Equal(t, 1, s.LowerBound(3))
	assert.Equal(t, 2, s.UpperBound(3))
	assert.Equal(t, 0, s.LowerBound(0))
	assert.Equal(t, 4, s.UpperBound(100))
}
