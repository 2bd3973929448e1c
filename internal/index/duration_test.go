package index

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"brokle-tracehub/internal/tracedata"
)

func TestBucketForDuration(t *testing.T) {
	tests := []struct {
		d    uint64
		want int
	}{
		{0, 0},
		{3_999, 0},
		{4_000, 1},
		{15_999, 1},
		{16_000, 2},
		{63_999, 2},
		{64_000, 3},
		{255_999, 3},
		{256_000, 4},
		{999_999, 4},
		{1_000_000, 5},
		{3_999_999, 5},
		{4_000_000, 6},
		{15_999_999, 6},
		{16_000_000, 7},
		{63_999_999, 7},
		{64_000_000, 8},
		{1_000_000_000, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketForDuration(tt.d), "duration %d", tt.d)
	}
}

func TestDurationIndexOpenAndClose(t *testing.T) {
	d := NewDurationIndex()
	d.InsertOpen(100)
	assert.True(t, d.Open().Contains(100))

	ok := d.Close(100, 100+5_000) // 5ms -> bucket 1
	assert.True(t, ok)
	assert.False(t, d.Open().Contains(100))
	assert.True(t, d.Bucket(1).Contains(100)) // keyed by span key, not closed_at

	// second close is a no-op
	ok = d.Close(100, 100+5_000)
	assert.False(t, ok)
}

func TestBucketMatchesRange(t *testing.T) {
	// bucket 0 is [0, 4000); querying [4000, 16000) should not match it
	assert.False(t, BucketMatchesRange(0, 4_000, 16_000))
	assert.True(t, BucketMatchesRange(0, 0, 4_000))
	assert.True(t, BucketMatchesRange(8, 100_000_000_000, ^uint64(0)))
}

func TestAttributeIndexReindex(t *testing.T) {
	a := NewAttributeIndex()
	a.Insert("attr1", 10, tracedata.String("A"))
	assert.True(t, a.Get("attr1").ExactString("A").Contains(10))

	a.Reindex("attr1", 10, tracedata.String("A"), tracedata.String("C"))
	assert.Nil(t, a.Get("attr1").ExactString("A"))
	assert.True(t, a.Get("attr1").ExactString("C").Contains(10))
}
