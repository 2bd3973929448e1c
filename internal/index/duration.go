package index

import "brokle-tracehub/internal/tracedata"

// Duration boundaries in microseconds: <4ms, [4-16)ms, [16-64)ms,
// [64-256)ms, [256ms-1s), [1-4)s, [4-16)s, [16-64)s, >=64s.
const (
	boundMs4  = 4_000
	boundMs16 = 16_000
	boundMs64 = 64_000
	boundMs256 = 256_000
	boundS1   = 1_000_000
	boundS4   = 4_000_000
	boundS16  = 16_000_000
	boundS64  = 64_000_000
)

// NumDurationBuckets is the count of closed stratification buckets
// (the "open" bucket is tracked separately).
const NumDurationBuckets = 9

var durationBoundaries = [NumDurationBuckets]uint64{
	0, boundMs4, boundMs16, boundMs64, boundMs256, boundS1, boundS4, boundS16, boundS64,
}

// bucketUpperExclusive returns the exclusive upper bound of bucket i, or
// math.MaxUint64 for the last (>=64s) bucket.
func bucketUpperExclusive(i int) uint64 {
	if i == NumDurationBuckets-1 {
		return ^uint64(0)
	}
	return durationBoundaries[i+1]
}

// BucketForDuration returns which of the nine closed buckets a duration
// (in microseconds) falls into.
func BucketForDuration(d uint64) int {
	for i := NumDurationBuckets - 1; i >= 0; i-- {
		if d >= durationBoundaries[i] {
			return i
		}
	}
	return 0
}

// BucketMatchesRange reports whether closed bucket i can contain any
// duration in [lo, hi) -- used to fan out a duration predicate over
// buckets. Time-window pruning uses MaxDuration instead.
func BucketMatchesRange(i int, lo, hi uint64) bool {
	bucketLo := durationBoundaries[i]
	bucketHi := bucketUpperExclusive(i)
	return bucketLo < hi && lo < bucketHi
}

// MaxDuration returns the largest duration bucket i can hold, or
// math.MaxUint64 for the open-ended last bucket. Used by time-window
// trimming to compute "max-duration-before-start" pruning.
func MaxDuration(i int) uint64 {
	upper := bucketUpperExclusive(i)
	if upper == ^uint64(0) {
		return upper
	}
	return upper - 1
}

// DurationIndex is the per-span stratified duration index: nine closed
// buckets plus one open bucket, every bucket keyed by the span's own
// key (created_at) rather than closed_at -- a span's key never changes
// once assigned, so bucketing by it keeps every other index's
// assumption ("spans are found by their key") intact even after a
// close moves the span between buckets.
type DurationIndex struct {
	buckets [NumDurationBuckets]*Sorted
	open    *Sorted
}

func NewDurationIndex() *DurationIndex {
	d := &DurationIndex{open: NewSorted()}
	for i := range d.buckets {
		d.buckets[i] = NewSorted()
	}
	return d
}

// InsertOpen records a span as open (not yet closed), keyed by
// created_at.
func (d *DurationIndex) InsertOpen(createdAt tracedata.Timestamp) {
	d.open.Insert(createdAt)
}

// Close moves a span from the open bucket into its duration bucket,
// keyed by its span key (createdAt). Returns false (no-op) if the span
// was not found in the open bucket, which the sync engine treats as a
// second Close.
func (d *DurationIndex) Close(createdAt, closedAt tracedata.Timestamp) bool {
	if !d.open.Contains(createdAt) {
		return false
	}
	d.open.Remove(createdAt)

	var dur uint64
	if uint64(closedAt) > uint64(createdAt) {
		dur = uint64(closedAt) - uint64(createdAt)
	}
	bucket := BucketForDuration(dur)
	d.buckets[bucket].Insert(createdAt)
	return true
}

// Remove deletes a span's entry from whichever bucket currently holds
// it. closedAt is nil for a still-open span.
func (d *DurationIndex) Remove(createdAt tracedata.Timestamp, closedAt *tracedata.Timestamp) {
	if closedAt == nil {
		d.open.Remove(createdAt)
		return
	}
	dur := uint64(0)
	if uint64(*closedAt) > uint64(createdAt) {
		dur = uint64(*closedAt) - uint64(createdAt)
	}
	d.buckets[BucketForDuration(dur)].Remove(createdAt)
}

// Bucket returns the Sorted index for closed bucket i.
func (d *DurationIndex) Bucket(i int) *Sorted { return d.buckets[i] }

// Open returns the Sorted index of still-open spans (keyed by created_at).
func (d *DurationIndex) Open() *Sorted { return d.open }
