package filterexec

import (
	"sort"

	"brokle-tracehub/internal/index"
	"brokle-tracehub/internal/tracedata"
)

// Kind tags the variant of an IndexedFilter node.
type Kind int

const (
	KindSingle Kind = iota
	KindStratified
	KindNot
	KindAnd
	KindOr
)

// StratBucket is one duration-bucket branch of a Stratified node: the
// stratification bucket's own slice (closed bucket i, or the open
// bucket when BucketIndex is -1) narrowed to spans whose duration
// could fall in the predicate's [lo, hi) range.
type StratBucket struct {
	BucketIndex int // 0..index.NumDurationBuckets-1, or -1 for the open bucket
	Slice       []tracedata.Timestamp
}

// IndexedFilter is a lowered filter tree: a tagged union referencing
// concrete sorted index slices and residual predicates instead of the
// basic filter's abstract property names.
type IndexedFilter struct {
	Kind Kind

	// KindSingle
	Slice    []tracedata.Timestamp
	Residual ResidualFunc

	// KindStratified
	Buckets  []StratBucket
	RangeLo  uint64 // inclusive duration microseconds this node was built from
	RangeHi  uint64 // exclusive
	Residual2 ResidualFunc // exact duration check applied to every key the buckets yield; nil for the window stratum

	// KindNot
	All   []tracedata.Timestamp
	Inner *IndexedFilter

	// KindAnd / KindOr
	Children []*IndexedFilter
	Distinct bool // Or only: operands are known disjoint (skip dedup)
}

// Single builds a Single node: an index slice with an optional residual
// predicate for the part of the match the slice alone cannot resolve.
func Single(slice []tracedata.Timestamp, residual ResidualFunc) *IndexedFilter {
	return &IndexedFilter{Kind: KindSingle, Slice: slice, Residual: residual}
}

// Empty returns a Single node over no keys, used when an index has
// never seen the predicate's target (e.g. an attribute name that no
// entity carries).
func Empty() *IndexedFilter { return Single(nil, nil) }

// NotNode builds a Not node negating inner over the allSlice
// "everything" walk.
func NotNode(allSlice []tracedata.Timestamp, inner *IndexedFilter) *IndexedFilter {
	return &IndexedFilter{Kind: KindNot, All: allSlice, Inner: inner}
}

// And builds an And node, pre-sorting children by ascending estimated
// count so the intersection walks its smallest operand first.
func And(children ...*IndexedFilter) *IndexedFilter {
	children = sortByEstimate(children)
	return &IndexedFilter{Kind: KindAnd, Children: children}
}

// Or builds an Or node. distinct tells the union iterator the operands
// are known not to overlap (e.g. disjoint type buckets from
// ValueIndex.MakeIndexedFilter), letting it skip duplicate-detection.
func Or(distinct bool, children ...*IndexedFilter) *IndexedFilter {
	children = sortByEstimate(children)
	return &IndexedFilter{Kind: KindOr, Children: children, Distinct: distinct}
}

func sortByEstimate(children []*IndexedFilter) []*IndexedFilter {
	sort.SliceStable(children, func(i, j int) bool {
		return EstimateCount(children[i]) < EstimateCount(children[j])
	})
	return children
}

// EstimateCount is an upper bound on how many keys a node could yield,
// used purely to order And/Or children for the smallest-first
// intersection/union walk.
func EstimateCount(f *IndexedFilter) int {
	switch f.Kind {
	case KindSingle:
		return len(f.Slice)
	case KindStratified:
		n := 0
		for _, b := range f.Buckets {
			n += len(b.Slice)
		}
		return n
	case KindNot:
		return len(f.All)
	case KindAnd:
		min := -1
		for _, c := range f.Children {
			n := EstimateCount(c)
			if min == -1 || n < min {
				min = n
			}
		}
		if min == -1 {
			return 0
		}
		return min
	case KindOr:
		total := 0
		for _, c := range f.Children {
			total += EstimateCount(c)
		}
		return total
	}
	return 0
}

// IsStratified reports whether f (or one of its And/Or descendants)
// already carries a Stratified branch -- such a filter can be safely
// trimmed by start time without a defensive duration fan-out.
func IsStratified(f *IndexedFilter) bool {
	switch f.Kind {
	case KindStratified:
		return true
	case KindAnd, KindOr:
		for _, c := range f.Children {
			if IsStratified(c) {
				return true
			}
		}
	case KindNot:
		return IsStratified(f.Inner)
	}
	return false
}

// Stratify ensures f is stratified for a span query: if no branch
// already references the duration index, AND onto it a Stratified node
// spanning every bucket (the full, untrimmed duration range), so
// downstream time-window trimming has a duration-indexed branch to
// narrow.
func Stratify(f *IndexedFilter, durations *index.DurationIndex) *IndexedFilter {
	if IsStratified(f) {
		return f
	}
	return And(f, fullDurationStratum(durations))
}

func fullDurationStratum(durations *index.DurationIndex) *IndexedFilter {
	buckets := make([]StratBucket, 0, index.NumDurationBuckets+1)
	for i := 0; i < index.NumDurationBuckets; i++ {
		buckets = append(buckets, StratBucket{BucketIndex: i, Slice: durations.Bucket(i).Slice()})
	}
	buckets = append(buckets, StratBucket{BucketIndex: -1, Slice: durations.Open().Slice()})
	return &IndexedFilter{Kind: KindStratified, Buckets: buckets, RangeLo: 0, RangeHi: ^uint64(0)}
}

// Build compiles f into a concrete double-ended KeyIterator.
func Build(f *IndexedFilter) KeyIterator {
	switch f.Kind {
	case KindSingle:
		return NewFilteredIter(NewSliceIter(f.Slice), f.Residual)
	case KindStratified:
		return buildStratified(f)
	case KindNot:
		return NewNotIter(NewSliceIter(f.All), Build(f.Inner))
	case KindAnd:
		iters := make([]KeyIterator, len(f.Children))
		for i, c := range f.Children {
			iters[i] = Build(c)
		}
		return NewIntersectIter(iters)
	case KindOr:
		iters := make([]KeyIterator, len(f.Children))
		for i, c := range f.Children {
			iters[i] = Build(c)
		}
		return NewUnionIter(iters, f.Distinct)
	}
	return NewSliceIter(nil)
}

func buildStratified(f *IndexedFilter) KeyIterator {
	iters := make([]KeyIterator, len(f.Buckets))
	for i, b := range f.Buckets {
		iters[i] = NewSliceIter(b.Slice)
	}
	union := NewUnionIter(iters, true) // buckets are disjoint by construction
	return NewFilteredIter(union, f.Residual2)
}
