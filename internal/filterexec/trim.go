package filterexec

import (
	"sort"

	"brokle-tracehub/internal/index"
	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/pkg/pagination"
)

// sliceLowerBound returns the index of the first key >= target in a
// strictly-ascending slice.
func sliceLowerBound(keys []tracedata.Timestamp, target tracedata.Timestamp) int {
	return sort.Search(len(keys), func(i int) bool { return keys[i] >= target })
}

// sliceUpperBound returns the index of the first key > target.
func sliceUpperBound(keys []tracedata.Timestamp, target tracedata.Timestamp) int {
	return sort.Search(len(keys), func(i int) bool { return keys[i] > target })
}

// trimRange narrows keys to the inclusive [lo, hi] window. Either bound
// may be nil to leave that side untrimmed.
func trimRange(keys []tracedata.Timestamp, lo, hi *tracedata.Timestamp) []tracedata.Timestamp {
	start, end := 0, len(keys)
	if lo != nil {
		start = sliceLowerBound(keys, *lo)
	}
	if hi != nil {
		end = sliceUpperBound(keys, *hi)
	}
	if start >= end {
		return nil
	}
	return keys[start:end]
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// TrimWindow narrows f to the [start, end] timeframe (spec.md §4.4
// "Time-window trimming"): Single nodes are trimmed by the upper bound
// only, Stratified branches are additionally trimmed on the lower bound
// by "max duration before start" so a whole bucket can be pruned
// without examining its open-ended candidates, Not trims both sides of
// its "all" walk (the inner filter is left untouched -- negation means
// "not a match", so over-trimming inner would make more keys falsely
// match), and And/Or recurse.
func TrimWindow(f *IndexedFilter, start, end tracedata.Timestamp) *IndexedFilter {
	lo, hi := start, end
	switch f.Kind {
	case KindSingle:
		return Single(trimRange(f.Slice, nil, &hi), f.Residual)
	case KindStratified:
		buckets := make([]StratBucket, len(f.Buckets))
		for i, b := range f.Buckets {
			maxDur := uint64(0)
			if b.BucketIndex < 0 {
				maxDur = ^uint64(0) // open bucket: duration unbounded, no lower trim
			} else {
				maxDur = index.MaxDuration(b.BucketIndex)
			}
			var lowerBound *tracedata.Timestamp
			if maxDur != ^uint64(0) {
				l := tracedata.Timestamp(saturatingSub(uint64(lo), maxDur))
				lowerBound = &l
			}
			buckets[i] = StratBucket{
				BucketIndex: b.BucketIndex,
				Slice:       trimRange(b.Slice, lowerBound, &hi),
			}
		}
		return &IndexedFilter{Kind: KindStratified, Buckets: buckets, RangeLo: f.RangeLo, RangeHi: f.RangeHi, Residual2: f.Residual2}
	case KindNot:
		return NotNode(trimRange(f.All, &lo, &hi), f.Inner)
	case KindAnd:
		children := make([]*IndexedFilter, len(f.Children))
		for i, c := range f.Children {
			children[i] = TrimWindow(c, start, end)
		}
		return &IndexedFilter{Kind: KindAnd, Children: children}
	case KindOr:
		children := make([]*IndexedFilter, len(f.Children))
		for i, c := range f.Children {
			children[i] = TrimWindow(c, start, end)
		}
		return &IndexedFilter{Kind: KindOr, Children: children, Distinct: f.Distinct}
	}
	return f
}

// TrimPagination narrows every leaf slice of f past previous on the end
// the traversal order reads from first, so a page's iteration never
// re-walks keys the caller already has (spec.md §4.4 "Pagination").
func TrimPagination(f *IndexedFilter, previous tracedata.Timestamp, order pagination.Order) *IndexedFilter {
	switch f.Kind {
	case KindSingle:
		return Single(trimPastKey(f.Slice, previous, order), f.Residual)
	case KindStratified:
		buckets := make([]StratBucket, len(f.Buckets))
		for i, b := range f.Buckets {
			buckets[i] = StratBucket{BucketIndex: b.BucketIndex, Slice: trimPastKey(b.Slice, previous, order)}
		}
		return &IndexedFilter{Kind: KindStratified, Buckets: buckets, RangeLo: f.RangeLo, RangeHi: f.RangeHi, Residual2: f.Residual2}
	case KindNot:
		return NotNode(trimPastKey(f.All, previous, order), f.Inner)
	case KindAnd:
		children := make([]*IndexedFilter, len(f.Children))
		for i, c := range f.Children {
			children[i] = TrimPagination(c, previous, order)
		}
		return &IndexedFilter{Kind: KindAnd, Children: children}
	case KindOr:
		children := make([]*IndexedFilter, len(f.Children))
		for i, c := range f.Children {
			children[i] = TrimPagination(c, previous, order)
		}
		return &IndexedFilter{Kind: KindOr, Children: children, Distinct: f.Distinct}
	}
	return f
}

// trimPastKey drops everything at or before previous for an ascending
// walk (the next page starts strictly after it), or at or after
// previous for a descending walk.
func trimPastKey(keys []tracedata.Timestamp, previous tracedata.Timestamp, order pagination.Order) []tracedata.Timestamp {
	if order == pagination.Asc {
		idx := sliceUpperBound(keys, previous)
		return keys[idx:]
	}
	idx := sliceLowerBound(keys, previous)
	return keys[:idx]
}
