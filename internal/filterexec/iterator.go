// Package filterexec lowers a validated filterlang tree into an
// indexed filter that references concrete sorted index slices, then
// evaluates it as a double-ended compound iterator over entity keys.
// This is the "30%" of the engine: everything downstream of query
// planning depends on these iterators staying correct for both
// ascending and descending traversal, since descending pagination
// reuses the same code path as ascending.
package filterexec

import "brokle-tracehub/internal/tracedata"

// ResidualFunc is a predicate evaluated against a candidate key once an
// index slice has narrowed the search; it stands in for the
// non-indexed portion of a lowered predicate (e.g. an inequality on an
// attribute, or a regex). A nil ResidualFunc always matches.
type ResidualFunc func(key tracedata.Timestamp) bool

// KeyIterator is a double-ended iterator over ascending entity keys.
// And/Or/Not compound iterators are built from these and are
// themselves KeyIterators, so filter trees of arbitrary depth compose
// without special-casing leaves vs branches.
type KeyIterator interface {
	// Next yields the smallest remaining key, advancing the front
	// cursor past it.
	Next() (tracedata.Timestamp, bool)
	// NextBack yields the largest remaining key, advancing the back
	// cursor past it.
	NextBack() (tracedata.Timestamp, bool)
	// AdvanceFrontUntilEquals moves the front cursor to the first
	// remaining key >= target, reports whether that key equals target.
	AdvanceFrontUntilEquals(target tracedata.Timestamp) bool
	// AdvanceBackUntilEquals is the mirror image from the back.
	AdvanceBackUntilEquals(target tracedata.Timestamp) bool
	// SizeHint reports a lower bound and, if known exactly or as an
	// upper bound, the count of remaining keys.
	SizeHint() (min int, max int, maxKnown bool)
}

// SliceIter is a KeyIterator over an in-memory ascending slice,
// tracking independent front/back cursors so both ends can be
// consumed without reslicing.
type SliceIter struct {
	keys   []tracedata.Timestamp
	lo, hi int // remaining window is keys[lo:hi]
}

// NewSliceIter wraps an ascending key slice. The slice is not copied;
// callers must not mutate it while the iterator is live.
func NewSliceIter(keys []tracedata.Timestamp) *SliceIter {
	return &SliceIter{keys: keys, hi: len(keys)}
}

func (s *SliceIter) Next() (tracedata.Timestamp, bool) {
	if s.lo >= s.hi {
		return 0, false
	}
	k := s.keys[s.lo]
	s.lo++
	return k, true
}

func (s *SliceIter) NextBack() (tracedata.Timestamp, bool) {
	if s.lo >= s.hi {
		return 0, false
	}
	s.hi--
	return s.keys[s.hi], true
}

func (s *SliceIter) AdvanceFrontUntilEquals(target tracedata.Timestamp) bool {
	for s.lo < s.hi && s.keys[s.lo] < target {
		s.lo++
	}
	return s.lo < s.hi && s.keys[s.lo] == target
}

func (s *SliceIter) AdvanceBackUntilEquals(target tracedata.Timestamp) bool {
	for s.lo < s.hi && s.keys[s.hi-1] > target {
		s.hi--
	}
	return s.lo < s.hi && s.keys[s.hi-1] == target
}

func (s *SliceIter) SizeHint() (int, int, bool) {
	n := s.hi - s.lo
	return 0, n, true
}

// FilteredIter applies a residual predicate over an inner iterator,
// skipping keys the predicate rejects. It backs a Single node whose
// index slice narrowed the search but could not fully resolve a
// non-equality or type-inapplicable predicate.
type FilteredIter struct {
	inner KeyIterator
	pred  ResidualFunc
}

func NewFilteredIter(inner KeyIterator, pred ResidualFunc) KeyIterator {
	if pred == nil {
		return inner
	}
	return &FilteredIter{inner: inner, pred: pred}
}

func (f *FilteredIter) Next() (tracedata.Timestamp, bool) {
	for {
		k, ok := f.inner.Next()
		if !ok {
			return 0, false
		}
		if f.pred(k) {
			return k, true
		}
	}
}

func (f *FilteredIter) NextBack() (tracedata.Timestamp, bool) {
	for {
		k, ok := f.inner.NextBack()
		if !ok {
			return 0, false
		}
		if f.pred(k) {
			return k, true
		}
	}
}

func (f *FilteredIter) AdvanceFrontUntilEquals(target tracedata.Timestamp) bool {
	if !f.inner.AdvanceFrontUntilEquals(target) {
		return false
	}
	return f.pred(target)
}

func (f *FilteredIter) AdvanceBackUntilEquals(target tracedata.Timestamp) bool {
	if !f.inner.AdvanceBackUntilEquals(target) {
		return false
	}
	return f.pred(target)
}

func (f *FilteredIter) SizeHint() (int, int, bool) {
	_, max, known := f.inner.SizeHint()
	return 0, max, known // a residual can reject anything, so only the upper bound survives
}

// CollectForward drains it in ascending order, stopping once limit
// results are collected (limit <= 0 means unlimited).
func CollectForward(it KeyIterator, limit int) []tracedata.Timestamp {
	var out []tracedata.Timestamp
	for limit <= 0 || len(out) < limit {
		k, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, k)
	}
	return out
}

// CollectBackward drains it in descending order (most recent first).
func CollectBackward(it KeyIterator, limit int) []tracedata.Timestamp {
	var out []tracedata.Timestamp
	for limit <= 0 || len(out) < limit {
		k, ok := it.NextBack()
		if !ok {
			break
		}
		out = append(out, k)
	}
	return out
}
