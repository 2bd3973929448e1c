// Package index implements the sorted-key index set the filter engine
// evaluates against: per-property Vec<Timestamp> lists, the stratified
// span duration index, per-attribute ValueIndex buckets, and the
// orphanage used to reparent entities whose parent arrives late.
package index

import (
	"sort"

	"brokle-tracehub/internal/tracedata"
)

// Sorted is a strictly-ascending list of entity keys. Insertion probes
// backward from the tail in doubling strides with a binary-search
// fallback once the probe has walked far enough, so finding the position
// for the common "append near the end" case (new entities usually sort
// after most existing ones) stays O(1) amortized while out-of-order
// inserts still find theirs in O(log n).
type Sorted struct {
	keys []tracedata.Timestamp
}

// NewSorted returns an empty sorted index.
func NewSorted() *Sorted { return &Sorted{} }

// Len returns the number of keys held.
func (s *Sorted) Len() int { return len(s.keys) }

// Slice exposes the backing slice read-only. Callers must not mutate it.
func (s *Sorted) Slice() []tracedata.Timestamp { return s.keys }

// maxBackwardScan bounds the backward-probe phase before falling back to
// binary search, so a badly out-of-order insert still costs O(log n)
// rather than O(n).
const maxBackwardScan = 32

// upperBoundViaExpansion finds the insertion point for key by first
// probing backward from the tail in exponentially growing strides, then
// binary-searching the bracketed region. This amortizes to O(1) when
// keys arrive in (near-)sorted order, which is the overwhelmingly
// common case for a live timestamp-keyed stream.
func upperBoundViaExpansion(keys []tracedata.Timestamp, key tracedata.Timestamp) int {
	n := len(keys)
	if n == 0 {
		return 0
	}
	if keys[n-1] <= key {
		return n
	}

	// Expand backward in strides of 1, 2, 4, 8, ... until we bracket key
	// or exhaust the slice/backward-scan budget.
	lo, hi := n-1, n
	stride := 1
	for lo > 0 && keys[lo] > key && (n-lo) <= maxBackwardScan {
		hi = lo
		lo -= stride
		if lo < 0 {
			lo = 0
		}
		stride *= 2
	}
	if lo < 0 {
		lo = 0
	}
	if keys[lo] > key {
		// Budget exhausted before bracketing key: search everything below hi.
		lo = 0
	}

	idx := sort.Search(hi-lo, func(i int) bool {
		return keys[lo+i] > key
	})
	return lo + idx
}

// Insert adds key, keeping the index sorted. Duplicate keys are
// rejected (storage keys are globally unique); callers that need
// idempotent insertion should check Contains first.
func (s *Sorted) Insert(key tracedata.Timestamp) {
	pos := upperBoundViaExpansion(s.keys, key)
	if pos > 0 && s.keys[pos-1] == key {
		return // already present
	}
	s.keys = append(s.keys, 0)
	copy(s.keys[pos+1:], s.keys[pos:])
	s.keys[pos] = key
}

// Remove deletes key if present.
func (s *Sorted) Remove(key tracedata.Timestamp) {
	idx := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= key })
	if idx < len(s.keys) && s.keys[idx] == key {
		s.keys = append(s.keys[:idx], s.keys[idx+1:]...)
	}
}

// Contains reports whether key is present.
func (s *Sorted) Contains(key tracedata.Timestamp) bool {
	idx := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= key })
	return idx < len(s.keys) && s.keys[idx] == key
}

// LowerBound returns the index of the first key >= target.
func (s *Sorted) LowerBound(target tracedata.Timestamp) int {
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= target })
}

// UpperBound returns the index of the first key > target.
func (s *Sorted) UpperBound(target tracedata.Timestamp) int {
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] > target })
}
