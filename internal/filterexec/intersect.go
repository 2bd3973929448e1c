package filterexec

import "brokle-tracehub/internal/tracedata"

// IntersectIter is a k-way sorted-set intersection: it advances every
// lagging operand up to the leader's current value and only yields a
// key once all operands agree on it. It backs And nodes.
type IntersectIter struct {
	iters []KeyIterator
}

func NewIntersectIter(iters []KeyIterator) *IntersectIter {
	return &IntersectIter{iters: iters}
}

func (x *IntersectIter) Next() (tracedata.Timestamp, bool) {
	if len(x.iters) == 0 {
		return 0, false
	}
outer:
	for {
		item, ok := x.iters[0].Next()
		if !ok {
			return 0, false
		}
		for _, it := range x.iters[1:] {
			if !it.AdvanceFrontUntilEquals(item) {
				continue outer
			}
		}
		return item, true
	}
}

func (x *IntersectIter) NextBack() (tracedata.Timestamp, bool) {
	if len(x.iters) == 0 {
		return 0, false
	}
outer:
	for {
		item, ok := x.iters[0].NextBack()
		if !ok {
			return 0, false
		}
		for _, it := range x.iters[1:] {
			if !it.AdvanceBackUntilEquals(item) {
				continue outer
			}
		}
		return item, true
	}
}

func (x *IntersectIter) AdvanceFrontUntilEquals(target tracedata.Timestamp) bool {
	all := true
	for _, it := range x.iters {
		if !it.AdvanceFrontUntilEquals(target) {
			all = false
		}
	}
	return all
}

func (x *IntersectIter) AdvanceBackUntilEquals(target tracedata.Timestamp) bool {
	all := true
	for _, it := range x.iters {
		if !it.AdvanceBackUntilEquals(target) {
			all = false
		}
	}
	return all
}

// SizeHint for an intersection: the minimum is zero (operands might
// share nothing) and the maximum is the smallest operand maximum.
func (x *IntersectIter) SizeHint() (int, int, bool) {
	maxKnown := false
	max := 0
	for i, it := range x.iters {
		_, m, known := it.SizeHint()
		if !known {
			continue
		}
		if !maxKnown || m < max {
			max = m
			maxKnown = true
		}
		_ = i
	}
	return 0, max, maxKnown
}
