package filterexec

import "brokle-tracehub/internal/tracedata"

// NotIter walks an "all" slice, yielding only keys the negated operand
// does not match. Negation materializes its operand's full match set
// once up front -- a negated branch usually narrows a much larger
// "all" walk, so the one-time drain is cheaper than re-running the
// operand's iterator for every membership check.
type NotIter struct {
	all     KeyIterator
	matched map[tracedata.Timestamp]struct{}
}

// NewNotIter builds a Not iterator over the given "all" walk, negating
// every key inner yields.
func NewNotIter(all KeyIterator, inner KeyIterator) *NotIter {
	matched := make(map[tracedata.Timestamp]struct{})
	for {
		k, ok := inner.Next()
		if !ok {
			break
		}
		matched[k] = struct{}{}
	}
	return &NotIter{all: all, matched: matched}
}

func (n *NotIter) matches(k tracedata.Timestamp) bool {
	_, excluded := n.matched[k]
	return !excluded
}

func (n *NotIter) Next() (tracedata.Timestamp, bool) {
	for {
		k, ok := n.all.Next()
		if !ok {
			return 0, false
		}
		if n.matches(k) {
			return k, true
		}
	}
}

func (n *NotIter) NextBack() (tracedata.Timestamp, bool) {
	for {
		k, ok := n.all.NextBack()
		if !ok {
			return 0, false
		}
		if n.matches(k) {
			return k, true
		}
	}
}

func (n *NotIter) AdvanceFrontUntilEquals(target tracedata.Timestamp) bool {
	if !n.all.AdvanceFrontUntilEquals(target) {
		return false
	}
	return n.matches(target)
}

func (n *NotIter) AdvanceBackUntilEquals(target tracedata.Timestamp) bool {
	if !n.all.AdvanceBackUntilEquals(target) {
		return false
	}
	return n.matches(target)
}

func (n *NotIter) SizeHint() (int, int, bool) {
	_, max, known := n.all.SizeHint()
	return 0, max, known
}
