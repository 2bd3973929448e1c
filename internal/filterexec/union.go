package filterexec

import "brokle-tracehub/internal/tracedata"

// UnionIter is a k-way sorted-set union. It backs Or nodes. The current
// min/max operand is found by linear scan rather than a heap; most
// unions are small (duration-bucket fan-out is ten wide), but a
// wildcard over a grouped index yields one operand per matching group.
type UnionIter struct {
	iters    []KeyIterator
	distinct bool // operands are known not to overlap; skip dedup work

	frontVal   []tracedata.Timestamp
	frontValid []bool
	backVal    []tracedata.Timestamp
	backValid  []bool

	lastFront   tracedata.Timestamp
	haveLastF   bool
	lastBack    tracedata.Timestamp
	haveLastB   bool
}

func NewUnionIter(iters []KeyIterator, distinct bool) *UnionIter {
	return &UnionIter{
		iters:      iters,
		distinct:   distinct,
		frontVal:   make([]tracedata.Timestamp, len(iters)),
		frontValid: make([]bool, len(iters)),
		backVal:    make([]tracedata.Timestamp, len(iters)),
		backValid:  make([]bool, len(iters)),
	}
}

func (u *UnionIter) fillFront(i int) {
	if u.frontValid[i] {
		return
	}
	if v, ok := u.iters[i].Next(); ok {
		u.frontVal[i] = v
		u.frontValid[i] = true
	}
}

func (u *UnionIter) fillBack(i int) {
	if u.backValid[i] {
		return
	}
	if v, ok := u.iters[i].NextBack(); ok {
		u.backVal[i] = v
		u.backValid[i] = true
	}
}

func (u *UnionIter) Next() (tracedata.Timestamp, bool) {
	for {
		best := -1
		for i := range u.iters {
			u.fillFront(i)
			if !u.frontValid[i] {
				continue
			}
			if best == -1 || u.frontVal[i] < u.frontVal[best] {
				best = i
			}
		}
		if best == -1 {
			return 0, false
		}
		v := u.frontVal[best]
		u.frontValid[best] = false

		if !u.distinct && u.haveLastF && v == u.lastFront {
			continue // duplicate across operands, already yielded
		}
		u.lastFront, u.haveLastF = v, true
		return v, true
	}
}

func (u *UnionIter) NextBack() (tracedata.Timestamp, bool) {
	for {
		best := -1
		for i := range u.iters {
			u.fillBack(i)
			if !u.backValid[i] {
				continue
			}
			if best == -1 || u.backVal[i] > u.backVal[best] {
				best = i
			}
		}
		if best == -1 {
			return 0, false
		}
		v := u.backVal[best]
		u.backValid[best] = false

		if !u.distinct && u.haveLastB && v == u.lastBack {
			continue
		}
		u.lastBack, u.haveLastB = v, true
		return v, true
	}
}

func (u *UnionIter) AdvanceFrontUntilEquals(target tracedata.Timestamp) bool {
	found := false
	for i, it := range u.iters {
		if u.frontValid[i] && u.frontVal[i] == target {
			found = true
			continue
		}
		u.frontValid[i] = false
		if it.AdvanceFrontUntilEquals(target) {
			found = true
		}
	}
	return found
}

func (u *UnionIter) AdvanceBackUntilEquals(target tracedata.Timestamp) bool {
	found := false
	for i, it := range u.iters {
		if u.backValid[i] && u.backVal[i] == target {
			found = true
			continue
		}
		u.backValid[i] = false
		if it.AdvanceBackUntilEquals(target) {
			found = true
		}
	}
	return found
}

func (u *UnionIter) SizeHint() (int, int, bool) {
	maxKnown := true
	total := 0
	for _, it := range u.iters {
		_, m, known := it.SizeHint()
		if !known {
			maxKnown = false
			break
		}
		total += m
	}
	return 0, total, maxKnown
}
