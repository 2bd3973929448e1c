package engine

import (
	"time"

	"brokle-tracehub/internal/filterexec"
	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/pkg/pagination"
)

// Query is one read request against the dataset (spec.md §4.4
// "Query"): a parsed filter, a traversal order, a result-size bound, a
// time window, and an optional pagination cursor.
type Query struct {
	Filter   filterlang.Node
	Order    pagination.Order
	Limit    int
	Start    tracedata.Timestamp
	End      tracedata.Timestamp
	Previous *tracedata.Timestamp
}

func (q *Query) normalize() {
	q.Limit = pagination.ClampLimit(q.Limit)
	if q.End == 0 {
		q.End = tracedata.Timestamp(^uint64(0) >> 1)
	}
}

// buildSpanIterator lowers q's filter against the span indexes,
// stratifies it (spec.md §4.4 "Stratification": a span query must
// reference the duration index before it can be soundly trimmed by
// start time), trims it to the time window and past any pagination
// cursor, and wraps it with the residual InTimeframe check that
// rejects spans whose own closed_at precedes the window (the bucket
// pruning in TrimWindow only narrows candidates, it cannot by itself
// guarantee every survivor actually closed inside the window).
func (e *SyncEngine) buildSpanIterator(q Query) filterexec.KeyIterator {
	basic := filterlang.Simplify(q.Filter)
	lowered := e.spanLowering().Lower(basic)
	lowered = filterexec.Stratify(lowered, e.spanIdx.Duration)
	lowered = filterexec.TrimWindow(lowered, q.Start, q.End)
	if q.Previous != nil {
		lowered = filterexec.TrimPagination(lowered, *q.Previous, q.Order)
	}
	it := filterexec.Build(lowered)
	start, end := q.Start, q.End
	return filterexec.NewFilteredIter(it, func(key tracedata.Timestamp) bool {
		s, ok := e.spanByKey(key)
		if !ok {
			return false
		}
		if s.ClosedAt != nil && *s.ClosedAt < start {
			return false
		}
		return s.CreatedAt <= end
	})
}

func (e *SyncEngine) buildEventIterator(q Query) filterexec.KeyIterator {
	basic := filterlang.Simplify(q.Filter)
	lowered := e.eventLowering().Lower(basic)
	lowered = filterexec.TrimWindow(lowered, q.Start, q.End)
	if q.Previous != nil {
		lowered = filterexec.TrimPagination(lowered, *q.Previous, q.Order)
	}
	it := filterexec.Build(lowered)
	// TrimWindow only bounds Single leaves from above; an event is a
	// point in time, so the window's start is enforced here.
	start := q.Start
	return filterexec.NewFilteredIter(it, func(key tracedata.Timestamp) bool {
		return key >= start
	})
}

func collect(it filterexec.KeyIterator, order pagination.Order, limit int) []tracedata.Timestamp {
	if order == pagination.Asc {
		return filterexec.CollectForward(it, limit)
	}
	return filterexec.CollectBackward(it, limit)
}

// QuerySpan evaluates q against the span indexes and materializes the
// matching spans, bounded by q.Limit and ordered per q.Order.
func (e *SyncEngine) QuerySpan(q Query) ([]*tracedata.Span, error) {
	q.normalize()
	var result []*tracedata.Span
	var firstErr error
	e.trackCommand(func() {
		it := e.buildSpanIterator(q)
		keys := collect(it, q.Order, q.Limit)
		for _, key := range keys {
			s, err := e.storage.GetSpan(key)
			if err != nil {
				firstErr = err
				return
			}
			result = append(result, s)
		}
	})
	return result, firstErr
}

// QueryEvent evaluates q against the event indexes.
func (e *SyncEngine) QueryEvent(q Query) ([]*tracedata.Event, error) {
	q.normalize()
	var result []*tracedata.Event
	var firstErr error
	e.trackCommand(func() {
		it := e.buildEventIterator(q)
		keys := collect(it, q.Order, q.Limit)
		for _, key := range keys {
			ev, err := e.storage.GetEvent(key)
			if err != nil {
				firstErr = err
				return
			}
			result = append(result, ev)
		}
	})
	return result, firstErr
}

// QuerySpanCount counts matches without materializing entities,
// consuming the iterator only when SizeHint cannot report an exact
// count (spec.md §4.4 "Count queries use the iterator's size_hint when
// min==max, otherwise consume it").
func (e *SyncEngine) QuerySpanCount(q Query) int {
	q.normalize()
	q.Limit = 0
	var n int
	e.trackCommand(func() {
		it := e.buildSpanIterator(q)
		n = countIterator(it)
	})
	return n
}

// QueryEventCount is QuerySpanCount's event-index counterpart.
func (e *SyncEngine) QueryEventCount(q Query) int {
	q.normalize()
	q.Limit = 0
	var n int
	e.trackCommand(func() {
		it := e.buildEventIterator(q)
		n = countIterator(it)
	})
	return n
}

func countIterator(it filterexec.KeyIterator) int {
	min, max, known := it.SizeHint()
	if known && min == max {
		return min
	}
	n := 0
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		n++
	}
	return n
}

// StatsView reports dataset-wide summary counters (SPEC_FULL's
// supplemented "Status/stats view": entity counts and the dataset's
// observed time bounds, on top of spec.md §4.5's load tracking).
type StatsView struct {
	TotalSpans    int
	TotalEvents   int
	TotalResources int
	DatasetStart  tracedata.Timestamp
	DatasetEnd    tracedata.Timestamp
}

// QueryStats computes StatsView from the current index state.
func (e *SyncEngine) QueryStats() StatsView {
	var stats StatsView
	e.trackCommand(func() {
		stats.TotalSpans = e.spanIdx.All.Len()
		stats.TotalEvents = e.eventIdx.All.Len()
		stats.TotalResources = len(e.resources)

		lo, hi := firstLast(e.spanIdx.All.Slice())
		elo, ehi := firstLast(e.eventIdx.All.Slice())
		stats.DatasetStart = minNonZero(lo, elo)
		stats.DatasetEnd = maxTS(hi, ehi)
	})
	return stats
}

func firstLast(keys []tracedata.Timestamp) (tracedata.Timestamp, tracedata.Timestamp) {
	if len(keys) == 0 {
		return 0, 0
	}
	return keys[0], keys[len(keys)-1]
}

func minNonZero(a, b tracedata.Timestamp) tracedata.Timestamp {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func maxTS(a, b tracedata.Timestamp) tracedata.Timestamp {
	if a > b {
		return a
	}
	return b
}

// EngineStatus reports the command-loop utilization since the last
// poll (spec.md §4.5 "Status"): load = min(busy/elapsed, 1) * 100%.
type EngineStatus struct {
	LoadPercent float64
	Uptime      float64 // seconds since NewSyncEngine
}

// GetStatus samples and resets the busy/elapsed accounting window.
func (e *SyncEngine) GetStatus() EngineStatus {
	now := time.Now()
	elapsed := now.Sub(e.lastPollAt).Seconds()
	var load float64
	if elapsed > 0 {
		load = (float64(e.busyNanos) / 1e9) / elapsed
		if load > 1 {
			load = 1
		}
	}
	status := EngineStatus{LoadPercent: load * 100, Uptime: now.Sub(e.startedAt).Seconds()}
	e.busyNanos = 0
	e.lastPollAt = now
	return status
}
