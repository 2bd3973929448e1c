package engine

import (
	"sort"

	"brokle-tracehub/internal/tracedata"
)

// DeleteParams selects the trace roots a delete targets (spec.md §4.5
// "Delete"): every root entity in (or, if !Inside, outside) [Start,
// End] is expanded to its full trace -- every descendant span, event,
// and span-event -- before anything is removed.
type DeleteParams struct {
	Start   tracedata.Timestamp
	End     tracedata.Timestamp
	Inside  bool
	DryRun  bool
}

// DeleteResult reports how many entities of each kind were (or, for a
// dry run, would be) removed.
type DeleteResult struct {
	Spans      int
	Events     int
	SpanEvents int
}

type deletePlan struct {
	spanKeys      []tracedata.Timestamp
	eventKeys     []tracedata.Timestamp
	spanEventKeys []tracedata.Timestamp
}

// rootsInWindow filters a root-key slice to those inside, or outside,
// [start, end].
func rootsInWindow(keys []tracedata.Timestamp, start, end tracedata.Timestamp, inside bool) []tracedata.Timestamp {
	var out []tracedata.Timestamp
	for _, k := range keys {
		in := k >= start && k <= end
		if in == inside {
			out = append(out, k)
		}
	}
	return out
}

func dedupeSorted(keys []tracedata.Timestamp) []tracedata.Timestamp {
	if len(keys) < 2 {
		return keys
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}

// planDelete expands every selected root span/event to its full trace:
// every descendant span and event (via the Descendants index, which
// already registers an entity as its own first descendant) and every
// span-event whose span_key falls in the selected span set.
func (e *SyncEngine) planDelete(p DeleteParams) deletePlan {
	rootSpans := rootsInWindow(e.spanIdx.Roots.Slice(), p.Start, p.End, p.Inside)
	rootEvents := rootsInWindow(e.eventIdx.Roots.Slice(), p.Start, p.End, p.Inside)

	var spanKeys, eventKeys []tracedata.Timestamp
	for _, root := range rootSpans {
		if b := e.spanIdx.Descendants.Get(root); b != nil {
			spanKeys = append(spanKeys, b.Slice()...)
		}
		if b := e.eventIdx.Descendants.Get(root); b != nil {
			eventKeys = append(eventKeys, b.Slice()...)
		}
	}
	eventKeys = append(eventKeys, rootEvents...)

	spanKeys = dedupeSorted(spanKeys)
	eventKeys = dedupeSorted(eventKeys)

	spanSet := make(map[tracedata.Timestamp]struct{}, len(spanKeys))
	for _, k := range spanKeys {
		spanSet[k] = struct{}{}
	}

	var spanEventKeys []tracedata.Timestamp
	it := e.storage.GetAllSpanEvents()
	for {
		se, ok := it.Next()
		if !ok {
			break
		}
		if _, in := spanSet[se.SpanKey]; in {
			spanEventKeys = append(spanEventKeys, se.Key())
		}
	}

	return deletePlan{spanKeys: spanKeys, eventKeys: eventKeys, spanEventKeys: spanEventKeys}
}

// spanRemoval and eventRemoval hold the bookkeeping the index.Remove methods need,
// captured before storage deletion makes ancestor lookups impossible.
type spanRemoval struct {
	span         *tracedata.Span
	trace        tracedata.TraceRoot
	attrs        map[string]tracedata.Value
	ancestorKeys []tracedata.Timestamp
}

type eventRemoval struct {
	event        *tracedata.Event
	trace        tracedata.TraceRoot
	attrs        map[string]tracedata.Value
	ancestorKeys []tracedata.Timestamp
}

// Delete removes (or, if DryRun, only counts) every entity reachable
// from a root selected by DeleteParams. Storage is dropped smallest
// scope first -- events, then span-events, then spans -- so an
// interruption mid-delete leaves at worst orphaned leaves rather than a
// span with dangling children (spec.md §4.5 "Delete").
func (e *SyncEngine) Delete(p DeleteParams) (DeleteResult, error) {
	var result DeleteResult
	var firstErr error
	e.trackCommand(func() {
		plan := e.planDelete(p)
		result = DeleteResult{Spans: len(plan.spanKeys), Events: len(plan.eventKeys), SpanEvents: len(plan.spanEventKeys)}
		if p.DryRun {
			return
		}

		spanRemovals := make([]spanRemoval, 0, len(plan.spanKeys))
		for _, key := range plan.spanKeys {
			s, err := e.storage.GetSpan(key)
			if err != nil {
				firstErr = err
				return
			}
			ctx, err := e.spanContext(s)
			if err != nil {
				firstErr = err
				return
			}
			spanRemovals = append(spanRemovals, spanRemoval{
				span: s, trace: ctx.TraceRoot(), attrs: ctx.Attributes(),
				ancestorKeys: ancestorSpanKeysOf(ctx.Ancestors()),
			})
		}

		eventRemovals := make([]eventRemoval, 0, len(plan.eventKeys))
		for _, key := range plan.eventKeys {
			ev, err := e.storage.GetEvent(key)
			if err != nil {
				firstErr = err
				return
			}
			ctx, err := e.eventContext(ev)
			if err != nil {
				firstErr = err
				return
			}
			eventRemovals = append(eventRemovals, eventRemoval{
				event: ev, trace: ctx.TraceRoot(), attrs: ctx.Attributes(),
				ancestorKeys: ancestorSpanKeysOf(ctx.Ancestors()),
			})
		}

		// Notify removals while the index still matches, then unwind
		// storage and index state smallest-scope first.
		for _, r := range eventRemovals {
			e.notifyEventSubscribers(r.event.Key(), nil)
		}
		for _, r := range spanRemovals {
			e.notifySpanSubscribers(r.span.Key(), nil)
		}

		if err := e.storage.DropEvents(plan.eventKeys); err != nil {
			firstErr = err
			return
		}
		if err := e.storage.DropSpanEvents(plan.spanEventKeys); err != nil {
			firstErr = err
			return
		}
		if err := e.storage.DropSpans(plan.spanKeys); err != nil {
			firstErr = err
			return
		}

		for _, r := range eventRemovals {
			e.eventIdx.Remove(r.event, r.trace, r.attrs, r.ancestorKeys)
			e.totalEntities--
		}
		for _, key := range plan.spanEventKeys {
			e.spanEventKeys.Remove(key)
		}
		for _, r := range spanRemovals {
			e.spanIdx.Remove(r.span, r.trace, r.attrs, r.ancestorKeys)
			e.totalEntities--
		}
	})
	return result, firstErr
}
