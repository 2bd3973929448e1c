package engine

import (
	"brokle-tracehub/internal/filterexec"
	"brokle-tracehub/internal/tracedata"
)

// resolveID looks up a parsed span id's storage key across both the
// span index (ids originate from Create) and nowhere else -- events
// and span-events are never referenced by id, only by their parent.
func (e *SyncEngine) resolveID(id tracedata.FullSpanId) (tracedata.Timestamp, bool) {
	key, ok := e.spanIdx.IDs[id]
	return key, ok
}

// resolveRoot resolves a `#trace` predicate literal, the root span's
// own id, to the TraceRoot value ByTrace was populated with.
func (e *SyncEngine) resolveRoot(literal string) (tracedata.TraceRoot, bool) {
	id, err := tracedata.ParseFullSpanId(literal)
	if err != nil {
		return tracedata.TraceRoot{}, false
	}
	key, ok := e.resolveID(id)
	if !ok {
		return tracedata.TraceRoot{}, false
	}
	rootKey := key
	if id.Kind == tracedata.SpanIDOTel {
		rootKey = 0
	}
	return tracedata.TraceRoot{Kind: id.Kind, InstanceID: id.TraceID, RootSpanKey: rootKey}, true
}

func (e *SyncEngine) spanByKey(key tracedata.Timestamp) (*tracedata.Span, bool) {
	s, err := e.storage.GetSpan(key)
	if err != nil {
		return nil, false
	}
	return s, true
}

// attributeOf resolves name's context-merged value for key, walking
// ancestors the same way query-time residual predicates need to.
func (e *SyncEngine) attributeOf(key tracedata.Timestamp, name string) (tracedata.Value, bool) {
	if s, ok := e.spanByKey(key); ok {
		ctx, err := e.spanContext(s)
		if err != nil {
			return tracedata.Value{}, false
		}
		return ctx.Attribute(name)
	}
	if ev, err := e.storage.GetEvent(key); err == nil {
		ctx, err := e.eventContext(ev)
		if err != nil {
			return tracedata.Value{}, false
		}
		return ctx.Attribute(name)
	}
	return tracedata.Value{}, false
}

func (e *SyncEngine) contentOf(key tracedata.Timestamp) (tracedata.Value, bool) {
	ev, err := e.storage.GetEvent(key)
	if err != nil {
		return tracedata.Value{}, false
	}
	return ev.Content, true
}

func (e *SyncEngine) spanLowering() *filterexec.SpanLowering {
	return &filterexec.SpanLowering{
		Indexes:     e.spanIdx,
		ResolveID:   e.resolveID,
		ResolveRoot: e.resolveRoot,
		SpanByKey:   e.spanByKey,
		Attribute:   e.attributeOf,
	}
}

func (e *SyncEngine) eventLowering() *filterexec.EventLowering {
	return &filterexec.EventLowering{
		Indexes:     e.eventIdx,
		ResolveID:   e.resolveID,
		ResolveRoot: e.resolveRoot,
		Descendants: e.spanIdx.Descendants,
		Attribute:   e.attributeOf,
		Content:     e.contentOf,
	}
}
