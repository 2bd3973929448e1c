package index

import "brokle-tracehub/internal/tracedata"

// EventIndexes is the complete family of sorted indexes maintained over
// events.
type EventIndexes struct {
	All        *Sorted
	ByLevel    [int(tracedata.LevelFatal) + 1]*Sorted // index by Level, slot 0 unused
	ByResource *MapIndex[tracedata.Timestamp]
	ByNamespace *MapIndex[string]
	ByFunction *MapIndex[string]
	ByFile     *MapIndex[string]
	Roots      *Sorted // events with no parent
	ByTrace    *MapIndex[tracedata.TraceRoot]
	Content     *ValueIndex
	Attributes  *AttributeIndex
	Orphanage   *Orphanage
	Descendants *MapIndex[tracedata.Timestamp] // ancestor span key -> descendant event keys
}

func NewEventIndexes() *EventIndexes {
	idx := &EventIndexes{
		All:         NewSorted(),
		ByResource:  NewMapIndex[tracedata.Timestamp](),
		ByNamespace: NewMapIndex[string](),
		ByFunction:  NewMapIndex[string](),
		ByFile:      NewMapIndex[string](),
		Roots:       NewSorted(),
		ByTrace:     NewMapIndex[tracedata.TraceRoot](),
		Content:     NewValueIndex(),
		Attributes:  NewAttributeIndex(),
		Orphanage:   NewOrphanage(),
		Descendants: NewMapIndex[tracedata.Timestamp](),
	}
	for l := tracedata.LevelTrace; l <= tracedata.LevelFatal; l++ {
		idx.ByLevel[l] = NewSorted()
	}
	return idx
}

// Insert bookkeeps a newly-stored event. trace is the TraceRoot the
// event belongs to (via its span ancestry or its own resource); it may
// be the zero value if the event has no resolvable root yet (the
// caller re-indexes ByTrace later once adoption/reparenting resolves
// it). ancestorSpanKeys lists every ancestor span's key (nearest or
// root first, order does not matter), used to register this event as
// a descendant of each one.
func (idx *EventIndexes) Insert(e *tracedata.Event, trace tracedata.TraceRoot, attrs map[string]tracedata.Value, ancestorSpanKeys []tracedata.Timestamp) {
	key := e.Key()
	idx.All.Insert(key)
	idx.ByLevel[e.Level].Insert(key)
	idx.ByResource.Insert(e.ResourceKey, key)
	if e.Namespace != "" {
		idx.ByNamespace.Insert(e.Namespace, key)
	}
	if e.Function != "" {
		idx.ByFunction.Insert(e.Function, key)
	}
	if e.FileName != "" {
		idx.ByFile.Insert(e.FileName, key)
	}
	if e.ParentKey == nil {
		idx.Roots.Insert(key)
	}
	idx.ByTrace.Insert(trace, key)
	idx.Content.Insert(key, e.Content)
	for name, v := range attrs {
		idx.Attributes.Insert(name, key, v)
	}
	for _, ancestor := range ancestorSpanKeys {
		idx.Descendants.Insert(ancestor, key)
	}
}

// Remove undoes Insert's bookkeeping, e.g. for cascade delete.
func (idx *EventIndexes) Remove(e *tracedata.Event, trace tracedata.TraceRoot, attrs map[string]tracedata.Value, ancestorSpanKeys []tracedata.Timestamp) {
	key := e.Key()
	idx.All.Remove(key)
	idx.ByLevel[e.Level].Remove(key)
	idx.ByResource.Remove(e.ResourceKey, key)
	if e.Namespace != "" {
		idx.ByNamespace.Remove(e.Namespace, key)
	}
	if e.Function != "" {
		idx.ByFunction.Remove(e.Function, key)
	}
	if e.FileName != "" {
		idx.ByFile.Remove(e.FileName, key)
	}
	idx.Roots.Remove(key)
	idx.ByTrace.Remove(trace, key)
	idx.Content.Remove(key, e.Content)
	for name, v := range attrs {
		idx.Attributes.Remove(name, key, v)
	}
	for _, ancestor := range ancestorSpanKeys {
		idx.Descendants.Remove(ancestor, key)
	}
}

// Reparent moves key from the roots bucket to reflect a newly-resolved
// parent (called when an orphaned event is adopted by an arriving
// span).
func (idx *EventIndexes) Reparent(key tracedata.Timestamp) {
	idx.Roots.Remove(key)
}
