package index

import "brokle-tracehub/internal/tracedata"

// SpanIndexes is the complete family of sorted indexes maintained over
// spans: the same shape as EventIndexes plus the id->key lookup map and
// the stratified duration index.
type SpanIndexes struct {
	All         *Sorted
	ByLevel     [int(tracedata.LevelFatal) + 1]*Sorted
	ByResource  *MapIndex[tracedata.Timestamp]
	ByNamespace *MapIndex[string]
	ByFunction  *MapIndex[string]
	ByFile      *MapIndex[string]
	ByName      *MapIndex[string]
	Roots       *Sorted // spans with no parent
	ByTrace     *MapIndex[tracedata.TraceRoot]
	Attributes  *AttributeIndex
	Orphanage   *Orphanage
	Descendants *MapIndex[tracedata.Timestamp] // ancestor span key -> descendant span keys (self included)

	IDs      map[tracedata.FullSpanId]tracedata.Timestamp
	Duration *DurationIndex
}

func NewSpanIndexes() *SpanIndexes {
	idx := &SpanIndexes{
		All:         NewSorted(),
		ByResource:  NewMapIndex[tracedata.Timestamp](),
		ByNamespace: NewMapIndex[string](),
		ByFunction:  NewMapIndex[string](),
		ByFile:      NewMapIndex[string](),
		ByName:      NewMapIndex[string](),
		Roots:       NewSorted(),
		ByTrace:     NewMapIndex[tracedata.TraceRoot](),
		Attributes:  NewAttributeIndex(),
		Orphanage:   NewOrphanage(),
		Descendants: NewMapIndex[tracedata.Timestamp](),
		IDs:         make(map[tracedata.FullSpanId]tracedata.Timestamp),
		Duration:    NewDurationIndex(),
	}
	for l := tracedata.LevelTrace; l <= tracedata.LevelFatal; l++ {
		idx.ByLevel[l] = NewSorted()
	}
	return idx
}

// Insert bookkeeps a newly-created (open) span. ancestorSpanKeys lists
// every strict ancestor span's key (order does not matter); the span
// is registered as its own descendant too, so Descendants.Get(key)
// always includes key itself.
func (idx *SpanIndexes) Insert(s *tracedata.Span, trace tracedata.TraceRoot, attrs map[string]tracedata.Value, ancestorSpanKeys []tracedata.Timestamp) {
	key := s.Key()
	idx.All.Insert(key)
	idx.ByLevel[s.Level].Insert(key)
	idx.ByResource.Insert(s.ResourceKey, key)
	if s.Namespace != "" {
		idx.ByNamespace.Insert(s.Namespace, key)
	}
	if s.Function != "" {
		idx.ByFunction.Insert(s.Function, key)
	}
	if s.FileName != "" {
		idx.ByFile.Insert(s.FileName, key)
	}
	if s.Name != "" {
		idx.ByName.Insert(s.Name, key)
	}
	if s.ParentKey == nil {
		idx.Roots.Insert(key)
	}
	idx.ByTrace.Insert(trace, key)
	idx.IDs[s.ID] = key
	idx.Duration.InsertOpen(key)
	idx.Descendants.Insert(key, key)
	for _, ancestor := range ancestorSpanKeys {
		idx.Descendants.Insert(ancestor, key)
	}
	for name, v := range attrs {
		idx.Attributes.Insert(name, key, v)
	}
}

// Close moves a span from the open duration bucket to its closed
// stratum. Returns false if the span was already closed (second Close).
func (idx *SpanIndexes) Close(createdAt, closedAt tracedata.Timestamp) bool {
	return idx.Duration.Close(createdAt, closedAt)
}

// Remove undoes Insert's bookkeeping for cascade delete.
func (idx *SpanIndexes) Remove(s *tracedata.Span, trace tracedata.TraceRoot, attrs map[string]tracedata.Value, ancestorSpanKeys []tracedata.Timestamp) {
	key := s.Key()
	idx.All.Remove(key)
	idx.ByLevel[s.Level].Remove(key)
	idx.ByResource.Remove(s.ResourceKey, key)
	if s.Namespace != "" {
		idx.ByNamespace.Remove(s.Namespace, key)
	}
	if s.Function != "" {
		idx.ByFunction.Remove(s.Function, key)
	}
	if s.FileName != "" {
		idx.ByFile.Remove(s.FileName, key)
	}
	if s.Name != "" {
		idx.ByName.Remove(s.Name, key)
	}
	idx.Roots.Remove(key)
	idx.ByTrace.Remove(trace, key)
	delete(idx.IDs, s.ID)
	idx.Duration.Remove(key, s.ClosedAt)
	idx.Descendants.Remove(key, key)
	for _, ancestor := range ancestorSpanKeys {
		idx.Descendants.Remove(ancestor, key)
	}
	for name, v := range attrs {
		idx.Attributes.Remove(name, key, v)
	}
}

// Reparent drops key from the roots bucket once a parent is resolved.
func (idx *SpanIndexes) Reparent(key tracedata.Timestamp) {
	idx.Roots.Remove(key)
}

// KeyForID resolves a FullSpanId to its storage key, if known.
func (idx *SpanIndexes) KeyForID(id tracedata.FullSpanId) (tracedata.Timestamp, bool) {
	k, ok := idx.IDs[id]
	return k, ok
}
