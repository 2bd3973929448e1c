package tracestore

import (
	"sync"

	"brokle-tracehub/internal/tracedata"
)

// Batched wraps a Store with a copy-on-write write-behind buffer (spec.md
// §9): mutating calls land in an in-memory working set and the
// underlying Store is only touched on Sync. Reads prefer the working
// set, falling back to the backing store. This lets the insert path run
// ahead of a slow backend (file/parquet) without stalling the sync
// engine's command loop on disk I/O.
type Batched struct {
	backing Store

	mu         sync.Mutex
	resources  map[tracedata.Timestamp]*tracedata.Resource
	spans      map[tracedata.Timestamp]*tracedata.Span
	spanEvents map[tracedata.Timestamp]*tracedata.SpanEvent
	events     map[tracedata.Timestamp]*tracedata.Event

	droppedResources  map[tracedata.Timestamp]struct{}
	droppedSpans      map[tracedata.Timestamp]struct{}
	droppedSpanEvents map[tracedata.Timestamp]struct{}
	droppedEvents     map[tracedata.Timestamp]struct{}
}

func NewBatched(backing Store) *Batched {
	return &Batched{
		backing:           backing,
		resources:         make(map[tracedata.Timestamp]*tracedata.Resource),
		spans:             make(map[tracedata.Timestamp]*tracedata.Span),
		spanEvents:        make(map[tracedata.Timestamp]*tracedata.SpanEvent),
		events:            make(map[tracedata.Timestamp]*tracedata.Event),
		droppedResources:  make(map[tracedata.Timestamp]struct{}),
		droppedSpans:      make(map[tracedata.Timestamp]struct{}),
		droppedSpanEvents: make(map[tracedata.Timestamp]struct{}),
		droppedEvents:     make(map[tracedata.Timestamp]struct{}),
	}
}

var _ Store = (*Batched)(nil)

func (b *Batched) GetResource(key tracedata.Timestamp) (*tracedata.Resource, error) {
	b.mu.Lock()
	if r, ok := b.resources[key]; ok {
		b.mu.Unlock()
		return r, nil
	}
	dropped := isDropped(b.droppedResources, key)
	b.mu.Unlock()
	if dropped {
		return nil, tracedata.ErrNotFound
	}
	return b.backing.GetResource(key)
}

func (b *Batched) GetSpan(key tracedata.Timestamp) (*tracedata.Span, error) {
	b.mu.Lock()
	if s, ok := b.spans[key]; ok {
		b.mu.Unlock()
		return s, nil
	}
	dropped := isDropped(b.droppedSpans, key)
	b.mu.Unlock()
	if dropped {
		return nil, tracedata.ErrNotFound
	}
	return b.backing.GetSpan(key)
}

func (b *Batched) GetSpanEvent(key tracedata.Timestamp) (*tracedata.SpanEvent, error) {
	b.mu.Lock()
	if e, ok := b.spanEvents[key]; ok {
		b.mu.Unlock()
		return e, nil
	}
	dropped := isDropped(b.droppedSpanEvents, key)
	b.mu.Unlock()
	if dropped {
		return nil, tracedata.ErrNotFound
	}
	return b.backing.GetSpanEvent(key)
}

func (b *Batched) GetEvent(key tracedata.Timestamp) (*tracedata.Event, error) {
	b.mu.Lock()
	if e, ok := b.events[key]; ok {
		b.mu.Unlock()
		return e, nil
	}
	dropped := isDropped(b.droppedEvents, key)
	b.mu.Unlock()
	if dropped {
		return nil, tracedata.ErrNotFound
	}
	return b.backing.GetEvent(key)
}

func isDropped[K comparable](set map[K]struct{}, key K) bool {
	_, ok := set[key]
	return ok
}

// GetAllResources merges the pending working set over the backing
// store's full scan, letting pending edits and drops win.
func (b *Batched) GetAllResources() Iter[*tracedata.Resource] {
	b.mu.Lock()
	pending := make(map[tracedata.Timestamp]*tracedata.Resource, len(b.resources))
	for k, v := range b.resources {
		pending[k] = v
	}
	dropped := copySet(b.droppedResources)
	b.mu.Unlock()

	out := make([]*tracedata.Resource, 0, len(pending))
	seen := make(map[tracedata.Timestamp]struct{}, len(pending))
	it := b.backing.GetAllResources()
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		k := v.Key()
		if _, d := dropped[k]; d {
			continue
		}
		if p, has := pending[k]; has {
			out = append(out, p)
		} else {
			out = append(out, v)
		}
		seen[k] = struct{}{}
	}
	for k, v := range pending {
		if _, already := seen[k]; !already {
			out = append(out, v)
		}
	}
	return newSliceIter(out)
}

func (b *Batched) GetAllSpans() Iter[*tracedata.Span] {
	b.mu.Lock()
	pending := make(map[tracedata.Timestamp]*tracedata.Span, len(b.spans))
	for k, v := range b.spans {
		pending[k] = v
	}
	dropped := copySet(b.droppedSpans)
	b.mu.Unlock()

	out := make([]*tracedata.Span, 0, len(pending))
	seen := make(map[tracedata.Timestamp]struct{}, len(pending))
	it := b.backing.GetAllSpans()
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		k := v.Key()
		if _, d := dropped[k]; d {
			continue
		}
		if p, has := pending[k]; has {
			out = append(out, p)
		} else {
			out = append(out, v)
		}
		seen[k] = struct{}{}
	}
	for k, v := range pending {
		if _, already := seen[k]; !already {
			out = append(out, v)
		}
	}
	return newSliceIter(out)
}

func (b *Batched) GetAllSpanEvents() Iter[*tracedata.SpanEvent] {
	b.mu.Lock()
	pending := make(map[tracedata.Timestamp]*tracedata.SpanEvent, len(b.spanEvents))
	for k, v := range b.spanEvents {
		pending[k] = v
	}
	dropped := copySet(b.droppedSpanEvents)
	b.mu.Unlock()

	out := make([]*tracedata.SpanEvent, 0, len(pending))
	seen := make(map[tracedata.Timestamp]struct{}, len(pending))
	it := b.backing.GetAllSpanEvents()
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		k := v.Key()
		if _, d := dropped[k]; d {
			continue
		}
		if p, has := pending[k]; has {
			out = append(out, p)
		} else {
			out = append(out, v)
		}
		seen[k] = struct{}{}
	}
	for k, v := range pending {
		if _, already := seen[k]; !already {
			out = append(out, v)
		}
	}
	return newSliceIter(out)
}

func (b *Batched) GetAllEvents() Iter[*tracedata.Event] {
	b.mu.Lock()
	pending := make(map[tracedata.Timestamp]*tracedata.Event, len(b.events))
	for k, v := range b.events {
		pending[k] = v
	}
	dropped := copySet(b.droppedEvents)
	b.mu.Unlock()

	out := make([]*tracedata.Event, 0, len(pending))
	seen := make(map[tracedata.Timestamp]struct{}, len(pending))
	it := b.backing.GetAllEvents()
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		k := v.Key()
		if _, d := dropped[k]; d {
			continue
		}
		if p, has := pending[k]; has {
			out = append(out, p)
		} else {
			out = append(out, v)
		}
		seen[k] = struct{}{}
	}
	for k, v := range pending {
		if _, already := seen[k]; !already {
			out = append(out, v)
		}
	}
	return newSliceIter(out)
}

func copySet[K comparable](m map[K]struct{}) map[K]struct{} {
	out := make(map[K]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func (b *Batched) InsertResource(r *tracedata.Resource) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.resources[r.Key()]; exists {
		return tracedata.NewLogicalError("resource key already exists", nil)
	}
	b.resources[r.Key()] = r
	delete(b.droppedResources, r.Key())
	return nil
}

func (b *Batched) InsertSpan(s *tracedata.Span) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.spans[s.Key()]; exists {
		return tracedata.NewLogicalError("span key already exists", nil)
	}
	b.spans[s.Key()] = s
	delete(b.droppedSpans, s.Key())
	return nil
}

func (b *Batched) InsertSpanEvent(e *tracedata.SpanEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.spanEvents[e.Key()]; exists {
		return tracedata.NewLogicalError("span event key already exists", nil)
	}
	b.spanEvents[e.Key()] = e
	delete(b.droppedSpanEvents, e.Key())
	return nil
}

func (b *Batched) InsertEvent(e *tracedata.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.events[e.Key()]; exists {
		return tracedata.NewLogicalError("event key already exists", nil)
	}
	b.events[e.Key()] = e
	delete(b.droppedEvents, e.Key())
	return nil
}

// mutableSpan returns the span to mutate, copying it into the working
// set on first touch so a held backing-store pointer is never mutated
// in place (copy-on-write).
func (b *Batched) mutableSpan(key tracedata.Timestamp) (*tracedata.Span, error) {
	if s, ok := b.spans[key]; ok {
		return s, nil
	}
	s, err := b.backing.GetSpan(key)
	if err != nil {
		return nil, err
	}
	cp := *s
	b.spans[key] = &cp
	return &cp, nil
}

func (b *Batched) mutableEvent(key tracedata.Timestamp) (*tracedata.Event, error) {
	if e, ok := b.events[key]; ok {
		return e, nil
	}
	e, err := b.backing.GetEvent(key)
	if err != nil {
		return nil, err
	}
	cp := *e
	b.events[key] = &cp
	return &cp, nil
}

func (b *Batched) UpdateSpanClosed(key tracedata.Timestamp, closedAt tracedata.Timestamp, busy *uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.mutableSpan(key)
	if err != nil {
		return tracedata.ErrUnknownSpanID
	}
	if s.ClosedAt != nil {
		return tracedata.ErrSpanAlreadyClosed
	}
	ca := closedAt
	s.ClosedAt = &ca
	s.Busy = busy
	return nil
}

func (b *Batched) UpdateSpanAttributes(key tracedata.Timestamp, attrs map[string]tracedata.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.mutableSpan(key)
	if err != nil {
		return tracedata.ErrUnknownSpanID
	}
	merged := make(map[string]tracedata.Value, len(s.Attributes)+len(attrs))
	for k, v := range s.Attributes {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}
	s.Attributes = merged
	return nil
}

func (b *Batched) UpdateSpanLink(key tracedata.Timestamp, target tracedata.FullSpanId, attrs map[string]tracedata.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.mutableSpan(key)
	if err != nil {
		return tracedata.ErrUnknownSpanID
	}
	s.Links = append(append([]tracedata.SpanLink{}, s.Links...), tracedata.SpanLink{Target: target, Attributes: attrs})
	return nil
}

func (b *Batched) UpdateSpanParents(parentKey tracedata.Timestamp, keys []tracedata.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		s, err := b.mutableSpan(k)
		if err != nil {
			continue
		}
		pk := parentKey
		s.ParentKey = &pk
	}
	return nil
}

func (b *Batched) UpdateEventParents(parentKey tracedata.Timestamp, keys []tracedata.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		e, err := b.mutableEvent(k)
		if err != nil {
			continue
		}
		pk := parentKey
		e.ParentKey = &pk
	}
	return nil
}

func (b *Batched) DropResources(keys []tracedata.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.resources, k)
		b.droppedResources[k] = struct{}{}
	}
	return nil
}

func (b *Batched) DropSpans(keys []tracedata.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.spans, k)
		b.droppedSpans[k] = struct{}{}
	}
	return nil
}

func (b *Batched) DropSpanEvents(keys []tracedata.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.spanEvents, k)
		b.droppedSpanEvents[k] = struct{}{}
	}
	return nil
}

func (b *Batched) DropEvents(keys []tracedata.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.events, k)
		b.droppedEvents[k] = struct{}{}
	}
	return nil
}

// Sync flushes the working set to the backing store and clears it.
func (b *Batched) Sync() error {
	b.mu.Lock()
	resources := b.resources
	spans := b.spans
	spanEvents := b.spanEvents
	events := b.events
	droppedResources := keysOf(b.droppedResources)
	droppedSpans := keysOf(b.droppedSpans)
	droppedSpanEvents := keysOf(b.droppedSpanEvents)
	droppedEvents := keysOf(b.droppedEvents)

	b.resources = make(map[tracedata.Timestamp]*tracedata.Resource)
	b.spans = make(map[tracedata.Timestamp]*tracedata.Span)
	b.spanEvents = make(map[tracedata.Timestamp]*tracedata.SpanEvent)
	b.events = make(map[tracedata.Timestamp]*tracedata.Event)
	b.droppedResources = make(map[tracedata.Timestamp]struct{})
	b.droppedSpans = make(map[tracedata.Timestamp]struct{})
	b.droppedSpanEvents = make(map[tracedata.Timestamp]struct{})
	b.droppedEvents = make(map[tracedata.Timestamp]struct{})
	b.mu.Unlock()

	if len(droppedResources) > 0 {
		if err := b.backing.DropResources(droppedResources); err != nil {
			return err
		}
	}
	if len(droppedSpans) > 0 {
		if err := b.backing.DropSpans(droppedSpans); err != nil {
			return err
		}
	}
	if len(droppedSpanEvents) > 0 {
		if err := b.backing.DropSpanEvents(droppedSpanEvents); err != nil {
			return err
		}
	}
	if len(droppedEvents) > 0 {
		if err := b.backing.DropEvents(droppedEvents); err != nil {
			return err
		}
	}

	for _, r := range resources {
		if err := flushInsertResource(b.backing, r); err != nil {
			return err
		}
	}
	for _, s := range spans {
		if err := flushInsertOrUpdateSpan(b.backing, s); err != nil {
			return err
		}
	}
	for _, e := range spanEvents {
		if err := flushInsertSpanEvent(b.backing, e); err != nil {
			return err
		}
	}
	for _, e := range events {
		if err := flushInsertOrUpdateEvent(b.backing, e); err != nil {
			return err
		}
	}
	return b.backing.Sync()
}

func keysOf[K comparable](m map[K]struct{}) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// flushInsertResource inserts if absent; resources are immutable once
// created so there is no update path to reconcile.
func flushInsertResource(backing Store, r *tracedata.Resource) error {
	if _, err := backing.GetResource(r.Key()); err == nil {
		return nil
	}
	return backing.InsertResource(r)
}

// flushInsertOrUpdateSpan inserts a new span wholesale, or reconciles
// field-level changes onto an existing backing row.
func flushInsertOrUpdateSpan(backing Store, s *tracedata.Span) error {
	existing, err := backing.GetSpan(s.Key())
	if err != nil {
		return backing.InsertSpan(s)
	}
	if existing.ClosedAt == nil && s.ClosedAt != nil {
		if err := backing.UpdateSpanClosed(s.Key(), *s.ClosedAt, s.Busy); err != nil {
			return err
		}
	}
	if len(s.Attributes) > 0 {
		if err := backing.UpdateSpanAttributes(s.Key(), s.Attributes); err != nil {
			return err
		}
	}
	if s.ParentKey != nil {
		if err := backing.UpdateSpanParents(*s.ParentKey, []tracedata.Timestamp{s.Key()}); err != nil {
			return err
		}
	}
	return nil
}

func flushInsertSpanEvent(backing Store, e *tracedata.SpanEvent) error {
	if _, err := backing.GetSpanEvent(e.Key()); err == nil {
		return nil
	}
	return backing.InsertSpanEvent(e)
}

func flushInsertOrUpdateEvent(backing Store, e *tracedata.Event) error {
	if _, err := backing.GetEvent(e.Key()); err == nil {
		if e.ParentKey != nil {
			return backing.UpdateEventParents(*e.ParentKey, []tracedata.Timestamp{e.Key()})
		}
		return nil
	}
	return backing.InsertEvent(e)
}

func (b *Batched) Close() error {
	if err := b.Sync(); err != nil {
		return err
	}
	return b.backing.Close()
}
