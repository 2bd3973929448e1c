package tracestore

import (
	"sort"
	"sync"

	"brokle-tracehub/internal/tracedata"
)

// Memory is the transient, fully in-memory Store backend: no flush, no
// load, suited to loadgen/test runs and the default daemon config
// (storage.backend=memory).
type Memory struct {
	mu sync.RWMutex

	resources  map[tracedata.Timestamp]*tracedata.Resource
	spans      map[tracedata.Timestamp]*tracedata.Span
	spanEvents map[tracedata.Timestamp]*tracedata.SpanEvent
	events     map[tracedata.Timestamp]*tracedata.Event
}

func NewMemory() *Memory {
	return &Memory{
		resources:  make(map[tracedata.Timestamp]*tracedata.Resource),
		spans:      make(map[tracedata.Timestamp]*tracedata.Span),
		spanEvents: make(map[tracedata.Timestamp]*tracedata.SpanEvent),
		events:     make(map[tracedata.Timestamp]*tracedata.Event),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) GetResource(key tracedata.Timestamp) (*tracedata.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[key]
	if !ok {
		return nil, tracedata.ErrNotFound
	}
	return r, nil
}

func (m *Memory) GetSpan(key tracedata.Timestamp) (*tracedata.Span, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spans[key]
	if !ok {
		return nil, tracedata.ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetSpanEvent(key tracedata.Timestamp) (*tracedata.SpanEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.spanEvents[key]
	if !ok {
		return nil, tracedata.ErrNotFound
	}
	return e, nil
}

func (m *Memory) GetEvent(key tracedata.Timestamp) (*tracedata.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[key]
	if !ok {
		return nil, tracedata.ErrNotFound
	}
	return e, nil
}

func (m *Memory) GetAllResources() Iter[*tracedata.Resource] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*tracedata.Resource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return newSliceIter(out)
}

func (m *Memory) GetAllSpans() Iter[*tracedata.Span] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*tracedata.Span, 0, len(m.spans))
	for _, s := range m.spans {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return newSliceIter(out)
}

func (m *Memory) GetAllSpanEvents() Iter[*tracedata.SpanEvent] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*tracedata.SpanEvent, 0, len(m.spanEvents))
	for _, e := range m.spanEvents {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return newSliceIter(out)
}

func (m *Memory) GetAllEvents() Iter[*tracedata.Event] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*tracedata.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return newSliceIter(out)
}

func (m *Memory) InsertResource(r *tracedata.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.resources[r.Key()]; exists {
		return tracedata.NewLogicalError("resource key already exists", nil)
	}
	m.resources[r.Key()] = r
	return nil
}

func (m *Memory) InsertSpan(s *tracedata.Span) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.spans[s.Key()]; exists {
		return tracedata.NewLogicalError("span key already exists", nil)
	}
	m.spans[s.Key()] = s
	return nil
}

func (m *Memory) InsertSpanEvent(e *tracedata.SpanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.spanEvents[e.Key()]; exists {
		return tracedata.NewLogicalError("span event key already exists", nil)
	}
	m.spanEvents[e.Key()] = e
	return nil
}

func (m *Memory) InsertEvent(e *tracedata.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[e.Key()]; exists {
		return tracedata.NewLogicalError("event key already exists", nil)
	}
	m.events[e.Key()] = e
	return nil
}

func (m *Memory) UpdateSpanClosed(key tracedata.Timestamp, closedAt tracedata.Timestamp, busy *uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spans[key]
	if !ok {
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

func (m *Memory) UpdateSpanAttributes(key tracedata.Timestamp, attrs map[string]tracedata.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spans[key]
	if !ok {
		return tracedata.ErrUnknownSpanID
	}
	if s.Attributes == nil {
		s.Attributes = make(map[string]tracedata.Value, len(attrs))
	}
	for k, v := range attrs {
		s.Attributes[k] = v
	}
	return nil
}

func (m *Memory) UpdateSpanLink(key tracedata.Timestamp, target tracedata.FullSpanId, attrs map[string]tracedata.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spans[key]
	if !ok {
		return tracedata.ErrUnknownSpanID
	}
	s.Links = append(s.Links, tracedata.SpanLink{Target: target, Attributes: attrs})
	return nil
}

func (m *Memory) UpdateSpanParents(parentKey tracedata.Timestamp, keys []tracedata.Timestamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		s, ok := m.spans[k]
		if !ok {
			continue
		}
		pk := parentKey
		s.ParentKey = &pk
	}
	return nil
}

func (m *Memory) UpdateEventParents(parentKey tracedata.Timestamp, keys []tracedata.Timestamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		e, ok := m.events[k]
		if !ok {
			continue
		}
		pk := parentKey
		e.ParentKey = &pk
	}
	return nil
}

func (m *Memory) DropResources(keys []tracedata.Timestamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.resources, k)
	}
	return nil
}

func (m *Memory) DropSpans(keys []tracedata.Timestamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.spans, k)
	}
	return nil
}

func (m *Memory) DropSpanEvents(keys []tracedata.Timestamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.spanEvents, k)
	}
	return nil
}

func (m *Memory) DropEvents(keys []tracedata.Timestamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.events, k)
	}
	return nil
}

func (m *Memory) Sync() error  { return nil }
func (m *Memory) Close() error { return nil }
