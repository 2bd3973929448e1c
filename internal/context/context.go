// Package context materializes the lazily-built, per-instance cached
// views over an event or span: its ancestor chain of spans and the
// resource at the top, and the merged attribute view those produce.
//
// This is unrelated to the standard library's context.Context; it
// implements spec section 4.2 "context views" over the dataset.
package context

import (
	"fmt"

	"brokle-tracehub/internal/tracedata"
)

// Store is the minimal read surface context views need from the
// storage backend: fetch a span or resource by key. tracestore.Store
// satisfies this.
type Store interface {
	GetSpan(key tracedata.Timestamp) (*tracedata.Span, error)
	GetResource(key tracedata.Timestamp) (*tracedata.Resource, error)
}

// AttributeSource tags where a merged attribute came from, for
// render().
type AttributeSource struct {
	Inherent bool
	SpanID   *tracedata.FullSpanId // set iff the value came from an ancestor span
	Resource bool
}

// RenderedAttribute is one entry of a render()'d view: name, display
// value, and the source tag a UI uses to dim/annotate inherited values.
type RenderedAttribute struct {
	Name   string
	Value  tracedata.Value
	Source AttributeSource
}

// scope is one link in the merge chain (nearest first): the entity's
// own attributes, then each ancestor span's, then the resource's.
type scope struct {
	attrs    map[string]tracedata.Value
	key      tracedata.Timestamp
	spanID   *tracedata.FullSpanId
	resource bool
}

// View is the shared implementation behind EventContext and SpanContext:
// a lazily-built, cached chain of attribute scopes from nearest
// (the entity itself) to furthest (the resource).
type View struct {
	store Store

	resourceKey tracedata.Timestamp
	ancestors   []*tracedata.Span // root-first once built
	built       bool

	scopes []scope
}

func newView(store Store, resourceKey tracedata.Timestamp, own map[string]tracedata.Value, ownKey tracedata.Timestamp, parentKey *tracedata.Timestamp) (*View, error) {
	v := &View{store: store, resourceKey: resourceKey}
	v.scopes = append(v.scopes, scope{attrs: own, key: ownKey})

	// Walk parent_key to root, collecting ancestor spans nearest-first.
	next := parentKey
	var ancestorsNearestFirst []*tracedata.Span
	for next != nil {
		span, err := store.GetSpan(*next)
		if err != nil {
			return nil, fmt.Errorf("context: loading ancestor span %d: %w", *next, err)
		}
		ancestorsNearestFirst = append(ancestorsNearestFirst, span)
		id := span.ID
		v.scopes = append(v.scopes, scope{attrs: span.Attributes, key: span.Key(), spanID: &id})
		next = span.ParentKey
	}

	// Root-first for display purposes.
	v.ancestors = make([]*tracedata.Span, len(ancestorsNearestFirst))
	for i, s := range ancestorsNearestFirst {
		v.ancestors[len(ancestorsNearestFirst)-1-i] = s
	}

	resource, err := store.GetResource(resourceKey)
	if err == nil && resource != nil {
		v.scopes = append(v.scopes, scope{attrs: resource.Attributes, resource: true})
	}

	v.built = true
	return v, nil
}

// Attribute returns the first hit walking entity -> ancestor spans ->
// resource.
func (v *View) Attribute(name string) (tracedata.Value, bool) {
	for _, s := range v.scopes {
		if val, ok := s.attrs[name]; ok {
			return val, true
		}
	}
	return tracedata.Value{}, false
}

// AttributeWithKey returns the same lookup as Attribute, plus the key
// of the entity that supplied the value -- used to decide whether a
// retroactive parent update should overwrite an inherited value (only
// if the old source is at or above the new parent in the chain).
func (v *View) AttributeWithKey(name string) (tracedata.Value, tracedata.Timestamp, bool) {
	for _, s := range v.scopes {
		if val, ok := s.attrs[name]; ok {
			return val, s.key, true
		}
	}
	return tracedata.Value{}, 0, false
}

// Attributes returns the flattened merged view; inner scopes shadow
// outer ones.
func (v *View) Attributes() map[string]tracedata.Value {
	merged := make(map[string]tracedata.Value)
	for i := len(v.scopes) - 1; i >= 0; i-- {
		for k, val := range v.scopes[i].attrs {
			merged[k] = val
		}
	}
	return merged
}

// Ancestors returns the chain of ancestor spans in root-first order.
func (v *View) Ancestors() []*tracedata.Span { return v.ancestors }

// Render produces a display-ready attribute list annotated with source.
func (v *View) Render() []RenderedAttribute {
	merged := v.Attributes()
	names := make([]string, 0, len(merged))
	for n := range merged {
		names = append(names, n)
	}

	out := make([]RenderedAttribute, 0, len(names))
	for _, name := range names {
		_, key, _ := v.AttributeWithKey(name)
		out = append(out, RenderedAttribute{
			Name:   name,
			Value:  merged[name],
			Source: v.sourceFor(key),
		})
	}
	return out
}

func (v *View) sourceFor(key tracedata.Timestamp) AttributeSource {
	for _, s := range v.scopes {
		if s.resource {
			continue
		}
		if s.key == key {
			if s.spanID != nil {
				id := *s.spanID
				return AttributeSource{SpanID: &id}
			}
			return AttributeSource{Inherent: true}
		}
	}
	return AttributeSource{Resource: true}
}

// EventContext is the context view rooted at an event.
type EventContext struct {
	*View
	Event *tracedata.Event
}

// NewEventContext builds (eagerly; the spec's "lazy" caching is
// realized by constructing the view once per query and reusing it
// across Attribute calls rather than deferring the ancestor walk,
// which the resolved sorted-index slice already requires to execute).
func NewEventContext(store Store, e *tracedata.Event) (*EventContext, error) {
	v, err := newView(store, e.ResourceKey, e.Attributes, e.Key(), e.ParentKey)
	if err != nil {
		return nil, err
	}
	return &EventContext{View: v, Event: e}, nil
}

// TraceRoot returns the TraceRoot this event belongs to: the root
// ancestor span's trace root if any ancestors exist, otherwise a root
// derived from the event's declared parent id (with no root span key),
// or the zero TraceRoot if it has no parent id.
func (c *EventContext) TraceRoot() tracedata.TraceRoot {
	if len(c.Ancestors()) > 0 {
		root := c.Ancestors()[0]
		return spanTraceRoot(root)
	}
	if c.Event.ParentID != nil {
		return idTraceRoot(*c.Event.ParentID, 0)
	}
	return tracedata.TraceRoot{}
}

// SpanContext is the context view rooted at a span.
type SpanContext struct {
	*View
	Span *tracedata.Span
}

// NewSpanContext builds the context view for a span.
func NewSpanContext(store Store, s *tracedata.Span) (*SpanContext, error) {
	v, err := newView(store, s.ResourceKey, s.Attributes, s.Key(), s.ParentKey)
	if err != nil {
		return nil, err
	}
	return &SpanContext{View: v, Span: s}, nil
}

// TraceRoot returns the span's trace root: if it has ancestors, the
// topmost one; otherwise itself.
func (c *SpanContext) TraceRoot() tracedata.TraceRoot {
	if len(c.Ancestors()) > 0 {
		return spanTraceRoot(c.Ancestors()[0])
	}
	return spanTraceRoot(c.Span)
}

func spanTraceRoot(root *tracedata.Span) tracedata.TraceRoot {
	if root.ID.Kind == tracedata.SpanIDOTel {
		return idTraceRoot(root.ID, 0)
	}
	return tracedata.TraceRoot{Kind: root.ID.Kind, InstanceID: root.ID.TraceID, RootSpanKey: root.Key()}
}

func idTraceRoot(id tracedata.FullSpanId, rootKey tracedata.Timestamp) tracedata.TraceRoot {
	return tracedata.TraceRoot{Kind: id.Kind, InstanceID: id.TraceID, RootSpanKey: rootKey}
}
