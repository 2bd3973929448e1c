package engine

import (
	"brokle-tracehub/internal/tracedata"
)

// InsertResource deduplicates by attribute-map equality (spec.md §4.5
// "Insert resource"); a second insert of an identical attribute set
// returns the existing resource unchanged.
func (e *SyncEngine) InsertResource(attrs map[string]tracedata.Value) (*tracedata.Resource, error) {
	var r *tracedata.Resource
	var retErr error
	e.trackCommand(func() {
		fp := fingerprintAttrs(attrs)
		if key, ok := e.resByAttr[fp]; ok {
			r = e.resources[key]
			return
		}
		key := e.uniqueTimestamp(nowTimestamp())
		r = &tracedata.Resource{CreatedAt: key, Attributes: attrs}
		if err := e.storage.InsertResource(r); err != nil {
			retErr = err
			r = nil
			return
		}
		e.cacheResource(r)
	})
	return r, retErr
}

// CreateSpan materializes a new span from a create span-event. Rejects
// a span id already seen.
func (e *SyncEngine) CreateSpan(ts tracedata.Timestamp, kind tracedata.SpanIDKind, c tracedata.CreateSpanEvent) (*tracedata.Span, error) {
	var span *tracedata.Span
	var retErr error
	e.trackCommand(func() {
		if _, exists := e.spanIdx.KeyForID(c.SpanID); exists {
			retErr = tracedata.ErrSpanIDExists
			return
		}
		key := e.uniqueTimestamp(ts)

		span = &tracedata.Span{
			Kind:                      kind,
			ResourceKey:               c.ResourceKey,
			ID:                        c.SpanID,
			CreatedAt:                 key,
			ParentID:                  c.ParentID,
			Name:                      c.Name,
			Namespace:                 c.Namespace,
			Function:                  c.Function,
			Level:                     c.Level,
			FileName:                  c.FileName,
			FileLine:                  c.FileLine,
			FileColumn:                c.FileColumn,
			InstrumentationAttributes: c.InstrumentationAttributes,
			Attributes:                c.Attributes,
		}
		if c.ParentID != nil {
			if parentKey, ok := e.spanIdx.KeyForID(*c.ParentID); ok {
				span.ParentKey = &parentKey
			}
		}

		if err := e.storage.InsertSpan(span); err != nil {
			retErr = err
			span = nil
			return
		}
		// key is not in the span index until indexNewSpan below, so the
		// search for the create span-event's key starts past it.
		se := &tracedata.SpanEvent{
			Timestamp: e.uniqueTimestamp(key + 1),
			SpanKey:   key,
			Kind:      tracedata.SpanEventCreate,
			Create:    &c,
		}
		e.spanEventKeys.Insert(se.Timestamp)
		if err := e.storage.InsertSpanEvent(se); err != nil {
			retErr = err
			span = nil
			return
		}

		e.indexNewSpan(span)
		e.notifySpanSubscribers(span.Key(), span)

		if span.ParentKey == nil && c.ParentID != nil {
			e.spanIdx.Orphanage.Add(*c.ParentID, span.Key())
		}
		e.adoptOrphans(c.SpanID, span.Key())
	})
	return span, retErr
}

// indexNewSpan bookkeeps a freshly created (open) span using its
// context-merged attributes and ancestor chain.
func (e *SyncEngine) indexNewSpan(s *tracedata.Span) {
	ctx, err := e.spanContext(s)
	if err != nil {
		e.logger.Warn("engine: new span has unresolved ancestor", "span_key", s.Key(), "error", err)
		e.spanIdx.Insert(s, tracedata.TraceRoot{}, s.Attributes, nil)
		return
	}
	e.spanIdx.Insert(s, ctx.TraceRoot(), ctx.Attributes(), ancestorSpanKeysOf(ctx.Ancestors()))
}

// adoptOrphans drains every span/event waiting on parentID and
// retroactively reparents them onto parentKey, in both storage and
// indexes, refreshing their inherited attributes. Only the adopted
// entity itself is re-indexed; a deep subtree adopted in one step keeps
// its own previously-computed trace/attribute bookkeeping, since
// multi-level retroactive adoption is rare in practice (a parent
// arriving after its grandchildren, with the child still missing too).
func (e *SyncEngine) adoptOrphans(parentID tracedata.FullSpanId, parentKey tracedata.Timestamp) {
	spanOrphans := e.spanIdx.Orphanage.Drain(parentID)
	if len(spanOrphans) > 0 {
		if err := e.storage.UpdateSpanParents(parentKey, spanOrphans); err != nil {
			e.logger.Warn("engine: failed to persist span adoption", "parent_key", parentKey, "error", err)
		}
		for _, key := range spanOrphans {
			e.reindexAdoptedSpan(key, parentKey)
		}
	}

	eventOrphans := e.eventIdx.Orphanage.Drain(parentID)
	if len(eventOrphans) > 0 {
		if err := e.storage.UpdateEventParents(parentKey, eventOrphans); err != nil {
			e.logger.Warn("engine: failed to persist event adoption", "parent_key", parentKey, "error", err)
		}
		for _, key := range eventOrphans {
			e.reindexAdoptedEvent(key, parentKey)
		}
	}
}

func (e *SyncEngine) reindexAdoptedSpan(key, parentKey tracedata.Timestamp) {
	s, err := e.storage.GetSpan(key)
	if err != nil {
		return
	}
	oldCtx, err := e.spanContext(s)
	var oldTrace tracedata.TraceRoot
	var oldAttrs map[string]tracedata.Value
	var oldAncestors []tracedata.Timestamp
	if err == nil {
		oldTrace = oldCtx.TraceRoot()
		oldAttrs = oldCtx.Attributes()
		oldAncestors = ancestorSpanKeysOf(oldCtx.Ancestors())
	}
	e.spanIdx.Remove(s, oldTrace, oldAttrs, oldAncestors)

	s.ParentKey = &parentKey
	e.spanIdx.Reparent(key)

	newCtx, err := e.spanContext(s)
	if err != nil {
		e.spanIdx.Insert(s, tracedata.TraceRoot{}, s.Attributes, nil)
		return
	}
	e.spanIdx.Insert(s, newCtx.TraceRoot(), newCtx.Attributes(), ancestorSpanKeysOf(newCtx.Ancestors()))
	e.notifySpanSubscribers(key, s)
}

func (e *SyncEngine) reindexAdoptedEvent(key, parentKey tracedata.Timestamp) {
	ev, err := e.storage.GetEvent(key)
	if err != nil {
		return
	}
	oldCtx, err := e.eventContext(ev)
	var oldTrace tracedata.TraceRoot
	var oldAttrs map[string]tracedata.Value
	var oldAncestors []tracedata.Timestamp
	if err == nil {
		oldTrace = oldCtx.TraceRoot()
		oldAttrs = oldCtx.Attributes()
		oldAncestors = ancestorSpanKeysOf(oldCtx.Ancestors())
	}
	e.eventIdx.Remove(ev, oldTrace, oldAttrs, oldAncestors)

	ev.ParentKey = &parentKey
	e.eventIdx.Reparent(key)

	newCtx, err := e.eventContext(ev)
	if err != nil {
		e.eventIdx.Insert(ev, tracedata.TraceRoot{}, ev.Attributes, nil)
		return
	}
	e.eventIdx.Insert(ev, newCtx.TraceRoot(), newCtx.Attributes(), ancestorSpanKeysOf(newCtx.Ancestors()))
	e.notifyEventSubscribers(key, ev)
}

// UpdateSpan merges new attributes onto an existing span and
// retroactively refreshes any descendant that was inheriting the same
// attribute name from this span or an ancestor at or above it (spec.md
// §4.5 "update_with_new_field_on_parent").
func (e *SyncEngine) UpdateSpan(ts tracedata.Timestamp, id tracedata.FullSpanId, u tracedata.UpdateSpanEvent) error {
	var retErr error
	e.trackCommand(func() {
		key, ok := e.spanIdx.KeyForID(id)
		if !ok {
			retErr = tracedata.ErrUnknownSpanID
			return
		}
		s, err := e.storage.GetSpan(key)
		if err != nil {
			retErr = err
			return
		}

		old := make(map[string]tracedata.Value, len(u.Attributes))
		for name := range u.Attributes {
			if v, found := e.attributeOf(key, name); found {
				old[name] = v
			}
		}

		if s.Attributes == nil {
			s.Attributes = make(map[string]tracedata.Value, len(u.Attributes))
		}
		for name, v := range u.Attributes {
			s.Attributes[name] = v
			e.spanIdx.Attributes.Reindex(name, key, old[name], v)
		}
		if err := e.storage.UpdateSpanAttributes(key, s.Attributes); err != nil {
			retErr = err
			return
		}

		se := &tracedata.SpanEvent{
			Timestamp: e.uniqueTimestamp(ts),
			SpanKey:   key,
			Kind:      tracedata.SpanEventUpdate,
			Update:    &u,
		}
		e.spanEventKeys.Insert(se.Timestamp)
		if err := e.storage.InsertSpanEvent(se); err != nil {
			retErr = err
			return
		}

		for name, v := range u.Attributes {
			if descendants := e.spanIdx.Descendants.Get(key); descendants != nil {
				for _, descKey := range descendants.Slice() {
					if descKey == key {
						continue
					}
					e.refreshInheritedSpanAttribute(descKey, name, old[name], v)
				}
			}
			if descendants := e.eventIdx.Descendants.Get(key); descendants != nil {
				for _, descKey := range descendants.Slice() {
					e.refreshInheritedEventAttribute(descKey, name, old[name], v)
				}
			}
		}

		e.notifySpanSubscribers(key, s)
	})
	return retErr
}

// refreshInheritedSpanAttribute reindexes a descendant span's attribute
// entry for name if it was inheriting (has no entry of its own under
// name) the changed value, and notifies span subscribers since this
// descendant may newly match (or stop matching) a live filter on name
// (spec.md §8 scenario 6's retroactive-reindex notification, applied
// symmetrically to span descendants).
func (e *SyncEngine) refreshInheritedSpanAttribute(descKey tracedata.Timestamp, name string, oldValue, newValue tracedata.Value) {
	s, ok := e.spanByKey(descKey)
	if !ok {
		return
	}
	if _, owns := s.Attributes[name]; owns {
		return
	}
	e.spanIdx.Attributes.Reindex(name, descKey, oldValue, newValue)
	e.notifySpanSubscribers(descKey, s)
}

// refreshInheritedEventAttribute is refreshInheritedSpanAttribute's
// event-descendant counterpart. This is the exact mechanism spec.md §8
// scenario 6 tests: an event inserted under an empty span produces no
// notification, but a later Update on that span that supplies the
// attribute a live subscription filters on must notify for the
// earlier event once its inherited value changes.
func (e *SyncEngine) refreshInheritedEventAttribute(descKey tracedata.Timestamp, name string, oldValue, newValue tracedata.Value) {
	ev, err := e.storage.GetEvent(descKey)
	if err != nil {
		return
	}
	if _, owns := ev.Attributes[name]; owns {
		return
	}
	e.eventIdx.Attributes.Reindex(name, descKey, oldValue, newValue)
	e.notifyEventSubscribers(descKey, ev)
}

// FollowsSpan appends a causal link from id to target.
func (e *SyncEngine) FollowsSpan(ts tracedata.Timestamp, id tracedata.FullSpanId, f tracedata.FollowsSpanEvent) error {
	var retErr error
	e.trackCommand(func() {
		key, ok := e.spanIdx.KeyForID(id)
		if !ok {
			retErr = tracedata.ErrUnknownSpanID
			return
		}
		s, err := e.storage.GetSpan(key)
		if err != nil {
			retErr = err
			return
		}
		if err := e.storage.UpdateSpanLink(key, f.Target, f.Attributes); err != nil {
			retErr = err
			return
		}
		s.Links = append(s.Links, tracedata.SpanLink{Target: f.Target, Attributes: f.Attributes})

		se := &tracedata.SpanEvent{
			Timestamp: e.uniqueTimestamp(ts),
			SpanKey:   key,
			Kind:      tracedata.SpanEventFollows,
			Follows:   &f,
		}
		e.spanEventKeys.Insert(se.Timestamp)
		retErr = e.storage.InsertSpanEvent(se)
	})
	return retErr
}

// EnterSpan records the span becoming active on thread.
func (e *SyncEngine) EnterSpan(ts tracedata.Timestamp, id tracedata.FullSpanId, enter tracedata.EnterSpanEvent) error {
	return e.recordPlainSpanEvent(ts, id, tracedata.SpanEventEnter, func(se *tracedata.SpanEvent) { se.Enter = &enter })
}

// ExitSpan records the span leaving the active thread.
func (e *SyncEngine) ExitSpan(ts tracedata.Timestamp, id tracedata.FullSpanId) error {
	return e.recordPlainSpanEvent(ts, id, tracedata.SpanEventExit, func(*tracedata.SpanEvent) {})
}

func (e *SyncEngine) recordPlainSpanEvent(ts tracedata.Timestamp, id tracedata.FullSpanId, kind tracedata.SpanEventKind, fill func(*tracedata.SpanEvent)) error {
	var retErr error
	e.trackCommand(func() {
		key, ok := e.spanIdx.KeyForID(id)
		if !ok {
			retErr = tracedata.ErrUnknownSpanID
			return
		}
		se := &tracedata.SpanEvent{Timestamp: e.uniqueTimestamp(ts), SpanKey: key, Kind: kind}
		fill(se)
		e.spanEventKeys.Insert(se.Timestamp)
		retErr = e.storage.InsertSpanEvent(se)
	})
	return retErr
}

// CloseSpan finalizes a span. If busy was not supplied it is
// reconstructed by summing (exit − last enter) over the span's own
// Enter/Exit span-event pairs.
func (e *SyncEngine) CloseSpan(ts tracedata.Timestamp, id tracedata.FullSpanId, c tracedata.CloseSpanEvent) error {
	var retErr error
	e.trackCommand(func() {
		key, ok := e.spanIdx.KeyForID(id)
		if !ok {
			retErr = tracedata.ErrUnknownSpanID
			return
		}
		s, err := e.storage.GetSpan(key)
		if err != nil {
			retErr = err
			return
		}
		if s.ClosedAt != nil {
			e.logger.Warn("engine: ignoring close of already-closed span", "span_key", key)
			return
		}

		closeAt := e.uniqueTimestamp(ts)
		busy := c.Busy
		if busy == nil {
			busy = e.reconstructBusy(key)
		}

		if err := e.storage.UpdateSpanClosed(key, closeAt, busy); err != nil {
			retErr = err
			return
		}
		if !e.spanIdx.Close(key, closeAt) {
			e.logger.Warn("engine: span already closed in index", "span_key", key)
			return
		}
		s.ClosedAt = &closeAt
		s.Busy = busy

		se := &tracedata.SpanEvent{
			Timestamp: e.uniqueTimestamp(ts),
			SpanKey:   key,
			Kind:      tracedata.SpanEventClose,
			Close:     &c,
		}
		e.spanEventKeys.Insert(se.Timestamp)
		if err := e.storage.InsertSpanEvent(se); err != nil {
			retErr = err
			return
		}
		e.notifySpanSubscribers(key, s)
	})
	return retErr
}

// reconstructBusy sums (exit.ts - last_enter.ts) over every Enter/Exit
// pair recorded for span, in ledger order. A trailing Enter with no
// matching Exit contributes nothing.
func (e *SyncEngine) reconstructBusy(spanKey tracedata.Timestamp) *uint64 {
	it := e.storage.GetAllSpanEvents()
	var sum uint64
	var lastEnter *tracedata.Timestamp
	for {
		se, ok := it.Next()
		if !ok {
			break
		}
		if se.SpanKey != spanKey {
			continue
		}
		switch se.Kind {
		case tracedata.SpanEventEnter:
			ts := se.Timestamp
			lastEnter = &ts
		case tracedata.SpanEventExit:
			if lastEnter != nil && se.Timestamp >= *lastEnter {
				sum += uint64(se.Timestamp - *lastEnter)
				lastEnter = nil
			}
		}
	}
	if sum == 0 {
		return nil
	}
	return &sum
}

// InsertEvent persists a standalone event, orphaning it if its
// declared parent is not yet known.
func (e *SyncEngine) InsertEvent(ts tracedata.Timestamp, kind tracedata.SpanIDKind, resourceKey tracedata.Timestamp, parentID *tracedata.FullSpanId, content tracedata.Value, namespace, function, file string, line, col *uint32, level tracedata.Level, attrs map[string]tracedata.Value) (*tracedata.Event, error) {
	var ev *tracedata.Event
	var retErr error
	e.trackCommand(func() {
		key := e.uniqueTimestamp(ts)
		ev = &tracedata.Event{
			Kind:        kind,
			ResourceKey: resourceKey,
			Timestamp:   key,
			ParentID:    parentID,
			Content:     content,
			Namespace:   namespace,
			Function:    function,
			Level:       level,
			FileName:    file,
			FileLine:    line,
			FileColumn:  col,
			Attributes:  attrs,
		}
		if parentID != nil {
			if parentKey, ok := e.spanIdx.KeyForID(*parentID); ok {
				ev.ParentKey = &parentKey
			}
		}
		if err := e.storage.InsertEvent(ev); err != nil {
			retErr = err
			ev = nil
			return
		}

		ctx, err := e.eventContext(ev)
		if err != nil {
			e.eventIdx.Insert(ev, tracedata.TraceRoot{}, ev.Attributes, nil)
		} else {
			e.eventIdx.Insert(ev, ctx.TraceRoot(), ctx.Attributes(), ancestorSpanKeysOf(ctx.Ancestors()))
		}

		if ev.ParentKey == nil && parentID != nil {
			e.eventIdx.Orphanage.Add(*parentID, key)
		}
		e.notifyEventSubscribers(key, ev)
	})
	return ev, retErr
}

// DisconnectTracingInstance closes every still-open span for instance
// at now(), an integrity sweep for a producer that disappeared without
// a graceful shutdown.
func (e *SyncEngine) DisconnectTracingInstance(instance tracedata.SpanIDKind, instanceID [16]byte) error {
	var firstErr error
	e.trackCommand(func() {
		now := nowTimestamp()
		open := append([]tracedata.Timestamp{}, e.spanIdx.Duration.Open().Slice()...)
		for _, key := range open {
			s, err := e.storage.GetSpan(key)
			if err != nil || s.ID.Kind != instance || s.ID.TraceID != instanceID {
				continue
			}
			closeAt := e.uniqueTimestamp(now)
			busy := e.reconstructBusy(key)
			if err := e.storage.UpdateSpanClosed(key, closeAt, busy); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			e.spanIdx.Close(key, closeAt)
			s.ClosedAt = &closeAt
			s.Busy = busy
			e.notifySpanSubscribers(key, s)
		}
	})
	return firstErr
}
