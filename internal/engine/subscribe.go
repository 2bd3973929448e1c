package engine

import (
	"brokle-tracehub/internal/filterexec"
	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/pkg/ulid"
)

// Update is a single notification delivered to a subscriber: either a
// matching entity that was inserted or changed, or the key of a
// matching entity that was deleted.
type Update struct {
	Add    any
	Remove *tracedata.Timestamp
}

// subscription is a live filter paired with the channel fan-out
// delivers to. The filter node, not a lowered IndexedFilter, is kept:
// lowering captures index slices as they stand at Lower-time, so a
// subscription matches against a node re-lowered fresh on every
// notification rather than a filter frozen at subscribe-time -- that
// is what lets it see entities inserted after it was created. Per
// spec.md §5 "Shared-resource policy" the channel is buffered so a
// slow subscriber never blocks the engine thread; a subscriber that
// stops draining is discarded on the next fan-out instead of being
// actively detected.
type subscription struct {
	id   string
	node filterlang.Node
	ch   chan Update
}

func newSubscription(n filterlang.Node) *subscription {
	return &subscription{
		id:   ulid.New().String(),
		node: n,
		ch:   make(chan Update, 4096),
	}
}

// send delivers u without blocking; a full channel means the
// subscriber has stopped draining, so the update is dropped rather
// than stalling the engine thread and send reports false, on which
// the fan-out closes and discards the subscription at once.
func (s *subscription) send(u Update) bool {
	select {
	case s.ch <- u:
		return true
	default:
		return false
	}
}

// SubscribeToSpans registers filter over span inserts/updates/removals
// and returns its id plus the receive side of its update channel.
func (e *SyncEngine) SubscribeToSpans(n filterlang.Node) (string, <-chan Update, error) {
	sub := newSubscription(n)
	e.spanSubs[sub.id] = sub
	return sub.id, sub.ch, nil
}

// SubscribeToEvents registers filter over event inserts and returns
// its id plus the receive side of its update channel.
func (e *SyncEngine) SubscribeToEvents(n filterlang.Node) (string, <-chan Update, error) {
	sub := newSubscription(n)
	e.eventSubs[sub.id] = sub
	return sub.id, sub.ch, nil
}

// UnsubscribeFromSpans removes a span subscription; missing ids are a
// no-op, matching spec.md's silent-discard policy for dead receivers.
func (e *SyncEngine) UnsubscribeFromSpans(id string) {
	if sub, ok := e.spanSubs[id]; ok {
		close(sub.ch)
		delete(e.spanSubs, id)
	}
}

func (e *SyncEngine) UnsubscribeFromEvents(id string) {
	if sub, ok := e.eventSubs[id]; ok {
		close(sub.ch)
		delete(e.eventSubs, id)
	}
}

// notifySpanSubscribers fans entity out to every span subscriber whose
// filter matches key, discarding any subscriber whose channel is full
// (spec.md §5: a dropped receiver is discarded on the next fan-out). A
// nil entity means key was removed rather than inserted.
func (e *SyncEngine) notifySpanSubscribers(key tracedata.Timestamp, entity *tracedata.Span) {
	if len(e.spanSubs) == 0 {
		return
	}
	lowering := e.spanLowering()
	for id, sub := range e.spanSubs {
		if !filterexec.Matches(lowering.Lower(sub.node), key) {
			continue
		}
		u := Update{Add: entity}
		if entity == nil {
			k := key
			u = Update{Remove: &k}
		}
		if !sub.send(u) {
			close(sub.ch)
			delete(e.spanSubs, id)
		}
	}
}

func (e *SyncEngine) notifyEventSubscribers(key tracedata.Timestamp, entity *tracedata.Event) {
	if len(e.eventSubs) == 0 {
		return
	}
	lowering := e.eventLowering()
	for id, sub := range e.eventSubs {
		if !filterexec.Matches(lowering.Lower(sub.node), key) {
			continue
		}
		u := Update{Add: entity}
		if entity == nil {
			k := key
			u = Update{Remove: &k}
		}
		if !sub.send(u) {
			close(sub.ch)
			delete(e.eventSubs, id)
		}
	}
}
