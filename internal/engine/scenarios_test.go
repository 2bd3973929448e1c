package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/internal/tracestore"
	"brokle-tracehub/pkg/pagination"
)

// newTestEngine returns a SyncEngine over a fresh in-memory store,
// loaded the way the daemon loads one at startup.
func newTestEngine(t *testing.T) *SyncEngine {
	t.Helper()
	e := NewSyncEngine(tracestore.NewMemory(), nil)
	require.NoError(t, e.Load())
	return e
}

func mustParse(t *testing.T, filter string) filterlang.Node {
	t.Helper()
	n, err := filterlang.Parse(filter)
	require.NoError(t, err)
	require.NoError(t, filterlang.Validate(n))
	return n
}

func spanID(n uint64) tracedata.FullSpanId {
	var trace [16]byte
	trace[15] = byte(n)
	return tracedata.FullSpanId{Kind: tracedata.SpanIDTracing, TraceID: trace, SpanID: n}
}

// TestEventQueryFiltersByLevelAndAttributesWithinWindow reproduces
// spec.md §8's level/attribute event-query scenario: a compound filter
// of an inherent property and two attribute predicates, evaluated
// over [2, 8] in ascending order with a limit wider than the match
// count, must return exactly the events at t=4 and t=5.
func TestEventQueryFiltersByLevelAndAttributesWithinWindow(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.InsertResource(map[string]tracedata.Value{"service.name": tracedata.String("api")})
	require.NoError(t, err)

	type row struct {
		ts    tracedata.Timestamp
		level tracedata.Level
		a1    string
		a2    string
	}
	rows := []row{
		{1, tracedata.LevelError, "test", "A"}, // outside window, would otherwise match
		{2, tracedata.LevelInfo, "test", "A"},  // fails level
		{3, tracedata.LevelWarn, "other", "A"}, // fails attribute1
		{4, tracedata.LevelWarn, "test", "A"},  // match
		{5, tracedata.LevelError, "test", "A"}, // match
		{6, tracedata.LevelWarn, "test", "B"},  // fails attribute2
		{7, tracedata.LevelDebug, "test", "A"}, // fails level
		{8, tracedata.LevelInfo, "test", "A"},  // fails level, boundary
		{9, tracedata.LevelError, "test", "A"}, // outside window, would otherwise match
	}
	for _, r := range rows {
		attrs := map[string]tracedata.Value{
			"attribute1": tracedata.String(r.a1),
			"attribute2": tracedata.String(r.a2),
		}
		_, err := e.InsertEvent(r.ts, tracedata.SpanIDTracing, res.Key(), nil, tracedata.String("msg"), "", "", "", nil, nil, r.level, attrs)
		require.NoError(t, err)
	}

	node := mustParse(t, `#level: >=WARN @"attribute1": test @"attribute2": A`)
	events, err := e.QueryEvent(Query{
		Filter: node,
		Order:  pagination.Asc,
		Limit:  3,
		Start:  2,
		End:    8,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, tracedata.Timestamp(4), events[0].Key())
	assert.Equal(t, tracedata.Timestamp(5), events[1].Key())
}

// TestSpanQueryMatchesOpenIntervalOverlappingWindow reproduces spec.md
// §8's span open/close window scenario: a span's open interval
// [created, closed-or-open) need only overlap the query window, not
// be contained by it, so a span closed before the window is excluded
// while one still open at the window's end is included.
func TestSpanQueryMatchesOpenIntervalOverlappingWindow(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.InsertResource(map[string]tracedata.Value{"service.name": tracedata.String("api")})
	require.NoError(t, err)

	closedBeforeWindow := spanID(1)
	_, err = e.CreateSpan(1, tracedata.SpanIDTracing, tracedata.CreateSpanEvent{ResourceKey: res.Key(), SpanID: closedBeforeWindow, Name: "a"})
	require.NoError(t, err)
	require.NoError(t, e.CloseSpan(3, closedBeforeWindow, tracedata.CloseSpanEvent{}))

	stillOpenA := spanID(2)
	_, err = e.CreateSpan(5, tracedata.SpanIDTracing, tracedata.CreateSpanEvent{ResourceKey: res.Key(), SpanID: stillOpenA, Name: "b"})
	require.NoError(t, err)

	stillOpenB := spanID(3)
	_, err = e.CreateSpan(9, tracedata.SpanIDTracing, tracedata.CreateSpanEvent{ResourceKey: res.Key(), SpanID: stillOpenB, Name: "c"})
	require.NoError(t, err)

	createdAfterWindow := spanID(4)
	_, err = e.CreateSpan(11, tracedata.SpanIDTracing, tracedata.CreateSpanEvent{ResourceKey: res.Key(), SpanID: createdAfterWindow, Name: "d"})
	require.NoError(t, err)

	spans, err := e.QuerySpan(Query{
		Filter: filterlang.And(),
		Order:  pagination.Asc,
		Limit:  10,
		Start:  4,
		End:    9,
	})
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, tracedata.Timestamp(5), spans[0].Key())
	assert.Equal(t, tracedata.Timestamp(9), spans[1].Key())
}

// TestEventInheritsResourceAttribute reproduces spec.md §8's direct
// resource-attribute inheritance scenario: an event with no
// attributes of its own, attached straight to a resource carrying
// attribute1=A, matches a query for attribute1=A and not attribute1=B.
func TestEventInheritsResourceAttribute(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.InsertResource(map[string]tracedata.Value{"attribute1": tracedata.String("A")})
	require.NoError(t, err)

	_, err = e.InsertEvent(1, tracedata.SpanIDTracing, res.Key(), nil, tracedata.String("msg"), "", "", "", nil, nil, tracedata.LevelInfo, nil)
	require.NoError(t, err)

	hitsA, err := e.QueryEvent(Query{Filter: mustParse(t, `@"attribute1":A`), Order: pagination.Asc, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hitsA, 1)

	hitsB, err := e.QueryEvent(Query{Filter: mustParse(t, `@"attribute1":B`), Order: pagination.Asc, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hitsB, 0)
}

// TestEventAttributeShadowsThroughSpan reproduces spec.md §8's
// ancestor-shadowing scenario: a resource carries attribute1=A, its
// child span overrides attribute1=C, and a grandchild event with no
// attributes of its own inherits the span's C, not the resource's A.
func TestEventAttributeShadowsThroughSpan(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.InsertResource(map[string]tracedata.Value{"attribute1": tracedata.String("A")})
	require.NoError(t, err)

	id := spanID(1)
	span, err := e.CreateSpan(1, tracedata.SpanIDTracing, tracedata.CreateSpanEvent{
		ResourceKey: res.Key(),
		SpanID:      id,
		Name:        "parent",
		Attributes:  map[string]tracedata.Value{"attribute1": tracedata.String("C")},
	})
	require.NoError(t, err)
	require.NotNil(t, span)

	_, err = e.InsertEvent(2, tracedata.SpanIDTracing, res.Key(), &id, tracedata.String("msg"), "", "", "", nil, nil, tracedata.LevelInfo, nil)
	require.NoError(t, err)

	hitsA, err := e.QueryEvent(Query{Filter: mustParse(t, `@"attribute1":A`), Order: pagination.Asc, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hitsA, 0)

	hitsC, err := e.QueryEvent(Query{Filter: mustParse(t, `@"attribute1":C`), Order: pagination.Asc, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hitsC, 1)
}

// TestEventAttributeRetroactivelyShadowsAfterSpanUpdate is the same
// scenario as TestEventAttributeShadowsThroughSpan, except the span
// starts with no attributes of its own (so the event inherits the
// resource's A at insert time) and only later gets attribute1=C via
// UpdateSpan, after the event already exists. The event's indexed
// attribute entry must retroactively flip to C.
func TestEventAttributeRetroactivelyShadowsAfterSpanUpdate(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.InsertResource(map[string]tracedata.Value{"attribute1": tracedata.String("A")})
	require.NoError(t, err)

	id := spanID(1)
	_, err = e.CreateSpan(1, tracedata.SpanIDTracing, tracedata.CreateSpanEvent{ResourceKey: res.Key(), SpanID: id, Name: "parent"})
	require.NoError(t, err)

	_, err = e.InsertEvent(2, tracedata.SpanIDTracing, res.Key(), &id, tracedata.String("msg"), "", "", "", nil, nil, tracedata.LevelInfo, nil)
	require.NoError(t, err)

	require.NoError(t, e.UpdateSpan(3, id, tracedata.UpdateSpanEvent{
		Attributes: map[string]tracedata.Value{"attribute1": tracedata.String("C")},
	}))

	hitsA, err := e.QueryEvent(Query{Filter: mustParse(t, `@"attribute1":A`), Order: pagination.Asc, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hitsA, 0)

	hitsC, err := e.QueryEvent(Query{Filter: mustParse(t, `@"attribute1":C`), Order: pagination.Asc, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hitsC, 1)
}

// TestSubscriptionNotifiesOnRetroactiveAttributeUpdate reproduces
// spec.md §8's subscription scenario: a live subscription filters on
// attribute1=C; an event inserted under a parent span that as yet has
// no attributes produces no notification, but the later UpdateSpan
// that supplies attribute1=C must deliver exactly one Add for that
// earlier event.
func TestSubscriptionNotifiesOnRetroactiveAttributeUpdate(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.InsertResource(map[string]tracedata.Value{"service.name": tracedata.String("api")})
	require.NoError(t, err)

	id := spanID(1)
	_, err = e.CreateSpan(1, tracedata.SpanIDTracing, tracedata.CreateSpanEvent{ResourceKey: res.Key(), SpanID: id, Name: "parent"})
	require.NoError(t, err)

	subID, ch, err := e.SubscribeToEvents(mustParse(t, `@"attribute1":C`))
	require.NoError(t, err)
	defer e.UnsubscribeFromEvents(subID)

	ev, err := e.InsertEvent(2, tracedata.SpanIDTracing, res.Key(), &id, tracedata.String("msg"), "", "", "", nil, nil, tracedata.LevelInfo, nil)
	require.NoError(t, err)

	select {
	case u := <-ch:
		t.Fatalf("unexpected notification before attribute1 was set: %+v", u)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, e.UpdateSpan(3, id, tracedata.UpdateSpanEvent{
		Attributes: map[string]tracedata.Value{"attribute1": tracedata.String("C")},
	}))

	select {
	case u := <-ch:
		require.NotNil(t, u.Add)
		got, ok := u.Add.(*tracedata.Event)
		require.True(t, ok)
		assert.Equal(t, ev.Key(), got.Key())
	case <-time.After(time.Second):
		t.Fatal("expected exactly one notification after the span update")
	}

	select {
	case u := <-ch:
		t.Fatalf("unexpected second notification: %+v", u)
	case <-time.After(20 * time.Millisecond):
	}
}
