// Package engine implements the dataset engine's single-owner mutator:
// the sync engine (storage, the index set, the resource cache, and
// subscriber tables, all touched from exactly one goroutine) plus the
// async facade ingress collaborators actually talk to.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	ctxview "brokle-tracehub/internal/context"
	"brokle-tracehub/internal/index"
	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/internal/tracestore"
)

// SyncEngine owns storage, the full index set, and the subscriber
// tables. It is never touched from more than one goroutine; Facade is
// the only supported way to reach it concurrently.
type SyncEngine struct {
	storage tracestore.Store
	logger  *slog.Logger

	resources map[tracedata.Timestamp]*tracedata.Resource
	resByAttr map[string]tracedata.Timestamp // attribute-map fingerprint -> resource key, for insert dedup
	resKeys   *index.Sorted                  // resource keys (checked by keyInUse for global uniqueness)

	spanIdx       *index.SpanIndexes
	eventIdx      *index.EventIndexes
	spanEventKeys *index.Sorted // span-event timestamps (checked by keyInUse for global uniqueness)

	spanSubs  map[string]*subscription
	eventSubs map[string]*subscription

	startedAt    time.Time
	lastPollAt   time.Time
	busyNanos    int64
	totalEntities int
}

// NewSyncEngine constructs an engine over storage without loading.
// Call Load before serving any command.
func NewSyncEngine(storage tracestore.Store, logger *slog.Logger) *SyncEngine {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	return &SyncEngine{
		storage:       storage,
		logger:        logger,
		resources:     make(map[tracedata.Timestamp]*tracedata.Resource),
		resByAttr:     make(map[string]tracedata.Timestamp),
		resKeys:       index.NewSorted(),
		spanIdx:       index.NewSpanIndexes(),
		eventIdx:      index.NewEventIndexes(),
		spanEventKeys: index.NewSorted(),
		spanSubs:      make(map[string]*subscription),
		eventSubs:     make(map[string]*subscription),
		startedAt:     now,
		lastPollAt:    now,
	}
}

// Load performs startup bookkeeping (spec.md §4.5 "Startup"): load all
// resources, try a snapshot, otherwise rebuild indexes from a full
// storage scan, then close any spans left open by an ungraceful prior
// shutdown.
func (e *SyncEngine) Load() error {
	it := e.storage.GetAllResources()
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		e.cacheResource(r)
	}

	if snap, ok := e.storage.(tracestore.IndexSnapshotStore); ok {
		data, found, err := snap.LoadIndexSnapshot()
		if err != nil {
			e.logger.Warn("engine: index snapshot load failed, rebuilding from scan", "error", err)
		} else if found {
			if err := e.restoreSnapshot(data); err != nil {
				e.logger.Warn("engine: index snapshot invalid, rebuilding from scan", "error", err)
			} else {
				return e.closeDanglingOpenSpans()
			}
		}
	}

	if err := e.rebuildFromScan(); err != nil {
		return fmt.Errorf("engine: rebuild indexes: %w", err)
	}
	return e.closeDanglingOpenSpans()
}

func (e *SyncEngine) rebuildFromScan() error {
	spanIt := e.storage.GetAllSpans()
	for {
		s, ok := spanIt.Next()
		if !ok {
			break
		}
		e.indexExistingSpan(s)
	}

	eventIt := e.storage.GetAllEvents()
	for {
		ev, ok := eventIt.Next()
		if !ok {
			break
		}
		e.indexExistingEvent(ev)
	}

	seIt := e.storage.GetAllSpanEvents()
	for {
		se, ok := seIt.Next()
		if !ok {
			break
		}
		e.spanEventKeys.Insert(se.Key())
	}
	return nil
}

// closeDanglingOpenSpans closes, at max(last seen key)+1, any span left
// open by a prior ungraceful shutdown.
func (e *SyncEngine) closeDanglingOpenSpans() error {
	last := e.lastSeenKey()
	closeAt := last + 1

	open := append([]tracedata.Timestamp{}, e.spanIdx.Duration.Open().Slice()...)
	for _, key := range open {
		s, err := e.storage.GetSpan(key)
		if err != nil {
			continue
		}
		if err := e.storage.UpdateSpanClosed(key, closeAt, nil); err != nil {
			e.logger.Warn("engine: failed to close dangling span at startup", "span_key", key, "error", err)
			continue
		}
		e.spanIdx.Close(s.Key(), closeAt)
		e.logger.Info("engine: closed dangling open span from prior shutdown", "span_key", key, "closed_at", closeAt)
	}
	return nil
}

// lastSeenKey returns max(last_event_key, last_span_event_key), used to
// pick the close time for spans left open by an ungraceful shutdown.
func (e *SyncEngine) lastSeenKey() tracedata.Timestamp {
	var last tracedata.Timestamp
	if n := e.eventIdx.All.Len(); n > 0 {
		if k := e.eventIdx.All.Slice()[n-1]; k > last {
			last = k
		}
	}
	if n := e.spanEventKeys.Len(); n > 0 {
		if k := e.spanEventKeys.Slice()[n-1]; k > last {
			last = k
		}
	}
	return last
}

func (e *SyncEngine) cacheResource(r *tracedata.Resource) {
	e.resources[r.Key()] = r
	e.resByAttr[fingerprintAttrs(r.Attributes)] = r.Key()
	e.resKeys.Insert(r.Key())
	e.totalEntities++
}

// keyInUse reports whether t is already taken by any entity of any
// kind. Keys must be unique across all four entity kinds (spec.md §3:
// "Every stored key is unique across all entities... combined with the
// 'time only ever advances' invariant this yields a total order across
// kinds"), so uniqueness is checked against every kind's domain, not
// just the one the caller is about to insert into.
func (e *SyncEngine) keyInUse(t tracedata.Timestamp) bool {
	return e.resKeys.Contains(t) || e.spanIdx.All.Contains(t) ||
		e.eventIdx.All.Contains(t) || e.spanEventKeys.Contains(t)
}

// uniqueTimestamp returns the smallest t' >= t not in use by any entity
// of any kind (spec.md §4.5 get_unique_timestamp).
func (e *SyncEngine) uniqueTimestamp(t tracedata.Timestamp) tracedata.Timestamp {
	for e.keyInUse(t) {
		t++
	}
	return t
}

func nowTimestamp() tracedata.Timestamp {
	return tracedata.Timestamp(time.Now().UnixMicro())
}

// spanContext builds a context view rooted at span s. tracestore.Store
// satisfies context.Store structurally.
func (e *SyncEngine) spanContext(s *tracedata.Span) (*ctxview.SpanContext, error) {
	return ctxview.NewSpanContext(e.storage, s)
}

func (e *SyncEngine) eventContext(ev *tracedata.Event) (*ctxview.EventContext, error) {
	return ctxview.NewEventContext(e.storage, ev)
}

// trackCommand records execution time for status load reporting.
func (e *SyncEngine) trackCommand(fn func()) {
	start := time.Now()
	fn()
	e.busyNanos += time.Since(start).Nanoseconds()
}
