package engine

import (
	"context"
	"fmt"
	"log/slog"

	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/internal/tracestore"
)

// job is one unit of work submitted to the engine's single command
// loop. run executes against the owning SyncEngine; done is closed
// once run returns so a caller awaiting the reply unblocks. A caller
// that abandons done (spec.md §5 "Cancellation: a dropped reply handle
// causes the engine's send to fail silently") does not stop run from
// executing -- closing a channel nobody receives from never blocks.
type job struct {
	run  func(e *SyncEngine)
	done chan struct{}
}

func newJob(run func(e *SyncEngine)) *job {
	return &job{run: run, done: make(chan struct{})}
}

// Facade is the async engine: the single owner of the sync engine
// thread and the three bounded, priority-ordered channels ingress and
// query callers submit commands through (spec.md §5). Nothing but this
// type ever touches the SyncEngine it wraps.
type Facade struct {
	engine *SyncEngine
	logger *slog.Logger

	syncCh   chan *job
	queryCh  chan *job
	insertCh chan *job
	stopped  chan struct{}
}

// FacadeConfig sizes the facade's channels (spec.md §5's "~10000").
type FacadeConfig struct {
	QueryChannelDepth  int
	InsertChannelDepth int
}

// NewFacade starts the engine's command-loop goroutine over engine,
// which must already have had Load called, and returns the facade
// handle ingress/query callers use.
func NewFacade(engine *SyncEngine, logger *slog.Logger, cfg FacadeConfig) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueryChannelDepth <= 0 {
		cfg.QueryChannelDepth = 10_000
	}
	if cfg.InsertChannelDepth <= 0 {
		cfg.InsertChannelDepth = 10_000
	}
	f := &Facade{
		engine:   engine,
		logger:   logger,
		syncCh:   make(chan *job, 1),
		queryCh:  make(chan *job, cfg.QueryChannelDepth),
		insertCh: make(chan *job, cfg.InsertChannelDepth),
		stopped:  make(chan struct{}),
	}
	go f.loop()
	return f
}

// loop is the single-threaded command processor: a biased select that
// always prefers sync over query over insert, so a flush or a read
// never waits behind a backlog of inserts (spec.md §5 "Biased
// select... read and flush operations are never starved by ingest").
func (f *Facade) loop() {
	for {
		select {
		case <-f.stopped:
			return
		default:
		}
		if f.runOneNonBlocking(f.syncCh) {
			continue
		}
		if f.runOneNonBlockingTwo(f.syncCh, f.queryCh) {
			continue
		}

		select {
		case j := <-f.syncCh:
			if f.runAndCheckStop(j) {
				return
			}
		case j := <-f.queryCh:
			f.run(j)
		case j := <-f.insertCh:
			f.run(j)
		}
	}
}

func (f *Facade) runOneNonBlocking(ch chan *job) bool {
	select {
	case j := <-ch:
		return f.runAndCheckStop(j)
	default:
		return false
	}
}

func (f *Facade) runOneNonBlockingTwo(a, b chan *job) bool {
	select {
	case j := <-a:
		return f.runAndCheckStop(j)
	default:
	}
	select {
	case j := <-b:
		f.run(j)
		return true
	default:
		return false
	}
}

// runAndCheckStop runs j and reports whether the loop should exit
// (only the shutdown job sets this, via closing f.stopped).
func (f *Facade) runAndCheckStop(j *job) bool {
	f.run(j)
	select {
	case <-f.stopped:
		return true
	default:
		return false
	}
}

// run executes j's work with panic recovery: a panic inside a command
// is a bug, not a reason to take the whole engine down (spec.md §7
// "Panic... logged, operation dropped, engine continues").
func (f *Facade) run(j *job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("engine: command panicked, dropping operation", "panic", r)
		}
	}()
	j.run(f.engine)
}

func (f *Facade) submitSync(run func(e *SyncEngine)) {
	j := newJob(run)
	f.syncCh <- j
	<-j.done
}

func (f *Facade) submitQuery(run func(e *SyncEngine)) {
	j := newJob(run)
	f.queryCh <- j
	<-j.done
}

func (f *Facade) submitInsert(run func(e *SyncEngine)) {
	j := newJob(run)
	f.insertCh <- j
	<-j.done
}

// -- insert/mutation surface --

func (f *Facade) InsertResource(attrs map[string]tracedata.Value) (*tracedata.Resource, error) {
	var res *tracedata.Resource
	var err error
	f.submitInsert(func(e *SyncEngine) { res, err = e.InsertResource(attrs) })
	return res, err
}

func (f *Facade) CreateSpan(ts tracedata.Timestamp, kind tracedata.SpanIDKind, c tracedata.CreateSpanEvent) (*tracedata.Span, error) {
	var span *tracedata.Span
	var err error
	f.submitInsert(func(e *SyncEngine) { span, err = e.CreateSpan(ts, kind, c) })
	return span, err
}

func (f *Facade) UpdateSpan(ts tracedata.Timestamp, id tracedata.FullSpanId, u tracedata.UpdateSpanEvent) error {
	var err error
	f.submitInsert(func(e *SyncEngine) { err = e.UpdateSpan(ts, id, u) })
	return err
}

func (f *Facade) FollowsSpan(ts tracedata.Timestamp, id tracedata.FullSpanId, fs tracedata.FollowsSpanEvent) error {
	var err error
	f.submitInsert(func(e *SyncEngine) { err = e.FollowsSpan(ts, id, fs) })
	return err
}

func (f *Facade) EnterSpan(ts tracedata.Timestamp, id tracedata.FullSpanId, enter tracedata.EnterSpanEvent) error {
	var err error
	f.submitInsert(func(e *SyncEngine) { err = e.EnterSpan(ts, id, enter) })
	return err
}

func (f *Facade) ExitSpan(ts tracedata.Timestamp, id tracedata.FullSpanId) error {
	var err error
	f.submitInsert(func(e *SyncEngine) { err = e.ExitSpan(ts, id) })
	return err
}

func (f *Facade) CloseSpan(ts tracedata.Timestamp, id tracedata.FullSpanId, c tracedata.CloseSpanEvent) error {
	var err error
	f.submitInsert(func(e *SyncEngine) { err = e.CloseSpan(ts, id, c) })
	return err
}

func (f *Facade) InsertEvent(ts tracedata.Timestamp, kind tracedata.SpanIDKind, resourceKey tracedata.Timestamp, parentID *tracedata.FullSpanId, content tracedata.Value, namespace, function, file string, line, col *uint32, level tracedata.Level, attrs map[string]tracedata.Value) (*tracedata.Event, error) {
	var ev *tracedata.Event
	var err error
	f.submitInsert(func(e *SyncEngine) {
		ev, err = e.InsertEvent(ts, kind, resourceKey, parentID, content, namespace, function, file, line, col, level, attrs)
	})
	return ev, err
}

func (f *Facade) DisconnectTracingInstance(kind tracedata.SpanIDKind, instanceID [16]byte) error {
	var err error
	f.submitInsert(func(e *SyncEngine) { err = e.DisconnectTracingInstance(kind, instanceID) })
	return err
}

func (f *Facade) Delete(p DeleteParams) (DeleteResult, error) {
	var res DeleteResult
	var err error
	f.submitInsert(func(e *SyncEngine) { res, err = e.Delete(p) })
	return res, err
}

// -- query surface --

func (f *Facade) QuerySpan(q Query) ([]*tracedata.Span, error) {
	var res []*tracedata.Span
	var err error
	f.submitQuery(func(e *SyncEngine) { res, err = e.QuerySpan(q) })
	return res, err
}

func (f *Facade) QueryEvent(q Query) ([]*tracedata.Event, error) {
	var res []*tracedata.Event
	var err error
	f.submitQuery(func(e *SyncEngine) { res, err = e.QueryEvent(q) })
	return res, err
}

func (f *Facade) QuerySpanCount(q Query) int {
	var n int
	f.submitQuery(func(e *SyncEngine) { n = e.QuerySpanCount(q) })
	return n
}

func (f *Facade) QueryEventCount(q Query) int {
	var n int
	f.submitQuery(func(e *SyncEngine) { n = e.QueryEventCount(q) })
	return n
}

func (f *Facade) QueryStats() StatsView {
	var s StatsView
	f.submitQuery(func(e *SyncEngine) { s = e.QueryStats() })
	return s
}

func (f *Facade) GetStatus() EngineStatus {
	var s EngineStatus
	f.submitQuery(func(e *SyncEngine) { s = e.GetStatus() })
	return s
}

func (f *Facade) SubscribeToSpans(n filterlang.Node) (string, <-chan Update, error) {
	var id string
	var ch <-chan Update
	var err error
	f.submitQuery(func(e *SyncEngine) { id, ch, err = e.SubscribeToSpans(n) })
	return id, ch, err
}

func (f *Facade) SubscribeToEvents(n filterlang.Node) (string, <-chan Update, error) {
	var id string
	var ch <-chan Update
	var err error
	f.submitQuery(func(e *SyncEngine) { id, ch, err = e.SubscribeToEvents(n) })
	return id, ch, err
}

func (f *Facade) UnsubscribeFromSpans(id string) {
	f.submitQuery(func(e *SyncEngine) { e.UnsubscribeFromSpans(id) })
}

func (f *Facade) UnsubscribeFromEvents(id string) {
	f.submitQuery(func(e *SyncEngine) { e.UnsubscribeFromEvents(id) })
}

func (f *Facade) CopyDataset(target tracestore.Store) error {
	var err error
	f.submitQuery(func(e *SyncEngine) { err = e.CopyDataset(target) })
	return err
}

// Sync submits a flush command on the highest-priority channel.
func (f *Facade) Sync() error {
	var err error
	f.submitSync(func(e *SyncEngine) { err = e.storage.Sync() })
	return err
}

// Shutdown closes the insert channel, drains it synchronously so
// in-flight writes land, persists an index snapshot if the backend
// supports one, and stops the command loop (spec.md §5 "Shutdown").
// ctx is honored only while waiting for the loop to acknowledge.
func (f *Facade) Shutdown(ctx context.Context) error {
	var persistErr error
	j := newJob(func(e *SyncEngine) {
		close(f.insertCh)
		for pending := range f.insertCh {
			f.run(pending)
		}
		if snap, ok := e.storage.(tracestore.IndexSnapshotStore); ok {
			data, err := e.snapshotIndexes()
			if err != nil {
				persistErr = fmt.Errorf("engine: shutdown snapshot encode: %w", err)
			} else if err := snap.SaveIndexSnapshot(data); err != nil {
				persistErr = fmt.Errorf("engine: shutdown snapshot persist: %w", err)
			}
		}
		close(f.stopped)
	})
	select {
	case f.syncCh <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return persistErr
}
