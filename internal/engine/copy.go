package engine

import (
	"fmt"

	"brokle-tracehub/internal/tracestore"
)

// CopyDataset streams every entity kind from current storage into a
// fresh target backend, in an order that keeps referential integrity
// even if the target is consumed mid-copy: resources and spans before
// the span-events and events that reference them.
func (e *SyncEngine) CopyDataset(target tracestore.Store) error {
	var err error
	e.trackCommand(func() {
		err = copyEntities(e.storage, target)
	})
	return err
}

func copyEntities(src, dst tracestore.Store) error {
	rit := src.GetAllResources()
	for {
		r, ok := rit.Next()
		if !ok {
			break
		}
		if err := dst.InsertResource(r); err != nil {
			return fmt.Errorf("engine: copy resource %d: %w", r.Key(), err)
		}
	}

	sit := src.GetAllSpans()
	for {
		s, ok := sit.Next()
		if !ok {
			break
		}
		if err := dst.InsertSpan(s); err != nil {
			return fmt.Errorf("engine: copy span %d: %w", s.Key(), err)
		}
	}

	seit := src.GetAllSpanEvents()
	for {
		se, ok := seit.Next()
		if !ok {
			break
		}
		if err := dst.InsertSpanEvent(se); err != nil {
			return fmt.Errorf("engine: copy span-event %d: %w", se.Key(), err)
		}
	}

	eit := src.GetAllEvents()
	for {
		ev, ok := eit.Next()
		if !ok {
			break
		}
		if err := dst.InsertEvent(ev); err != nil {
			return fmt.Errorf("engine: copy event %d: %w", ev.Key(), err)
		}
	}

	return dst.Sync()
}
