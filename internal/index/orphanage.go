package index

import "brokle-tracehub/internal/tracedata"

// Orphanage maps an unresolved parent FullSpanId to the keys of
// entities (spans or events) that declared it as parent_id before the
// parent itself was observed. When the parent span is created, its
// bookkeeping drains the corresponding entry and reparents every
// pending child.
type Orphanage struct {
	pending map[tracedata.FullSpanId][]tracedata.Timestamp
}

func NewOrphanage() *Orphanage {
	return &Orphanage{pending: make(map[tracedata.FullSpanId][]tracedata.Timestamp)}
}

// Add registers key as waiting on parentID.
func (o *Orphanage) Add(parentID tracedata.FullSpanId, key tracedata.Timestamp) {
	o.pending[parentID] = append(o.pending[parentID], key)
}

// Drain removes and returns all keys waiting on parentID, if any.
func (o *Orphanage) Drain(parentID tracedata.FullSpanId) []tracedata.Timestamp {
	keys := o.pending[parentID]
	if len(keys) == 0 {
		return nil
	}
	delete(o.pending, parentID)
	return keys
}

// Remove deletes a single pending key from parentID's list (used when a
// previously-orphaned entity is itself deleted before its parent shows
// up).
func (o *Orphanage) Remove(parentID tracedata.FullSpanId, key tracedata.Timestamp) {
	keys := o.pending[parentID]
	for i, k := range keys {
		if k == key {
			o.pending[parentID] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(o.pending[parentID]) == 0 {
		delete(o.pending, parentID)
	}
}
