package tracestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
	pzstd "github.com/parquet-go/parquet-go/compress/zstd"

	"brokle-tracehub/internal/tracedata"
)

// entityRow is the on-disk parquet row shape shared by all four entity
// kinds: a sortable key column plus a JSON payload column -- storing
// the full tagged-union entity as one JSON string column sidesteps
// needing a column per Value variant.
type entityRow struct {
	Key  uint64 `parquet:"key"`
	JSON string `parquet:"payload"`
}

const (
	resourcesFile  = "resources.parquet"
	spansFile      = "spans.parquet"
	spanEventsFile = "span_events.parquet"
	eventsFile     = "events.parquet"
	snapshotFile   = "index_snapshot.zst"
)

// File is the persistent Store backend. Entities live in memory (the
// source of truth, since parquet's columnar layout does not support the
// in-place field updates Update* needs) and are snapshotted to parquet
// on Sync/Close, then reloaded on NewFile.
type File struct {
	*Memory
	dir      string
	mu       sync.Mutex
	compress int
}

// NewFile opens (or creates) a parquet-backed store rooted at dir,
// loading any existing snapshot.
func NewFile(dir string, compressionLevel int) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tracedata.NewStorageError("create storage dir", err)
	}
	f := &File{Memory: NewMemory(), dir: dir, compress: compressionLevel}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

var _ Store = (*File)(nil)

func (f *File) zstdLevel() pzstd.Level {
	switch {
	case f.compress <= 1:
		return pzstd.SpeedFastest
	case f.compress <= 3:
		return pzstd.SpeedDefault
	case f.compress <= 9:
		return pzstd.SpeedBetterCompression
	default:
		return pzstd.SpeedBestCompression
	}
}

func (f *File) path(name string) string { return filepath.Join(f.dir, name) }

func readRows(path string) ([]entityRow, error) {
	fh, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, tracedata.NewStorageError("open parquet file", err)
	}
	defer fh.Close()

	r := parquet.NewGenericReader[entityRow](fh)
	defer r.Close()

	rows := make([]entityRow, 0, r.NumRows())
	buf := make([]entityRow, 256)
	for {
		n, err := r.Read(buf)
		rows = append(rows, buf[:n]...)
		if err != nil {
			break
		}
	}
	return rows, nil
}

func (f *File) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rRows, err := readRows(f.path(resourcesFile))
	if err != nil {
		return err
	}
	for _, row := range rRows {
		var r tracedata.Resource
		if err := json.Unmarshal([]byte(row.JSON), &r); err != nil {
			return tracedata.NewStorageError("decode resource row", err)
		}
		f.Memory.resources[r.Key()] = &r
	}

	sRows, err := readRows(f.path(spansFile))
	if err != nil {
		return err
	}
	for _, row := range sRows {
		var s tracedata.Span
		if err := json.Unmarshal([]byte(row.JSON), &s); err != nil {
			return tracedata.NewStorageError("decode span row", err)
		}
		f.Memory.spans[s.Key()] = &s
	}

	seRows, err := readRows(f.path(spanEventsFile))
	if err != nil {
		return err
	}
	for _, row := range seRows {
		var e tracedata.SpanEvent
		if err := json.Unmarshal([]byte(row.JSON), &e); err != nil {
			return tracedata.NewStorageError("decode span event row", err)
		}
		f.Memory.spanEvents[e.Key()] = &e
	}

	eRows, err := readRows(f.path(eventsFile))
	if err != nil {
		return err
	}
	for _, row := range eRows {
		var e tracedata.Event
		if err := json.Unmarshal([]byte(row.JSON), &e); err != nil {
			return tracedata.NewStorageError("decode event row", err)
		}
		f.Memory.events[e.Key()] = &e
	}
	return nil
}

// Sync flushes the in-memory entity maps to parquet snapshots. It
// rewrites each file wholesale rather than appending: entity counts in
// this system are bounded by retention/eviction upstream, not an
// unbounded firehose, so a full rewrite per sync interval is cheap
// enough and far simpler than maintaining a row-group append cursor.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Memory.mu.RLock()
	resRows := make([]entityRow, 0, len(f.Memory.resources))
	for k, r := range f.Memory.resources {
		b, err := json.Marshal(r)
		if err != nil {
			f.Memory.mu.RUnlock()
			return tracedata.NewStorageError("encode resource", err)
		}
		resRows = append(resRows, entityRow{Key: uint64(k), JSON: string(b)})
	}
	spanRows := make([]entityRow, 0, len(f.Memory.spans))
	for k, s := range f.Memory.spans {
		b, err := json.Marshal(s)
		if err != nil {
			f.Memory.mu.RUnlock()
			return tracedata.NewStorageError("encode span", err)
		}
		spanRows = append(spanRows, entityRow{Key: uint64(k), JSON: string(b)})
	}
	seRows := make([]entityRow, 0, len(f.Memory.spanEvents))
	for k, e := range f.Memory.spanEvents {
		b, err := json.Marshal(e)
		if err != nil {
			f.Memory.mu.RUnlock()
			return tracedata.NewStorageError("encode span event", err)
		}
		seRows = append(seRows, entityRow{Key: uint64(k), JSON: string(b)})
	}
	evRows := make([]entityRow, 0, len(f.Memory.events))
	for k, e := range f.Memory.events {
		b, err := json.Marshal(e)
		if err != nil {
			f.Memory.mu.RUnlock()
			return tracedata.NewStorageError("encode event", err)
		}
		evRows = append(evRows, entityRow{Key: uint64(k), JSON: string(b)})
	}
	f.Memory.mu.RUnlock()

	level := f.zstdLevel()
	if err := writeRowsIfAny(f.path(resourcesFile), resRows, level); err != nil {
		return err
	}
	if err := writeRowsIfAny(f.path(spansFile), spanRows, level); err != nil {
		return err
	}
	if err := writeRowsIfAny(f.path(spanEventsFile), seRows, level); err != nil {
		return err
	}
	if err := writeRowsIfAny(f.path(eventsFile), evRows, level); err != nil {
		return err
	}
	return nil
}

func writeRowsIfAny(path string, rows []entityRow, level pzstd.Level) error {
	if len(rows) == 0 {
		_ = os.Remove(path)
		return nil
	}
	fh, err := os.Create(path)
	if err != nil {
		return tracedata.NewStorageError("create parquet file", err)
	}
	defer fh.Close()

	w := parquet.NewGenericWriter[entityRow](fh, parquet.Compression(&pzstd.Codec{Level: level}))
	if _, err := w.Write(rows); err != nil {
		return tracedata.NewStorageError("write parquet rows", err)
	}
	if err := w.Close(); err != nil {
		return tracedata.NewStorageError("close parquet writer", err)
	}
	return nil
}

func (f *File) Close() error {
	return f.Sync()
}

// LoadIndexSnapshot and SaveIndexSnapshot implement IndexSnapshotStore:
// a zstd-compressed side file the sync engine uses to skip a full index
// rebuild on startup (spec.md §4.1).
func (f *File) LoadIndexSnapshot() ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path(snapshotFile))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, tracedata.NewStorageError("read index snapshot", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false, tracedata.NewStorageError("init zstd decoder", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, tracedata.NewStorageError("decompress index snapshot", err)
	}
	return out, true, nil
}

func (f *File) SaveIndexSnapshot(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return tracedata.NewStorageError("init zstd encoder", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(data, nil)
	if err := os.WriteFile(f.path(snapshotFile), compressed, 0o644); err != nil {
		return tracedata.NewStorageError("write index snapshot", err)
	}
	return nil
}

var _ IndexSnapshotStore = (*File)(nil)
