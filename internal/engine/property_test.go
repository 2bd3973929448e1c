package engine

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/pkg/pagination"
)

// TestSpanWindowQueryMatchesLinearScan is the property test spec.md §9
// calls for around stratification: for a randomized population of
// open and closed spans spanning every duration bucket, a windowed
// query (Stratify -> TrimWindow -> the residual InTimeframe check)
// must return exactly the spans whose [created, closed-or-open)
// interval overlaps the window, no more and no less, matching a
// reference computed by a plain linear scan over every span.
func TestSpanWindowQueryMatchesLinearScan(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.InsertResource(map[string]tracedata.Value{"service.name": tracedata.String("api")})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))

	type span struct {
		created tracedata.Timestamp
		closed  *tracedata.Timestamp
	}
	var spans []span

	// Duration buckets are geometric, so exercise a spread from
	// microseconds to well past the largest closed bucket, plus a
	// handful of still-open spans.
	durations := []uint64{0, 1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000}

	ts := tracedata.Timestamp(1000)
	for i := 0; i < 200; i++ {
		created := ts
		ts += tracedata.Timestamp(1 + rng.Intn(50))

		id := spanID(uint64(i + 1))
		newSpan, err := e.CreateSpan(created, tracedata.SpanIDTracing, tracedata.CreateSpanEvent{
			ResourceKey: res.Key(), SpanID: id, Name: "s",
		})
		require.NoError(t, err)
		// uniqueTimestamp may have bumped the assigned key past
		// `created` if an earlier iteration's span-event ledger entry
		// already claimed it; track the key actually assigned.
		created = newSpan.CreatedAt

		if rng.Intn(5) == 0 {
			// leave this one open
			spans = append(spans, span{created: created})
			continue
		}

		dur := durations[rng.Intn(len(durations))]
		closeAt := created + tracedata.Timestamp(dur)
		if closeAt < created {
			closeAt = created
		}
		require.NoError(t, e.CloseSpan(closeAt, id, tracedata.CloseSpanEvent{}))
		// re-fetch the actual assigned close key (uniqueTimestamp may
		// have bumped it forward past an already-used key).
		key, ok := e.spanIdx.KeyForID(id)
		require.True(t, ok)
		s, err := e.storage.GetSpan(key)
		require.NoError(t, err)
		spans = append(spans, span{created: s.CreatedAt, closed: s.ClosedAt})
	}

	windows := [][2]tracedata.Timestamp{
		{1000, 2000},
		{1500, 1600},
		{0, 1_000_000_000},
		{5000, 5001},
	}

	for _, w := range windows {
		start, end := w[0], w[1]

		var want []tracedata.Timestamp
		for _, s := range spans {
			if s.created > end {
				continue
			}
			if s.closed != nil && *s.closed < start {
				continue
			}
			want = append(want, s.created)
		}
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

		got, err := e.QuerySpan(Query{
			Filter: filterlang.And(),
			Order:  pagination.Asc,
			Limit:  len(spans) + 1,
			Start:  start,
			End:    end,
		})
		require.NoError(t, err)

		gotKeys := make([]tracedata.Timestamp, len(got))
		for i, s := range got {
			gotKeys[i] = s.CreatedAt
		}
		require.Equal(t, want, gotKeys, "window [%d,%d]", start, end)
	}
}
