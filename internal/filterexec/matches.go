package filterexec

import "brokle-tracehub/internal/tracedata"

// Matches reports whether key satisfies f, used by live subscriptions
// to test a single freshly-inserted entity by building f's iterator and
// advancing it to key.
func Matches(f *IndexedFilter, key tracedata.Timestamp) bool {
	if f == nil {
		return false
	}
	return Build(f).AdvanceFrontUntilEquals(key)
}
