package filterexec

import (
	"regexp"
	"strconv"

	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/index"
	"brokle-tracehub/internal/tracedata"
)

// EntityLookup resolves the context-merged value of an attribute name
// for one entity key (spec.md §4.2's context().attribute(name)), used
// by residual predicates so inherited attributes are visible, not just
// an entity's own.
type EntityLookup func(key tracedata.Timestamp, name string) (tracedata.Value, bool)

// SpanRef fetches a span by key for residual predicates that need a
// field no index slice carries directly (closed_at, duration).
type SpanRef func(key tracedata.Timestamp) (*tracedata.Span, bool)

// IDResolver resolves a parsed span id to its storage key.
type IDResolver func(id tracedata.FullSpanId) (tracedata.Timestamp, bool)

// TraceRootResolver resolves a `#trace` predicate literal (the root
// span's id, in FullSpanId string form) to the TraceRoot it names.
type TraceRootResolver func(literal string) (tracedata.TraceRoot, bool)

// SpanLowering compiles a basic filter into an IndexedFilter against
// the span index family.
type SpanLowering struct {
	Indexes     *index.SpanIndexes
	ResolveID   IDResolver
	ResolveRoot TraceRootResolver
	SpanByKey   SpanRef
	Attribute   EntityLookup
}

// Lower compiles n for span queries.
func (sl *SpanLowering) Lower(n filterlang.Node) *IndexedFilter {
	switch n.Kind {
	case filterlang.NodeAnd:
		return lowerAnd(n.Children, sl.Lower, sl.Indexes.All)
	case filterlang.NodeOr:
		return lowerOr(n.Children, sl.Lower)
	case filterlang.NodeNot:
		return NotNode(sl.Indexes.All.Slice(), sl.Lower(*n.Inner))
	case filterlang.NodePredicate:
		return sl.lowerPredicate(n.Predicate)
	}
	return Empty()
}

func (sl *SpanLowering) lowerPredicate(p filterlang.Predicate) *IndexedFilter {
	if !p.Inherent {
		vi := sl.Indexes.Attributes.Get(p.Name)
		lookup := func(key tracedata.Timestamp) (tracedata.Value, bool) { return sl.Attribute(key, p.Name) }
		return LowerValueExpr(vi, p.Value, lookup)
	}
	switch p.Property {
	case filterlang.PropertyLevel:
		return lowerLevel(sl.Indexes.ByLevel[:], p.Value)
	case filterlang.PropertyNamespace:
		return lowerMapEq(sl.Indexes.ByNamespace, p.Value)
	case filterlang.PropertyFunction:
		return lowerMapEq(sl.Indexes.ByFunction, p.Value)
	case filterlang.PropertyFile:
		return lowerMapEq(sl.Indexes.ByFile, p.Value)
	case filterlang.PropertyName:
		return lowerMapEq(sl.Indexes.ByName, p.Value)
	case filterlang.PropertyParent:
		return sl.lowerParent(p.Value)
	case filterlang.PropertyTrace:
		return lowerTrace(sl.Indexes.ByTrace, sl.ResolveRoot, p.Value)
	case filterlang.PropertyCreated:
		return lowerCreated(sl.Indexes.All, p.Value)
	case filterlang.PropertyClosed:
		return sl.lowerClosed(p.Value)
	case filterlang.PropertyDuration:
		return sl.lowerDuration(p.Value)
	case filterlang.PropertyContent:
		return Empty() // spans carry no content slot
	}
	return Empty()
}

func (sl *SpanLowering) lowerParent(v filterlang.ValueExpr) *IndexedFilter {
	if v.Kind != filterlang.ExprCompare {
		return Empty()
	}
	id, err := tracedata.ParseFullSpanId(v.Literal)
	if err != nil {
		return Empty()
	}
	parentKey, ok := sl.ResolveID(id)
	if !ok {
		return Empty()
	}
	desc := sl.Indexes.Descendants.Get(parentKey)
	if desc == nil {
		return Empty()
	}
	return Single(desc.Slice(), nil)
}

func (sl *SpanLowering) lowerClosed(v filterlang.ValueExpr) *IndexedFilter {
	if v.Kind != filterlang.ExprCompare {
		return Empty()
	}
	target, err := strconv.ParseUint(v.Literal, 10, 64)
	if err != nil {
		return Empty()
	}
	residual := func(key tracedata.Timestamp) bool {
		s, ok := sl.SpanByKey(key)
		if !ok || s.ClosedAt == nil {
			return false
		}
		return compareUint(uint64(*s.ClosedAt), v.CompareOp, target)
	}
	return Single(sl.Indexes.All.Slice(), residual)
}

func (sl *SpanLowering) lowerDuration(v filterlang.ValueExpr) *IndexedFilter {
	if v.Kind != filterlang.ExprCompare {
		return Empty()
	}
	target, err := strconv.ParseUint(v.Literal, 10, 64)
	if err != nil {
		return Empty()
	}
	lo, hi := rangeForOp(v.CompareOp, target)
	buckets := make([]StratBucket, 0, index.NumDurationBuckets)
	for i := 0; i < index.NumDurationBuckets; i++ {
		if index.BucketMatchesRange(i, lo, hi) {
			buckets = append(buckets, StratBucket{BucketIndex: i, Slice: sl.Indexes.Duration.Bucket(i).Slice()})
		}
	}
	// An open span has no finished duration; it can only ever match an
	// unbounded-above comparison evaluated against its running duration,
	// which this engine does not track continuously, so open spans are
	// excluded from duration predicates.
	residual := func(key tracedata.Timestamp) bool {
		s, ok := sl.SpanByKey(key)
		if !ok {
			return false
		}
		d, closed := s.Duration()
		if !closed {
			return false
		}
		return compareUint(d, v.CompareOp, target)
	}
	return &IndexedFilter{Kind: KindStratified, Buckets: buckets, RangeLo: lo, RangeHi: hi, Residual2: residual}
}

// EventLowering compiles a basic filter into an IndexedFilter against
// the event index family.
type EventLowering struct {
	Indexes     *index.EventIndexes
	ResolveID   IDResolver
	ResolveRoot TraceRootResolver
	Descendants *index.MapIndex[tracedata.Timestamp] // span indexes' Descendants, for #parent
	Attribute   EntityLookup
	Content     ValueLookup // resolves an event's own Content value by key
}

func (el *EventLowering) Lower(n filterlang.Node) *IndexedFilter {
	switch n.Kind {
	case filterlang.NodeAnd:
		return lowerAnd(n.Children, el.Lower, el.Indexes.All)
	case filterlang.NodeOr:
		return lowerOr(n.Children, el.Lower)
	case filterlang.NodeNot:
		return NotNode(el.Indexes.All.Slice(), el.Lower(*n.Inner))
	case filterlang.NodePredicate:
		return el.lowerPredicate(n.Predicate)
	}
	return Empty()
}

func (el *EventLowering) lowerPredicate(p filterlang.Predicate) *IndexedFilter {
	if !p.Inherent {
		vi := el.Indexes.Attributes.Get(p.Name)
		lookup := func(key tracedata.Timestamp) (tracedata.Value, bool) { return el.Attribute(key, p.Name) }
		return LowerValueExpr(vi, p.Value, lookup)
	}
	switch p.Property {
	case filterlang.PropertyLevel:
		return lowerLevel(el.Indexes.ByLevel[:], p.Value)
	case filterlang.PropertyNamespace:
		return lowerMapEq(el.Indexes.ByNamespace, p.Value)
	case filterlang.PropertyFunction:
		return lowerMapEq(el.Indexes.ByFunction, p.Value)
	case filterlang.PropertyFile:
		return lowerMapEq(el.Indexes.ByFile, p.Value)
	case filterlang.PropertyParent:
		return el.lowerParent(p.Value)
	case filterlang.PropertyTrace:
		return lowerTrace(el.Indexes.ByTrace, el.ResolveRoot, p.Value)
	case filterlang.PropertyCreated:
		return lowerCreated(el.Indexes.All, p.Value)
	case filterlang.PropertyContent:
		return LowerValueExpr(el.Indexes.Content, p.Value, el.Content)
	case filterlang.PropertyName, filterlang.PropertyClosed, filterlang.PropertyDuration:
		return Empty() // not applicable to events
	}
	return Empty()
}

func (el *EventLowering) lowerParent(v filterlang.ValueExpr) *IndexedFilter {
	if v.Kind != filterlang.ExprCompare {
		return Empty()
	}
	id, err := tracedata.ParseFullSpanId(v.Literal)
	if err != nil {
		return Empty()
	}
	parentKey, ok := el.ResolveID(id)
	if !ok {
		return Empty()
	}
	desc := el.Descendants.Get(parentKey)
	if desc == nil {
		return Empty()
	}
	return Single(desc.Slice(), nil)
}

// --- shared lowering helpers ---

func lowerAnd(children []filterlang.Node, lower func(filterlang.Node) *IndexedFilter, all *index.Sorted) *IndexedFilter {
	if len(children) == 0 {
		return Single(all.Slice(), nil)
	}
	compiled := make([]*IndexedFilter, len(children))
	for i, c := range children {
		compiled[i] = lower(c)
	}
	return And(compiled...)
}

func lowerOr(children []filterlang.Node, lower func(filterlang.Node) *IndexedFilter) *IndexedFilter {
	if len(children) == 0 {
		return Empty()
	}
	compiled := make([]*IndexedFilter, len(children))
	for i, c := range children {
		compiled[i] = lower(c)
	}
	return Or(false, compiled...)
}

func lowerLevel(byLevel []*index.Sorted, v filterlang.ValueExpr) *IndexedFilter {
	if v.Kind != filterlang.ExprCompare {
		return Empty()
	}
	lvl, ok := tracedata.ParseLevel(v.Literal)
	if !ok {
		return Empty()
	}
	if v.CompareOp == filterlang.OpEq {
		return Single(byLevel[lvl].Slice(), nil)
	}
	// >= : union of every level at or above lvl.
	children := make([]*IndexedFilter, 0, int(tracedata.LevelFatal)-int(lvl)+1)
	for l := lvl; l <= tracedata.LevelFatal; l++ {
		if byLevel[l].Len() > 0 {
			children = append(children, Single(byLevel[l].Slice(), nil))
		}
	}
	if len(children) == 0 {
		return Empty()
	}
	return Or(true, children...)
}

func lowerMapEq(mi *index.MapIndex[string], v filterlang.ValueExpr) *IndexedFilter {
	switch v.Kind {
	case filterlang.ExprCompare:
		if v.CompareOp != filterlang.OpEq {
			return Empty()
		}
		s := mi.Get(v.Literal)
		if s == nil {
			return Empty()
		}
		return Single(s.Slice(), nil)
	case filterlang.ExprWildcard:
		if v.Literal == "*" {
			return unionOfGroups(mi, mi.Groups())
		}
		re, err := regexp.Compile(globToRegexp(v.Literal))
		if err != nil {
			return Empty()
		}
		return unionOfMatchingGroups(mi, re)
	case filterlang.ExprRegex:
		re, err := regexp.Compile(v.Literal)
		if err != nil {
			return Empty()
		}
		return unionOfMatchingGroups(mi, re)
	}
	return Empty()
}

func unionOfGroups(mi *index.MapIndex[string], groups []string) *IndexedFilter {
	children := make([]*IndexedFilter, 0, len(groups))
	for _, g := range groups {
		if s := mi.Get(g); s != nil && s.Len() > 0 {
			children = append(children, Single(s.Slice(), nil))
		}
	}
	if len(children) == 0 {
		return Empty()
	}
	return Or(true, children...)
}

func unionOfMatchingGroups(mi *index.MapIndex[string], re *regexp.Regexp) *IndexedFilter {
	var matching []string
	for _, g := range mi.Groups() {
		if re.MatchString(g) {
			matching = append(matching, g)
		}
	}
	return unionOfGroups(mi, matching)
}

func lowerTrace(byTrace *index.MapIndex[tracedata.TraceRoot], resolve TraceRootResolver, v filterlang.ValueExpr) *IndexedFilter {
	if v.Kind != filterlang.ExprCompare || resolve == nil {
		return Empty()
	}
	root, ok := resolve(v.Literal)
	if !ok {
		return Empty()
	}
	s := byTrace.Get(root)
	if s == nil {
		return Empty()
	}
	return Single(s.Slice(), nil)
}

func lowerCreated(all *index.Sorted, v filterlang.ValueExpr) *IndexedFilter {
	if v.Kind != filterlang.ExprCompare {
		return Empty()
	}
	target, err := strconv.ParseUint(v.Literal, 10, 64)
	if err != nil {
		return Empty()
	}
	slice := all.Slice()
	t := tracedata.Timestamp(target)
	switch v.CompareOp {
	case filterlang.OpEq:
		if all.Contains(t) {
			return Single([]tracedata.Timestamp{t}, nil)
		}
		return Empty()
	case filterlang.OpGte:
		return Single(slice[all.LowerBound(t):], nil)
	case filterlang.OpGt:
		return Single(slice[all.UpperBound(t):], nil)
	case filterlang.OpLte:
		return Single(slice[:all.UpperBound(t)], nil)
	case filterlang.OpLt:
		return Single(slice[:all.LowerBound(t)], nil)
	}
	return Empty()
}

func rangeForOp(op filterlang.CompareOp, target uint64) (lo, hi uint64) {
	switch op {
	case filterlang.OpEq:
		return target, target + 1
	case filterlang.OpGte:
		return target, ^uint64(0)
	case filterlang.OpGt:
		return target + 1, ^uint64(0)
	case filterlang.OpLte:
		return 0, target + 1
	case filterlang.OpLt:
		return 0, target
	}
	return 0, ^uint64(0)
}

func compareUint(a uint64, op filterlang.CompareOp, b uint64) bool {
	switch op {
	case filterlang.OpGte:
		return a >= b
	case filterlang.OpGt:
		return a > b
	case filterlang.OpLt:
		return a < b
	case filterlang.OpLte:
		return a <= b
	case filterlang.OpEq:
		return a == b
	}
	return false
}
