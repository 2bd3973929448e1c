package filterexec

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/index"
	"brokle-tracehub/internal/tracedata"
)

// ValueLookup resolves an entity's value for the attribute (or content
// slot) a predicate targets, once the indexed slice has narrowed
// candidates down. Lowering bakes one of these into every residual it
// builds; the engine supplies it from a context view at evaluation
// time.
type ValueLookup func(key tracedata.Timestamp) (tracedata.Value, bool)

var numericKinds = []tracedata.ValueKind{
	tracedata.ValueF64, tracedata.ValueI64, tracedata.ValueU64,
	tracedata.ValueI128, tracedata.ValueU128,
}

// LowerValueExpr lowers a validated value expression against the
// ValueIndex for the attribute or content slot it targets. vi is nil
// when the name has never been indexed, in which case the predicate
// can never match anything.
func LowerValueExpr(vi *index.ValueIndex, expr filterlang.ValueExpr, lookup ValueLookup) *IndexedFilter {
	if vi == nil {
		return Empty()
	}

	switch expr.Kind {
	case filterlang.ExprWildcard:
		return lowerWildcard(vi, expr.Literal, lookup)
	case filterlang.ExprRegex:
		return lowerRegex(vi, expr.Literal, lookup)
	case filterlang.ExprCompare:
		return lowerCompare(vi, expr.CompareOp, expr.Literal, lookup)
	}
	return Empty()
}

func lowerWildcard(vi *index.ValueIndex, literal string, lookup ValueLookup) *IndexedFilter {
	if literal == "*" {
		return unionOfAllBuckets(vi)
	}
	if !strings.ContainsAny(literal, "*?") {
		if s := vi.ExactString(literal); s != nil {
			return Single(s.Slice(), nil)
		}
		return Empty()
	}
	re := globToRegexp(literal)
	return lowerRegex(vi, re, lookup)
}

func lowerRegex(vi *index.ValueIndex, pattern string, lookup ValueLookup) *IndexedFilter {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Empty()
	}
	residual := func(key tracedata.Timestamp) bool {
		v, ok := lookup(key)
		if !ok || v.Kind != tracedata.ValueString {
			return false
		}
		return re.MatchString(v.Str)
	}
	return Single(vi.Strs.Slice(), residual)
}

func lowerCompare(vi *index.ValueIndex, op filterlang.CompareOp, literal string, lookup ValueLookup) *IndexedFilter {
	if op == filterlang.OpEq {
		if b, err := strconv.ParseBool(literal); err == nil {
			if b {
				return Single(vi.Trues.Slice(), nil)
			}
			return Single(vi.Falses.Slice(), nil)
		}
		if f, ok := parseFloat(literal); ok {
			residual := func(key tracedata.Timestamp) bool {
				v, ok := lookup(key)
				if !ok {
					return false
				}
				n, ok := valueAsFloat(v)
				return ok && n == f
			}
			return Single(unionSlice(vi, numericKinds...), residual)
		}
		if s := vi.ExactString(literal); s != nil {
			return Single(s.Slice(), nil)
		}
		return Empty()
	}

	// Gt/Gte/Lt/Lte: numeric comparison when the literal parses as a
	// number, otherwise a lexicographic string comparison.
	if f, ok := parseFloat(literal); ok {
		residual := func(key tracedata.Timestamp) bool {
			v, ok := lookup(key)
			if !ok {
				return false
			}
			n, ok := valueAsFloat(v)
			return ok && compareNumeric(n, op, f)
		}
		return Single(unionSlice(vi, numericKinds...), residual)
	}

	residual := func(key tracedata.Timestamp) bool {
		v, ok := lookup(key)
		if !ok || v.Kind != tracedata.ValueString {
			return false
		}
		return compareString(v.Str, op, literal)
	}
	return Single(vi.Strs.Slice(), residual)
}

func unionOfAllBuckets(vi *index.ValueIndex) *IndexedFilter {
	buckets := []*index.Sorted{
		vi.Nulls, vi.F64, vi.I64, vi.U64, vi.I128, vi.U128,
		vi.Bools, vi.Strs, vi.Bytes, vi.Arrays, vi.Objects,
	}
	children := make([]*IndexedFilter, 0, len(buckets))
	for _, b := range buckets {
		if b.Len() > 0 {
			children = append(children, Single(b.Slice(), nil))
		}
	}
	if len(children) == 0 {
		return Empty()
	}
	return Or(true, children...)
}

func unionSlice(vi *index.ValueIndex, kinds ...tracedata.ValueKind) []tracedata.Timestamp {
	var out []tracedata.Timestamp
	for _, k := range kinds {
		out = append(out, vi.TypeBucket(k).Slice()...)
	}
	return mergeSorted(out)
}

// mergeSorted sorts and dedups a concatenation of already-ascending
// slices into one ascending slice.
func mergeSorted(keys []tracedata.Timestamp) []tracedata.Timestamp {
	if len(keys) <= 1 {
		return keys
	}
	out := make([]tracedata.Timestamp, len(keys))
	copy(out, keys)
	sortTimestamps(out)
	w := 1
	for r := 1; r < len(out); r++ {
		if out[r] != out[w-1] {
			out[w] = out[r]
			w++
		}
	}
	return out[:w]
}

func sortTimestamps(keys []tracedata.Timestamp) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func valueAsFloat(v tracedata.Value) (float64, bool) {
	switch v.Kind {
	case tracedata.ValueF64:
		return v.F64, true
	case tracedata.ValueI64:
		return float64(v.I64), true
	case tracedata.ValueU64:
		return float64(v.U64), true
	case tracedata.ValueI128, tracedata.ValueU128:
		if v.Big == nil {
			return 0, false
		}
		f := new(big.Float).SetInt(v.Big)
		out, _ := f.Float64()
		return out, true
	}
	return 0, false
}

func compareNumeric(a float64, op filterlang.CompareOp, b float64) bool {
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

func compareString(a string, op filterlang.CompareOp, b string) bool {
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

// globToRegexp translates a `*`/`?` wildcard pattern into an anchored
// regular expression, escaping every other regex metacharacter.
func globToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}
