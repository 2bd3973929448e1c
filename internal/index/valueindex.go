package index

import "brokle-tracehub/internal/tracedata"

// ValueIndex partitions entity keys that carry a value of a given name
// (or the event "content" slot) by the value's type, with a further
// exact-match breakdown for strings and booleans. It lets the filter
// engine answer "does entity X have attribute A with some value of type
// T" and "... with exact value V" without scanning entities.
type ValueIndex struct {
	Nulls  *Sorted
	F64    *Sorted
	I64    *Sorted
	U64    *Sorted
	I128   *Sorted
	U128   *Sorted
	Bools  *Sorted // union of Trues/Falses, kept for type-bucket queries
	Trues  *Sorted
	Falses *Sorted
	Strs   *Sorted
	Bytes  *Sorted
	Arrays *Sorted
	Objects *Sorted

	// ValueIndexes is the exact-string-match map: string value ->
	// sorted keys holding exactly that string.
	ValueIndexes map[string]*Sorted
}

func NewValueIndex() *ValueIndex {
	return &ValueIndex{
		Nulls:        NewSorted(),
		F64:          NewSorted(),
		I64:          NewSorted(),
		U64:          NewSorted(),
		I128:         NewSorted(),
		U128:         NewSorted(),
		Bools:        NewSorted(),
		Trues:        NewSorted(),
		Falses:       NewSorted(),
		Strs:         NewSorted(),
		Bytes:        NewSorted(),
		Arrays:       NewSorted(),
		Objects:      NewSorted(),
		ValueIndexes: make(map[string]*Sorted),
	}
}

// bucketFor returns the type-bucket Sorted index for v's kind.
func (vi *ValueIndex) bucketFor(kind tracedata.ValueKind) *Sorted {
	switch kind {
	case tracedata.ValueNull:
		return vi.Nulls
	case tracedata.ValueF64:
		return vi.F64
	case tracedata.ValueI64:
		return vi.I64
	case tracedata.ValueU64:
		return vi.U64
	case tracedata.ValueI128:
		return vi.I128
	case tracedata.ValueU128:
		return vi.U128
	case tracedata.ValueBool:
		return vi.Bools
	case tracedata.ValueString:
		return vi.Strs
	case tracedata.ValueBytes:
		return vi.Bytes
	case tracedata.ValueArray:
		return vi.Arrays
	case tracedata.ValueObject:
		return vi.Objects
	default:
		return vi.Nulls
	}
}

// Insert adds key under v's type bucket (and exact-match sub-bucket
// where applicable: strings into ValueIndexes, booleans into
// Trues/Falses).
func (vi *ValueIndex) Insert(key tracedata.Timestamp, v tracedata.Value) {
	vi.bucketFor(v.Kind).Insert(key)

	switch v.Kind {
	case tracedata.ValueBool:
		if v.Bool {
			vi.Trues.Insert(key)
		} else {
			vi.Falses.Insert(key)
		}
	case tracedata.ValueString:
		s, ok := vi.ValueIndexes[v.Str]
		if !ok {
			s = NewSorted()
			vi.ValueIndexes[v.Str] = s
		}
		s.Insert(key)
	}
}

// Remove deletes key from v's buckets. v must be the value previously
// passed to Insert for this key (retroactive re-indexing always removes
// the old value before inserting the new one).
func (vi *ValueIndex) Remove(key tracedata.Timestamp, v tracedata.Value) {
	vi.bucketFor(v.Kind).Remove(key)

	switch v.Kind {
	case tracedata.ValueBool:
		if v.Bool {
			vi.Trues.Remove(key)
		} else {
			vi.Falses.Remove(key)
		}
	case tracedata.ValueString:
		if s, ok := vi.ValueIndexes[v.Str]; ok {
			s.Remove(key)
			if s.Len() == 0 {
				delete(vi.ValueIndexes, v.Str)
			}
		}
	}
}

// ExactString returns the sorted index for an exact string match, or
// nil if the string has never been seen (the filter engine lowers this
// to Single(&[], None)).
func (vi *ValueIndex) ExactString(s string) *Sorted {
	return vi.ValueIndexes[s]
}

// TypeBucket exposes the raw type-partition index for a given kind,
// used by Eq lowering for non-string/non-bool scalar types and by
// "exists with type T" predicates.
func (vi *ValueIndex) TypeBucket(kind tracedata.ValueKind) *Sorted {
	return vi.bucketFor(kind)
}

// AttributeIndex maps an attribute name to its ValueIndex, lazily
// creating buckets on first insert of that name.
type AttributeIndex struct {
	byName map[string]*ValueIndex
}

func NewAttributeIndex() *AttributeIndex {
	return &AttributeIndex{byName: make(map[string]*ValueIndex)}
}

// Get returns the ValueIndex for name, or nil if the attribute has
// never been seen.
func (a *AttributeIndex) Get(name string) *ValueIndex {
	return a.byName[name]
}

// Names returns all attribute names currently indexed, used for
// attribute-discovery surfaces.
func (a *AttributeIndex) Names() []string {
	names := make([]string, 0, len(a.byName))
	for n := range a.byName {
		names = append(names, n)
	}
	return names
}

func (a *AttributeIndex) forName(name string) *ValueIndex {
	vi, ok := a.byName[name]
	if !ok {
		vi = NewValueIndex()
		a.byName[name] = vi
	}
	return vi
}

// Insert indexes key under attribute name with value v.
func (a *AttributeIndex) Insert(name string, key tracedata.Timestamp, v tracedata.Value) {
	a.forName(name).Insert(key, v)
}

// Remove removes key from attribute name's index for value v (the value
// it was previously inserted with).
func (a *AttributeIndex) Remove(name string, key tracedata.Timestamp, v tracedata.Value) {
	if vi, ok := a.byName[name]; ok {
		vi.Remove(key, v)
	}
}

// Reindex atomically removes oldValue and inserts newValue for key
// under name, used by retroactive re-indexing when an ancestor's
// attribute value changes underneath an already-indexed descendant.
func (a *AttributeIndex) Reindex(name string, key tracedata.Timestamp, oldValue, newValue tracedata.Value) {
	a.Remove(name, key, oldValue)
	a.Insert(name, key, newValue)
}
