// Package tracedata defines the entity model shared by the storage
// backend, index set, filter engine and sync engine: timestamps, the
// tagged Value union, and the Resource/Span/SpanEvent/Event records.
package tracedata

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Timestamp is a strictly positive microsecond epoch. It is the key for
// every stored entity and defines total event order across all kinds.
type Timestamp uint64

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueF64
	ValueI64
	ValueU64
	ValueI128
	ValueU128
	ValueBool
	ValueString
	ValueBytes
	ValueArray
	ValueObject
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueF64:
		return "f64"
	case ValueI64:
		return "i64"
	case ValueU64:
		return "u64"
	case ValueI128:
		return "i128"
	case ValueU128:
		return "u128"
	case ValueBool:
		return "bool"
	case ValueString:
		return "string"
	case ValueBytes:
		return "bytes"
	case ValueArray:
		return "array"
	case ValueObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the tagged union stored in every entity attribute map. Only
// the field matching Kind is meaningful.
type Value struct {
	Kind   ValueKind
	F64    float64
	I64    int64
	U64    uint64
	Big    *big.Int // backs I128 and U128
	Bool   bool
	Str    string
	Bytes  []byte
	Array  []Value
	Object map[string]Value
}

func Null() Value                  { return Value{Kind: ValueNull} }
func F64(v float64) Value          { return Value{Kind: ValueF64, F64: v} }
func I64(v int64) Value            { return Value{Kind: ValueI64, I64: v} }
func U64(v uint64) Value           { return Value{Kind: ValueU64, U64: v} }
func I128(v *big.Int) Value        { return Value{Kind: ValueI128, Big: v} }
func U128(v *big.Int) Value        { return Value{Kind: ValueU128, Big: v} }
func Bool(v bool) Value            { return Value{Kind: ValueBool, Bool: v} }
func String(v string) Value        { return Value{Kind: ValueString, Str: v} }
func Bytes(v []byte) Value         { return Value{Kind: ValueBytes, Bytes: v} }
func Array(v []Value) Value        { return Value{Kind: ValueArray, Array: v} }
func Object(v map[string]Value) Value { return Value{Kind: ValueObject, Object: v} }

// Equal compares two values structurally, including nested array/object
// members. Used by resource-attribute deduplication on insert.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueNull:
		return true
	case ValueF64:
		return v.F64 == other.F64
	case ValueI64:
		return v.I64 == other.I64
	case ValueU64:
		return v.U64 == other.U64
	case ValueI128, ValueU128:
		if v.Big == nil || other.Big == nil {
			return v.Big == other.Big
		}
		return v.Big.Cmp(other.Big) == 0
	case ValueBool:
		return v.Bool == other.Bool
	case ValueString:
		return v.Str == other.Str
	case ValueBytes:
		if len(v.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	case ValueArray:
		if len(v.Array) != len(other.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(other.Array[i]) {
				return false
			}
		}
		return true
	case ValueObject:
		if len(v.Object) != len(other.Object) {
			return false
		}
		for k, vv := range v.Object {
			ov, ok := other.Object[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value for display and for the exact-string bucket
// of ValueIndex.
func (v Value) String() string {
	switch v.Kind {
	case ValueNull:
		return "null"
	case ValueF64:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case ValueI64:
		return strconv.FormatInt(v.I64, 10)
	case ValueU64:
		return strconv.FormatUint(v.U64, 10)
	case ValueI128, ValueU128:
		if v.Big == nil {
			return "0"
		}
		return v.Big.String()
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueString:
		return v.Str
	case ValueBytes:
		return fmt.Sprintf("% x", v.Bytes)
	case ValueArray:
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = e.String()
		}
		return fmt.Sprintf("%v", parts)
	case ValueObject:
		keys := make([]string, 0, len(v.Object))
		for k := range v.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + v.Object[k].String()
		}
		return fmt.Sprintf("%v", parts)
	}
	return ""
}

// AttributeMapEqual reports whether two attribute maps are identical,
// used for resource deduplication on insert.
func AttributeMapEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Level is the internal severity scale events and spans share.
type Level int

const (
	LevelTrace Level = iota + 1
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel accepts the known severity names, case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LevelTrace, true
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return 0, false
	}
}

// LevelFromTracing maps tracing-style levels 0..=4 to the internal scale.
func LevelFromTracing(v int32) Level {
	switch v {
	case 0:
		return LevelTrace
	case 1:
		return LevelDebug
	case 2:
		return LevelInfo
	case 3:
		return LevelWarn
	default:
		return LevelError
	}
}

// LevelFromOTelSeverity maps an OTLP SeverityNumber (1-24) to the
// internal scale per the five-band split in the OTLP spec.
func LevelFromOTelSeverity(n int32) Level {
	switch {
	case n >= 1 && n <= 4:
		return LevelTrace
	case n >= 5 && n <= 8:
		return LevelDebug
	case n >= 9 && n <= 12:
		return LevelInfo
	case n >= 13 && n <= 16:
		return LevelWarn
	case n >= 17 && n <= 20:
		return LevelError
	default:
		return LevelFatal
	}
}
