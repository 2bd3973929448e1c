package tracedata

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// jsonValue is the wire/storage encoding of a Value: explicit about its
// kind since the JSON type system cannot distinguish i64/u64/i128/u128
// from a bare number, and bytes need base64.
type jsonValue struct {
	Kind   string            `json:"kind"`
	F64    float64           `json:"f64,omitempty"`
	I64    int64             `json:"i64,omitempty"`
	U64    uint64            `json:"u64,omitempty"`
	Big    string            `json:"big,omitempty"` // decimal string, i128/u128
	Bool   bool              `json:"bool,omitempty"`
	Str    string            `json:"str,omitempty"`
	Bytes  string            `json:"bytes,omitempty"` // base64
	Array  []Value           `json:"array,omitempty"`
	Object map[string]Value  `json:"object,omitempty"`
}

// MarshalJSON implements json.Marshaler for the tagged Value union, used
// both by the file storage backend's parquet row payload and by the
// apiserver's query/render responses.
func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Kind: v.Kind.String()}
	switch v.Kind {
	case ValueF64:
		jv.F64 = v.F64
	case ValueI64:
		jv.I64 = v.I64
	case ValueU64:
		jv.U64 = v.U64
	case ValueI128, ValueU128:
		if v.Big != nil {
			jv.Big = v.Big.String()
		} else {
			jv.Big = "0"
		}
	case ValueBool:
		jv.Bool = v.Bool
	case ValueString:
		jv.Str = v.Str
	case ValueBytes:
		jv.Bytes = base64.StdEncoding.EncodeToString(v.Bytes)
	case ValueArray:
		jv.Array = v.Array
	case ValueObject:
		jv.Object = v.Object
	}
	return json.Marshal(jv)
}

// UnmarshalJSON implements json.Unmarshaler for Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	switch jv.Kind {
	case "null", "":
		*v = Null()
	case "f64":
		*v = F64(jv.F64)
	case "i64":
		*v = I64(jv.I64)
	case "u64":
		*v = U64(jv.U64)
	case "i128":
		n, ok := new(big.Int).SetString(jv.Big, 10)
		if !ok {
			return fmt.Errorf("tracedata: invalid i128 literal %q", jv.Big)
		}
		*v = I128(n)
	case "u128":
		n, ok := new(big.Int).SetString(jv.Big, 10)
		if !ok {
			return fmt.Errorf("tracedata: invalid u128 literal %q", jv.Big)
		}
		*v = U128(n)
	case "bool":
		*v = Bool(jv.Bool)
	case "string":
		*v = String(jv.Str)
	case "bytes":
		raw, err := base64.StdEncoding.DecodeString(jv.Bytes)
		if err != nil {
			return fmt.Errorf("tracedata: invalid base64 bytes: %w", err)
		}
		*v = Bytes(raw)
	case "array":
		*v = Array(jv.Array)
	case "object":
		*v = Object(jv.Object)
	default:
		return fmt.Errorf("tracedata: unknown value kind %q", jv.Kind)
	}
	return nil
}
