package wire

import (
	"encoding/binary"
	"math"

	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/pkg/varint"
)

// byteBuilder is encodeValue/encodeMessage's output accumulator, the
// write-side mirror of byteCursor.
type byteBuilder struct {
	buf []byte
}

func (b *byteBuilder) byteVal(v byte)   { b.buf = append(b.buf, v) }
func (b *byteBuilder) bytes(v []byte)   { b.buf = append(b.buf, v...) }
func (b *byteBuilder) uvarint(v uint64) { b.buf = varint.Append(b.buf, v) }
func (b *byteBuilder) svarint(v int64)  { b.uvarint(uint64(v<<1) ^ uint64(v>>63)) }
func (b *byteBuilder) boolVal(v bool) {
	if v {
		b.byteVal(1)
	} else {
		b.byteVal(0)
	}
}
func (b *byteBuilder) str(s string) {
	b.uvarint(uint64(len(s)))
	b.buf = append(b.buf, s...)
}
func (b *byteBuilder) optStr(s string) {
	b.boolVal(s != "")
	if s != "" {
		b.str(s)
	}
}
func (b *byteBuilder) optU64(v *uint64) {
	b.boolVal(v != nil)
	if v != nil {
		b.uvarint(*v)
	}
}
func (b *byteBuilder) optU32(v *uint32) {
	b.boolVal(v != nil)
	if v != nil {
		b.uvarint(uint64(*v))
	}
}

// encodeValue appends a tag-prefixed Value in the same layout
// decodeValue reads.
func encodeValue(b *byteBuilder, v tracedata.Value) {
	b.byteVal(byte(v.Kind))
	switch v.Kind {
	case tracedata.ValueNull:
	case tracedata.ValueF64:
		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], math.Float64bits(v.F64))
		b.bytes(raw[:])
	case tracedata.ValueI64:
		b.svarint(v.I64)
	case tracedata.ValueU64:
		b.uvarint(v.U64)
	case tracedata.ValueI128, tracedata.ValueU128:
		raw := v.Big.Bytes()
		b.uvarint(uint64(len(raw)))
		b.bytes(raw)
	case tracedata.ValueBool:
		b.boolVal(v.Bool)
	case tracedata.ValueString:
		b.str(v.Str)
	case tracedata.ValueBytes:
		b.uvarint(uint64(len(v.Bytes)))
		b.bytes(v.Bytes)
	case tracedata.ValueArray:
		b.uvarint(uint64(len(v.Array)))
		for _, item := range v.Array {
			encodeValue(b, item)
		}
	case tracedata.ValueObject:
		b.uvarint(uint64(len(v.Object)))
		for k, item := range v.Object {
			b.str(k)
			encodeValue(b, item)
		}
	}
}

func encodeAttributes(b *byteBuilder, attrs map[string]tracedata.Value) {
	b.uvarint(uint64(len(attrs)))
	for k, v := range attrs {
		b.str(k)
		encodeValue(b, v)
	}
}

// EncodeHandshake renders a Handshake frame body (no length prefix).
func EncodeHandshake(h Handshake) []byte {
	b := &byteBuilder{}
	encodeAttributes(b, h.Attributes)
	return b.buf
}

// EncodeMessage renders a Message frame body (no length prefix).
func EncodeMessage(msg Message) []byte {
	b := &byteBuilder{}
	b.uvarint(msg.Timestamp)
	b.optU64(msg.SpanID)
	b.byteVal(byte(msg.Kind))

	switch msg.Kind {
	case MessageCreate:
		d := msg.Create
		b.optU64(d.ParentID)
		b.str(d.Target)
		b.str(d.Name)
		b.svarint(int64(d.Level))
		b.optStr(d.FileName)
		b.optU32(d.FileLine)
		encodeAttributes(b, d.Attributes)
	case MessageUpdate:
		encodeAttributes(b, msg.Update.Attributes)
	case MessageFollows:
		b.uvarint(msg.Follows.Follows)
	case MessageEnter:
		b.uvarint(msg.Enter.ThreadID)
	case MessageExit, MessageClose:
	case MessageEvent:
		d := msg.Event
		b.str(d.Target)
		b.str(d.Name)
		b.svarint(int64(d.Level))
		b.optStr(d.FileName)
		b.optU32(d.FileLine)
		encodeAttributes(b, d.Attributes)
	}
	return b.buf
}

// WriteFrame length-prefixes body (u16 big-endian, matching frameReader)
// and writes it to w.
func WriteFrame(w interface{ Write([]byte) (int, error) }, body []byte) error {
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(body)))
	if _, err := w.Write(lenBytes[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
