package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"

	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/pkg/varint"
)

// frameReader reads u16-big-endian-length-prefixed frames, matching
// ingress.rs's `read_exact(2 bytes) then read_exact(length)`.
type frameReader struct {
	r   *bufio.Reader
	buf []byte
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

func (f *frameReader) readFrame() ([]byte, error) {
	var lenBytes [2]byte
	if _, err := io.ReadFull(f.r, lenBytes[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(lenBytes[:])
	if cap(f.buf) < int(length) {
		f.buf = make([]byte, length)
	}
	buf := f.buf[:length]
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	return buf, nil
}

// byteCursor decodes sequentially out of an in-memory frame.
type byteCursor struct {
	data []byte
	pos  int
}

func (c *byteCursor) ReadByte() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *byteCursor) take(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, fmt.Errorf("wire: truncated frame")
	}
	out := c.data[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *byteCursor) uvarint() (uint64, error) {
	return varint.Read(c)
}

func (c *byteCursor) svarint() (int64, error) {
	u, err := c.uvarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

func (c *byteCursor) byteVal() (byte, error) {
	return c.ReadByte()
}

func (c *byteCursor) boolVal() (bool, error) {
	b, err := c.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (c *byteCursor) str() (string, error) {
	n, err := c.uvarint()
	if err != nil {
		return "", err
	}
	raw, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *byteCursor) optStr() (string, error) {
	present, err := c.boolVal()
	if err != nil || !present {
		return "", err
	}
	return c.str()
}

func (c *byteCursor) optU64() (*uint64, error) {
	present, err := c.boolVal()
	if err != nil || !present {
		return nil, err
	}
	v, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *byteCursor) optU32() (*uint32, error) {
	present, err := c.boolVal()
	if err != nil || !present {
		return nil, err
	}
	v, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	u := uint32(v)
	return &u, nil
}

// decodeValue reads a tag-prefixed Value using the same ValueKind tags
// tracedata.Value already assigns, so the wire tag doubles as the
// in-memory discriminant.
func decodeValue(c *byteCursor) (tracedata.Value, error) {
	tag, err := c.byteVal()
	if err != nil {
		return tracedata.Value{}, err
	}
	switch tracedata.ValueKind(tag) {
	case tracedata.ValueNull:
		return tracedata.Null(), nil
	case tracedata.ValueF64:
		raw, err := c.take(8)
		if err != nil {
			return tracedata.Value{}, err
		}
		bits := binary.BigEndian.Uint64(raw)
		return tracedata.F64(math.Float64frombits(bits)), nil
	case tracedata.ValueI64:
		v, err := c.svarint()
		if err != nil {
			return tracedata.Value{}, err
		}
		return tracedata.I64(v), nil
	case tracedata.ValueU64:
		v, err := c.uvarint()
		if err != nil {
			return tracedata.Value{}, err
		}
		return tracedata.U64(v), nil
	case tracedata.ValueI128, tracedata.ValueU128:
		n, err := c.uvarint()
		if err != nil {
			return tracedata.Value{}, err
		}
		raw, err := c.take(int(n))
		if err != nil {
			return tracedata.Value{}, err
		}
		big := new(big.Int).SetBytes(raw)
		if tracedata.ValueKind(tag) == tracedata.ValueI128 {
			return tracedata.I128(big), nil
		}
		return tracedata.U128(big), nil
	case tracedata.ValueBool:
		b, err := c.boolVal()
		if err != nil {
			return tracedata.Value{}, err
		}
		return tracedata.Bool(b), nil
	case tracedata.ValueString:
		s, err := c.str()
		if err != nil {
			return tracedata.Value{}, err
		}
		return tracedata.String(s), nil
	case tracedata.ValueBytes:
		n, err := c.uvarint()
		if err != nil {
			return tracedata.Value{}, err
		}
		raw, err := c.take(int(n))
		if err != nil {
			return tracedata.Value{}, err
		}
		cp := append([]byte(nil), raw...)
		return tracedata.Bytes(cp), nil
	case tracedata.ValueArray:
		n, err := c.uvarint()
		if err != nil {
			return tracedata.Value{}, err
		}
		items := make([]tracedata.Value, 0, n)
		for i := uint64(0); i < n; i++ {
			v, err := decodeValue(c)
			if err != nil {
				return tracedata.Value{}, err
			}
			items = append(items, v)
		}
		return tracedata.Array(items), nil
	case tracedata.ValueObject:
		n, err := c.uvarint()
		if err != nil {
			return tracedata.Value{}, err
		}
		obj := make(map[string]tracedata.Value, n)
		for i := uint64(0); i < n; i++ {
			k, err := c.str()
			if err != nil {
				return tracedata.Value{}, err
			}
			v, err := decodeValue(c)
			if err != nil {
				return tracedata.Value{}, err
			}
			obj[k] = v
		}
		return tracedata.Object(obj), nil
	default:
		return tracedata.Value{}, fmt.Errorf("wire: unknown value tag %d", tag)
	}
}

func decodeAttributes(c *byteCursor) (map[string]tracedata.Value, error) {
	n, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]tracedata.Value, n)
	for i := uint64(0); i < n; i++ {
		k, err := c.str()
		if err != nil {
			return nil, err
		}
		v, err := decodeValue(c)
		if err != nil {
			return nil, err
		}
		attrs[k] = v
	}
	return attrs, nil
}

func decodeHandshake(frame []byte) (Handshake, error) {
	c := &byteCursor{data: frame}
	attrs, err := decodeAttributes(c)
	if err != nil {
		return Handshake{}, fmt.Errorf("wire: decode handshake: %w", err)
	}
	return Handshake{Attributes: attrs}, nil
}

func decodeMessage(frame []byte) (Message, error) {
	c := &byteCursor{data: frame}
	ts, err := c.uvarint()
	if err != nil {
		return Message{}, fmt.Errorf("wire: decode timestamp: %w", err)
	}
	spanID, err := c.optU64()
	if err != nil {
		return Message{}, fmt.Errorf("wire: decode span_id: %w", err)
	}
	kindByte, err := c.byteVal()
	if err != nil {
		return Message{}, fmt.Errorf("wire: decode kind: %w", err)
	}
	msg := Message{Timestamp: ts, SpanID: spanID, Kind: MessageKind(kindByte)}

	switch msg.Kind {
	case MessageCreate:
		d := &CreateData{}
		if d.ParentID, err = c.optU64(); err != nil {
			return Message{}, err
		}
		if d.Target, err = c.str(); err != nil {
			return Message{}, err
		}
		if d.Name, err = c.str(); err != nil {
			return Message{}, err
		}
		lvl, err := c.svarint()
		if err != nil {
			return Message{}, err
		}
		d.Level = int32(lvl)
		if d.FileName, err = c.optStr(); err != nil {
			return Message{}, err
		}
		if d.FileLine, err = c.optU32(); err != nil {
			return Message{}, err
		}
		if d.Attributes, err = decodeAttributes(c); err != nil {
			return Message{}, err
		}
		msg.Create = d
	case MessageUpdate:
		d := &UpdateData{}
		if d.Attributes, err = decodeAttributes(c); err != nil {
			return Message{}, err
		}
		msg.Update = d
	case MessageFollows:
		d := &FollowsData{}
		if d.Follows, err = c.uvarint(); err != nil {
			return Message{}, err
		}
		msg.Follows = d
	case MessageEnter:
		d := &EnterData{}
		if d.ThreadID, err = c.uvarint(); err != nil {
			return Message{}, err
		}
		msg.Enter = d
	case MessageExit, MessageClose:
		// no payload
	case MessageEvent:
		d := &EventData{}
		if d.Target, err = c.str(); err != nil {
			return Message{}, err
		}
		if d.Name, err = c.str(); err != nil {
			return Message{}, err
		}
		lvl, err := c.svarint()
		if err != nil {
			return Message{}, err
		}
		d.Level = int32(lvl)
		if d.FileName, err = c.optStr(); err != nil {
			return Message{}, err
		}
		if d.FileLine, err = c.optU32(); err != nil {
			return Message{}, err
		}
		if d.Attributes, err = decodeAttributes(c); err != nil {
			return Message{}, err
		}
		msg.Event = d
	default:
		return Message{}, fmt.Errorf("wire: unknown message kind %d", kindByte)
	}
	return msg, nil
}

