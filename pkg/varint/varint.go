// Package varint provides the LEB128 variable-length unsigned integer
// codec the wire ingest protocol (internal/ingest/wire) uses inside each
// frame for timestamps, ids, integer values and string/collection
// lengths; the frames themselves carry a fixed u16 big-endian length
// prefix. Built directly on
// encoding/binary's Uvarint/PutUvarint -- none of the example repos
// carry a dedicated varint package, and the standard library's is the
// idiomatic choice every wire-protocol implementation in the pack
// reaches for instead of hand-rolling one.
package varint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxLen is the largest encoded size of a uint64, matching
// binary.MaxVarintLen64.
const MaxLen = binary.MaxVarintLen64

// Append encodes v and appends it to buf, returning the extended slice.
func Append(buf []byte, v uint64) []byte {
	var tmp [MaxLen]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Write encodes v to w.
func Write(w io.Writer, v uint64) error {
	var tmp [MaxLen]byte
	n := binary.PutUvarint(tmp[:], v)
	_, err := w.Write(tmp[:n])
	return err
}

// Read decodes a uint64 from a byte-at-a-time reader such as
// *bufio.Reader, which ReadByte requires.
func Read(r io.ByteReader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("varint: decode: %w", err)
	}
	return v, nil
}

// ReadFrom decodes a uint64 from any io.Reader by wrapping it in a
// bufio.Reader when it does not already implement io.ByteReader.
func ReadFrom(r io.Reader) (uint64, error) {
	if br, ok := r.(io.ByteReader); ok {
		return Read(br)
	}
	return Read(bufio.NewReader(r))
}
