package varint

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 32, 1<<64 - 1}
	for _, v := range cases {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, v))
		got, err := ReadFrom(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestAppend(t *testing.T) {
	buf := Append(nil, 300)
	got, err := ReadFrom(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, uint64(300), got)
}
