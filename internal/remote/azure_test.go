package remote

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBlockIDProducesDistinctFixedWidthIDs(t *testing.T) {
	a := encodeBlockID(0)
	b := encodeBlockID(1)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, len(b))
}

func TestBytesReadSeekCloserReadsAndSeeks(t *testing.T) {
	rs := newBytesReadSeekCloser([]byte("hello"))
	buf := make([]byte, 5)
	n, err := rs.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	_, err = rs.Seek(0, io.SeekStart)
	require.NoError(t, err)
	n, err = rs.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, rs.Close())
}
