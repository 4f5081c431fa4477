package decomp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLZNT1UncompressedChunkPassesThrough(t *testing.T) {
	payload := []byte("hello uncompressed chunk body padded out a bit")
	header := make([]byte, 2)
	binary.LittleEndian.PutUint16(header, uint16(len(payload)-1))
	data := append(header, payload...)

	out, err := LZNT1(data)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestLZNT1CompressedLiteralsOnly(t *testing.T) {
	body := []byte{0x00, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'}
	header := make([]byte, 2)
	size := uint16(len(body)-1) | lznt1CompressedFlag
	binary.LittleEndian.PutUint16(header, size)
	data := append(header, body...)

	out, err := LZNT1(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefgh"), out)
}

func TestLZNT1BackReference(t *testing.T) {
	// A single chunk: one flags group of 8 literal 'a' bytes, followed by
	// a second flags group holding one back-reference token that copies
	// 4 bytes from offset 1 (the immediately preceding byte).
	lengthBits := splitBits(8)
	token := uint16(0<<uint(lengthBits)) | uint16(4-3)

	body := append([]byte{0x00}, []byte("aaaaaaaa")...)
	body = append(body, 0x01, byte(token), byte(token>>8))

	header := make([]byte, 2)
	binary.LittleEndian.PutUint16(header, uint16(len(body)-1)|lznt1CompressedFlag)
	data := append(header, body...)

	out, err := LZNT1(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaaaaaaaaaa"), out)
}

func TestRTFUncompressedRoundTrip(t *testing.T) {
	body := []byte("{\\rtf1 plain body}")
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(body)+12))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[8:12], rtfMagicUncompressed)
	data := append(header, body...)

	out, err := RTF(data)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestRTFCompressedFromDictionary(t *testing.T) {
	// A single back-reference token copying the first 5 bytes of the
	// prebuilt dictionary ("{\rtf") out of the primed window, with no
	// literal bytes of its own in the stream.
	refLen := 5
	tokenVal := uint16(0<<4) | uint16(refLen-2)
	tokBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(tokBytes, tokenVal)

	flags := byte(0x01) // bit 0 set: the next two bytes are a token
	body := append([]byte{flags}, tokBytes...)

	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(body)+12))
	binary.LittleEndian.PutUint32(header[4:8], uint32(refLen))
	binary.LittleEndian.PutUint32(header[8:12], rtfMagicCompressed)
	data := append(header, body...)

	out, err := RTF(data)
	require.NoError(t, err)
	assert.Equal(t, []byte(rtfPrebuiltDictionary[:refLen]), out)
}

func TestRTFCorruptMagic(t *testing.T) {
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[8:12], 0xdeadbeef)

	_, err := RTF(header)
	require.Error(t, err)
}

func TestLz4BlockLiteralsOnly(t *testing.T) {
	token := byte(5 << 4)
	data := append([]byte{token}, []byte("hello")...)

	out, err := Lz4Block(data, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)
}

func TestLz4BlockWithMatch(t *testing.T) {
	// 4 literal "abcd" then a match copying 4 bytes from offset 4 (the
	// start of the literal run), producing "abcdabcd".
	token := byte(4<<4) | byte(0)
	data := append([]byte{token}, []byte("abcd")...)
	data = append(data, 4, 0) // offset = 4, little-endian

	out, err := Lz4Block(data, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdabcd"), out)
}

func TestSevenBitUnpacksToAsciiRange(t *testing.T) {
	packed := []byte{0xC1, 0xF3, 0x0C}
	out := SevenBit(packed, 3)
	for _, b := range out {
		assert.LessOrEqual(t, b, byte(0x7f))
	}
}

func TestPlainLZ77RejectsBadOffset(t *testing.T) {
	data := []byte{0x01, 0xff, 0xff, 0x00}
	_, err := PlainLZ77(data, 10)
	require.Error(t, err)
}
