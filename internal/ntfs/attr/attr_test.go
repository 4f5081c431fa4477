package attr

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildResidentAttr(typeCode uint32, content []byte) []byte {
	contentOffset := uint16(24)
	recordLen := int(contentOffset) + len(content)
	recordLen = (recordLen + 7) &^ 7

	raw := make([]byte, recordLen)
	binary.LittleEndian.PutUint32(raw[0:4], typeCode)
	binary.LittleEndian.PutUint32(raw[4:8], uint32(recordLen))
	raw[8] = 0 // resident
	raw[9] = 0
	binary.LittleEndian.PutUint16(raw[10:12], 0)
	binary.LittleEndian.PutUint32(raw[16:20], uint32(len(content)))
	binary.LittleEndian.PutUint16(raw[20:22], contentOffset)
	copy(raw[contentOffset:], content)
	return raw
}

func TestParseAttributesResidentContent(t *testing.T) {
	content := []byte("hello resident data")
	attrRaw := buildResidentAttr(uint32(TypeData), content)
	endMarker := make([]byte, 8)
	binary.LittleEndian.PutUint32(endMarker[0:4], 0xFFFFFFFF)

	entry := append(attrRaw, endMarker...)

	attrs, err := ParseAttributes(entry, 0)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, TypeData, attrs[0].Header.TypeCode)
	assert.Equal(t, content, attrs[0].ResidentData)
	assert.False(t, attrs[0].Header.NonResident)
}

func TestParseAttributesStopsAtEndMarker(t *testing.T) {
	endMarker := make([]byte, 8)
	binary.LittleEndian.PutUint32(endMarker[0:4], 0xFFFFFFFF)

	attrs, err := ParseAttributes(endMarker, 0)
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestDecodeRunlistSingleRun(t *testing.T) {
	// header byte 0x31: 1 length byte, 3 offset bytes. length=10 clusters,
	// offset=+1000 (first run, so LCN becomes 1000).
	data := []byte{0x31, 0x0a, 0xe8, 0x03, 0x00, 0x00}
	runs, err := decodeRunlist(data)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(10), runs[0].Length)
	assert.Equal(t, int64(1000), runs[0].LCN)
}

func TestDecodeRunlistSparseRun(t *testing.T) {
	// header byte 0x01: 1 length byte, 0 offset bytes -> sparse.
	data := []byte{0x01, 0x05}
	runs, err := decodeRunlist(data)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(-1), runs[0].LCN)
	assert.Equal(t, int64(5), runs[0].Length)
}

func TestDecodeRunlistMultipleRunsAccumulateLCN(t *testing.T) {
	// Run1: len=2, offset=+100. Run2: len=3, offset=+50 (relative, so LCN=150).
	data := []byte{
		0x21, 0x02, 0x64, 0x00,
		0x21, 0x03, 0x32, 0x00,
	}
	runs, err := decodeRunlist(data)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(100), runs[0].LCN)
	assert.Equal(t, int64(150), runs[1].LCN)
}

func TestReadSignedLENegativeOffset(t *testing.T) {
	// -1 as a 1-byte signed value is 0xff.
	v := readSignedLE([]byte{0xff})
	assert.Equal(t, int64(-1), v)
}

type fakeSource struct {
	data []byte
}

func (f *fakeSource) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, f.data[off:])
	return n, nil
}

func TestRawReadDataResidentReturnsDataDirectly(t *testing.T) {
	a := Attribute{ResidentData: []byte("abc")}
	out, err := RawReadData(&fakeSource{}, 4096, a, "None")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}
