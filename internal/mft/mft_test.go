package mft

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-collect/collector/pkg/record"
)

type memReader struct {
	data []byte
}

func (m *memReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) > len(m.data) {
		return 0, nil
	}
	n := copy(p, m.data[off:])
	return n, nil
}

func utf16LE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

func buildResidentAttribute(typeCode uint32, content []byte) []byte {
	contentOffset := uint16(24)
	recordLen := int(contentOffset) + len(content)
	recordLen = (recordLen + 7) &^ 7

	raw := make([]byte, recordLen)
	binary.LittleEndian.PutUint32(raw[0:4], typeCode)
	binary.LittleEndian.PutUint32(raw[4:8], uint32(recordLen))
	binary.LittleEndian.PutUint32(raw[16:20], uint32(len(content)))
	binary.LittleEndian.PutUint16(raw[20:22], contentOffset)
	copy(raw[contentOffset:], content)
	return raw
}

func buildFileNameContent(parentRef uint64, name string, isDir bool) []byte {
	u16name := utf16LE(name)
	content := make([]byte, 66+len(u16name))
	binary.LittleEndian.PutUint64(content[0:8], parentRef)
	var flags uint32
	if isDir {
		flags = 0x10000000
	}
	binary.LittleEndian.PutUint32(content[56:60], flags)
	content[64] = byte(len(name))
	content[65] = 1 // Win32 namespace
	copy(content[66:], u16name)
	return content
}

func buildMftEntry(index uint64, sequence uint16, name string, parentRef uint64, isDir bool, entrySize int) []byte {
	fnAttr := buildResidentAttribute(0x30, buildFileNameContent(parentRef, name, isDir))
	endMarker := make([]byte, 8)
	binary.LittleEndian.PutUint32(endMarker[0:4], 0xFFFFFFFF)

	body := append(fnAttr, endMarker...)
	firstAttrOffset := uint16(48)

	entry := make([]byte, entrySize)
	binary.LittleEndian.PutUint32(entry[0:4], fileSignature)
	binary.LittleEndian.PutUint16(entry[4:6], 48) // fixup offset
	binary.LittleEndian.PutUint16(entry[6:8], 0)  // no fixups, simplify test fixture
	binary.LittleEndian.PutUint16(entry[16:18], sequence)
	binary.LittleEndian.PutUint16(entry[20:22], firstAttrOffset)
	binary.LittleEndian.PutUint16(entry[22:24], 0x0001) // in use
	binary.LittleEndian.PutUint32(entry[28:32], uint32(entrySize))
	copy(entry[firstAttrOffset:], body)
	return entry
}

func TestWalkResolvesRootChildFullPath(t *testing.T) {
	const entrySize = 256
	root := buildMftEntry(5, 0, "", 5, true, entrySize)
	child := buildMftEntry(100, 0, "notes.txt", 5, false, entrySize)

	data := append(root, child...)
	reader := &memReader{data: data}

	var gotRows []record.MftEntry
	err := Walk(reader, int64(len(data)), func(r record.MftEntry) error {
		gotRows = append(gotRows, r)
		return nil
	})
	require.NoError(t, err)

	var found bool
	for _, r := range gotRows {
		if r.Filename == "notes.txt" {
			found = true
			assert.Equal(t, `.\notes.txt`, r.FullPath)
			assert.False(t, r.IsDirectory)
		}
	}
	assert.True(t, found)
}
