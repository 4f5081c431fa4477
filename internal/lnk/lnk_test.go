package lnk

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-collect/collector/pkg/record"
)

func utf16LE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

func buildHeader(dataFlags, attrFlags uint32) []byte {
	h := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(h[0:4], headerSignature)
	binary.LittleEndian.PutUint32(h[20:24], dataFlags)
	binary.LittleEndian.PutUint32(h[24:28], attrFlags)
	binary.LittleEndian.PutUint32(h[52:56], 1024) // file size
	return h
}

func stringBlock(s string, unicode bool) []byte {
	var encoded []byte
	if unicode {
		encoded = utf16LE(s)
	} else {
		encoded = []byte(s)
	}
	count := len(s)
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, uint16(count))
	out = append(out, encoded...)
	return out
}

func TestParseRejectsBadSignature(t *testing.T) {
	bad := make([]byte, headerSize)
	_, err := Parse(bad)
	assert.Error(t, err)
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	_, err := Parse(make([]byte, 10))
	assert.Error(t, err)
}

func TestParseDecodesNameAndArguments(t *testing.T) {
	flags := uint32(flagHasName | flagHasArguments | flagIsUnicode)
	data := buildHeader(flags, 0x20)
	data = append(data, stringBlock("a shortcut", true)...)
	data = append(data, stringBlock("--flag value", true)...)

	info, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "a shortcut", info.Description)
	assert.Equal(t, "--flag value", info.CommandLineArgs)
	assert.Contains(t, info.DataFlags, "HasName")
	assert.Contains(t, info.DataFlags, "HasArguments")
	assert.Contains(t, info.AttributeFlags, "Archive")
	assert.False(t, info.IsAbnormal)
}

func TestExtractStringFlagsAbnormalOnOverrun(t *testing.T) {
	raw := make([]byte, 2)
	binary.LittleEndian.PutUint16(raw, 1000)
	_, _, abnormal := extractString(raw, true)
	assert.True(t, abnormal)
}

func TestParseShellItemsStopsAtZeroLengthTerminator(t *testing.T) {
	item := []byte{0x00, 0x00} // empty terminator only
	list := make([]byte, 2)
	binary.LittleEndian.PutUint16(list, uint16(len(item)))
	list = append(list, item...)
	data := append(list, []byte("trailing")...)

	items, rest, err := parseShellItems(data)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, []byte("trailing"), rest)
}

func TestParseLocationInfoVolumeAndBasePath(t *testing.T) {
	basePath := []byte("C:\\Users\\bob\\file.txt\x00")
	volumeLabel := []byte("OSDisk\x00")

	volumeBlockSize := 16 + len(volumeLabel)
	volumeBlock := make([]byte, volumeBlockSize)
	binary.LittleEndian.PutUint32(volumeBlock[0:4], uint32(volumeBlockSize))
	binary.LittleEndian.PutUint32(volumeBlock[4:8], 3) // DriveFixed
	binary.LittleEndian.PutUint32(volumeBlock[8:12], 0xdeadbeef)
	binary.LittleEndian.PutUint32(volumeBlock[12:16], 16)
	copy(volumeBlock[16:], volumeLabel)

	const headerFieldsSize = 28
	basePathOffset := headerFieldsSize + volumeBlockSize
	totalSize := basePathOffset + len(basePath)

	block := make([]byte, totalSize)
	binary.LittleEndian.PutUint32(block[0:4], uint32(totalSize))
	binary.LittleEndian.PutUint32(block[8:12], locationVolumeIDAndLocalBasePath)
	binary.LittleEndian.PutUint32(block[12:16], headerFieldsSize) // volume offset
	binary.LittleEndian.PutUint32(block[16:20], uint32(basePathOffset))
	copy(block[headerFieldsSize:], volumeBlock)
	copy(block[basePathOffset:], basePath)

	var out record.ShortcutRecord
	rest, err := parseLocationInfo(block, &out)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, "C:\\Users\\bob\\file.txt", out.Path)
	assert.Equal(t, "OSDisk", out.VolumeLabel)
}

func TestFormatGUIDLayout(t *testing.T) {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], 0x01020304)
	binary.LittleEndian.PutUint16(b[4:6], 0x0506)
	binary.LittleEndian.PutUint16(b[6:8], 0x0708)
	copy(b[8:10], []byte{0x09, 0x0a})
	copy(b[10:16], []byte{0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10})

	got := formatGUID(b)
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", got)
}
