// Package indxslack recovers deleted directory-entry remnants from INDX
// allocation slack space (spec §4.1, C6). When a directory entry is
// removed from an NTFS $I30 index, only the B+-tree node's used-bytes
// count shrinks; the entry's bytes remain in the node's allocated-but-
// unused tail until the node is reused, and can be carved back out.
package indxslack

import (
	"encoding/binary"
	"time"

	"github.com/forensics-collect/collector/internal/ferrors"
)

const component = "indxslack"

// indxSignature is "INDX" (0x58444E49) little-endian.
const indxSignature = 0x58444E49

// SlackEntry is one recovered directory entry found in an INDX record's
// unused tail.
type SlackEntry struct {
	MftReference uint64
	SequenceNumber uint16
	ParentReference uint64
	Filename       string
	Size           int64
	AllocatedSize  int64
	Created, Modified, Changed, Accessed string
}

// RecoverSlack walks one 4 KiB-aligned INDX record buffer (after fixup
// has already been applied by the caller) and returns every plausible
// FILE_NAME index-entry structure found past the record's declared
// used-bytes boundary.
func RecoverSlack(record []byte) ([]SlackEntry, error) {
	if len(record) < 40 || binary.LittleEndian.Uint32(record[0:4]) != indxSignature {
		return nil, ferrors.Wrap(ferrors.ErrParseFormat, component, "not an INDX record", nil)
	}

	indexOffset := 24 // start of the embedded INDEX_HEADER within the record
	if indexOffset+16 > len(record) {
		return nil, ferrors.Wrap(ferrors.ErrParseFormat, component, "truncated index header", nil)
	}
	usedSizeRel := binary.LittleEndian.Uint32(record[indexOffset+4 : indexOffset+8])
	allocSizeRel := binary.LittleEndian.Uint32(record[indexOffset+8 : indexOffset+12])

	usedEnd := indexOffset + int(usedSizeRel)
	allocEnd := indexOffset + int(allocSizeRel)
	if allocEnd > len(record) {
		allocEnd = len(record)
	}

	var entries []SlackEntry
	pos := usedEnd
	for pos+82 <= allocEnd {
		e, consumed, ok := tryParseFileNameEntry(record[pos:allocEnd])
		if !ok {
			pos++
			continue
		}
		entries = append(entries, e)
		pos += consumed
	}
	return entries, nil
}

// tryParseFileNameEntry attempts to interpret bytes at the start of buf
// as an INDEX_ENTRY wrapping a FILE_NAME attribute: it requires the
// declared entry/stream lengths to be internally consistent and the
// filename length to produce a plausible UTF-16 name, since slack space
// has no reliable signature to scan for.
func tryParseFileNameEntry(buf []byte) (SlackEntry, int, bool) {
	if len(buf) < 82 {
		return SlackEntry{}, 0, false
	}
	mftRef := binary.LittleEndian.Uint64(buf[0:8])
	entryLength := binary.LittleEndian.Uint16(buf[8:10])
	streamLength := binary.LittleEndian.Uint16(buf[10:12])

	if entryLength < 16 || int(entryLength) > len(buf) || streamLength == 0 {
		return SlackEntry{}, 0, false
	}

	const fileNameHeaderSize = 66
	if int(streamLength) < fileNameHeaderSize || 16+int(streamLength) > int(entryLength) {
		return SlackEntry{}, 0, false
	}
	stream := buf[16 : 16+streamLength]
	if len(stream) < fileNameHeaderSize {
		return SlackEntry{}, 0, false
	}

	parentRef := binary.LittleEndian.Uint64(stream[0:8])
	allocSize := int64(binary.LittleEndian.Uint64(stream[40:48]))
	realSize := int64(binary.LittleEndian.Uint64(stream[48:56]))
	nameLength := int(stream[64])
	if nameLength == 0 || fileNameHeaderSize+nameLength*2 > len(stream) {
		return SlackEntry{}, 0, false
	}
	nameBytes := stream[fileNameHeaderSize : fileNameHeaderSize+nameLength*2]
	name, ok := decodeUTF16Plausible(nameBytes)
	if !ok {
		return SlackEntry{}, 0, false
	}

	e := SlackEntry{
		MftReference:    mftRef & 0x0000FFFFFFFFFFFF,
		SequenceNumber:  uint16(mftRef >> 48),
		ParentReference: parentRef & 0x0000FFFFFFFFFFFF,
		Filename:        name,
		Size:            realSize,
		AllocatedSize:   allocSize,
		Created:         filetimeString(stream, 8),
		Modified:        filetimeString(stream, 16),
		Changed:         filetimeString(stream, 24),
		Accessed:        filetimeString(stream, 32),
	}
	return e, int(entryLength), true
}

func filetimeString(stream []byte, offset int) string {
	if offset+8 > len(stream) {
		return ""
	}
	ft := binary.LittleEndian.Uint64(stream[offset : offset+8])
	if ft == 0 {
		return ""
	}
	return filetimeToRFC3339(ft)
}

// filetimeToRFC3339 converts a Windows FILETIME (100ns ticks since
// 1601-01-01) to an RFC3339 string without pulling in a second timestamp
// representation convention across the codebase.
func filetimeToRFC3339(ft uint64) string {
	const ticksPerSecond = 10000000
	const epochDiffSeconds = 11644473600
	secs := int64(ft/ticksPerSecond) - epochDiffSeconds
	nsec := int64(ft%ticksPerSecond) * 100
	return time.Unix(secs, nsec).UTC().Format(time.RFC3339Nano)
}

func decodeUTF16Plausible(b []byte) (string, bool) {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[2*i : 2*i+2])
	}
	runes := make([]rune, 0, len(u16))
	for _, v := range u16 {
		if v == 0 || (v < 0x20 && v != '\t') {
			return "", false
		}
		runes = append(runes, rune(v))
	}
	return string(runes), true
}
