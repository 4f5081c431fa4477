// Package usn implements the USN Change Journal parser (spec §4.1, C9):
// a v2 USN_RECORD stream is a sequence of variable-length records, each
// describing one change to a file or directory, padded with runs of
// zero bytes between records to the next allocation boundary.
package usn

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/pkg/record"
)

const component = "usn"

// utf16Decoder converts a USN_RECORD's little-endian UTF-16 file name to UTF-8.
var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// nameOffsetInvariant is the fixed byte offset of the file name field
// within a v2 USN_RECORD, counted from the record's own start. Real v2
// records always carry this value; anything else indicates a v3/v4
// record or stream corruption, and the record is skipped rather than
// misparsed.
const nameOffsetInvariant = 60

// Record is one decoded USN_RECORD_V2.
type Record struct {
	MftEntry             uint64
	MftSequence          uint16
	ParentMftEntry       uint64
	ParentMftSequence    uint16
	UpdateSequenceNumber uint64
	UpdateTime           int64
	UpdateReason         []record.Reason
	UpdateSourceFlags    record.Source
	SecurityDescriptorID uint32
	FileAttributes       []string
	Name                 string
}

// ParseAll walks a USN journal data stream and returns every v2 record
// found, skipping padding runs between records and any record whose
// name_offset fails the 60-byte invariant.
func ParseAll(data []byte) ([]Record, error) {
	var out []Record
	pos := 0
	for pos < len(data) {
		pos = skipPadding(data, pos)
		if pos >= len(data) {
			break
		}

		recordLength, ok := peekRecordLength(data, pos)
		if !ok {
			break
		}
		if recordLength < 4 || pos+int(recordLength) > len(data) {
			break
		}
		raw := data[pos : pos+int(recordLength)]
		pos += int(recordLength)

		rec, ok, err := parseOne(raw)
		if err != nil {
			return out, ferrors.Wrap(ferrors.ErrParseFormat, component, "usn record", err)
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// skipPadding advances byte by byte until it finds a non-zero
// record_length followed by the v2 version words (major 2, minor 0),
// resyncing past padding. $UsnJrnl:$J is sparse and its allocated but
// unwritten regions read back as zero.
func skipPadding(data []byte, pos int) int {
	for pos+8 <= len(data) {
		if binary.LittleEndian.Uint32(data[pos:pos+4]) != 0 && binary.LittleEndian.Uint32(data[pos+4:pos+8]) == 2 {
			return pos
		}
		pos++
	}
	return len(data)
}

func peekRecordLength(data []byte, pos int) (uint32, bool) {
	if pos+4 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[pos : pos+4]), true
}

// parseOne decodes a single v2 USN_RECORD. ok is false (with no error)
// when the record's name_offset fails the 60-byte invariant, signaling
// the caller to silently skip it rather than treat it as a parse error.
func parseOne(raw []byte) (Record, bool, error) {
	if len(raw) < 60 {
		return Record{}, false, ferrors.ErrParseFormat
	}
	// raw[0:4] record_length, raw[4:6] major_version, raw[6:8] minor_version.
	mftRef := readMftReference(raw[8:16])
	mftSeq := binary.LittleEndian.Uint16(raw[14:16])
	parentRef := readMftReference(raw[16:24])
	parentSeq := binary.LittleEndian.Uint16(raw[22:24])

	usn := binary.LittleEndian.Uint64(raw[24:32])
	filetime := binary.LittleEndian.Uint64(raw[32:40])
	reason := binary.LittleEndian.Uint32(raw[40:44])
	source := binary.LittleEndian.Uint32(raw[44:48])
	securityID := binary.LittleEndian.Uint32(raw[48:52])
	fileAttrs := binary.LittleEndian.Uint32(raw[52:56])
	nameSize := binary.LittleEndian.Uint16(raw[56:58])
	nameOffset := binary.LittleEndian.Uint16(raw[58:60])

	if nameOffset != nameOffsetInvariant {
		return Record{}, false, nil
	}

	nameEnd := int(nameOffset) + int(nameSize)
	if nameEnd > len(raw) {
		nameEnd = len(raw)
	}
	name := decodeUTF16(raw[nameOffset:nameEnd])

	rec := Record{
		MftEntry:             mftRef,
		MftSequence:          mftSeq,
		ParentMftEntry:       parentRef,
		ParentMftSequence:    parentSeq,
		UpdateSequenceNumber: usn,
		UpdateTime:           filetimeToUnixEpoch(filetime),
		UpdateReason:         reasonFlags(reason),
		UpdateSourceFlags:    sourceFlag(source),
		SecurityDescriptorID: securityID,
		FileAttributes:       fileAttributeNames(fileAttrs),
		Name:                 name,
	}
	return rec, true, nil
}

func readMftReference(b []byte) uint64 {
	var v uint64
	for i := 0; i < 6 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func filetimeToUnixEpoch(ft uint64) int64 {
	const ticksPerSecond = 10000000
	const epochDiffSeconds = 11644473600
	return int64(ft/ticksPerSecond) - epochDiffSeconds
}

// reasonFlags decodes the 22 well-known USN update-reason bits, in the
// same declaration order the reference parser uses.
func reasonFlags(flag uint32) []record.Reason {
	table := []struct {
		bit    uint32
		reason record.Reason
	}{
		{0x1, record.ReasonOverwrite},
		{0x2, record.ReasonExtend},
		{0x4, record.ReasonTruncation},
		{0x10, record.ReasonNamedOverwrite},
		{0x20, record.ReasonNamedExtend},
		{0x40, record.ReasonNamedTruncation},
		{0x100, record.ReasonFileCreate},
		{0x200, record.ReasonFileDelete},
		{0x400, record.ReasonEAChange},
		{0x800, record.ReasonSecurityChange},
		{0x1000, record.ReasonRenameOldName},
		{0x2000, record.ReasonRenameNewName},
		{0x4000, record.ReasonIndexableChange},
		{0x8000, record.ReasonBasicInfoChange},
		{0x10000, record.ReasonHardLinkChange},
		{0x20000, record.ReasonCompressionChange},
		{0x40000, record.ReasonEncryptionChange},
		{0x80000, record.ReasonObjectIDChange},
		{0x100000, record.ReasonReparsePointChange},
		{0x200000, record.ReasonStreamChange},
		{0x400000, record.ReasonTransactedChange},
		{0x80000000, record.ReasonClose},
	}
	var out []record.Reason
	for _, t := range table {
		if flag&t.bit == t.bit {
			out = append(out, t.reason)
		}
	}
	return out
}

func sourceFlag(flags uint32) record.Source {
	switch flags {
	case 0x1:
		return record.SourceDataManagement
	case 0x2:
		return record.SourceAuxiliaryData
	case 0x4:
		return record.SourceReplicationManagement
	default:
		return record.SourceNone
	}
}

func fileAttributeNames(flags uint32) []string {
	table := []struct {
		bit  uint32
		name string
	}{
		{0x0001, "ReadOnly"},
		{0x0002, "Hidden"},
		{0x0004, "System"},
		{0x0010, "Directory"},
		{0x0020, "Archive"},
		{0x0040, "Device"},
		{0x0080, "Normal"},
		{0x0100, "Temporary"},
		{0x0200, "Sparse"},
		{0x0400, "Reparse"},
		{0x0800, "Compressed"},
		{0x1000, "Offline"},
		{0x2000, "NotIndexed"},
		{0x4000, "Encrypted"},
	}
	var out []string
	for _, t := range table {
		if flags&t.bit != 0 {
			out = append(out, t.name)
		}
	}
	return out
}

func decodeUTF16(b []byte) string {
	out, err := utf16Decoder.Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// ToOutputRow converts a decoded Record (and its resolved full path) into
// the sink's wire-format row.
func ToOutputRow(r Record, fullPath string) record.UsnRecord {
	return record.UsnRecord{
		MftEntry:             r.MftEntry,
		MftSequence:          r.MftSequence,
		ParentMftEntry:       r.ParentMftEntry,
		ParentMftSequence:    r.ParentMftSequence,
		UpdateTime:           r.UpdateTime,
		UpdateReason:         r.UpdateReason,
		UpdateSourceFlags:    r.UpdateSourceFlags,
		SecurityDescriptorID: r.SecurityDescriptorID,
		UpdateSequenceNumber: r.UpdateSequenceNumber,
		FileAttributes:       r.FileAttributes,
		Name:                 r.Name,
		FullPath:             fullPath,
	}
}
