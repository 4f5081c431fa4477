package usn

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-collect/collector/pkg/record"
)

func mftRefBytes(index uint64, seq uint16) []byte {
	out := make([]byte, 8)
	for i := 0; i < 6; i++ {
		out[i] = byte(index >> (8 * i))
	}
	binary.LittleEndian.PutUint16(out[6:8], seq)
	return out
}

func utf16LE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

func buildV2Record(mftEntry uint64, mftSeq uint16, parentEntry uint64, parentSeq uint16, usn uint64, filetimeVal uint64, reason, source, secID, fileAttrs uint32, name string) []byte {
	nameBytes := utf16LE(name)
	nameOffset := uint16(60)
	recordLength := uint32(int(nameOffset) + len(nameBytes))

	raw := make([]byte, recordLength)
	binary.LittleEndian.PutUint32(raw[0:4], recordLength)
	binary.LittleEndian.PutUint16(raw[4:6], 2) // major
	binary.LittleEndian.PutUint16(raw[6:8], 0) // minor
	copy(raw[8:16], mftRefBytes(mftEntry, mftSeq))
	copy(raw[16:24], mftRefBytes(parentEntry, parentSeq))
	binary.LittleEndian.PutUint64(raw[24:32], usn)
	binary.LittleEndian.PutUint64(raw[32:40], filetimeVal)
	binary.LittleEndian.PutUint32(raw[40:44], reason)
	binary.LittleEndian.PutUint32(raw[44:48], source)
	binary.LittleEndian.PutUint32(raw[48:52], secID)
	binary.LittleEndian.PutUint32(raw[52:56], fileAttrs)
	binary.LittleEndian.PutUint16(raw[56:58], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(raw[58:60], nameOffset)
	copy(raw[nameOffset:], nameBytes)
	return raw
}

// filetimeFromUnix reverses filetimeToUnixEpoch for building fixtures
// from a known epoch-seconds value.
func filetimeFromUnix(epochSeconds int64) uint64 {
	const ticksPerSecond = 10000000
	const epochDiffSeconds = 11644473600
	return uint64(epochSeconds+epochDiffSeconds) * ticksPerSecond
}

func TestParseAllMatchesKnownRecordFields(t *testing.T) {
	name := "b97f8602-d9b6-4387-a5c8-bc5c273f4333.jsonl"
	reason := uint32(0x2) | uint32(0x80000000) // Extend | Close
	raw := buildV2Record(350259, 13, 350163, 13, 999, filetimeFromUnix(1675039199), reason, 0, 0, 0x20, name)

	recs, err := ParseAll(raw)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, uint64(350259), r.MftEntry)
	assert.Equal(t, uint16(13), r.MftSequence)
	assert.Equal(t, uint64(350163), r.ParentMftEntry)
	assert.Equal(t, uint16(13), r.ParentMftSequence)
	assert.Equal(t, int64(1675039199), r.UpdateTime)
	assert.Equal(t, []record.Reason{record.ReasonExtend, record.ReasonClose}, r.UpdateReason)
	assert.Equal(t, record.SourceNone, r.UpdateSourceFlags)
	assert.Equal(t, uint32(0), r.SecurityDescriptorID)
	assert.Equal(t, []string{"Archive"}, r.FileAttributes)
	assert.Equal(t, name, r.Name)
}

func TestParseAllSkipsRecordWithWrongNameOffset(t *testing.T) {
	raw := buildV2Record(1, 0, 5, 0, 1, filetimeFromUnix(0), 0x1, 0, 0, 0, "x")
	// Corrupt the name_offset field to violate the invariant.
	binary.LittleEndian.PutUint16(raw[58:60], 61)

	recs, err := ParseAll(raw)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseAllSkipsLeadingPadding(t *testing.T) {
	padding := make([]byte, 64)
	raw := buildV2Record(7, 0, 5, 0, 1, filetimeFromUnix(0), 0x100, 0x1, 0, 0, "new.txt")
	data := append(padding, raw...)

	recs, err := ParseAll(data)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, record.SourceDataManagement, recs[0].UpdateSourceFlags)
	assert.Equal(t, []record.Reason{record.ReasonFileCreate}, recs[0].UpdateReason)
}

func TestReasonFlagsOrdering(t *testing.T) {
	reasons := reasonFlags(0x1)
	require.Len(t, reasons, 1)
	assert.Equal(t, record.ReasonOverwrite, reasons[0])
}

func TestSourceFlagUnknownDefaultsToNone(t *testing.T) {
	assert.Equal(t, record.SourceNone, sourceFlag(0xdead))
}
