package journald

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-collect/collector/pkg/record"
)

// journalBuilder assembles a synthetic non-compact journal file byte by
// byte: a fixed header, one DATA object per field, one ENTRY object
// referencing them, and one ENTRY_ARRAY pointing at the entry.
type journalBuilder struct {
	buf []byte
}

func (b *journalBuilder) pad(size int) {
	for len(b.buf)%8 != 0 {
		b.buf = append(b.buf, 0)
	}
	_ = size
}

func (b *journalBuilder) writeObject(objType uint8, flags uint8, body []byte) uint64 {
	b.pad(0)
	offset := uint64(len(b.buf))
	size := genericHeaderSize + len(body)
	header := make([]byte, genericHeaderSize)
	header[0] = objType
	header[1] = flags
	binary.LittleEndian.PutUint64(header[8:16], uint64(size))
	b.buf = append(b.buf, header...)
	b.buf = append(b.buf, body...)
	return offset
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func buildJournal(fields []string) []byte {
	b := &journalBuilder{}
	b.buf = make([]byte, 0xc0)
	copy(b.buf[0:8], magic[:])

	var dataOffsets []uint64
	for _, f := range fields {
		body := make([]byte, 0, 48+len(f))
		body = append(body, u64le(0)...) // hash
		body = append(body, u64le(0)...) // next_hash_offset
		body = append(body, u64le(0)...) // next_field_offset
		body = append(body, u64le(0)...) // entry_offset
		body = append(body, u64le(0)...) // entry_array_offset
		body = append(body, u64le(0)...) // n_entries
		body = append(body, []byte(f)...)
		offset := b.writeObject(objectTypeData, 0, body)
		dataOffsets = append(dataOffsets, offset)
	}

	entryBody := make([]byte, 0, 48+len(dataOffsets)*16)
	entryBody = append(entryBody, u64le(42)...)          // seqnum
	entryBody = append(entryBody, u64le(1700000000000000)...) // realtime micros
	entryBody = append(entryBody, u64le(0)...)           // monotonic
	entryBody = append(entryBody, make([]byte, 16)...)   // boot_id
	entryBody = append(entryBody, u64le(0)...)           // xor_hash
	for _, off := range dataOffsets {
		entryBody = append(entryBody, u64le(off)...)
		entryBody = append(entryBody, u64le(0)...) // hash
	}
	entryOffset := b.writeObject(objectTypeEntry, 0, entryBody)

	arrayBody := make([]byte, 0, 16)
	arrayBody = append(arrayBody, u64le(0)...) // next_entry_array_offset
	arrayBody = append(arrayBody, u64le(entryOffset)...)
	arrayOffset := b.writeObject(objectTypeEntryArray, 0, arrayBody)

	binary.LittleEndian.PutUint64(b.buf[88:96], 0xc0)           // header_size
	binary.LittleEndian.PutUint64(b.buf[176:184], arrayOffset)  // entry_array_offset
	binary.LittleEndian.PutUint64(b.buf[136:144], arrayOffset)  // tail_object_offset
	return b.buf
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	_, err := ParseHeader(make([]byte, 0xc0))
	assert.Error(t, err)
}

func TestWalkEntriesDecodesKnownFields(t *testing.T) {
	data := buildJournal([]string{
		"MESSAGE=hello world",
		"_PID=1234",
		"_COMM=sshd",
		"PRIORITY=3",
		"SYSLOG_FACILITY=4",
		"_CUSTOM_FIELD=abc",
	})

	header, err := ParseHeader(data)
	require.NoError(t, err)
	assert.False(t, header.Compact)

	var entries []record.JournalEntry
	err = WalkEntries(data, header, func(e record.JournalEntry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, uint64(42), e.Seqnum)
	assert.Equal(t, "hello world", e.Message)
	assert.Equal(t, uint32(1234), e.Pid)
	assert.Equal(t, "sshd", e.Comm)
	assert.Equal(t, "Error", e.Priority)
	assert.Equal(t, "Authentication", e.Facility)
	assert.Equal(t, "abc", e.Other["_CUSTOM_FIELD"])
}

func TestWalkEntriesStopsOnSelfReferencingArray(t *testing.T) {
	data := buildJournal([]string{"MESSAGE=x"})
	arrayOffset := binary.LittleEndian.Uint64(data[176:184])
	binary.LittleEndian.PutUint64(data[arrayOffset+16:arrayOffset+24], arrayOffset)
	header, err := ParseHeader(data)
	require.NoError(t, err)

	var count int
	err = WalkEntries(data, header, func(e record.JournalEntry) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
