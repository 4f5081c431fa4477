package secids

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSID(revision byte, authority uint64, subs []uint32) []byte {
	out := make([]byte, 8+len(subs)*4)
	out[0] = revision
	out[1] = byte(len(subs))
	for i := 0; i < 6; i++ {
		out[7-i] = byte(authority >> (8 * i))
	}
	for i, s := range subs {
		binary.LittleEndian.PutUint32(out[8+i*4:8+i*4+4], s)
	}
	return out
}

func TestDecodeSIDFormatsCanonicalString(t *testing.T) {
	sid := buildSID(1, 5, []uint32{21, 111111111, 222222222, 1001})
	s, err := decodeSID(sid)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-111111111-222222222-1001", s)
}

func TestResolveSIDNotFound(t *testing.T) {
	_, _, err := ResolveSID(nil, nil, 999)
	require.Error(t, err)
}

func TestParseSecurityDescriptorOwnerGroup(t *testing.T) {
	ownerSID := buildSID(1, 5, []uint32{32, 544})
	groupSID := buildSID(1, 5, []uint32{18})

	header := make([]byte, 20)
	ownerOffset := uint32(20)
	groupOffset := ownerOffset + uint32(len(ownerSID))
	binary.LittleEndian.PutUint32(header[4:8], ownerOffset)
	binary.LittleEndian.PutUint32(header[8:12], groupOffset)

	data := append(header, ownerSID...)
	data = append(data, groupSID...)

	owner, group, err := parseSecurityDescriptor(data)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-32-544", owner)
	assert.Equal(t, "S-1-5-18", group)
}
