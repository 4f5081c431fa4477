// Package secids resolves NTFS security descriptor identifiers (spec
// §4.1, C5): given a security_id from a FILE record's $STANDARD_INFORMATION
// attribute, walk the volume's $Secure system file's $SII index and $SDS
// data stream to recover the owner and group SIDs of the descriptor.
package secids

import (
	"encoding/binary"
	"fmt"

	"github.com/forensics-collect/collector/internal/ferrors"
)

const component = "secids"

// SIIEntry is one index entry of $Secure:$SII, mapping a security_id to
// the byte offset and size of its descriptor inside $SDS.
type SIIEntry struct {
	SecurityID uint32
	Hash       uint32
	Offset     uint64
	Size       uint32
}

// ParseSIIEntries decodes the fixed-format leaf entries of the $SII index
// allocation, each a 20-byte header (the common index-entry prefix) plus
// a 20-byte $SII_INDEX_KEY/value payload.
func ParseSIIEntries(indexData []byte) ([]SIIEntry, error) {
	var entries []SIIEntry
	offset := 0
	for offset+16 <= len(indexData) {
		entryLength := binary.LittleEndian.Uint16(indexData[offset+8 : offset+10])
		if entryLength == 0 {
			break
		}
		flags := binary.LittleEndian.Uint16(indexData[offset+12 : offset+14])
		const lastEntryFlag = 0x0002

		if flags&lastEntryFlag == 0 && int(entryLength) >= 40 && offset+20+20 <= len(indexData) {
			body := indexData[offset+20:]
			e := SIIEntry{
				Hash:       binary.LittleEndian.Uint32(body[0:4]),
				SecurityID: binary.LittleEndian.Uint32(body[4:8]),
				Offset:     binary.LittleEndian.Uint64(body[8:16]),
				Size:       binary.LittleEndian.Uint32(body[16:20]),
			}
			entries = append(entries, e)
		}

		offset += int(entryLength)
	}
	return entries, nil
}

// ResolveSID looks up the $SDS bytes for a security_id via the decoded
// $SII entries, then parses the security descriptor's owner/group SIDs
// out of the self-relative SECURITY_DESCRIPTOR header.
func ResolveSID(sds []byte, entries []SIIEntry, securityID uint32) (ownerSID, groupSID string, err error) {
	for _, e := range entries {
		if e.SecurityID != securityID {
			continue
		}
		end := int(e.Offset) + int(e.Size)
		if int(e.Offset) < 0 || end > len(sds) {
			return "", "", ferrors.Wrap(ferrors.ErrParseFormat, component, "sds range", nil)
		}
		return parseSecurityDescriptor(sds[e.Offset:end])
	}
	return "", "", ferrors.Wrap(ferrors.ErrMissingAttribute, component, fmt.Sprintf("security_id %d not found", securityID), nil)
}

// parseSecurityDescriptor decodes a self-relative SECURITY_DESCRIPTOR
// header's owner and group SID offsets and stringifies each SID.
func parseSecurityDescriptor(data []byte) (ownerSID, groupSID string, err error) {
	if len(data) < 20 {
		return "", "", ferrors.Wrap(ferrors.ErrParseFormat, component, "descriptor truncated", nil)
	}
	ownerOffset := binary.LittleEndian.Uint32(data[4:8])
	groupOffset := binary.LittleEndian.Uint32(data[8:12])

	if ownerOffset > 0 && int(ownerOffset) < len(data) {
		ownerSID, err = decodeSID(data[ownerOffset:])
		if err != nil {
			return "", "", err
		}
	}
	if groupOffset > 0 && int(groupOffset) < len(data) {
		groupSID, err = decodeSID(data[groupOffset:])
		if err != nil {
			return "", "", err
		}
	}
	return ownerSID, groupSID, nil
}

// decodeSID renders a binary SID (revision byte, sub-authority count
// byte, 6-byte big-endian authority, N little-endian 4-byte
// sub-authorities) as its canonical "S-R-A-S1-S2-..." string form.
func decodeSID(data []byte) (string, error) {
	if len(data) < 8 {
		return "", ferrors.Wrap(ferrors.ErrParseFormat, component, "sid truncated", nil)
	}
	revision := data[0]
	subCount := int(data[1])

	var authority uint64
	for i := 2; i < 8; i++ {
		authority = (authority << 8) | uint64(data[i])
	}

	needed := 8 + subCount*4
	if len(data) < needed {
		return "", ferrors.Wrap(ferrors.ErrParseFormat, component, "sid sub-authority truncated", nil)
	}

	sid := fmt.Sprintf("S-%d-%d", revision, authority)
	for i := 0; i < subCount; i++ {
		off := 8 + i*4
		sub := binary.LittleEndian.Uint32(data[off : off+4])
		sid += fmt.Sprintf("-%d", sub)
	}
	return sid, nil
}
