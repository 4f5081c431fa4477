package lnk

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/forensics-collect/collector/pkg/record"
)

// Extra data block signatures (ExtraData / *DataBlock structures). Each
// block starts with a 4-byte size (including these two fields) and a
// 4-byte signature; a block with an unrecognized signature is skipped,
// and a block declaring a size under 8 bytes ends the chain.
const (
	sigTracker      = 0xA0000003
	sigConsole      = 0xA0000002
	sigCodepage     = 0xA0000004
	sigSpecialFolder = 0xA0000005
	sigEnvironment  = 0xA0000001
	sigDarwin       = 0xA0000006
	sigPropertyStore = 0xA0000009
	sigShim         = 0xA0000008
	sigKnownFolder  = 0xA000000B
)

// parseExtraData scans the trailing extra-data block chain and fills in
// whichever of tracker/console/codepage/special-folder/environment/
// Darwin/shim/known-folder data it finds. Blocks can appear in any order
// and several artifact generators omit ones that don't apply, so this
// keeps scanning past unrecognized signatures instead of stopping.
func parseExtraData(data []byte, out *record.ShortcutRecord) {
	pos := 0
	for pos+8 <= len(data) {
		size := binary.LittleEndian.Uint32(data[pos : pos+4])
		if size < 8 {
			break
		}
		if pos+int(size) > len(data) {
			break
		}
		sig := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		block := data[pos : pos+int(size)]

		switch sig {
		case sigTracker:
			parseTracker(block, out)
		case sigConsole:
			out.Console = parseConsole(block)
		case sigCodepage:
			if len(block) >= 12 {
				out.Codepage = binary.LittleEndian.Uint32(block[8:12])
			}
		case sigSpecialFolder:
			if len(block) >= 12 {
				out.SpecialFolderID = binary.LittleEndian.Uint32(block[8:12])
			}
		case sigEnvironment:
			if len(block) >= 8+260 {
				out.EnvironmentVar = cstring(block[8 : 8+260])
			}
		case sigDarwin:
			if len(block) >= 8+260 {
				out.DarwinID = cstring(block[8 : 8+260])
			}
		case sigShim:
			if len(block) > 8 {
				out.ShimLayer = decodeUTF16(block[8:])
			}
		case sigKnownFolder:
			if len(block) >= 12 {
				out.KnownFolder = hexUint32(binary.LittleEndian.Uint32(block[8:12]))
			}
		}

		pos += int(size)
	}
}

// parseTracker decodes the DistributedLinkTrackerDataBlock's droid/birth
// droid volume and file IDs plus the originating machine's NetBIOS name.
func parseTracker(block []byte, out *record.ShortcutRecord) {
	const headerSize = 8 + 4 + 4
	if len(block) < headerSize+16*4 {
		return
	}
	body := block[headerSize:]
	hostname := cstring(body[:16])
	droidVolumeID := formatGUID(body[16:32])
	droidFileID := formatGUID(body[32:48])
	birthVolumeID := formatGUID(body[48:64])

	out.Hostname = hostname
	out.DroidVolumeID = droidVolumeID
	out.DroidFileID = droidFileID
	out.BirthDroidVolumeID = birthVolumeID
	if len(body) >= 80 {
		out.BirthDroidFileID = formatGUID(body[64:80])
	}
}

// formatGUID renders a little-endian-mixed ("Microsoft") GUID, as stored
// in a DistributedLinkTrackerDataBlock's volume/file droid fields, in
// canonical 8-4-4-4-12 form.
func formatGUID(b []byte) string {
	if len(b) < 16 {
		return ""
	}
	var swapped [16]byte
	binary.BigEndian.PutUint32(swapped[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(swapped[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(swapped[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(swapped[8:16], b[8:16])
	return uuid.UUID(swapped).String()
}

// parseConsole decodes the ConsoleDataBlock's font/color attributes into
// a small set of human-readable flags; real console blocks carry a fixed
// binary layout but only a handful of fields are forensically relevant.
func parseConsole(block []byte) []string {
	if len(block) < 14 {
		return nil
	}
	fillAttrs := binary.LittleEndian.Uint16(block[8:10])
	popupAttrs := binary.LittleEndian.Uint16(block[10:12])
	var out []string
	if fillAttrs != 0 {
		out = append(out, hexUint16("fill_attributes", fillAttrs))
	}
	if popupAttrs != 0 {
		out = append(out, hexUint16("popup_fill_attributes", popupAttrs))
	}
	return out
}

func hexUint16(label string, v uint16) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = hexDigits[v&0xF]
		v >>= 4
	}
	return label + "=0x" + string(b)
}
