package decomp

import (
	"encoding/binary"

	"github.com/forensics-collect/collector/internal/ferrors"
)

// rtfPrebuiltDictionary is the fixed 207-byte [MS-OXRTFCP] Compressed-RTF
// prelude. A 4096-byte sliding window is primed with this text before any
// decompressed bytes are emitted, so early back-references can point into
// it before the stream has produced any output of its own.
const rtfPrebuiltDictionary = "{\\rtf1\\ansi\\mac\\deff0\\deftab720{\\fonttbl;}{\\f0\\fnil \\froman \\fswiss \\fmodern \\fscript \\fdecor MS Sans SerifSymbolArialTimes New RomanCourier{\\colortbl\\red0\\green0\\blue0\r\n\\par \\pard\\plain\\f0\\fs20\\b\\i\\u\\tab\\tx"

const (
	rtfMagicCompressed   = 0x75465a4c
	rtfMagicUncompressed = 0x414c454d
	rtfHeaderSize        = 16
	rtfWindowSize        = 4096
)

// RTF decompresses a Compressed-RTF stream ([MS-OXRTFCP]): a 16-byte header
// (compressed size, uncompressed size, magic, CRC) followed by a token
// stream of literal bytes and back-references into a 4096-byte window
// that starts primed with rtfPrebuiltDictionary.
func RTF(data []byte) ([]byte, error) {
	if len(data) < rtfHeaderSize {
		return nil, ferrors.Wrap(ferrors.ErrRtfCorrupted, component, "short header", nil)
	}
	compSize := binary.LittleEndian.Uint32(data[0:4])
	rawSize := binary.LittleEndian.Uint32(data[4:8])
	magic := binary.LittleEndian.Uint32(data[8:12])

	body := data[rtfHeaderSize:]
	// compSize counts the magic+crc+body from its own field onward; tolerate
	// producers that measured it slightly differently by clamping to what's
	// actually available instead of failing on a declared/actual mismatch.
	if int(compSize) > len(data) {
		compSize = uint32(len(data) - 4)
	}

	switch magic {
	case rtfMagicUncompressed:
		out := body
		if uint32(len(out)) > rawSize && rawSize > 0 {
			out = out[:rawSize]
		}
		return out, nil
	case rtfMagicCompressed:
		out, err := rtfDecodeTokens(body, rawSize)
		if err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, ferrors.Wrap(ferrors.ErrRtfCorrupted, component, "unrecognized magic", nil)
	}
}

func rtfDecodeTokens(body []byte, declaredSize uint32) ([]byte, error) {
	window := make([]byte, rtfWindowSize)
	copy(window, rtfPrebuiltDictionary)
	writePos := len(rtfPrebuiltDictionary)

	out := make([]byte, 0, declaredSize)
	srcIdx := 0

	for srcIdx < len(body) && uint32(len(out)) < declaredSize {
		flags := body[srcIdx]
		srcIdx++

		for bit := 0; bit < 8 && srcIdx < len(body) && uint32(len(out)) < declaredSize; bit++ {
			if flags&(1<<uint(bit)) == 0 {
				b := body[srcIdx]
				srcIdx++
				out = append(out, b)
				window[writePos%rtfWindowSize] = b
				writePos++
				continue
			}

			if srcIdx+2 > len(body) {
				return nil, ferrors.Wrap(ferrors.ErrRtfCorrupted, component, "truncated token", nil)
			}
			token := binary.BigEndian.Uint16(body[srcIdx : srcIdx+2])
			srcIdx += 2
			refOffset := int(token >> 4)
			refLength := int(token&0x0f) + 2

			for k := 0; k < refLength && uint32(len(out)) < declaredSize; k++ {
				b := window[(refOffset+k)%rtfWindowSize]
				out = append(out, b)
				window[writePos%rtfWindowSize] = b
				writePos++
			}
		}
	}

	if declaredSize > 0 && uint32(len(out)) != declaredSize {
		return nil, ferrors.Wrap(ferrors.ErrRtfCorrupted, component, "declared size mismatch", nil)
	}
	return out, nil
}
