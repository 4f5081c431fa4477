// Package decomp implements the decompression kit (spec §4.2, C2): a set
// of pure, total functions that turn a compressed byte slice into its
// decompressed form. None of these panic, and a back-reference that
// points outside the decoded data yields a typed error. Input that ends
// early is an error for RTF; the other decoders return what they decoded
// before the input ran out (LZNT1 still rejects a back-reference token
// cut short inside a chunk).
package decomp

import (
	"encoding/binary"

	"github.com/forensics-collect/collector/internal/ferrors"
)

const component = "decomp"

const lznt1ChunkSignatureMask = 0x7000
const lznt1ChunkSignature = 0x3000
const lznt1CompressedFlag = 0x8000
const lznt1ChunkSizeMask = 0x0FFF

// LZNT1 decompresses the NTFS-native LZNT1 format: a sequence of 4 KiB
// chunks, each preceded by a 2-byte header whose top bit signals whether
// the chunk body is compressed.
func LZNT1(data []byte) ([]byte, error) {
	var out []byte
	i := 0
	for i+2 <= len(data) {
		header := binary.LittleEndian.Uint16(data[i : i+2])
		i += 2
		size := int(header&lznt1ChunkSizeMask) + 1
		if i+size > len(data) {
			size = len(data) - i
		}
		if size <= 0 {
			break
		}
		chunk := data[i : i+size]
		i += size

		if header&lznt1CompressedFlag == 0 {
			out = append(out, chunk...)
			continue
		}
		decoded, err := lznt1Chunk(chunk)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "lznt1 chunk", err)
		}
		out = append(out, decoded...)
	}
	return out, nil
}

// lznt1Chunk decompresses a single compressed 4 KiB chunk body. The
// offset/length split for each back-reference token narrows as the
// decoded position within the chunk grows: early in the chunk there can
// only be a short distance to copy from, so more bits go to length and
// fewer to offset.
func lznt1Chunk(chunk []byte) ([]byte, error) {
	out := make([]byte, 0, 4096)
	srcIdx := 0

	for srcIdx < len(chunk) {
		flags := chunk[srcIdx]
		srcIdx++

		for bit := 0; bit < 8; bit++ {
			if srcIdx >= len(chunk) {
				return out, nil
			}
			if flags&(1<<uint(bit)) == 0 {
				out = append(out, chunk[srcIdx])
				srcIdx++
				continue
			}

			if srcIdx+2 > len(chunk) {
				return nil, ferrors.ErrParseFormat
			}
			token := binary.LittleEndian.Uint16(chunk[srcIdx : srcIdx+2])
			srcIdx += 2

			split := splitBits(len(out))
			lengthBits := split
			offset := int(token>>uint(lengthBits)) + 1
			length := int(token&((1<<uint(lengthBits))-1)) + 3

			if offset > len(out) || offset <= 0 {
				return nil, ferrors.ErrParseFormat
			}
			for k := 0; k < length; k++ {
				out = append(out, out[len(out)-offset])
			}
		}
	}
	return out, nil
}

// splitBits returns the number of length bits in a back-reference token
// given how many bytes have already been decoded in the current chunk
// (pos); the remaining 16 - splitBits bits hold the offset. It starts at
// 12 and decreases by one each time pos crosses a power-of-two boundary
// at 0x10, 0x20, 0x40, ..., down to a minimum of 4.
func splitBits(pos int) int {
	split := 12
	temp := pos
	for temp >= 0x10 {
		temp >>= 1
		split--
	}
	if split < 4 {
		split = 4
	}
	return split
}
