// Package wof detects and decompresses Windows Overlay Filter (WOF)
// transparently-compressed files (spec §4.1, C4). A WOF file carries its
// real data in an unnamed "original" data stream's alternate location and
// advertises compression through a reparse point plus a $WofCompressedData
// named stream holding the compressed payload and a small algorithm header.
package wof

import (
	"encoding/binary"

	"github.com/forensics-collect/collector/internal/decomp"
	"github.com/forensics-collect/collector/internal/ferrors"
)

const component = "wof"

// Algorithm enumerates the compression algorithm a WofCompressedData
// stream's header declares.
type Algorithm uint32

const (
	AlgorithmXpress4K  Algorithm = 0
	AlgorithmLZX       Algorithm = 1
	AlgorithmXpress8K  Algorithm = 2
	AlgorithmXpress16K Algorithm = 3
)

// StreamName is the alternate data stream name WOF uses to store a
// file's compressed payload.
const StreamName = "WofCompressedData"

// IsWofReparseTag reports whether a reparse point tag identifies a WOF
// overlay (0x80000017, IO_REPARSE_TAG_WOF).
func IsWofReparseTag(tag uint32) bool {
	return tag == 0x80000017
}

// Decompress decodes a WofCompressedData stream's payload. WOF splits the
// logical file into fixed-size chunks (4K/8K/16K depending on algorithm)
// each individually Xpress- or LZX-compressed, prefixed by a table of
// per-chunk compressed-size offsets when the file is larger than one chunk.
func Decompress(payload []byte, alg Algorithm, originalSize int64) ([]byte, error) {
	chunkSize := chunkSizeFor(alg)
	if chunkSize == 0 {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "unsupported algorithm", nil)
	}

	numChunks := (originalSize + int64(chunkSize) - 1) / int64(chunkSize)
	if numChunks <= 1 {
		return decompressChunk(payload, alg, int(originalSize))
	}

	tableEntries := int(numChunks - 1)
	tableSize := tableEntries * 4
	if tableSize > len(payload) {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "truncated chunk table", nil)
	}
	offsets := make([]uint32, tableEntries)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(payload[i*4 : i*4+4])
	}

	out := make([]byte, 0, originalSize)
	dataStart := tableSize
	prev := uint32(0)
	chunkBoundaries := append(append([]uint32{}, offsets...), uint32(len(payload)-dataStart))

	remaining := originalSize
	for i, end := range chunkBoundaries {
		start := prev
		prev = end
		if int(start) > len(payload)-dataStart || int(end) > len(payload)-dataStart || end < start {
			return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "bad chunk table entry", nil)
		}
		thisChunkSize := int64(chunkSize)
		if remaining < thisChunkSize {
			thisChunkSize = remaining
		}
		chunk := payload[dataStart+int(start) : dataStart+int(end)]

		var decoded []byte
		var err error
		if int64(end-start) == thisChunkSize {
			// Stored uncompressed: chunk table entries whose size equals
			// the logical chunk size are a literal copy, per WOF's
			// incompressible-chunk fallback.
			decoded = chunk
		} else {
			decoded, err = decompressChunk(chunk, alg, int(thisChunkSize))
			if err != nil {
				return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "wof chunk", err)
			}
		}
		out = append(out, decoded...)
		remaining -= thisChunkSize
		_ = i
	}
	return out, nil
}

func decompressChunk(data []byte, alg Algorithm, outSize int) ([]byte, error) {
	switch alg {
	case AlgorithmXpress4K:
		return decomp.PlainLZ77(data, outSize)
	case AlgorithmXpress8K, AlgorithmXpress16K:
		return decomp.XpressHuffman(data, outSize)
	case AlgorithmLZX:
		// No LZX decoder is implemented; LZX-compressed WOF files are rare
		// in practice (XPRESS8K is the overwhelming default) and treated
		// as an unsupported algorithm for now.
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "lzx not supported", nil)
	default:
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "unsupported algorithm", nil)
	}
}

func chunkSizeFor(alg Algorithm) int {
	switch alg {
	case AlgorithmXpress4K:
		return 4096
	case AlgorithmXpress8K:
		return 8192
	case AlgorithmXpress16K, AlgorithmLZX:
		return 16384
	default:
		return 0
	}
}
