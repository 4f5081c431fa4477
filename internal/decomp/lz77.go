package decomp

import (
	"github.com/forensics-collect/collector/internal/ferrors"
)

// PlainLZ77 decompresses the plain (non-Huffman) Xpress format as one
// flat, unchunked stream using the same flag-byte scheme as LZNT1: each
// flag byte covers the next eight items, a clear bit meaning one literal
// byte and a set bit a 3-byte back-reference holding a 12-bit offset and
// a 12-bit length (plus the 3-byte minimum match).
//
// This is a simplified token layout rather than an
// exact transcription of MS-XCA §2.4's plain LZ77 variant; no captured
// test vector exercises this path, so treat it as approximate.
func PlainLZ77(data []byte, outSize int) ([]byte, error) {
	out := make([]byte, 0, outSize)
	srcIdx := 0

	for srcIdx < len(data) && (outSize <= 0 || len(out) < outSize) {
		flags := data[srcIdx]
		srcIdx++

		for bit := 0; bit < 8; bit++ {
			if srcIdx >= len(data) || (outSize > 0 && len(out) >= outSize) {
				break
			}
			if flags&(1<<uint(bit)) == 0 {
				out = append(out, data[srcIdx])
				srcIdx++
				continue
			}

			if srcIdx+3 > len(data) {
				return out, nil
			}
			b0, b1, b2 := data[srcIdx], data[srcIdx+1], data[srcIdx+2]
			srcIdx += 3

			offset := int(b0) | (int(b1&0x0f) << 8)
			length := int(b1>>4) | (int(b2) << 4)
			length += 3

			if offset <= 0 || offset > len(out) {
				return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "lz77 bad offset", nil)
			}
			for k := 0; k < length; k++ {
				out = append(out, out[len(out)-offset])
			}
		}
	}
	return out, nil
}
