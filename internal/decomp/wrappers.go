package decomp

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/forensics-collect/collector/internal/ferrors"
)

// Gzip decompresses a gzip-framed stream.
func Gzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "gzip header", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "gzip body", err)
	}
	return out, nil
}

// Zlib decompresses a zlib-framed stream.
func Zlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "zlib header", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "zlib body", err)
	}
	return out, nil
}

// Zstd decompresses a zstd-framed stream using klauspost/compress, the
// same library the reference tool's compression kit uses for its own
// zstd support.
func Zstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "zstd init", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "zstd body", err)
	}
	return out, nil
}

// Xz decompresses an xz-framed stream via ulikunitz/xz.
func Xz(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "xz header", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "xz body", err)
	}
	return out, nil
}

// Lz4Block decompresses a single raw LZ4 block (no frame header): a
// stream of (literal-length:match-length) token bytes, optional length
// extension bytes, literals, and little-endian 16-bit match offsets.
func Lz4Block(data []byte, outSize int) ([]byte, error) {
	out := make([]byte, 0, outSize)
	i := 0
	for i < len(data) {
		token := data[i]
		i++
		litLen := int(token >> 4)
		if litLen == 15 {
			for i < len(data) {
				b := data[i]
				i++
				litLen += int(b)
				if b != 255 {
					break
				}
			}
		}
		if i+litLen > len(data) {
			litLen = len(data) - i
		}
		out = append(out, data[i:i+litLen]...)
		i += litLen

		if i >= len(data) {
			break
		}
		if i+2 > len(data) {
			return out, nil
		}
		offset := int(data[i]) | int(data[i+1])<<8
		i += 2
		if offset == 0 || offset > len(out) {
			return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "lz4 bad offset", nil)
		}

		matchLen := int(token & 0x0f)
		if matchLen == 15 {
			for i < len(data) {
				b := data[i]
				i++
				matchLen += int(b)
				if b != 255 {
					break
				}
			}
		}
		matchLen += 4

		for k := 0; k < matchLen; k++ {
			out = append(out, out[len(out)-offset])
		}
	}
	return out, nil
}
