// Package sector implements the block-aligned reader over a raw volume
// handle (spec §4.1, C1). It turns arbitrary byte-range requests into
// whole-block reads against the backing handle and caches hot blocks.
package sector

import (
	"fmt"
	"io"
	"sync"

	"github.com/forensics-collect/collector/internal/ferrors"
)

const component = "sector"

// DefaultBlockSize matches the data model's default volume block size.
const DefaultBlockSize = 4096

// cacheCapacity bounds the number of cached blocks kept in memory; this is
// a small LRU, not a general-purpose page cache.
const cacheCapacity = 256

// Reader presents a byte-addressable view over a sector-aligned backing
// handle, caching whole blocks by block number.
type Reader struct {
	backing   io.ReaderAt
	blockSize int

	mu      sync.Mutex
	cache   map[int64][]byte
	order   []int64 // least recently used first
}

// New wraps a backing handle (a raw volume device on Windows, or any
// io.ReaderAt in tests/non-Windows platforms) with the given block size.
// A zero blockSize uses DefaultBlockSize.
func New(backing io.ReaderAt, blockSize int) *Reader {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Reader{
		backing:   backing,
		blockSize: blockSize,
		cache:     make(map[int64][]byte),
	}
}

// BlockSize returns the reader's block size.
func (r *Reader) BlockSize() int { return r.blockSize }

// ReadAt reads len(p) bytes starting at byte offset off, rounding the
// request out to block boundaries internally. It never silently
// truncates: a short underlying read is reported as ErrDeviceIO.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	bs := int64(r.blockSize)
	startBlock := off / bs
	endBlock := (off + int64(len(p)) - 1) / bs

	out := make([]byte, 0, (endBlock-startBlock+1)*bs)
	for b := startBlock; b <= endBlock; b++ {
		block, err := r.readBlock(b)
		if err != nil {
			return 0, err
		}
		out = append(out, block...)
	}

	lo := off - startBlock*bs
	hi := lo + int64(len(p))
	if hi > int64(len(out)) {
		return 0, ferrors.Wrap(ferrors.ErrDeviceIO, component, "short read", io.ErrUnexpectedEOF)
	}
	n := copy(p, out[lo:hi])
	return n, nil
}

func (r *Reader) readBlock(block int64) ([]byte, error) {
	r.mu.Lock()
	if cached, ok := r.cache[block]; ok {
		for i, b := range r.order {
			if b == block {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		r.order = append(r.order, block)
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	buf := make([]byte, r.blockSize)
	n, err := r.backing.ReadAt(buf, block*int64(r.blockSize))
	if err != nil && err != io.EOF {
		return nil, ferrors.Wrap(ferrors.ErrDeviceIO, component, fmt.Sprintf("read block %d", block), err)
	}
	// A short final block keeps its real length, so ReadAt reports a
	// request reaching past it as ErrDeviceIO instead of returning zeroes.
	buf = buf[:n]

	r.mu.Lock()
	r.cache[block] = buf
	r.order = append(r.order, block)
	if len(r.order) > cacheCapacity {
		evict := r.order[0]
		r.order = r.order[1:]
		delete(r.cache, evict)
	}
	r.mu.Unlock()

	return buf, nil
}

var _ io.ReaderAt = (*Reader)(nil)
