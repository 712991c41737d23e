package vmem

import "encoding/binary"

// freelistEntrySize is the width of the "next offset" field threaded
// through a pool's unused blocks; blockSize must be at least this wide
// to hold it, matching the original's static_assert on PoolAllocator's
// minimum block size.
const freelistEntrySize = 8

// slot is one region of virtual memory: a growable byte buffer.
type slot struct {
	buf []byte
}

// grow resizes the slot to at least minSize, geometrically doubling
// rather than growing exactly to avoid repeated reallocation under a
// tight allocate/deallocate/allocate loop.
func (s *slot) grow(minSize int) {
	newSize := minSize
	if doubled := len(s.buf) * 2; doubled > newSize {
		newSize = doubled
	}
	grown := make([]byte, newSize)
	copy(grown, s.buf)
	s.buf = grown
}

// pool hands out fixed-size blocks from a slot, threading unused
// blocks into a free-list via each block's first 8 bytes.
type pool struct {
	blockSize    int
	freelistHead int
}

func newPool(blockSize int) *pool {
	return &pool{blockSize: blockSize}
}

// allocate pops the next free block in s, growing and rethreading the
// free-list into newly allocated memory first if it's empty.
func (p *pool) allocate(s *slot) int {
	if len(s.buf) == p.freelistHead {
		s.grow(2 * p.blockSize)
		for i := p.freelistHead; i+freelistEntrySize <= len(s.buf); i += p.blockSize {
			binary.LittleEndian.PutUint64(s.buf[i:], uint64(i+p.blockSize))
		}
	}
	offset := p.freelistHead
	p.freelistHead = int(binary.LittleEndian.Uint64(s.buf[offset:]))
	return offset
}

// deallocate threads offset back onto the free-list. Reports false if
// offset isn't a block boundary of this pool, or is out of range.
func (p *pool) deallocate(s *slot, offset int) bool {
	if offset%p.blockSize != 0 || offset >= len(s.buf) {
		return false
	}
	binary.LittleEndian.PutUint64(s.buf[offset:], uint64(p.freelistHead))
	p.freelistHead = offset
	return true
}
