// Package neighbor implements a compact VByte-encoded adjacency arena:
// per-node-per-layer neighbor lists packed into a single contiguous byte
// arena, with first-fit allocation and coalescing free-list reuse,
// grounded on sqvect's map-of-slices HNSW.Neighbors
// ([][]string per node) generalized to a dense byte-pool representation
// suitable for a durable, memory-frugal, WASM-friendly graph.
package neighbor

import (
	"errors"
	"sort"
)

var (
	// ErrCorrupted is returned by Decode on a malformed VByte continuation
	// or an overflowing accumulated delta.
	ErrCorrupted = errors.New("neighbor: corrupted encoding")
	// ErrOutOfBounds is returned by Read/Write for an out-of-range region.
	ErrOutOfBounds = errors.New("neighbor: out of bounds")
)

// growThreshold is the requested allocation size below which tail growth is
// twice the request (at least 16 bytes); at or above it, growth is exactly
// the requested size.
const growThreshold = 64 * 1024

// region describes a free byte range [offset, offset+capacity).
type region struct {
	offset   uint32
	capacity uint32
}

// Pool is a single contiguous byte arena holding every node's per-layer
// neighbor list, VByte-delta-encoded. Free regions are tracked in an
// ordered map keyed by capacity for first-fit reuse.
type Pool struct {
	arena []byte
	// freeByCap maps capacity -> offsets of free regions of exactly that
	// capacity, kept sorted by offset for deterministic first-fit and easy
	// coalescing. A capacity bucket is pruned once empty.
	freeByCap map[uint32][]uint32
	// free also indexed by offset for coalescing lookups.
	freeByOffset map[uint32]uint32 // offset -> capacity
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		freeByCap:    make(map[uint32][]uint32),
		freeByOffset: make(map[uint32]uint32),
	}
}

// Encode delta-encodes a sorted ascending slice of node IDs into VByte
// bytes. The first value is encoded as its absolute delta from 0.
func Encode(ids []uint32) []byte {
	out := make([]byte, 0, len(ids)*2)
	var prev uint32
	for _, id := range ids {
		delta := id - prev
		out = appendVarint(out, delta)
		prev = id
	}
	return out
}

func appendVarint(out []byte, v uint32) []byte {
	for v >= 0x80 {
		out = append(out, byte(v&0x7f)|0x80)
		v >>= 7
	}
	return append(out, byte(v))
}

// Decode reverses Encode, reconstructing the sorted ascending node ID list.
// Malformed continuation sequences (more than 5 bytes for a 32-bit delta) or
// an accumulator overflow fail with ErrCorrupted.
func Decode(b []byte) ([]uint32, error) {
	ids := make([]uint32, 0, len(b)/2+1)
	var cur uint32
	i := 0
	for i < len(b) {
		var delta uint32
		shift := uint(0)
		consumed := 0
		for {
			if i >= len(b) {
				return nil, ErrCorrupted
			}
			byteVal := b[i]
			i++
			consumed++
			if consumed > 5 {
				return nil, ErrCorrupted
			}
			if consumed == 5 && byteVal&0x70 != 0 {
				return nil, ErrCorrupted // delta exceeds 32 bits
			}
			delta |= uint32(byteVal&0x7f) << shift
			if byteVal&0x80 == 0 {
				break
			}
			shift += 7
		}
		next := cur + delta
		if next < cur {
			return nil, ErrCorrupted // overflow
		}
		cur = next
		ids = append(ids, cur)
	}
	return ids, nil
}

// Alloc reserves a region of at least size bytes, reusing a free region via
// first-fit over freeByCap when possible; otherwise it appends to the tail,
// growing the arena by at least size (doubling below growThreshold).
// The returned capacity may exceed size to absorb future growth.
func (p *Pool) Alloc(size uint32) (offset uint32, capacity uint32) {
	if off, cap, ok := p.firstFit(size); ok {
		return off, cap
	}

	grow := size
	if size < growThreshold {
		grow = size * 2
		if grow < 16 {
			grow = 16
		}
	}
	offset = uint32(len(p.arena))
	p.arena = append(p.arena, make([]byte, grow)...)
	return offset, grow
}

func (p *Pool) firstFit(size uint32) (uint32, uint32, bool) {
	var bestCap uint32
	found := false
	for cap := range p.freeByCap {
		if cap >= size && (!found || cap < bestCap) {
			if len(p.freeByCap[cap]) > 0 {
				bestCap = cap
				found = true
			}
		}
	}
	if !found {
		return 0, 0, false
	}
	offsets := p.freeByCap[bestCap]
	offset := offsets[0]
	p.freeByCap[bestCap] = offsets[1:]
	if len(p.freeByCap[bestCap]) == 0 {
		delete(p.freeByCap, bestCap)
	}
	delete(p.freeByOffset, offset)
	return offset, bestCap, true
}

// Free returns a region to the pool, coalescing it with any adjacent free
// regions so that free regions remain maximal.
func (p *Pool) Free(offset, capacity uint32) {
	// Coalesce with a free region immediately to the right.
	if rightCap, ok := p.freeByOffset[offset+capacity]; ok {
		p.removeFree(offset+capacity, rightCap)
		capacity += rightCap
	}
	// Coalesce with a free region immediately to the left: scan is O(n) in
	// the number of free regions, acceptable for the arena sizes this
	// engine targets (single-process, single-writer).
	for off, cap := range p.freeByOffset {
		if off+cap == offset {
			p.removeFree(off, cap)
			offset = off
			capacity += cap
			break
		}
	}
	p.addFree(offset, capacity)
}

func (p *Pool) addFree(offset, capacity uint32) {
	p.freeByOffset[offset] = capacity
	p.freeByCap[capacity] = append(p.freeByCap[capacity], offset)
	sort.Slice(p.freeByCap[capacity], func(i, j int) bool {
		return p.freeByCap[capacity][i] < p.freeByCap[capacity][j]
	})
}

func (p *Pool) removeFree(offset, capacity uint32) {
	delete(p.freeByOffset, offset)
	offsets := p.freeByCap[capacity]
	for i, o := range offsets {
		if o == offset {
			offsets = append(offsets[:i], offsets[i+1:]...)
			break
		}
	}
	if len(offsets) == 0 {
		delete(p.freeByCap, capacity)
	} else {
		p.freeByCap[capacity] = offsets
	}
}

// Write copies bytes into the arena at offset. Fails with ErrOutOfBounds if
// the region falls outside the arena.
func (p *Pool) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(p.arena)) {
		return ErrOutOfBounds
	}
	copy(p.arena[offset:], data)
	return nil
}

// Read returns a view of length bytes starting at offset. Fails with
// ErrOutOfBounds if the region falls outside the arena.
func (p *Pool) Read(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(p.arena)) {
		return nil, ErrOutOfBounds
	}
	return p.arena[offset:end], nil
}

// Size returns the total arena length in bytes.
func (p *Pool) Size() int { return len(p.arena) }

// Bytes returns the full backing arena, for snapshotting.
func (p *Pool) Bytes() []byte { return p.arena }

// LoadArena replaces the backing arena wholesale (snapshot restore). Any
// prior free-list state is discarded and no free regions are derived from
// the loaded bytes, so space that was free before the snapshot is not
// reused after load; only regions passed to Free afterwards are.
func (p *Pool) LoadArena(data []byte) {
	p.arena = append([]byte(nil), data...)
	p.freeByCap = make(map[uint32][]uint32)
	p.freeByOffset = make(map[uint32]uint32)
}
