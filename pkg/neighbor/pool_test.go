package neighbor

import (
	"math/rand"
	"sort"
	"testing"
)

func TestVByteRoundTrip(t *testing.T) {
	cases := [][]uint32{
		nil,
		{0},
		{5},
		{1, 2, 3},
		{0, 127, 128, 16383, 16384, 1 << 20, 1 << 28},
		{10, 20, 30, 1000, 100000},
	}
	for _, ids := range cases {
		enc := Encode(ids)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%v) error: %v", ids, err)
		}
		if len(dec) != len(ids) {
			t.Fatalf("Decode(%v) = %v, length mismatch", ids, dec)
		}
		for i := range ids {
			if dec[i] != ids[i] {
				t.Fatalf("Decode(%v) = %v, mismatch at %d", ids, dec, i)
			}
		}
	}
}

func TestVByteRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(64)
		set := make(map[uint32]struct{}, n)
		for len(set) < n {
			set[rng.Uint32()%2000000] = struct{}{}
		}
		ids := make([]uint32, 0, n)
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		enc := Encode(ids)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("trial %d: Decode error: %v", trial, err)
		}
		if len(dec) != len(ids) {
			t.Fatalf("trial %d: length mismatch got %d want %d", trial, len(dec), len(ids))
		}
		for i := range ids {
			if dec[i] != ids[i] {
				t.Fatalf("trial %d: mismatch at %d: got %d want %d", trial, i, dec[i], ids[i])
			}
		}
	}
}

func TestDecodeCorruptedTruncated(t *testing.T) {
	// A continuation byte with no terminator is truncated input.
	_, err := Decode([]byte{0x80})
	if err != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestDecodeCorruptedTooLong(t *testing.T) {
	// Six continuation bytes exceeds the 5-byte cap for a 32-bit varint.
	_, err := Decode([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	if err != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

// TestAllocFreeSafety checks that repeated alloc/write/free cycles never
// corrupt live regions and never hand out overlapping live allocations.
func TestAllocFreeSafety(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	p := New()

	type live struct {
		offset, capacity uint32
		data             []byte
	}
	var lives []live

	for step := 0; step < 2000; step++ {
		if len(lives) > 0 && rng.Intn(3) == 0 {
			idx := rng.Intn(len(lives))
			l := lives[idx]
			got, err := p.Read(l.offset, uint32(len(l.data)))
			if err != nil {
				t.Fatalf("step %d: Read error: %v", step, err)
			}
			for i := range got {
				if got[i] != l.data[i] {
					t.Fatalf("step %d: region corrupted at offset %d", step, l.offset)
				}
			}
			p.Free(l.offset, l.capacity)
			lives = append(lives[:idx], lives[idx+1:]...)
			continue
		}

		size := uint32(rng.Intn(200) + 1)
		offset, capacity := p.Alloc(size)
		if capacity < size {
			t.Fatalf("step %d: Alloc(%d) returned capacity %d < size", step, size, capacity)
		}
		data := make([]byte, size)
		rng.Read(data)
		if err := p.Write(offset, data); err != nil {
			t.Fatalf("step %d: Write error: %v", step, err)
		}
		lives = append(lives, live{offset: offset, capacity: capacity, data: data})
	}

	// Final check: every surviving region still reads back exactly.
	for _, l := range lives {
		got, err := p.Read(l.offset, uint32(len(l.data)))
		if err != nil {
			t.Fatalf("final Read error: %v", err)
		}
		for i := range got {
			if got[i] != l.data[i] {
				t.Fatalf("final check: region at offset %d corrupted", l.offset)
			}
		}
	}
}

func TestReadWriteOutOfBounds(t *testing.T) {
	p := New()
	offset, _ := p.Alloc(8)
	if err := p.Write(offset, make([]byte, 100)); err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := p.Read(offset, 100); err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestFreeCoalescesAdjacentRegions(t *testing.T) {
	p := New()
	o1, c1 := p.Alloc(16)
	o2, c2 := p.Alloc(16)
	_ = o2
	p.Free(o1, c1)
	p.Free(o1+c1, c2)

	// A subsequent alloc requesting the combined size should reuse the
	// coalesced region rather than growing the arena.
	before := p.Size()
	off, cap := p.Alloc(c1 + c2)
	after := p.Size()
	if after != before {
		t.Fatalf("expected coalesced reuse without growth, arena grew from %d to %d", before, after)
	}
	if off != o1 || cap != c1+c2 {
		t.Fatalf("expected reuse of coalesced region at %d cap %d, got offset %d cap %d", o1, c1+c2, off, cap)
	}
}
