package storage

import (
	"errors"

	"github.com/RoaringBitmap/roaring/v2"

	encpkg "github.com/matte1782/edgevec-sub002/internal/encoding"
)

// ErrCorruptedSnapshot is returned by Unmarshal when the payload's internal
// structure does not match its own declared lengths.
var ErrCorruptedSnapshot = errors.New("storage: corrupted snapshot payload")

// Marshal encodes the storage block payload: dim | vector count |
// serialized deleted bitmap | vectors in VectorId order. The WAL is not
// part of the snapshot, and writing a snapshot leaves the WAL file as it
// is: neither this package nor the Index facade truncates or rotates it.
func (s *Storage) Marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bitmapBytes, err := s.deleted.ToBytes()
	if err != nil {
		return nil, err
	}

	size := 4 + 4 + 4 + len(bitmapBytes) + len(s.vectors)*s.dim*4
	out := make([]byte, 0, size)

	head := make([]byte, 8)
	encpkg.PutUint32(head[0:4], uint32(s.dim))
	encpkg.PutUint32(head[4:8], uint32(len(s.vectors)))
	out = append(out, head...)

	bitmapLen := make([]byte, 4)
	encpkg.PutUint32(bitmapLen, uint32(len(bitmapBytes)))
	out = append(out, bitmapLen...)
	out = append(out, bitmapBytes...)

	for _, v := range s.vectors {
		out = append(out, encpkg.EncodeVector(v)...)
	}
	return out, nil
}

// Unmarshal reconstructs a fresh Storage (with no WAL attached) from a
// payload produced by Marshal.
func Unmarshal(payload []byte) (*Storage, error) {
	if len(payload) < 12 {
		return nil, ErrCorruptedSnapshot
	}
	dim := int(encpkg.Uint32(payload[0:4]))
	count := int(encpkg.Uint32(payload[4:8]))
	bitmapLen := int(encpkg.Uint32(payload[8:12]))

	pos := 12
	if pos+bitmapLen > len(payload) {
		return nil, ErrCorruptedSnapshot
	}
	deleted := roaring.New()
	if bitmapLen > 0 {
		if _, err := deleted.FromBytes(payload[pos : pos+bitmapLen]); err != nil {
			return nil, ErrCorruptedSnapshot
		}
	}
	pos += bitmapLen

	vectors := make([][]float32, 0, count)
	for i := 0; i < count; i++ {
		end := pos + dim*4
		if end > len(payload) {
			return nil, ErrCorruptedSnapshot
		}
		vec, err := encpkg.DecodeVector(payload[pos:end])
		if err != nil {
			return nil, ErrCorruptedSnapshot
		}
		vectors = append(vectors, vec)
		pos = end
	}

	return &Storage{
		dim:     dim,
		vectors: vectors,
		deleted: deleted,
	}, nil
}
