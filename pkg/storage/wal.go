package storage

import (
	"errors"
	"os"

	encpkg "github.com/matte1782/edgevec-sub002/internal/encoding"
)

// WalRecord is one decoded WAL entry, for WalIterator and Replay.
type WalRecord struct {
	Type byte
	ID   VectorId
	Vec  []float32 // set for type 1 (float insert)
	BQ   []byte    // set for type 2 (binary-quantized insert)
}

// WalIterator streams framed records from a WAL file, stopping at the first
// record whose checksum fails (ErrChecksumMismatch) or whose declared
// length exceeds the remaining bytes (ErrTruncated) — the caller decides
// whether a bad tail is recoverable (truncate and continue) or fatal.
type WalIterator struct {
	data   []byte
	offset int
}

// NewWalIterator opens path and prepares to stream its records.
func NewWalIterator(path string) (*WalIterator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &WalIterator{data: data}, nil
}

// Next decodes the next record, or returns (nil, io.EOF)-equivalent via a
// nil record and nil error when the stream is exhausted cleanly.
func (it *WalIterator) Next() (*WalRecord, error) {
	if it.offset >= len(it.data) {
		return nil, nil
	}
	recType, payload, consumed, err := encpkg.DecodeRecord(it.data[it.offset:])
	if err != nil {
		return nil, err
	}
	it.offset += consumed

	rec := &WalRecord{Type: recType}
	switch recType {
	case recTypeFloatInsert:
		if len(payload) < 8 {
			return nil, errors.New("storage: truncated float-insert payload")
		}
		rec.ID = VectorId(encpkg.Uint64(payload[:8]))
		vec, err := encpkg.DecodeVector(payload[8:])
		if err != nil {
			return nil, err
		}
		rec.Vec = vec
	case recTypeBQInsert:
		if len(payload) < 8 {
			return nil, errors.New("storage: truncated BQ-insert payload")
		}
		rec.ID = VectorId(encpkg.Uint64(payload[:8]))
		rec.BQ = append([]byte(nil), payload[8:]...)
	case recTypeDelete:
		if len(payload) < 8 {
			return nil, errors.New("storage: truncated delete payload")
		}
		rec.ID = VectorId(encpkg.Uint64(payload[:8]))
	default:
		return nil, errors.New("storage: unknown WAL record type")
	}
	return rec, nil
}

// Replay reconstructs a fresh Storage of the given dimension from the WAL at
// path, preserving original VectorId assignment and vector bytes exactly.
// If tolerateTail is true, the first record that fails its checksum or is
// truncated is treated as a recoverable crash tail and replay stops there
// instead of failing; records after it, if any, are not read.
func Replay(path string, dim int, tolerateTail bool) (*Storage, error) {
	s, err := New(dim)
	if err != nil {
		return nil, err
	}

	it, err := NewWalIterator(path)
	if err != nil {
		return nil, err
	}

	for {
		rec, err := it.Next()
		if err != nil {
			if tolerateTail && (errors.Is(err, encpkg.ErrChecksumMismatch) || errors.Is(err, encpkg.ErrTruncated)) {
				break
			}
			return nil, err
		}
		if rec == nil {
			break
		}

		switch rec.Type {
		case recTypeFloatInsert:
			expected := VectorId(len(s.vectors) + 1)
			if rec.ID != expected {
				return nil, errors.New("storage: WAL replay id out of sequence")
			}
			stored := make([]float32, len(rec.Vec))
			copy(stored, rec.Vec)
			s.vectors = append(s.vectors, stored)
		case recTypeDelete:
			s.deleted.Add(uint32(rec.ID))
		case recTypeBQInsert:
			// BQ bitvectors are rebuilt from float vectors on load; replay
			// only needs to account for the record's presence.
		}
	}

	return s, nil
}
