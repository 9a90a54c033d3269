// Package storage implements the vector storage layer: an append-only
// flat float arena with monotonically assigned VectorIds, a soft-delete
// bitmap, and an optional write-ahead log for crash recovery.
// Grounded on sqvect's pkg/index/flat.go (flat float storage + brute
// force scan), generalized to this package's append-only/WAL/soft-delete
// contract. The package does no logging of its own.
package storage

import (
	"bufio"
	"errors"
	"os"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	encpkg "github.com/matte1782/edgevec-sub002/internal/encoding"
)

// VectorId is a monotonically assigned, never-reused identifier. Zero means
// "absent."
type VectorId uint64

var (
	// ErrDimensionMismatch is returned when an inserted vector's length does
	// not match the storage's configured dimension.
	ErrDimensionMismatch = errors.New("storage: dimension mismatch")
	// ErrNotFound is returned by Get/MarkDeleted for an unknown or
	// never-assigned VectorId.
	ErrNotFound = errors.New("storage: vector not found")
	// ErrInvalidVector is returned for NaN/Inf components.
	ErrInvalidVector = encpkg.ErrInvalidVector
)

// WAL record types.
const (
	recTypeFloatInsert byte = 1
	recTypeBQInsert    byte = 2
	recTypeDelete      byte = 3
)

// Storage owns the flat float arena, the deleted bitmap, and (optionally) a
// write-ahead log. It assigns VectorIds starting at 1.
type Storage struct {
	mu      sync.Mutex
	dim     int
	vectors [][]float32 // index i holds the vector for VectorId(i+1)
	deleted *roaring.Bitmap

	wal *walWriter
}

// Option configures a new Storage.
type Option func(*Storage)

// WithWAL enables write-ahead logging to path. Every insert and soft-delete
// is appended as a framed record before the in-memory mutation is
// considered durable; on process restart, Replay reconstructs storage state
// from the WAL.
func WithWAL(path string) Option {
	return func(s *Storage) {
		s.wal = &walWriter{path: path}
	}
}

// New creates an empty Storage for vectors of the given dimension.
func New(dim int, opts ...Option) (*Storage, error) {
	if dim <= 0 {
		return nil, errors.New("storage: dimension must be positive")
	}
	s := &Storage{
		dim:     dim,
		deleted: roaring.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.wal != nil {
		if err := s.wal.open(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dimensions returns the configured vector dimension.
func (s *Storage) Dimensions() int { return s.dim }

// Len returns the number of IDs ever assigned (including deleted ones).
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vectors)
}

// DeletedCount returns the number of soft-deleted IDs.
func (s *Storage) DeletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.deleted.GetCardinality())
}

// DeletedBitmap returns a snapshot copy of the soft-deleted id set, for
// callers (filter pre-filter materialization) that want to AndNot it
// against a candidate bitmap in one pass instead of probing IsDeleted
// per id.
func (s *Storage) DeletedBitmap() *roaring.Bitmap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted.Clone()
}

// Insert dimension-checks and appends vec, optionally appending a WAL
// record, and returns the newly assigned VectorId.
func (s *Storage) Insert(vec []float32) (VectorId, error) {
	if len(vec) != s.dim {
		return 0, ErrDimensionMismatch
	}
	if err := encpkg.ValidateVector(vec); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := VectorId(len(s.vectors) + 1)
	if s.wal != nil {
		payload := make([]byte, 8+len(vec)*4)
		encpkg.PutUint64(payload[:8], uint64(id))
		copy(payload[8:], encpkg.EncodeVector(vec))
		if err := s.wal.append(recTypeFloatInsert, payload); err != nil {
			return 0, err
		}
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)
	s.vectors = append(s.vectors, stored)
	return id, nil
}

// Get returns a copy of the vector for id. Fails with ErrNotFound for an
// unassigned or out-of-range id; deleted vectors are still readable (the
// tombstone only hides them from search results).
func (s *Storage) Get(id VectorId) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 || int(id) > len(s.vectors) {
		return nil, ErrNotFound
	}
	v := s.vectors[id-1]
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

// IsDeleted reports whether id has been soft-deleted.
func (s *Storage) IsDeleted(id VectorId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted.Contains(uint32(id))
}

// MarkDeleted tombstones id in the deleted bitmap, optionally appending a
// WAL delete record.
func (s *Storage) MarkDeleted(id VectorId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 || int(id) > len(s.vectors) {
		return ErrNotFound
	}
	if s.wal != nil {
		payload := make([]byte, 8)
		encpkg.PutUint64(payload, uint64(id))
		if err := s.wal.append(recTypeDelete, payload); err != nil {
			return err
		}
	}
	s.deleted.Add(uint32(id))
	return nil
}

// AttachWAL opens path as this Storage's write-ahead log for subsequent
// inserts and deletes, appending to any existing content. Used after
// Replay to resume logging where a crash recovery left off, since Replay
// itself only reconstructs in-memory state and does not reopen the log.
func (s *Storage) AttachWAL(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &walWriter{path: path}
	if err := w.open(); err != nil {
		return err
	}
	s.wal = w
	return nil
}

// Close releases the WAL file handle, if any.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wal != nil {
		return s.wal.close()
	}
	return nil
}

// walWriter owns the append-only WAL file handle, acquired on open and
// released on close.
type walWriter struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func (w *walWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.w = bufio.NewWriter(f)
	return nil
}

func (w *walWriter) append(recType byte, payload []byte) error {
	rec := encpkg.EncodeRecord(recType, payload)
	if _, err := w.w.Write(rec); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *walWriter) close() error {
	if w.w != nil {
		if err := w.w.Flush(); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.f.Close()
}
