package storage

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestInsertAssignsSequentialIds(t *testing.T) {
	s, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 5; i++ {
		id, err := s.Insert([]float32{1, 2, 3, 4})
		if err != nil {
			t.Fatal(err)
		}
		if id != VectorId(i) {
			t.Fatalf("expected id %d, got %d", i, id)
		}
	}
	if s.Len() != 5 {
		t.Fatalf("expected len 5, got %d", s.Len())
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	s, _ := New(4)
	if _, err := s.Insert([]float32{1, 2, 3}); err != ErrDimensionMismatch {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestInsertRejectsNaN(t *testing.T) {
	s, _ := New(2)
	if _, err := s.Insert([]float32{1, float32(math.NaN())}); err == nil {
		t.Fatal("expected error for NaN vector")
	}
}

func TestGetNotFound(t *testing.T) {
	s, _ := New(2)
	if _, err := s.Get(1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	id, _ := s.Insert([]float32{1, 2})
	if _, err := s.Get(id + 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSoftDeleteMarksBitmapNotVector(t *testing.T) {
	s, _ := New(2)
	id, _ := s.Insert([]float32{1, 2})
	if s.IsDeleted(id) {
		t.Fatal("should not be deleted yet")
	}
	if err := s.MarkDeleted(id); err != nil {
		t.Fatal(err)
	}
	if !s.IsDeleted(id) {
		t.Fatal("expected deleted")
	}
	// Vector bytes remain readable after soft delete.
	v, err := s.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 1 || v[1] != 2 {
		t.Fatalf("vector bytes changed after delete: %v", v)
	}
	if s.DeletedCount() != 1 {
		t.Fatalf("expected deleted count 1, got %d", s.DeletedCount())
	}
}

func TestMarkDeletedNotFound(t *testing.T) {
	s, _ := New(2)
	if err := s.MarkDeleted(1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestWALRecoveryScenario inserts 100 vectors with WAL enabled, simulates a
// crash by dropping the index, then replays the WAL into a fresh storage of
// matching dimension; every VectorId and vector must match the originals
// exactly.
func TestWALRecoveryScenario(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "index.wal")

	s, err := New(8, WithWAL(walPath))
	if err != nil {
		t.Fatal(err)
	}

	originals := make(map[VectorId][]float32)
	for i := 0; i < 100; i++ {
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = float32(i*8 + j)
		}
		id, err := s.Insert(vec)
		if err != nil {
			t.Fatal(err)
		}
		originals[id] = vec
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// "crash": drop the index, keep only the WAL file on disk.
	s = nil

	replayed, err := Replay(walPath, 8, false)
	if err != nil {
		t.Fatal(err)
	}
	if replayed.Len() != 100 {
		t.Fatalf("expected 100 replayed vectors, got %d", replayed.Len())
	}
	for id, want := range originals {
		got, err := replayed.Get(id)
		if err != nil {
			t.Fatalf("id %d: %v", id, err)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("id %d: vector mismatch at %d: got %v want %v", id, i, got[i], want[i])
			}
		}
	}
}

func TestWALRecoveryTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "index.wal")

	s, err := New(4, WithWAL(walPath))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Insert([]float32{1, 2, 3, 4}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Truncate the file mid-record to simulate a torn write.
	data, err := os.ReadFile(walPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(walPath, data[:len(data)-3], 0o644); err != nil {
		t.Fatal(err)
	}

	replayed, err := Replay(walPath, 4, true)
	if err != nil {
		t.Fatal(err)
	}
	if replayed.Len() != 2 {
		t.Fatalf("expected 2 recovered records before the torn tail, got %d", replayed.Len())
	}

	if _, err := Replay(walPath, 4, false); err == nil {
		t.Fatal("expected error with tolerateTail=false")
	}
}

func TestWALDeleteReplay(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "index.wal")

	s, err := New(2, WithWAL(walPath))
	if err != nil {
		t.Fatal(err)
	}
	id1, _ := s.Insert([]float32{1, 1})
	_, _ = s.Insert([]float32{2, 2})
	if err := s.MarkDeleted(id1); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	replayed, err := Replay(walPath, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if !replayed.IsDeleted(id1) {
		t.Fatal("expected id1 deleted after replay")
	}
}
