package edgevec

import (
	"errors"

	"github.com/matte1782/edgevec-sub002/pkg/hnsw"
	"github.com/matte1782/edgevec-sub002/pkg/persist"
	"github.com/matte1782/edgevec-sub002/pkg/storage"
)

// translateStorageErr maps pkg/storage's sentinels onto the public error
// taxonomy, following sqvect's per-layer error-translation boundary
// (each package owns its own sentinels; the facade is the only place they
// get mapped onto the public taxonomy).
func translateStorageErr(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrDimensionMismatch):
		return wrapErrorf(op, ErrDimensionMismatch, err)
	case errors.Is(err, storage.ErrNotFound):
		return wrapErrorf(op, ErrNotFound, err)
	case errors.Is(err, storage.ErrInvalidVector):
		return wrapErrorf(op, ErrInvalidInput, err)
	default:
		return wrapErrorf(op, ErrIOError, err)
	}
}

func translateHNSWErr(op string, err error) error {
	switch {
	case errors.Is(err, hnsw.ErrDimensionMismatch):
		return wrapErrorf(op, ErrDimensionMismatch, err)
	case errors.Is(err, hnsw.ErrNotFound):
		return wrapErrorf(op, ErrNotFound, err)
	case errors.Is(err, hnsw.ErrCorruptedGraph):
		return wrapErrorf(op, ErrCorruptedGraph, err)
	case errors.Is(err, hnsw.ErrEmptyIndex):
		return nil
	default:
		return wrapErrorf(op, ErrIOError, err)
	}
}

func translatePersistErr(op string, err error) error {
	switch {
	case errors.Is(err, persist.ErrUnsupportedVersion):
		return wrapErrorf(op, ErrUnsupportedVersion, err)
	case errors.Is(err, persist.ErrCorrupted), errors.Is(err, persist.ErrBadMagic):
		return wrapErrorf(op, ErrCorrupted, err)
	default:
		return wrapErrorf(op, ErrIOError, err)
	}
}
