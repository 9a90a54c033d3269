// Package persist implements the engine's binary snapshot format: a
// fixed 32-byte header, three length-and-checksum-framed blocks (storage,
// graph, metadata), and a trailing whole-stream CRC32. Grounded on
// sqvect's pkg/core's SQLite-backed persistence being replaced here with a
// self-contained binary format (this module drops modernc.org/sqlite, see
// the documented justification), using internal/encoding's block framing
// (itself grounded on sqvect's internal/encoding/utils.go) for the
// checksum discipline sqvect applies to its WAL records.
package persist

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/matte1782/edgevec-sub002/internal/encoding"
	"github.com/matte1782/edgevec-sub002/pkg/hnsw"
	"github.com/matte1782/edgevec-sub002/pkg/metadata"
	"github.com/matte1782/edgevec-sub002/pkg/storage"
)

// CurrentVersion is the snapshot format version this package writes.
const CurrentVersion = 1

var magic = [8]byte{'E', 'D', 'G', 'E', 'V', 'E', 'C', 0}

const headerSize = 32

var (
	// ErrCorrupted is returned when a block or header checksum does not
	// match its payload.
	ErrCorrupted = errors.New("persist: corrupted snapshot")
	// ErrUnsupportedVersion is returned when the stream's version is newer
	// than CurrentVersion.
	ErrUnsupportedVersion = errors.New("persist: unsupported snapshot version")
	// ErrBadMagic is returned when the stream does not begin with the
	// expected magic bytes.
	ErrBadMagic = errors.New("persist: bad magic header")
)

// flagsNone is the empty header flag set; bit 0 (value 1) marks a
// BQ-enabled snapshot.
const flagsNone = 0

// Snapshot is an in-memory decoded snapshot: the reconstructed storage,
// graph, and metadata store, plus whether the graph was BQ-enabled (BQ
// bitvectors are never persisted; callers rebuild them from float vectors
// after Load iff this is true).
type Snapshot struct {
	Storage   *storage.Storage
	Graph     *hnsw.Graph
	Metadata  *metadata.Store
	BQEnabled bool
}

// Write serializes snap into this package's stream format: header ||
// storage_block || graph_block || metadata_block || trailing_crc32.
func Write(snap *Snapshot) ([]byte, error) {
	storageBlock, err := snap.Storage.Marshal()
	if err != nil {
		return nil, err
	}
	graphBlock := snap.Graph.Marshal()
	metaBlock := snap.Metadata.Marshal()

	var flags uint32 = flagsNone
	if snap.BQEnabled {
		flags |= 1
	}

	header := makeHeader(snap.Storage.Dimensions(), int(snap.Graph.MetricKind()), flags)

	var out []byte
	out = append(out, header...)
	out = append(out, encoding.EncodeBlock(storageBlock)...)
	out = append(out, encoding.EncodeBlock(graphBlock)...)
	out = append(out, encoding.EncodeBlock(metaBlock)...)

	trailing := make([]byte, 4)
	binary.LittleEndian.PutUint32(trailing, crc32.ChecksumIEEE(out))
	out = append(out, trailing...)

	return out, nil
}

// Read parses a stream produced by Write back into a Snapshot.
func Read(data []byte) (*Snapshot, error) {
	if len(data) < headerSize+4 {
		return nil, ErrCorrupted
	}
	if err := verifyHeader(data[:headerSize]); err != nil {
		return nil, err
	}

	body := data[:len(data)-4]
	trailingWant := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != trailingWant {
		return nil, ErrCorrupted
	}

	flags := binary.LittleEndian.Uint32(data[12:16])
	bqEnabled := flags&1 != 0

	pos := headerSize

	storagePayload, consumed, err := encoding.DecodeBlock(data[pos:])
	if err != nil {
		return nil, translateBlockErr(err)
	}
	pos += consumed

	graphPayload, consumed, err := encoding.DecodeBlock(data[pos:])
	if err != nil {
		return nil, translateBlockErr(err)
	}
	pos += consumed

	metaPayload, consumed, err := encoding.DecodeBlock(data[pos:])
	if err != nil {
		return nil, translateBlockErr(err)
	}
	pos += consumed

	st, err := storage.Unmarshal(storagePayload)
	if err != nil {
		return nil, ErrCorrupted
	}
	g, err := hnsw.Unmarshal(graphPayload)
	if err != nil {
		return nil, ErrCorrupted
	}
	md, err := metadata.Unmarshal(metaPayload)
	if err != nil {
		return nil, ErrCorrupted
	}

	return &Snapshot{Storage: st, Graph: g, Metadata: md, BQEnabled: bqEnabled}, nil
}

func translateBlockErr(err error) error {
	if errors.Is(err, encoding.ErrChecksumMismatch) {
		return ErrCorrupted
	}
	return ErrCorrupted
}

func makeHeader(dim int, metricTag int, flags uint32) []byte {
	h := make([]byte, headerSize)
	copy(h[0:8], magic[:])
	binary.LittleEndian.PutUint32(h[8:12], CurrentVersion)
	binary.LittleEndian.PutUint32(h[12:16], flags)
	// h[16:20] is header_crc32, filled in below after the rest is written.
	binary.LittleEndian.PutUint32(h[20:24], uint32(dim))
	binary.LittleEndian.PutUint32(h[24:28], uint32(metricTag))
	binary.LittleEndian.PutUint32(h[28:32], 0) // reserved

	crc := crc32.ChecksumIEEE(append(append([]byte{}, h[0:16]...), h[20:32]...))
	binary.LittleEndian.PutUint32(h[16:20], crc)
	return h
}

func verifyHeader(h []byte) error {
	if string(h[0:8]) != string(magic[:]) {
		return ErrBadMagic
	}
	version := binary.LittleEndian.Uint32(h[8:12])
	wantCRC := binary.LittleEndian.Uint32(h[16:20])
	gotCRC := crc32.ChecksumIEEE(append(append([]byte{}, h[0:16]...), h[20:32]...))
	if gotCRC != wantCRC {
		return ErrCorrupted
	}
	if version > CurrentVersion {
		return ErrUnsupportedVersion
	}
	// Versions below CurrentVersion would be migrated in-process here; there
	// is only one version so far, so no migration path exists yet.
	return nil
}
