// Package encoding implements the little-endian byte framing shared by the
// vector storage write-ahead log and the binary snapshot format:
// length-prefixed, CRC32-checked records, plus the float-vector codec.
// Grounded on sqvect's internal/encoding/utils.go (EncodeVector/
// DecodeVector little-endian length-prefixed byte codec, ValidateVector
// NaN/Inf rejection), generalized from sqvect's single "vector blob"
// framing to the record/block framing both the WAL and the snapshot format
// need.
package encoding

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
)

var (
	// ErrTruncated is returned when fewer bytes remain than a length prefix
	// declares.
	ErrTruncated = errors.New("encoding: truncated record")
	// ErrChecksumMismatch is returned when a record's CRC32 does not match
	// its payload.
	ErrChecksumMismatch = errors.New("encoding: checksum mismatch")
	// ErrInvalidVector is returned by ValidateVector for NaN/Inf entries.
	ErrInvalidVector = errors.New("encoding: vector contains NaN or Inf")
)

// CRC32 computes the IEEE CRC32 of payload, the checksum used throughout the
// WAL and snapshot formats.
func CRC32(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// EncodeVector little-endian-encodes a float32 vector, one f32 per 4 bytes,
// with no length prefix (the caller's record framing carries the length).
func EncodeVector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

// DecodeVector reverses EncodeVector. b's length must be a multiple of 4.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, ErrTruncated
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// ValidateVector rejects any NaN or Inf component: every stored vector
// must be finite.
func ValidateVector(v []float32) error {
	for _, x := range v {
		if x != x || math.IsInf(float64(x), 0) {
			return ErrInvalidVector
		}
	}
	return nil
}

// PutUint64 / Uint64 are little-endian helpers for VectorId encoding shared
// by WAL records and snapshot blocks.
func PutUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func Uint64(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }
func PutUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func Uint32(b []byte) uint32       { return binary.LittleEndian.Uint32(b) }

// EncodeRecord frames a WAL record: u32 length_le | u8 type | u32
// crc32_le(payload) | payload. length counts only the bytes following the
// length field itself (type + crc32 + payload).
func EncodeRecord(recType byte, payload []byte) []byte {
	body := make([]byte, 1+4+len(payload))
	body[0] = recType
	PutUint32(body[1:5], CRC32(payload))
	copy(body[5:], payload)

	out := make([]byte, 4+len(body))
	PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

// DecodeRecord reads one framed record starting at the beginning of b,
// returning the record type, payload, and the number of bytes consumed. It
// fails with ErrTruncated if b is shorter than the declared length and
// ErrChecksumMismatch if the payload's CRC32 does not match.
func DecodeRecord(b []byte) (recType byte, payload []byte, consumed int, err error) {
	if len(b) < 4 {
		return 0, nil, 0, ErrTruncated
	}
	length := Uint32(b[0:4])
	total := 4 + int(length)
	if length < 5 || total > len(b) {
		return 0, nil, 0, ErrTruncated
	}
	recType = b[4]
	wantCRC := Uint32(b[5:9])
	payload = b[9:total]
	if CRC32(payload) != wantCRC {
		return 0, nil, 0, ErrChecksumMismatch
	}
	return recType, payload, total, nil
}

// EncodeBlock frames a snapshot block: u32 len | u32 crc32(payload) |
// payload.
func EncodeBlock(payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	PutUint32(out[0:4], uint32(len(payload)))
	PutUint32(out[4:8], CRC32(payload))
	copy(out[8:], payload)
	return out
}

// DecodeBlock reverses EncodeBlock, verifying the checksum.
func DecodeBlock(b []byte) (payload []byte, consumed int, err error) {
	if len(b) < 8 {
		return nil, 0, ErrTruncated
	}
	length := Uint32(b[0:4])
	total := 8 + int(length)
	if total > len(b) {
		return nil, 0, ErrTruncated
	}
	wantCRC := Uint32(b[4:8])
	payload = b[8:total]
	if CRC32(payload) != wantCRC {
		return nil, 0, ErrChecksumMismatch
	}
	return payload, total, nil
}
