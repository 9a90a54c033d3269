package metadata

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/matte1782/edgevec-sub002/pkg/storage"
)

// ErrCorruptedSnapshot is returned by Unmarshal when the payload's declared
// lengths do not match its actual contents.
var ErrCorruptedSnapshot = errors.New("metadata: corrupted snapshot payload")

// Marshal encodes the metadata block payload: record count, then per
// record the VectorId and its field map.
func (s *Store) Marshal() []byte {
	var out []byte
	countBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuf, uint32(len(s.records)))
	out = append(out, countBuf...)

	for id, rec := range s.records {
		idBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(idBuf, uint64(id))
		out = append(out, idBuf...)

		fieldCountBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(fieldCountBuf, uint32(len(rec)))
		out = append(out, fieldCountBuf...)

		for key, v := range rec {
			out = appendString(out, key)
			out = appendValue(out, v)
		}
	}
	return out
}

// Unmarshal reconstructs a Store from a payload produced by Marshal.
func Unmarshal(payload []byte) (*Store, error) {
	if len(payload) < 4 {
		return nil, ErrCorruptedSnapshot
	}
	pos := 0
	count := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
	pos += 4

	records := make(map[storage.VectorId]Record, count)
	for i := 0; i < count; i++ {
		if pos+12 > len(payload) {
			return nil, ErrCorruptedSnapshot
		}
		id := storage.VectorId(binary.LittleEndian.Uint64(payload[pos : pos+8]))
		fieldCount := int(binary.LittleEndian.Uint32(payload[pos+8 : pos+12]))
		pos += 12

		rec := make(Record, fieldCount)
		for f := 0; f < fieldCount; f++ {
			key, newPos, err := readString(payload, pos)
			if err != nil {
				return nil, err
			}
			pos = newPos
			v, newPos, err := readValue(payload, pos)
			if err != nil {
				return nil, err
			}
			pos = newPos
			rec[key] = v
		}
		records[id] = rec
	}
	return &Store{records: records}, nil
}

func appendString(out []byte, s string) []byte {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
	out = append(out, lenBuf...)
	out = append(out, s...)
	return out
}

func readString(payload []byte, pos int) (string, int, error) {
	if pos+4 > len(payload) {
		return "", 0, ErrCorruptedSnapshot
	}
	n := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
	pos += 4
	if pos+n > len(payload) {
		return "", 0, ErrCorruptedSnapshot
	}
	s := string(payload[pos : pos+n])
	pos += n
	return s, pos, nil
}

func appendValue(out []byte, v Value) []byte {
	out = append(out, byte(v.kind))
	switch v.kind {
	case KindString:
		out = appendString(out, v.str)
	case KindInteger:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v.i64))
		out = append(out, buf...)
	case KindFloat:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.f64))
		out = append(out, buf...)
	case KindBoolean:
		if v.boo {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case KindNull:
		// no payload
	case KindArray:
		countBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(countBuf, uint32(len(v.array)))
		out = append(out, countBuf...)
		for _, elem := range v.array {
			out = appendValue(out, elem)
		}
	}
	return out
}

func readValue(payload []byte, pos int) (Value, int, error) {
	if pos+1 > len(payload) {
		return Value{}, 0, ErrCorruptedSnapshot
	}
	kind := Kind(payload[pos])
	pos++

	switch kind {
	case KindString:
		s, newPos, err := readString(payload, pos)
		if err != nil {
			return Value{}, 0, err
		}
		return String(s), newPos, nil
	case KindInteger:
		if pos+8 > len(payload) {
			return Value{}, 0, ErrCorruptedSnapshot
		}
		i := int64(binary.LittleEndian.Uint64(payload[pos : pos+8]))
		return Integer(i), pos + 8, nil
	case KindFloat:
		if pos+8 > len(payload) {
			return Value{}, 0, ErrCorruptedSnapshot
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(payload[pos : pos+8]))
		return Float(f), pos + 8, nil
	case KindBoolean:
		if pos+1 > len(payload) {
			return Value{}, 0, ErrCorruptedSnapshot
		}
		return Boolean(payload[pos] != 0), pos + 1, nil
	case KindNull:
		return Null(), pos, nil
	case KindArray:
		if pos+4 > len(payload) {
			return Value{}, 0, ErrCorruptedSnapshot
		}
		n := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
		pos += 4
		elems := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			v, newPos, err := readValue(payload, pos)
			if err != nil {
				return Value{}, 0, err
			}
			pos = newPos
			elems = append(elems, v)
		}
		return Array(elems), pos, nil
	default:
		return Value{}, 0, ErrCorruptedSnapshot
	}
}
