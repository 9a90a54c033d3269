// Package metadata implements the typed metadata value model of spec
// §4.1: a mapping VectorId -> (key -> TypedValue), where TypedValue is a
// small sum type (String, Integer, Float, Boolean, Null, Array<TypedValue>).
// Grounded on sqvect's pkg/core/advanced_filter.go (MetadataFilter's
// fluent field/operator/value model and compareValues/toFloat64 coercion
// rules), generalized from sqvect's single untyped interface{} values
// to an explicit closed sum type so pkg/filter's evaluator can pattern
// match exhaustively rather than type-switch on arbitrary Go values.
package metadata

import "github.com/matte1782/edgevec-sub002/pkg/storage"

// Kind discriminates which variant a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindNull
	KindArray
)

// Value is the closed sum type every metadata field value belongs to.
type Value struct {
	kind  Kind
	str   string
	i64   int64
	f64   float64
	boo   bool
	array []Value
}

// Kind reports the variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Integer(i int64) Value  { return Value{kind: KindInteger, i64: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f64: f} }
func Boolean(b bool) Value   { return Value{kind: KindBoolean, boo: b} }
func Null() Value            { return Value{kind: KindNull} }
func Array(vs []Value) Value { return Value{kind: KindArray, array: vs} }

// AsString, AsInteger, AsFloat, AsBoolean, AsArray return the underlying
// value along with whether the Value actually holds that variant.
func (v Value) AsString() (string, bool)   { return v.str, v.kind == KindString }
func (v Value) AsInteger() (int64, bool)   { return v.i64, v.kind == KindInteger }
func (v Value) AsFloat() (float64, bool)   { return v.f64, v.kind == KindFloat }
func (v Value) AsBoolean() (bool, bool)    { return v.boo, v.kind == KindBoolean }
func (v Value) AsArray() ([]Value, bool)   { return v.array, v.kind == KindArray }
func (v Value) IsNull() bool               { return v.kind == KindNull }

// AsNumeric returns v's numeric value as a float64 for Integer or Float
// variants, the only two kinds filter comparisons treat as numeric.
func (v Value) AsNumeric() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i64), true
	case KindFloat:
		return v.f64, true
	default:
		return 0, false
	}
}

// Record is one vector's metadata map; absent keys are equivalent to a map
// with no entry for that key.
type Record map[string]Value

// Store is the per-vector metadata mapping, VectorId -> Record.
type Store struct {
	records map[storage.VectorId]Record
}

// New creates an empty metadata store.
func New() *Store {
	return &Store{records: make(map[storage.VectorId]Record)}
}

// Set replaces id's metadata record. A nil or empty record is equivalent
// to id having no metadata.
func (s *Store) Set(id storage.VectorId, record Record) {
	if len(record) == 0 {
		delete(s.records, id)
		return
	}
	s.records[id] = record
}

// Get returns id's metadata record, or an empty Record (not nil) if absent:
// a vector with no metadata is equivalent to one with an empty map.
func (s *Store) Get(id storage.VectorId) Record {
	if r, ok := s.records[id]; ok {
		return r
	}
	return Record{}
}

// Delete removes id's metadata entirely, used alongside a vector's soft
// delete.
func (s *Store) Delete(id storage.VectorId) {
	delete(s.records, id)
}
