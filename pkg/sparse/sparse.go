// Package sparse implements the sparse index and BM25 searcher: an
// ordered mapping SparseId -> SparseVector over (index, value) pairs,
// soft-delete via tombstone bitmap, and a BM25 scorer with the standard
// idf/length-normalized-term-frequency formula.
//
// Grounded on sqvect's pkg/core/advanced_filter.go for the tombstone
// and ordered-map storage idiom (map + RoaringBitmap, as already adopted
// for pkg/storage's deleted set), generalized to this package's
// term-indexed sparse vector model; no BM25 implementation exists in
// sqvect, so the scoring formula itself is hand-derived from the textbook
// definition.
package sparse

import (
	"errors"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// SparseId identifies one sparse vector, independent of the dense VectorId
// space.
type SparseId uint64

var (
	// ErrUnsortedIndices is returned when a SparseVector's indices are not
	// strictly ascending.
	ErrUnsortedIndices = errors.New("sparse: indices must be strictly ascending")
	// ErrIndexOutOfRange is returned when an index is >= dim.
	ErrIndexOutOfRange = errors.New("sparse: index out of range")
	// ErrZeroValue is returned when a value is exactly zero (sparse
	// vectors must omit zero entries).
	ErrZeroValue = errors.New("sparse: zero value not allowed in sparse entry")
	// ErrNotFound is returned by Get/SoftDelete for an unknown SparseId.
	ErrNotFound = errors.New("sparse: id not found")
)

// Entry is one (index, value) pair in a sparse vector.
type Entry struct {
	Index uint32
	Value float32
}

// Vector is a sparse vector: strictly ascending indices, all < dim, no
// exact-zero values.
type Vector struct {
	Entries []Entry
}

// Validate checks the invariants every sparse vector must hold: strictly
// ascending indices, all < dim, nnz <= dim.
func (v Vector) Validate(dim int) error {
	prev := int64(-1)
	for _, e := range v.Entries {
		if int64(e.Index) <= prev {
			return ErrUnsortedIndices
		}
		prev = int64(e.Index)
		if int(e.Index) >= dim {
			return ErrIndexOutOfRange
		}
		if e.Value == 0 {
			return ErrZeroValue
		}
	}
	return nil
}

// Index is the ordered sparse store plus BM25 scoring parameters.
type Index struct {
	dim     int
	k1      float32
	b       float32
	vectors map[SparseId]Vector
	order   []SparseId // insertion order, for deterministic iteration
	deleted *roaring.Bitmap

	df       map[uint32]int // document frequency per term index
	totalLen float64        // sum of document lengths (sum of |value| per entry), for avgdl
}

// DefaultK1 and DefaultB are the standard BM25 default parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// New creates an empty sparse index for vectors of dimension dim
// (term-index universe size), with default BM25 parameters.
func New(dim int) *Index {
	return &Index{
		dim:     dim,
		k1:      DefaultK1,
		b:       DefaultB,
		vectors: make(map[SparseId]Vector),
		deleted: roaring.New(),
		df:      make(map[uint32]int),
	}
}

// WithBM25Params overrides k1 (clamped to [1.2, 2.0]) and b (clamped to
// [0.0, 1.0]).
func (idx *Index) WithBM25Params(k1, b float32) *Index {
	if k1 < 1.2 {
		k1 = 1.2
	} else if k1 > 2.0 {
		k1 = 2.0
	}
	if b < 0 {
		b = 0
	} else if b > 1.0 {
		b = 1.0
	}
	idx.k1 = k1
	idx.b = b
	return idx
}

// Insert validates and stores vec under id, updating document frequencies
// for BM25.
func (idx *Index) Insert(id SparseId, vec Vector) error {
	if err := vec.Validate(idx.dim); err != nil {
		return err
	}
	if _, exists := idx.vectors[id]; !exists {
		idx.order = append(idx.order, id)
	}
	idx.vectors[id] = vec

	docLen := 0.0
	for _, e := range vec.Entries {
		idx.df[e.Index]++
		docLen += math.Abs(float64(e.Value))
	}
	idx.totalLen += docLen
	return nil
}

// Get returns the stored vector for id.
func (idx *Index) Get(id SparseId) (Vector, error) {
	v, ok := idx.vectors[id]
	if !ok {
		return Vector{}, ErrNotFound
	}
	return v, nil
}

// SoftDelete tombstones id; it remains in the store but is excluded from
// Search results.
func (idx *Index) SoftDelete(id SparseId) error {
	if _, ok := idx.vectors[id]; !ok {
		return ErrNotFound
	}
	idx.deleted.Add(uint32(id))
	return nil
}

// liveCount returns the number of non-tombstoned documents, N in the BM25
// formula.
func (idx *Index) liveCount() int {
	return len(idx.vectors) - int(idx.deleted.GetCardinality())
}

func (idx *Index) avgdl() float64 {
	n := idx.liveCount()
	if n == 0 {
		return 0
	}
	return idx.totalLen / float64(n)
}

// Result is one ranked BM25 search hit.
type Result struct {
	ID    SparseId
	Score float32
}

// Search scores query against every live document with BM25 and returns
// the top-k by descending score, ties broken by lower id first. For each
// query term i, idf(i) = ln(1 + (N - df(i) + 0.5)/(df(i) + 0.5)); the
// term's contribution is idf(i) * (tf*(k1+1)) / (tf + k1*(1 - b + b*docLen/avgdl)).
func (idx *Index) Search(query Vector, k int) []Result {
	n := idx.liveCount()
	avgdl := idx.avgdl()

	scores := make(map[SparseId]float32)
	for _, qe := range query.Entries {
		df := idx.df[qe.Index]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))

		for _, id := range idx.order {
			if idx.deleted.Contains(uint32(id)) {
				continue
			}
			doc := idx.vectors[id]
			tf, docLen := termFreqAndLen(doc, qe.Index)
			if tf == 0 {
				continue
			}
			denom := tf + float64(idx.k1)*(1-float64(idx.b)+float64(idx.b)*docLen/maxFloat(avgdl, 1e-9))
			contribution := idf * (tf * (float64(idx.k1) + 1)) / denom
			scores[id] += float32(contribution)
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

func termFreqAndLen(doc Vector, index uint32) (tf float64, docLen float64) {
	for _, e := range doc.Entries {
		docLen += math.Abs(float64(e.Value))
		if e.Index == index {
			tf = math.Abs(float64(e.Value))
		}
	}
	return tf, docLen
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
