// Package quantize implements binary quantization and BQ-then-rescore
// search: one sign bit per input dimension (>= 0 -> 1, else 0),
// deterministic and requiring no training, with a Hamming-distance coarse
// traversal of the HNSW graph followed by exact float rescoring.
//
// Grounded on sqvect's pkg/quantization/scalar_quantization.go
// (BinaryQuantizer.Encode/Decode bit-packing, HammingDistance via Brian
// Kernighan's algorithm, SearchBinary's candidate-then-sort shape), adapted
// from sqvect's learned per-dimension mean threshold to a fixed sign-bit
// rule, and from sqvect's O(1)-per-byte Kernighan popcount to
// pkg/metric.Hamming's word-at-a-time popcount. Unlike sqvect's SearchBinary
// (a brute-force scan over every stored bitvector), CoarseSearch reuses
// pkg/hnsw's graph traversal with Hamming as its layer-0 distance function,
// so coarse candidate generation is sub-linear the same way a float search
// is.
package quantize

import (
	"errors"
	"sort"

	"github.com/matte1782/edgevec-sub002/pkg/hnsw"
	"github.com/matte1782/edgevec-sub002/pkg/metric"
	"github.com/matte1782/edgevec-sub002/pkg/storage"
)

var (
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the quantizer's configured dimension.
	ErrDimensionMismatch = errors.New("quantize: dimension mismatch")
	// ErrByteLengthMismatch is returned when a quantized byte slice's
	// length does not match ByteLen() for the quantizer's dimension.
	ErrByteLengthMismatch = errors.New("quantize: byte length mismatch")
)

// BinaryQuantizer encodes float32 vectors into sign-bit bitvectors.
type BinaryQuantizer struct {
	dim int
}

// New creates a BinaryQuantizer for the given input dimension.
func New(dim int) *BinaryQuantizer {
	return &BinaryQuantizer{dim: dim}
}

// ByteLen returns the number of bytes a quantized vector of this
// quantizer's dimension occupies: ceil(dim/8).
func (q *BinaryQuantizer) ByteLen() int {
	return (q.dim + 7) / 8
}

// Encode quantizes vector to a fixed-size bitvector: bit d is 1 iff
// vector[d] >= 0. Deterministic: the same input always yields byte-identical
// output.
func (q *BinaryQuantizer) Encode(vector []float32) ([]byte, error) {
	if len(vector) != q.dim {
		return nil, ErrDimensionMismatch
	}
	out := make([]byte, q.ByteLen())
	for d, x := range vector {
		if x >= 0 {
			out[d/8] |= 1 << uint(d%8)
		}
	}
	return out, nil
}

// HammingDistance delegates to metric.Hamming, the word-at-a-time popcount
// kernel shared with the rest of the engine.
func (q *BinaryQuantizer) HammingDistance(a, b []byte) (uint32, error) {
	return metric.Hamming(a, b)
}

// Candidate is one coarse-search hit prior to rescoring.
type Candidate struct {
	ID      storage.VectorId
	Hamming uint32
}

// bitsTable adapts a plain id->bitvector map to hnsw.BQVectorSource.
type bitsTable map[storage.VectorId][]byte

func (t bitsTable) GetBits(id storage.VectorId) ([]byte, bool) {
	b, ok := t[id]
	return b, ok
}

// CoarseSearch traverses graph using Hamming distance between query and
// each visited node's quantized vector (looked up in database), the same
// bounded best-first traversal a float search runs, just with Hamming in
// place of the configured float metric. It returns up to n candidates,
// closest first (ties broken by lower id).
func CoarseSearch(graph *hnsw.Graph, ctx *hnsw.SearchContext, query []byte, database map[storage.VectorId][]byte, n int) ([]Candidate, error) {
	ids, err := graph.SearchHamming(ctx, bitsTable(database), query, n)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		bits, ok := database[id]
		if !ok {
			continue
		}
		d, err := metric.Hamming(query, bits)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{ID: id, Hamming: d})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Hamming != candidates[j].Hamming {
			return candidates[i].Hamming < candidates[j].Hamming
		}
		return candidates[i].ID < candidates[j].ID
	})
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// VectorSource resolves a VectorId to its float vector, for the rescore
// stage.
type VectorSource interface {
	Get(id storage.VectorId) ([]float32, error)
}

// RescoredResult is one final BQ+rescore search hit.
type RescoredResult struct {
	ID       storage.VectorId
	Distance float32
}

// DefaultRescoreFactor is the multiplier applied to k to size the coarse
// candidate list before rescoring.
const DefaultRescoreFactor = 5

// SearchAndRescore runs the BQ-then-rescore pipeline: a coarse Hamming
// traversal of graph yields rescoreFactor*k candidates, each is rescored
// against its real float vector using the configured metric against the
// real query, and the top-k by that exact score are returned. Rescoring
// always uses the real float vectors, never the quantized bytes, so the
// final ranking matches what an unquantized search would produce for
// whichever candidates the coarse stage admitted.
func SearchAndRescore(graph *hnsw.Graph, ctx *hnsw.SearchContext, vs VectorSource, queryBits []byte, query []float32, database map[storage.VectorId][]byte, k, rescoreFactor int, m metric.Kind) ([]RescoredResult, error) {
	if rescoreFactor <= 0 {
		rescoreFactor = DefaultRescoreFactor
	}
	coarse, err := CoarseSearch(graph, ctx, queryBits, database, k*rescoreFactor)
	if err != nil {
		return nil, err
	}

	results := make([]RescoredResult, 0, len(coarse))
	for _, c := range coarse {
		vec, err := vs.Get(c.ID)
		if err != nil {
			continue
		}
		d, err := metric.Distance(m, query, vec)
		if err != nil {
			return nil, err
		}
		results = append(results, RescoredResult{ID: c.ID, Distance: d})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}
