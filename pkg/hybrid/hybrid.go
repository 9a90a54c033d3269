// Package hybrid implements dense/sparse score fusion: Reciprocal Rank
// Fusion (RRF) and linear min-max-normalized combination, both returning
// top-k descending with ties broken by lower id first.
//
// Grounded on original_source/src/hybrid/mod.rs's doc-comment worked
// example (dense=[(1,0.95),(2,0.80),(3,0.75)], sparse=[(2,5.5),(4,4.2),
// (1,3.8)], rrf_fusion(k=60, top=10)) and fusion.rs's formula comments;
// neither file's Rust body survived distillation beyond doc comments, so
// the scoring logic here is hand-derived from the RRF/linear-fusion
// definitions. The regression test uses a similar three-id scenario with
// its own scores (dense=[(1,0.9),(2,0.8),(3,0.7)], sparse=[(2,5),(4,4),
// (1,3)]), not the mod.rs lists above. The map-then-sort shape follows sqvect's pkg/core/
// advanced_filter.go evaluator's "build a map of contributions, then rank"
// idiom.
package hybrid

import "sort"

// DefaultRRFK is the standard RRF smoothing constant.
const DefaultRRFK = 60

// DefaultAlpha is the default linear-fusion weight on the dense side.
const DefaultAlpha = 0.5

// Hit is one (id, score) entry in an input ranked list. For RRF, Score is
// unused; only rank position matters. For linear fusion, Score is the
// dense distance or the sparse relevance score, normalized internally.
type Hit struct {
	ID    uint64
	Score float32
}

// Fused is one fused output entry, ranked descending by Score.
type Fused struct {
	ID    uint64
	Score float32
}

// RRF fuses dense and sparse ranked lists by reciprocal rank: score(d) =
// sum_i 1/(rrfK + rank_i(d)), with ranks 1-based and missing membership in
// a list contributing zero. rrfK <= 0 falls back to DefaultRRFK.
func RRF(dense, sparse []Hit, rrfK int, k int) []Fused {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	scores := make(map[uint64]float32)
	accumulateRRF(scores, dense, rrfK)
	accumulateRRF(scores, sparse, rrfK)
	return topK(scores, k)
}

func accumulateRRF(scores map[uint64]float32, list []Hit, rrfK int) {
	for i, h := range list {
		rank := i + 1 // 1-based
		scores[h.ID] += 1.0 / float32(rrfK+rank)
	}
}

// Linear fuses dense and sparse ranked lists by min-max normalizing each
// list's own scores to [0,1] and combining alpha*dense + (1-alpha)*sparse.
// For the dense list, Score is treated as a distance and converted to a
// similarity via 1/(1+distance) before normalization; an empty list
// contributes zero to every id. alpha <= 0 and alpha > 1 both
// fall back to DefaultAlpha (an out-of-range weight is not a valid
// configuration).
func Linear(dense, sparse []Hit, alpha float32, k int) []Fused {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}

	denseSim := make([]Hit, len(dense))
	for i, h := range dense {
		denseSim[i] = Hit{ID: h.ID, Score: 1.0 / (1.0 + h.Score)}
	}

	denseNorm := minMaxNormalize(denseSim)
	sparseNorm := minMaxNormalize(sparse)

	scores := make(map[uint64]float32)
	for id, s := range denseNorm {
		scores[id] += alpha * s
	}
	for id, s := range sparseNorm {
		scores[id] += (1 - alpha) * s
	}
	return topK(scores, k)
}

func minMaxNormalize(list []Hit) map[uint64]float32 {
	out := make(map[uint64]float32, len(list))
	if len(list) == 0 {
		return out
	}
	min, max := list[0].Score, list[0].Score
	for _, h := range list {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	span := max - min
	for _, h := range list {
		if span == 0 {
			out[h.ID] = 1.0 // a single distinct value normalizes to full weight
		} else {
			out[h.ID] = (h.Score - min) / span
		}
	}
	return out
}

func topK(scores map[uint64]float32, k int) []Fused {
	fused := make([]Fused, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, Fused{ID: id, Score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	if k > 0 && k < len(fused) {
		fused = fused[:k]
	}
	return fused
}
