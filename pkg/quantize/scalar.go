package quantize

import (
	"errors"
)

var (
	// ErrNotTrained is returned by Encode/Decode before Train has run.
	ErrNotTrained = errors.New("quantize: scalar quantizer not trained")
	// ErrNoTrainingData is returned by Train with an empty vector set.
	ErrNoTrainingData = errors.New("quantize: no training vectors provided")
)

// ScalarQuantizer maps each float32 dimension to a single byte (u8),
// linearly scaled between a trained per-dimension min and max. Supplements
// the sign-bit BinaryQuantizer with a higher-fidelity 8-bit encoding for
// callers willing to trade the 32x compression of BQ for finer-grained
// coarse ranking; grounded on sqvect's ScalarQuantizer (Train/min-max,
// Encode/Decode bit-packing), fixed here to exactly 8 bits per component to
// match original_source/src/metric/scalar.rs's u8 accumulator contract.
type ScalarQuantizer struct {
	dim     int
	min     []float32
	max     []float32
	trained bool
}

// NewScalar creates an untrained ScalarQuantizer for the given dimension.
func NewScalar(dim int) *ScalarQuantizer {
	return &ScalarQuantizer{dim: dim, min: make([]float32, dim), max: make([]float32, dim)}
}

// Train learns the per-dimension [min, max] range from sample vectors.
func (sq *ScalarQuantizer) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return ErrNoTrainingData
	}
	for d := 0; d < sq.dim; d++ {
		sq.min[d] = vectors[0][d]
		sq.max[d] = vectors[0][d]
	}
	for _, vec := range vectors {
		if len(vec) != sq.dim {
			return ErrDimensionMismatch
		}
		for d := 0; d < sq.dim; d++ {
			if vec[d] < sq.min[d] {
				sq.min[d] = vec[d]
			}
			if vec[d] > sq.max[d] {
				sq.max[d] = vec[d]
			}
		}
	}
	for d := 0; d < sq.dim; d++ {
		if sq.max[d] == sq.min[d] {
			sq.max[d] += 1e-6
		}
	}
	sq.trained = true
	return nil
}

// Encode quantizes vector to one byte per dimension.
func (sq *ScalarQuantizer) Encode(vector []float32) ([]byte, error) {
	if !sq.trained {
		return nil, ErrNotTrained
	}
	if len(vector) != sq.dim {
		return nil, ErrDimensionMismatch
	}
	out := make([]byte, sq.dim)
	for d, x := range vector {
		normalized := (x - sq.min[d]) / (sq.max[d] - sq.min[d])
		if normalized < 0 {
			normalized = 0
		} else if normalized > 1 {
			normalized = 1
		}
		out[d] = byte(normalized*255.0 + 0.5)
	}
	return out, nil
}

// Decode reconstructs an approximate vector from quantized bytes.
func (sq *ScalarQuantizer) Decode(encoded []byte) ([]float32, error) {
	if !sq.trained {
		return nil, ErrNotTrained
	}
	if len(encoded) != sq.dim {
		return nil, ErrByteLengthMismatch
	}
	out := make([]float32, sq.dim)
	for d, b := range encoded {
		normalized := float32(b) / 255.0
		out[d] = normalized*(sq.max[d]-sq.min[d]) + sq.min[d]
	}
	return out, nil
}

// DotU8 computes the dot product of two u8-quantized vectors with a u32
// accumulator. Per original_source/src/metric/scalar.rs, a u32 accumulator
// is overflow-safe up to roughly 66k dimensions at the maximum per-term
// value of 255*255, far beyond any embedding dimension this engine targets.
func DotU8(a, b []byte) (uint32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum uint32
	for i := range a {
		sum += uint32(a[i]) * uint32(b[i])
	}
	return sum, nil
}

// L2SquaredU8 computes the squared distance of two u8-quantized vectors
// with a u32 accumulator, same overflow bound as DotU8.
func L2SquaredU8(a, b []byte) (uint32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum uint32
	for i := range a {
		var diff int32
		if a[i] > b[i] {
			diff = int32(a[i]) - int32(b[i])
		} else {
			diff = int32(b[i]) - int32(a[i])
		}
		sum += uint32(diff * diff)
	}
	return sum, nil
}
