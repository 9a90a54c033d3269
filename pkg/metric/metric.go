// Package metric implements the engine's distance kernels: squared
// Euclidean (L2²) and dot product, each with a scalar implementation and a
// runtime-dispatched vectorized path, and Hamming, a single word-at-a-time
// popcount kernel with no separate vectorized path.
package metric

import (
	"errors"
	"math"
	"runtime"

	"github.com/viterin/vek/vek32"
	"golang.org/x/sys/cpu"
)

// Kind selects which distance function a Metric call computes.
type Kind int

const (
	L2Squared Kind = iota
	Dot
)

func (k Kind) String() string {
	if k == Dot {
		return "dot"
	}
	return "l2sq"
}

var (
	// ErrDimension is returned when a and b have different lengths.
	ErrDimension = errors.New("metric: dimension mismatch")
	// ErrInvalid is returned when a NaN or Inf is found in the inputs or
	// would be produced in the accumulator.
	ErrInvalid = errors.New("metric: NaN or Inf in input")
)

// simdFloatThreshold below which the vectorized path is not worth taking,
// mirroring original_source/src/metric/{l2,dot}.rs: 16 lanes on WASM
// SIMD128 (which processes 16 float32 per iteration), 256 on AVX2/NEON
// where per-call dispatch overhead dominates for short vectors.
func simdFloatThreshold() int {
	if runtime.GOARCH == "wasm" {
		return 16
	}
	return 256
}

// hasVectorFloat reports whether the current platform advertises a SIMD
// float path worth dispatching to. vek32 itself always has a correct
// fallback; this only decides whether skipping straight to the scalar loop
// below simdFloatThreshold is worthwhile, and is surfaced by Dispatch() for
// observability.
func hasVectorFloat() bool {
	switch runtime.GOARCH {
	case "wasm":
		return true // SIMD128 feature is assumed present; callers target it explicitly.
	case "amd64":
		return cpu.X86.HasAVX2
	case "arm64":
		return cpu.ARM64.HasASIMD
	default:
		return false
	}
}

// Dispatch reports which float kernel path a call of length n would take on
// this platform, for logging/diagnostics only.
func Dispatch(n int) string {
	if hasVectorFloat() && n >= simdFloatThreshold() {
		return "simd"
	}
	return "scalar"
}

func checkFinite32(v []float32) bool {
	for _, x := range v {
		if x != x || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

// Distance computes the configured float metric between a and b.
//
// Preconditions: len(a) == len(b), else ErrDimension. Any NaN/Inf in either
// input fails with ErrInvalid (checked cheaply before dispatch, since a
// post-hoc check on the accumulator alone cannot distinguish "NaN input" from
// "NaN produced downstream" once vek32 has already consumed the slices).
func Distance(k Kind, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimension
	}
	if !checkFinite32(a) || !checkFinite32(b) {
		return 0, ErrInvalid
	}

	useSIMD := hasVectorFloat() && len(a) >= simdFloatThreshold()

	var result float32
	switch k {
	case Dot:
		if useSIMD {
			result = vek32.Dot(a, b)
		} else {
			result = dotScalar(a, b)
		}
	case L2Squared:
		if useSIMD {
			// vek32.Distance is the Euclidean distance (with sqrt).
			d := vek32.Distance(a, b)
			result = d * d
		} else {
			result = l2SquaredScalar(a, b)
		}
	default:
		return 0, errors.New("metric: unknown kind")
	}

	if result != result || math.IsInf(float64(result), 0) {
		return 0, ErrInvalid
	}
	return result, nil
}

func dotScalar(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func l2SquaredScalar(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// Tolerance returns the acceptable absolute difference between a SIMD and a
// scalar computation of the same inputs: max(1e-4, 1e-4*max(|a|,|b|)),
// accounting for fused-multiply-add reordering.
func Tolerance(a, b float32) float32 {
	absA, absB := a, b
	if absA < 0 {
		absA = -absA
	}
	if absB < 0 {
		absB = -absB
	}
	maxAbs := absA
	if absB > maxAbs {
		maxAbs = absB
	}
	tol := float32(1e-4) * maxAbs
	if tol < 1e-4 {
		return 1e-4
	}
	return tol
}
