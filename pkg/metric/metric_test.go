package metric

import (
	"math"
	"math/rand"
	"testing"
)

func TestDistanceDimensionMismatch(t *testing.T) {
	_, err := Distance(L2Squared, []float32{1, 2}, []float32{1})
	if err != ErrDimension {
		t.Fatalf("expected ErrDimension, got %v", err)
	}
}

func TestDistanceRejectsNaN(t *testing.T) {
	a := []float32{1, float32(math.NaN()), 3}
	b := []float32{1, 2, 3}
	if _, err := Distance(L2Squared, a, b); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for NaN, got %v", err)
	}
	if _, err := Distance(Dot, a, b); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for NaN, got %v", err)
	}
}

func TestDistanceRejectsInf(t *testing.T) {
	a := []float32{1, float32(math.Inf(1)), 3}
	b := []float32{1, 2, 3}
	if _, err := Distance(L2Squared, a, b); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for Inf, got %v", err)
	}
}

func TestL2SquaredExact(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	got, err := Distance(L2Squared, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2.0 {
		t.Errorf("expected 2.0, got %v", got)
	}
}

func TestDotExact(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	got, err := Distance(Dot, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got != 32.0 {
		t.Errorf("expected 32.0, got %v", got)
	}
}

// TestScalarAgreesWithDispatch checks the SIMD≡scalar property: across
// dims {128, 384, 768, 1536}, the dispatched path (which may use vek32)
// must agree with the pure scalar loop within tolerance.
func TestScalarAgreesWithDispatch(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dims := []int{128, 384, 768, 1536}

	for _, dim := range dims {
		for trial := 0; trial < 50; trial++ {
			a := randVec(rng, dim)
			b := randVec(rng, dim)

			gotL2, err := Distance(L2Squared, a, b)
			if err != nil {
				t.Fatal(err)
			}
			wantL2 := l2SquaredScalar(a, b)
			if diff := absf(gotL2 - wantL2); diff > Tolerance(gotL2, wantL2) {
				t.Errorf("dim=%d L2Squared mismatch: got %v want %v diff %v", dim, gotL2, wantL2, diff)
			}

			gotDot, err := Distance(Dot, a, b)
			if err != nil {
				t.Fatal(err)
			}
			wantDot := dotScalar(a, b)
			if diff := absf(gotDot - wantDot); diff > Tolerance(gotDot, wantDot) {
				t.Errorf("dim=%d Dot mismatch: got %v want %v diff %v", dim, gotDot, wantDot, diff)
			}
		}
	}
}

func TestHammingSymmetryAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := randBytes(rng, 96)
	b := randBytes(rng, 96)

	d1, err := Hamming(a, b)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Hamming(b, a)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Errorf("Hamming not symmetric: %d != %d", d1, d2)
	}

	if d0, _ := Hamming(a, a); d0 != 0 {
		t.Errorf("Hamming(a,a) = %d, want 0", d0)
	}

	maxDist := uint32(8 * len(a))
	if d1 > maxDist {
		t.Errorf("Hamming(a,b) = %d exceeds max %d", d1, maxDist)
	}
}

func TestHammingDimensionMismatch(t *testing.T) {
	if _, err := Hamming([]byte{1, 2}, []byte{1}); err != ErrDimension {
		t.Fatalf("expected ErrDimension, got %v", err)
	}
}

func randVec(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func randBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
