package metric

import "math/bits"

// Hamming computes the number of differing bits between two equal-length
// byte slices, popcounting the XOR of the inputs. Whole 8-byte words go
// through bits.OnesCount64 and the remaining tail bytes through
// bits.OnesCount8, both of which the Go compiler lowers to a hardware POPCNT
// instruction on amd64/arm64 when available — there is no separate
// "vectorized" loop to dispatch to here, unlike the float kernels.
// pkg/quantize's HammingDistance delegates to this function.
func Hamming(a, b []byte) (uint32, error) {
	if len(a) != len(b) {
		return 0, ErrDimension
	}
	var dist uint32
	n := len(a)
	i := 0
	for ; i+8 <= n; i += 8 {
		var wa, wb uint64
		for j := 0; j < 8; j++ {
			wa |= uint64(a[i+j]) << (8 * j)
			wb |= uint64(b[i+j]) << (8 * j)
		}
		dist += uint32(bits.OnesCount64(wa ^ wb))
	}
	for ; i < n; i++ {
		dist += uint32(bits.OnesCount8(a[i] ^ b[i]))
	}
	return dist, nil
}
