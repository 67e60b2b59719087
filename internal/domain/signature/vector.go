package signature

import "math"

// L2Norm returns the Euclidean norm of v.
func L2Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// L2Normalize scales v in place to unit length. An all-zero v is left as is.
func L2Normalize(v []float64) []float64 {
	norm := L2Norm(v)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

// PadBytes returns a copy of v truncated or zero-padded to exactly n elements.
func PadBytes(v []uint8, n int) []uint8 {
	out := make([]uint8, n)
	copy(out, v)
	return out
}

// PadFloats returns a copy of v truncated or zero-padded to exactly n elements.
func PadFloats(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}

func planar(a, b [2]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return math.Sqrt(dx*dx + dy*dy)
}
