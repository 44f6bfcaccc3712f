package identity

import "math"

// maxDistance is returned for input that cannot be compared, so it can
// never win a nearest-neighbor comparison at any sane threshold.
const maxDistance = 2.0

// CosineDistance returns 1 minus the cosine similarity of a and b:
// 0 for positively collinear vectors, up to 2 for opposite ones.
// Mismatched lengths and zero-norm vectors score maxDistance.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return maxDistance
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return maxDistance
	}

	// rounding can push the ratio a hair outside [-1, 1]
	similarity := math.Max(-1, math.Min(1, dot/(na*nb)))
	return 1 - similarity
}

// norm returns the Euclidean norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
