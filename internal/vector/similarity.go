package vector

import "math"

// InnerProduct scores two stored embeddings. Embeddings are unit length, so
// the score is their cosine similarity. Mismatched or empty vectors score 0.
func InnerProduct(a, b []float32) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	b = b[:n]
	var s0, s1, s2, s3 float64
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += float64(a[i]) * float64(b[i])
		s1 += float64(a[i+1]) * float64(b[i+1])
		s2 += float64(a[i+2]) * float64(b[i+2])
		s3 += float64(a[i+3]) * float64(b[i+3])
	}
	for ; i < n; i++ {
		s0 += float64(a[i]) * float64(b[i])
	}
	return (s0 + s1) + (s2 + s3)
}

// L2Norm is the Euclidean length of x.
func L2Norm(x []float32) float64 {
	return math.Sqrt(InnerProduct(x, x))
}
