//go:build avo && amd64

package distance

import (
	"math"

	"github.com/klauspost/cpuid/v2"
)

// euclideanAVX2 wraps the generated kernel, applying the square root the
// generic paths also take.
func euclideanAVX2(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return float32(math.Sqrt(float64(SquaredEuclideanAVX2(a, b))))
}

func init() {
	if cpuid.CPU.Has(cpuid.AVX2) && cpuid.CPU.Has(cpuid.FMA3) {
		funcs[Euclidean] = euclideanAVX2
	}
}
