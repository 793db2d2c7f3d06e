// Package distance provides the distance metrics used by the vector index:
// Euclidean, Cosine and Normalized-Cosine over float32 vectors.
//
// Each metric has a pure Go reference implementation and an accelerated path
// backed by Gonum's BLAS kernels, which dispatch to SIMD internally. The
// active implementation set is chosen once at init based on runtime CPU
// feature detection; both paths agree within 1e-5 across the test suite.
package distance

import (
	"math"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"

	"github.com/oasysai/oasysdb/pkg/core/oaserr"
)

// Metric identifies a distance function. The numeric value is the tag used
// in the collection wire format and must stay stable.
type Metric uint8

const (
	// Euclidean is the L2 distance sqrt(sum((a-b)^2)). Range [0, inf).
	Euclidean Metric = 0
	// Cosine is 1 - dot(a,b)/(|a|*|b|). Range [0, 2]; 1 when either norm is zero.
	Cosine Metric = 1
	// NormalizedCosine is 1 - dot(a,b). It assumes both vectors are already
	// unit length and does not re-normalize: feeding non-unit vectors
	// produces distances outside [0, 2].
	NormalizedCosine Metric = 2
)

// metricNames maps metrics to their canonical configuration names.
var metricNames = map[Metric]string{
	Euclidean:        "euclidean",
	Cosine:           "cosine",
	NormalizedCosine: "normalized-cosine",
}

func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether the metric tag is one of the supported set.
func (m Metric) IsValid() bool {
	_, ok := metricNames[m]
	return ok
}

// Parse resolves a configuration name to a metric.
func Parse(name string) (Metric, error) {
	for m, n := range metricNames {
		if n == name {
			return m, nil
		}
	}
	return 0, oaserr.New(oaserr.KindInvalidConfig, "distance %q is not supported", name)
}

// Func calculates the distance between two equal-dimension vectors.
// Smaller is closer for every supported metric.
type Func func(a, b []float32) float32

// Get returns the active implementation for the metric.
func Get(metric Metric) (Func, error) {
	fn, ok := funcs[metric]
	if !ok {
		return nil, oaserr.New(oaserr.KindInvalidConfig, "distance tag %d is not supported", metric)
	}
	return fn, nil
}

// funcs is the active function catalog. Defaults are the pure Go reference
// implementations; init swaps in accelerated kernels where the CPU allows.
var funcs = map[Metric]Func{
	Euclidean:        euclideanGo,
	Cosine:           cosineGo,
	NormalizedCosine: normalizedCosineGo,
}

func init() {
	// The dot-product based metrics always benefit from the BLAS kernel.
	funcs[Cosine] = cosineGonum
	funcs[NormalizedCosine] = normalizedCosineGonum

	// The Euclidean Saxpy+Sdot path only pays off with wide SIMD.
	if cpuid.CPU.Has(cpuid.AVX2) {
		funcs[Euclidean] = euclideanGonum
	}
}

// --- Pure Go reference implementations ---

func euclideanGo(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

func cosineGo(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	mag := float32(math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
	return 1 - dot/mag
}

func normalizedCosineGo(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// --- Gonum BLAS implementations ---

var gonumEngine = gonum.Implementation{}

// diffWorkspace recycles scratch slices for the Euclidean difference vector
// so the hot path allocates nothing.
var diffWorkspace = sync.Pool{
	New: func() any {
		s := make([]float32, 1536)
		return &s
	},
}

func euclideanGonum(a, b []float32) float32 {
	n := len(a)

	diffPtr := diffWorkspace.Get().(*[]float32)
	defer diffWorkspace.Put(diffPtr)
	if cap(*diffPtr) < n {
		*diffPtr = make([]float32, n)
	}
	diff := (*diffPtr)[:n]

	copy(diff, a)
	gonumEngine.Saxpy(n, -1, b, 1, diff, 1)
	sum := gonumEngine.Sdot(n, diff, 1, diff, 1)
	return float32(math.Sqrt(float64(sum)))
}

func cosineGonum(a, b []float32) float32 {
	na := gonumEngine.Snrm2(len(a), a, 1)
	nb := gonumEngine.Snrm2(len(b), b, 1)
	if na == 0 || nb == 0 {
		return 1
	}
	dot := gonumEngine.Sdot(len(a), a, 1, b, 1)
	return 1 - dot/(na*nb)
}

func normalizedCosineGonum(a, b []float32) float32 {
	return 1 - gonumEngine.Sdot(len(a), a, 1, b, 1)
}

// --- Ordering ---

// Less orders distances with NaN above every finite value, so a NaN distance
// can never win a ranking.
func Less(a, b float32) bool {
	if math.IsNaN(float64(a)) {
		return false
	}
	if math.IsNaN(float64(b)) {
		return true
	}
	return a < b
}

// Normalize scales v to unit length in place. A zero vector is left as is.
func Normalize(v []float32) {
	var normSq float32
	for _, f := range v {
		normSq += f * f
	}
	if normSq > 0 {
		inv := 1 / float32(math.Sqrt(float64(normSq)))
		for i := range v {
			v[i] *= inv
		}
	}
}
