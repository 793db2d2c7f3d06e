package distance

import (
	"math"
	"math/rand"
	"testing"
)

const tolerance = 1e-5

func closeEnough(a, b float32) bool {
	return math.Abs(float64(a)-float64(b)) < tolerance
}

func TestParse(t *testing.T) {
	for _, name := range []string{"euclidean", "cosine", "normalized-cosine"} {
		metric, err := Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q): %v", name, err)
		}
		if metric.String() != name {
			t.Errorf("Parse(%q).String() = %q", name, metric.String())
		}
	}
	if _, err := Parse("manhattan"); err == nil {
		t.Fatal("expected an error for an unknown metric name")
	}
	if Metric(200).IsValid() {
		t.Fatal("tag 200 must not be valid")
	}
}

func TestEuclidean(t *testing.T) {
	fn, err := Get(Euclidean)
	if err != nil {
		t.Fatal(err)
	}

	// (3-1)^2 + (4-2)^2 = 8 -> sqrt(8)
	got := fn([]float32{1, 2}, []float32{3, 4})
	want := float32(math.Sqrt(8))
	if !closeEnough(got, want) {
		t.Errorf("got %f, want %f", got, want)
	}

	if d := fn([]float32{1, 0}, []float32{1, 0}); d != 0 {
		t.Errorf("identical vectors: got %f, want 0", d)
	}
}

func TestCosine(t *testing.T) {
	fn, err := Get(Cosine)
	if err != nil {
		t.Fatal(err)
	}

	if d := fn([]float32{1, 2, 3}, []float32{2, 4, 6}); !closeEnough(d, 0) {
		t.Errorf("parallel vectors: got %f, want 0", d)
	}
	if d := fn([]float32{1, 0}, []float32{0, 1}); !closeEnough(d, 1) {
		t.Errorf("orthogonal vectors: got %f, want 1", d)
	}
	if d := fn([]float32{1, 0}, []float32{-1, 0}); !closeEnough(d, 2) {
		t.Errorf("opposite vectors: got %f, want 2", d)
	}

	// Zero-norm input is defined to be distance 1.
	if d := fn([]float32{0, 0}, []float32{1, 2}); d != 1 {
		t.Errorf("zero norm: got %f, want 1", d)
	}
}

func TestNormalizedCosine(t *testing.T) {
	fn, err := Get(NormalizedCosine)
	if err != nil {
		t.Fatal(err)
	}

	if d := fn([]float32{1, 0}, []float32{1, 0}); d != 0 {
		t.Errorf("unit parallel: got %f, want 0", d)
	}
	if d := fn([]float32{1, 0}, []float32{0, 1}); d != 1 {
		t.Errorf("unit orthogonal: got %f, want 1", d)
	}
}

// TestPathsAgree cross-checks the active (possibly accelerated)
// implementations against the scalar references on random data.
func TestPathsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	refs := map[Metric]Func{
		Euclidean:        euclideanGo,
		Cosine:           cosineGo,
		NormalizedCosine: normalizedCosineGo,
	}

	for _, dim := range []int{1, 7, 8, 64, 1024, 1537} {
		a := make([]float32, dim)
		b := make([]float32, dim)
		for i := 0; i < dim; i++ {
			a[i] = rng.Float32()*2 - 1
			b[i] = rng.Float32()*2 - 1
		}
		Normalize(a)
		Normalize(b)

		for metric, ref := range refs {
			active, err := Get(metric)
			if err != nil {
				t.Fatal(err)
			}
			got, want := active(a, b), ref(a, b)
			if !closeEnough(got, want) {
				t.Errorf("%s dim %d: active %f, scalar %f", metric, dim, got, want)
			}
		}
	}
}

func TestLessRanksNaNLast(t *testing.T) {
	nan := float32(math.NaN())

	if Less(nan, 1) {
		t.Fatal("NaN must not rank below a finite value")
	}
	if !Less(1, nan) {
		t.Fatal("a finite value must rank below NaN")
	}
	if Less(nan, nan) {
		t.Fatal("NaN must not rank below NaN")
	}
	if !Less(1, 2) || Less(2, 1) {
		t.Fatal("finite ordering is broken")
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if !closeEnough(v[0], 0.6) || !closeEnough(v[1], 0.8) {
		t.Fatalf("got %v", v)
	}

	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector changed: %v", zero)
	}
}
