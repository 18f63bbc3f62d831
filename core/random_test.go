package core

import (
	"math"
	"testing"
)

func TestRandomContextIsReproducible(t *testing.T) {
	a := NewRandomContext(42, 1)
	b := NewRandomContext(42, 1)
	for i := 0; i < 100; i++ {
		if x, y := a.Gaussian(), b.Gaussian(); x != y {
			t.Fatalf("draw %d differs: %v != %v", i, x, y)
		}
	}
	if a.Uniform() != b.Uniform() {
		t.Fatalf("uniform draws differ for the same seed")
	}
}

func TestWithSigmaSharesGenerator(t *testing.T) {
	a := NewRandomContext(3, 1)
	b := NewRandomContext(3, 1)

	wide := a.WithSigma(2)
	if wide.Sigma() != 2 || a.Sigma() != 1 {
		t.Fatalf("sigma not applied: %v %v", wide.Sigma(), a.Sigma())
	}
	x := wide.Gaussian()
	y := b.Gaussian()
	if math.Abs(x-2*y) > 1e-15 {
		t.Fatalf("scaled draw %v, want %v", x, 2*y)
	}
	// a advanced together with wide.
	if a.Gaussian() != b.Gaussian() {
		t.Fatalf("WithSigma did not share the generator")
	}
}

func TestUniformRange(t *testing.T) {
	r := NewRandomContext(11, 1)
	for i := 0; i < 1000; i++ {
		if u := r.Uniform(); u < 0 || u >= 1 {
			t.Fatalf("uniform draw %v out of [0,1)", u)
		}
	}
}

func TestSampleAlgebraIsTracelessHermitian(t *testing.T) {
	r := NewRandomContext(5, 0.8)
	for i := 0; i < 100; i++ {
		p := SampleAlgebra(r)
		if d := AlgebraDeviation(p); d > 1e-15 {
			t.Fatalf("sample %d: algebra deviation %g", i, d)
		}
	}
}
