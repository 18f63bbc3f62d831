package core

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/su2-hmc/model"
)

func TestPauliRelations(t *testing.T) {
	for a := 0; a < Generators; a++ {
		s := Pauli(a)
		if !s.Mul(s).IsUnity(1e-15) {
			t.Fatalf("σ%d² = %v, want identity", a+1, s.Mul(s))
		}
		if !s.IsHermitian(0) || s.Trace() != 0 {
			t.Fatalf("σ%d not traceless Hermitian: %v", a+1, s)
		}
	}
	// σ1σ2 = iσ3 and cyclic.
	for a := 0; a < Generators; a++ {
		b, c := (a+1)%Generators, (a+2)%Generators
		got := Pauli(a).Mul(Pauli(b))
		want := Pauli(c).Scale(1i)
		if !got.IsEqual(want, 1e-15) {
			t.Fatalf("σ%dσ%d = %v, want %v", a+1, b+1, got, want)
		}
	}
}

func TestBasisIsCopy(t *testing.T) {
	b := Basis()
	b[0] = model.Identity()
	if Pauli(0).IsUnity(0) {
		t.Fatalf("mutating Basis() result changed the package basis")
	}
}

func TestCoefficientsRecoverCombination(t *testing.T) {
	want := [Generators]float64{0.3, -1.2, 0.75}
	var h model.Matrix
	for a, c := range want {
		h = h.Add(Pauli(a).ScaleReal(c))
	}
	got := Coefficients(h)
	for a := range want {
		if math.Abs(got[a]-want[a]) > 1e-15 {
			t.Fatalf("coefficient %d = %v, want %v", a, got[a], want[a])
		}
	}
}

// expViaGonum computes exp(i·h) through the real 4×4 embedding
// M = A + iB ↦ [[A, −B], [B, A]].
func expViaGonum(h model.Matrix) model.Matrix {
	ih := h.Scale(1i)
	emb := mat.NewDense(4, 4, nil)
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			z := ih.At(r, c)
			emb.Set(r, c, real(z))
			emb.Set(r, c+2, -imag(z))
			emb.Set(r+2, c, imag(z))
			emb.Set(r+2, c+2, real(z))
		}
	}
	var out mat.Dense
	out.Exp(emb)

	var m model.Matrix
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			m[2*r+c] = complex(out.At(r, c), out.At(r+2, c))
		}
	}
	return m
}

func TestExpIMatchesMatrixExponential(t *testing.T) {
	cases := map[string]model.Matrix{
		"hermitian":  Pauli(0).ScaleReal(0.7).Add(Pauli(1).ScaleReal(-0.3)).Add(Pauli(2).ScaleReal(1.1)),
		"large":      Pauli(2).ScaleReal(7.5).Add(Pauli(0).ScaleReal(-2)),
		"with trace": model.NewMatrix(0.4, 0.2-0.1i, 0.2+0.1i, 1.3),
		"general":    model.NewMatrix(0.1+0.2i, -0.5, 0.3i, -0.4+0.05i),
		"zero":       {},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			got := ExpI(h)
			want := expViaGonum(h)
			if !got.IsEqual(want, 1e-10) {
				t.Fatalf("ExpI(%v) = %v, want %v", h, got, want)
			}
		})
	}
}

func TestExpIOfAlgebraIsSpecialUnitary(t *testing.T) {
	rng := NewRandomContext(7, 1.5)
	for i := 0; i < 200; i++ {
		u := ExpI(SampleAlgebra(rng))
		if d := UnitarityDeviation(u); d > 1e-14 {
			t.Fatalf("draw %d: unitarity deviation %g for %v", i, d, u)
		}
	}
}

func TestExpISmallAngle(t *testing.T) {
	h := Pauli(1).ScaleReal(1e-7)
	got := ExpI(h)
	want := model.Identity().Add(h.Scale(1i))
	if !got.IsEqual(want, 1e-14) {
		t.Fatalf("ExpI(small) = %v, want %v", got, want)
	}
	if d := UnitarityDeviation(got); d > 1e-15 {
		t.Fatalf("small-angle exponential not unitary: %g", d)
	}
}
