package core

import (
	"math"
	"math/cmplx"

	"github.com/signalsfoundry/su2-hmc/model"
)

// Generators is the number of su(2) basis elements.
const Generators = 3

// basis holds the Pauli matrices σ1, σ2, σ3. It is never written after
// package initialisation.
var basis = [Generators]model.Matrix{
	{0, 1, 1, 0},
	{0, -1i, 1i, 0},
	{1, 0, 0, -1},
}

// Pauli returns generator a (0, 1 or 2) of the su(2) basis.
func Pauli(a int) model.Matrix {
	return basis[a]
}

// Basis returns a copy of the three su(2) generators.
func Basis() [Generators]model.Matrix {
	return basis
}

// Coefficients decomposes the traceless Hermitian part of h onto the Pauli
// basis, so that h ≈ Σ c[a]·σa + tr(h)/2·I.
func Coefficients(h model.Matrix) [Generators]float64 {
	return [Generators]float64{
		real(h[1]+h[2]) / 2,
		imag(h[2]-h[1]) / 2,
		real(h[0]-h[3]) / 2,
	}
}

// ExpI returns exp(i·h) for any 2×2 complex h.
//
// The traceless part t of h satisfies t² = s·I with s = -det(t), so
// exp(i·t) = cos(√s)·I + i·sin(√s)/√s·t. For Hermitian h this is the
// rotation cos θ·I + i sin θ·(n̂·σ) with θ the operator norm of t. A trace
// contributes the overall phase exp(i·tr(h)/2).
func ExpI(h model.Matrix) model.Matrix {
	half := h.Trace() / 2
	t := model.Matrix{h[0] - half, h[1], h[2], h[3] - half}

	s := t[0]*t[0] + t[1]*t[2]
	c, sinc := cosSinc(s)
	is := 1i * sinc

	out := model.Matrix{c + is*t[0], is * t[1], is * t[2], c + is*t[3]}
	if half != 0 {
		out = out.Scale(cmplx.Exp(1i * half))
	}
	return out
}

// cosSinc returns cos(√s) and sin(√s)/√s. Both are even in √s so the branch
// of the square root does not matter.
func cosSinc(s complex128) (complex128, complex128) {
	if imag(s) == 0 && real(s) >= 0 {
		theta := math.Sqrt(real(s))
		if theta < 1e-4 {
			t2 := theta * theta
			return complex(1-t2/2+t2*t2/24, 0), complex(1-t2/6+t2*t2/120, 0)
		}
		return complex(math.Cos(theta), 0), complex(math.Sin(theta)/theta, 0)
	}
	theta := cmplx.Sqrt(s)
	if cmplx.Abs(theta) < 1e-4 {
		return 1 - s/2 + s*s/24, 1 - s/6 + s*s/120
	}
	return cmplx.Cos(theta), cmplx.Sin(theta) / theta
}
