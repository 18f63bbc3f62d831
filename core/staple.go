package core

import (
	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// StaplesPerLink is the number of staples attached to one link in four
// dimensions (forward and backward for each of the three other directions).
const StaplesPerLink = 2 * (lattice.Dims - 1)

// Staples returns the sum of the six staples attached to the link (x, mu).
// Each staple is the open path which, multiplied from the left by U_μ(x),
// closes an elementary plaquette:
//
//	forward:  U_ν(x+μ̂)   · U_μ(x+ν̂)† · U_ν(x)†
//	backward: U_ν(x+μ̂-ν̂)† · U_μ(x-ν̂)† · U_ν(x-ν̂)
func Staples(links *lattice.Field, x lattice.Coord, mu int) model.Matrix {
	var sum model.Matrix
	xMu := x.Shift(mu, 1)
	for nu := 0; nu < lattice.Dims; nu++ {
		if nu == mu {
			continue
		}

		forward := links.At(xMu, nu).
			Mul(links.At(x.Shift(nu, 1), mu).Adjoint()).
			Mul(links.At(x, nu).Adjoint())

		xNu := x.Shift(nu, -1)
		backward := links.At(xNu.Shift(mu, 1), nu).Adjoint().
			Mul(links.At(xNu, mu).Adjoint()).
			Mul(links.At(xNu, nu))

		sum = sum.Add(forward).Add(backward)
	}
	return sum
}

// Force returns dπ_μ(x)/dt = i·(β/6)·[A − A†] with A = U_μ(x)·Staples.
// The result is Hermitian, and traceless whenever the links are in SU(2).
func Force(links *lattice.Field, x lattice.Coord, mu int, beta float64) model.Matrix {
	a := links.At(x, mu).Mul(Staples(links, x, mu))
	return a.Sub(a.Adjoint()).Scale(complex(0, beta/StaplesPerLink))
}
