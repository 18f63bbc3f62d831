package core

import (
	"testing"

	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

var smallLattice = lattice.Extents{LengthTime: 2, LengthSpace: 2}

func hotLinks(t *testing.T, ext lattice.Extents, seed uint64, sigma float64) *lattice.Field {
	t.Helper()
	links, err := HotStart(ext, NewRandomContext(seed, sigma))
	if err != nil {
		t.Fatalf("HotStart: %v", err)
	}
	return links
}

func TestColdStartStaplesAndForce(t *testing.T) {
	links, err := ColdStart(smallLattice)
	if err != nil {
		t.Fatalf("ColdStart: %v", err)
	}
	want := model.Identity().ScaleReal(StaplesPerLink)
	for i := 0; i < links.Size(); i++ {
		x, mu := links.Coord(i)
		if s := Staples(links, x, mu); !s.IsEqual(want, 0) {
			t.Fatalf("staples at %v mu=%d = %v, want 6·I", x, mu, s)
		}
		if f := Force(links, x, mu, 2.3); !f.IsZero(0) {
			t.Fatalf("force at %v mu=%d = %v, want 0", x, mu, f)
		}
	}
}

func TestForceIsTracelessHermitian(t *testing.T) {
	links := hotLinks(t, lattice.Extents{LengthTime: 3, LengthSpace: 2}, 9, 1)
	for i := 0; i < links.Size(); i++ {
		x, mu := links.Coord(i)
		f := Force(links, x, mu, 2)
		if !f.IsHermitian(1e-15) {
			t.Fatalf("force at %v mu=%d not Hermitian: %v", x, mu, f)
		}
		if d := AlgebraDeviation(f); d > 1e-12 {
			t.Fatalf("force at %v mu=%d deviates from su(2) by %g", x, mu, d)
		}
	}
}

func TestStaplesCloseThePlaquettes(t *testing.T) {
	links := hotLinks(t, smallLattice, 13, 1)
	x := lattice.Coord{1, 0, 1, 0}
	mu := 2

	// tr(U·forward staple) summed over ν is the sum of the plaquette traces
	// in the (μ, ν) planes with x at the corner.
	var forward complex128
	for nu := 0; nu < lattice.Dims; nu++ {
		if nu == mu {
			continue
		}
		forward += Plaquette(links, x, mu, nu).Trace()
	}

	var staples model.Matrix
	xMu := x.Shift(mu, 1)
	for nu := 0; nu < lattice.Dims; nu++ {
		if nu == mu {
			continue
		}
		staples = staples.Add(links.At(xMu, nu).
			Mul(links.At(x.Shift(nu, 1), mu).Adjoint()).
			Mul(links.At(x, nu).Adjoint()))
	}
	got := links.At(x, mu).Mul(staples).Trace()
	if d := got - forward; real(d)*real(d)+imag(d)*imag(d) > 1e-24 {
		t.Fatalf("forward staples trace %v, plaquettes %v", got, forward)
	}

	// The full staple sum also carries the three backward plaquettes, so
	// its real trace is the sum over all six planes touching the link.
	var all float64
	for nu := 0; nu < lattice.Dims; nu++ {
		if nu == mu {
			continue
		}
		all += real(Plaquette(links, x, mu, nu).Trace())
		all += real(Plaquette(links, x.Shift(nu, -1), mu, nu).Trace())
	}
	full := real(links.At(x, mu).Mul(Staples(links, x, mu)).Trace())
	if d := full - all; d > 1e-12 || d < -1e-12 {
		t.Fatalf("Re tr(U·staples) = %v, want %v", full, all)
	}
}
