package core

import (
	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// SampleAlgebra draws Σ c_a·σa with independent c_a ~ N(0, r.Sigma()).
// The result is traceless and Hermitian.
func SampleAlgebra(r *RandomContext) model.Matrix {
	var m model.Matrix
	for a := 0; a < Generators; a++ {
		m = m.Add(basis[a].ScaleReal(r.Gaussian()))
	}
	return m
}

// SampleGroup returns exp(i·SampleAlgebra(r)), an SU(2) element.
func SampleGroup(r *RandomContext) model.Matrix {
	return ExpI(SampleAlgebra(r))
}

// RandomizeAlgebra fills every site and direction with an independent
// algebra draw. Draws are taken in flat field order.
func RandomizeAlgebra(f *lattice.Field, r *RandomContext) {
	for i := 0; i < f.Size(); i++ {
		f.SetFlat(i, SampleAlgebra(r))
	}
}

// RandomizeGroup fills every site and direction with an independent SU(2)
// draw. Draws are taken in flat field order.
func RandomizeGroup(f *lattice.Field, r *RandomContext) {
	for i := 0; i < f.Size(); i++ {
		f.SetFlat(i, SampleGroup(r))
	}
}

// HotStart builds a link field of random SU(2) matrices.
func HotStart(ext lattice.Extents, r *RandomContext) (*lattice.Field, error) {
	links, err := lattice.New(ext)
	if err != nil {
		return nil, err
	}
	RandomizeGroup(links, r)
	return links, nil
}

// ColdStart builds a link field with every link set to the identity.
func ColdStart(ext lattice.Extents) (*lattice.Field, error) {
	links, err := lattice.New(ext)
	if err != nil {
		return nil, err
	}
	links.Fill(model.Identity())
	return links, nil
}

// GlobalGaugeTransform applies U → g·U·g† to every link. Plaquette traces
// are unchanged for unitary g.
func GlobalGaugeTransform(g model.Matrix, links *lattice.Field) {
	gd := g.Adjoint()
	for i := 0; i < links.Size(); i++ {
		links.SetFlat(i, g.Mul(links.Flat(i)).Mul(gd))
	}
}
