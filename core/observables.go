package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// PlaquettePairs is the number of ordered (μ, ν) pairs summed per site,
// diagonal pairs included.
const PlaquettePairs = lattice.Dims * lattice.Dims

// kineticImagTolerance bounds |Σ Im tr(π²)| relative to the real part.
const kineticImagTolerance = 1e-9

var (
	// ErrNonHermitianMomenta indicates Σ tr(π²) has a non-negligible
	// imaginary part.
	ErrNonHermitianMomenta = errors.New("momenta are not Hermitian")
	// ErrNonFiniteObservable indicates a NaN or infinite plaquette or energy.
	ErrNonFiniteObservable = errors.New("observable is not finite")
)

// Plaquette returns P_μν(x) = U_μ(x)·U_ν(x+μ̂)·U_μ(x+ν̂)†·U_ν(x)†.
func Plaquette(links *lattice.Field, x lattice.Coord, mu, nu int) model.Matrix {
	return links.At(x, mu).
		Mul(links.At(x.Shift(mu, 1), nu)).
		Mul(links.At(x.Shift(nu, 1), mu).Adjoint()).
		Mul(links.At(x, nu).Adjoint())
}

// Energy splits the Hamiltonian into its parts.
type Energy struct {
	// PlaquetteSum is Σ_x Σ_{μ,ν} Re tr P_μν(x).
	PlaquetteSum float64
	// Gauge is (β/6)·(16·V − PlaquetteSum).
	Gauge float64
	// Kinetic is ½ Σ Re tr(π²).
	Kinetic float64
	// KineticImag is ½ Σ Im tr(π²); expected to vanish.
	KineticImag float64
}

// Total is the Hamiltonian.
func (e Energy) Total() float64 {
	return e.Gauge + e.Kinetic
}

// Observables evaluates plaquette and energy sums over a field using a
// pool. Partial sums are formed per time slice and combined in slice order,
// so results do not depend on the number of workers.
type Observables struct {
	pool *Pool
	beta float64
}

// NewObservables returns an engine for coupling beta.
func NewObservables(pool *Pool, beta float64) *Observables {
	return &Observables{pool: pool, beta: beta}
}

// PlaquetteTraceSum returns Σ_x Σ_{μ,ν} Re tr P_μν(x). Diagonal terms
// contribute 2 each.
func (o *Observables) PlaquetteTraceSum(ctx context.Context, links *lattice.Field) (float64, error) {
	partial := make([]float64, links.LengthTime())
	err := o.pool.Slices(ctx, links.LengthTime(), func(n1 int) error {
		sum := 0.0
		links.ForSlice(n1, func(_ int, x lattice.Coord, mu int) {
			for nu := 0; nu < lattice.Dims; nu++ {
				sum += real(Plaquette(links, x, mu, nu).Trace())
			}
		})
		partial[n1] = sum
		return nil
	})
	if err != nil {
		return 0, err
	}
	total := floats.Sum(partial)
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: plaquette trace sum %v", ErrNonFiniteObservable, total)
	}
	return total, nil
}

// AveragePlaquette is PlaquetteTraceSum / (V·16). The identity
// configuration gives 2.
func (o *Observables) AveragePlaquette(ctx context.Context, links *lattice.Field) (float64, error) {
	sum, err := o.PlaquetteTraceSum(ctx, links)
	if err != nil {
		return 0, err
	}
	return sum / float64(links.Volume()*PlaquettePairs), nil
}

// Kinetic returns ½ Σ tr(π²) split into real and imaginary parts.
func (o *Observables) Kinetic(ctx context.Context, momenta *lattice.Field) (float64, float64, error) {
	n := momenta.LengthTime()
	re := make([]float64, n)
	im := make([]float64, n)
	err := o.pool.Slices(ctx, n, func(n1 int) error {
		var sr, si float64
		momenta.ForSlice(n1, func(i int, _ lattice.Coord, _ int) {
			p := momenta.Flat(i)
			tr := p.Mul(p).Trace()
			sr += real(tr)
			si += imag(tr)
		})
		re[n1], im[n1] = sr, si
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return 0.5 * floats.Sum(re), 0.5 * floats.Sum(im), nil
}

// Energy returns the Hamiltonian of (links, momenta). The gauge part
// carries the same β/6 weight as Force, which makes the total the quantity
// conserved by the molecular-dynamics flow; at β = 6 it reduces to
// 16·V − Σ Re tr P + ½ Σ tr(π²).
func (o *Observables) Energy(ctx context.Context, links, momenta *lattice.Field) (Energy, error) {
	plaq, err := o.PlaquetteTraceSum(ctx, links)
	if err != nil {
		return Energy{}, err
	}
	kin, kinImag, err := o.Kinetic(ctx, momenta)
	if err != nil {
		return Energy{}, err
	}
	e := Energy{
		PlaquetteSum: plaq,
		Gauge:        o.beta / StaplesPerLink * (float64(links.Volume()*PlaquettePairs) - plaq),
		Kinetic:      kin,
		KineticImag:  kinImag,
	}
	if math.IsNaN(kin) || math.IsInf(kin, 0) {
		return e, fmt.Errorf("%w: kinetic energy %v", ErrNonFiniteObservable, kin)
	}
	if math.Abs(kinImag) > kineticImagTolerance*math.Max(1, math.Abs(kin)) {
		return e, fmt.Errorf("%w: Im ½Σtr(π²) = %g (Re = %g)", ErrNonHermitianMomenta, kinImag, kin)
	}
	return e, nil
}
