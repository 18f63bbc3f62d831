package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// Leapfrog advances (links, momenta) with the velocity-Verlet scheme
//
//	π½ = π + Δt/2·F(U)
//	U' = exp(iΔt·π½)·U
//	π' = π½ + Δt/2·F(U')
//
// Each line is one pool phase. The scheme is reversible: running n steps
// with -Δt from (U', π') returns to (U, π) up to rounding.
type Leapfrog struct {
	pool     *Pool
	timeStep float64
	beta     float64
}

// NewLeapfrog returns an integrator with the step size and coupling of params.
func NewLeapfrog(pool *Pool, params model.MDParams) *Leapfrog {
	return &Leapfrog{pool: pool, timeStep: params.TimeStep, beta: params.Beta}
}

// TimeStep is Δt.
func (l *Leapfrog) TimeStep() float64 { return l.timeStep }

// Reversed returns an integrator with Δt negated.
func (l *Leapfrog) Reversed() *Leapfrog {
	out := *l
	out.timeStep = -l.timeStep
	return &out
}

// Step performs one leapfrog step in place. half is scratch storage with the
// same extents; on return it holds π½.
func (l *Leapfrog) Step(ctx context.Context, links, momenta, half *lattice.Field) error {
	dt := l.timeStep
	slices := links.LengthTime()

	err := l.pool.Slices(ctx, slices, func(n1 int) error {
		links.ForSlice(n1, func(i int, x lattice.Coord, mu int) {
			half.SetFlat(i, momenta.Flat(i).Add(Force(links, x, mu, l.beta).ScaleReal(dt/2)))
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("half-kick: %w", err)
	}

	err = l.pool.Slices(ctx, slices, func(n1 int) error {
		links.ForSlice(n1, func(i int, _ lattice.Coord, _ int) {
			links.SetFlat(i, ExpI(half.Flat(i).ScaleReal(dt)).Mul(links.Flat(i)))
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("drift: %w", err)
	}

	err = l.pool.Slices(ctx, slices, func(n1 int) error {
		links.ForSlice(n1, func(i int, x lattice.Coord, mu int) {
			momenta.SetFlat(i, half.Flat(i).Add(Force(links, x, mu, l.beta).ScaleReal(dt/2)))
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("half-kick: %w", err)
	}
	return nil
}

// Run performs steps leapfrog steps.
func (l *Leapfrog) Run(ctx context.Context, links, momenta, half *lattice.Field, steps int) error {
	for s := 0; s < steps; s++ {
		if err := l.Step(ctx, links, momenta, half); err != nil {
			return fmt.Errorf("md step %d: %w", s, err)
		}
	}
	return nil
}
