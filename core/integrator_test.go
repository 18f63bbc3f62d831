package core

import (
	"context"
	"math"
	"testing"

	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// mdState is a hot link field plus freshly drawn momenta.
func mdState(t *testing.T, seed uint64) (links, momenta, half *lattice.Field) {
	t.Helper()
	rng := NewRandomContext(seed, 0.5)
	links, err := HotStart(smallLattice, rng)
	if err != nil {
		t.Fatalf("HotStart: %v", err)
	}
	momenta = lattice.NewLike(links)
	RandomizeAlgebra(momenta, rng.WithSigma(1))
	return links, momenta, lattice.NewLike(links)
}

func TestLeapfrogIsReversible(t *testing.T) {
	ctx := context.Background()
	links, momenta, half := mdState(t, 21)
	links0, momenta0 := links.Clone(), momenta.Clone()

	lf := NewLeapfrog(NewPool(2), model.MDParams{TimeStep: 0.01, Steps: 10, Beta: 2})
	if err := lf.Run(ctx, links, momenta, half, 10); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if d, _ := links.MaxDistance(links0); d == 0 {
		t.Fatalf("integration did not move the links")
	}
	if err := lf.Reversed().Run(ctx, links, momenta, half, 10); err != nil {
		t.Fatalf("backward: %v", err)
	}

	if d, _ := links.MaxDistance(links0); d > 1e-10 {
		t.Fatalf("links not restored: max deviation %g", d)
	}
	if d, _ := momenta.MaxDistance(momenta0); d > 1e-10 {
		t.Fatalf("momenta not restored: max deviation %g", d)
	}
}

func TestLeapfrogPreservesGroupAndAlgebra(t *testing.T) {
	links, momenta, half := mdState(t, 4)
	lf := NewLeapfrog(NewPool(3), model.MDParams{TimeStep: 0.05, Steps: 20, Beta: 2})
	if err := lf.Run(context.Background(), links, momenta, half, 20); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep := CheckLinks(links, 1e-10); !rep.OK() {
		t.Fatalf("links left SU(2): %v", rep)
	}
	if rep := CheckMomenta(momenta, 1e-10); !rep.OK() {
		t.Fatalf("momenta left su(2): %v", rep)
	}
}

func energyViolation(t *testing.T, dt float64, steps int) float64 {
	t.Helper()
	ctx := context.Background()
	links, momenta, half := mdState(t, 77)
	params := model.MDParams{TimeStep: dt, Steps: steps, Beta: 2}
	obs := NewObservables(NewPool(1), params.Beta)

	before, err := obs.Energy(ctx, links, momenta)
	if err != nil {
		t.Fatalf("energy before: %v", err)
	}
	if err := NewLeapfrog(NewPool(1), params).Run(ctx, links, momenta, half, steps); err != nil {
		t.Fatalf("Run: %v", err)
	}
	after, err := obs.Energy(ctx, links, momenta)
	if err != nil {
		t.Fatalf("energy after: %v", err)
	}
	return after.Total() - before.Total()
}

func TestEnergyViolationScalesQuadratically(t *testing.T) {
	coarse := energyViolation(t, 0.02, 25)
	fine := energyViolation(t, 0.01, 50)

	if math.Abs(coarse) > 0.5 {
		t.Fatalf("|ΔE| = %g at Δt=0.02, energy not conserved", coarse)
	}
	if math.Abs(fine) < 1e-12 {
		t.Fatalf("ΔE at Δt=0.01 vanished (%g), cannot compare", fine)
	}
	ratio := math.Abs(coarse / fine)
	if ratio < 2.5 || ratio > 6 {
		t.Fatalf("ΔE(Δt)/ΔE(Δt/2) = %g (coarse %g, fine %g), want ≈ 4", ratio, coarse, fine)
	}
}

func TestLeapfrogHonoursCancellation(t *testing.T) {
	links, momenta, half := mdState(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lf := NewLeapfrog(NewPool(2), model.MDParams{TimeStep: 0.01, Steps: 1, Beta: 2})
	if err := lf.Step(ctx, links, momenta, half); err == nil {
		t.Fatalf("Step with cancelled context returned nil error")
	}
}
