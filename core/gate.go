package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/su2-hmc/internal/logging"
	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

const tracerName = "github.com/signalsfoundry/su2-hmc/core"

// ErrGateTerminated is returned by Trajectory once Finish has been called or
// an invariant violation stopped the gate.
var ErrGateTerminated = errors.New("metropolis gate terminated")

// State is the position of the gate in its trajectory cycle.
type State int

const (
	StateIdle State = iota
	StateProposing
	StateDeciding
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProposing:
		return "proposing"
	case StateDeciding:
		return "deciding"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Accept is the Metropolis rule: accept when ΔE ≤ 0 or exp(−ΔE) ≥ u.
func Accept(deltaE, u float64) bool {
	return deltaE <= 0 || math.Exp(-deltaE) >= u
}

// Result describes one gated trajectory.
type Result struct {
	Energy      Energy // before the trajectory
	EnergyAfter Energy
	DeltaE      float64
	// Uniform is the draw compared with exp(−ΔE); it is only drawn when
	// ΔE > 0 and is zero otherwise.
	Uniform  float64
	Accepted bool
	// Plaquette is the average plaquette of the evolved links, measured
	// before a rejection restores the previous configuration.
	Plaquette float64
}

// EnergyBefore is the Hamiltonian at the start of the trajectory.
func (r Result) EnergyBefore() float64 { return r.Energy.Total() }

// BoltzmannFactor is exp(−ΔE).
func (r Result) BoltzmannFactor() float64 { return math.Exp(-r.DeltaE) }

// Gate runs HMC trajectories on a link field it owns and decides each one
// with a Metropolis test. The momenta, the leapfrog scratch field and the
// pre-trajectory snapshot are allocated once and reused.
//
// A Gate is not safe for concurrent use.
type Gate struct {
	links   *lattice.Field
	momenta *lattice.Field
	half    *lattice.Field
	saved   *lattice.Field

	integrator *Leapfrog
	obs        *Observables
	rng        *RandomContext
	steps      int

	uniform         func() float64
	checkInvariants bool
	tolerance       float64

	log    logging.Logger
	tracer trace.Tracer

	state State
}

// GateOption customises a Gate.
type GateOption func(*Gate)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// WithUniformSource replaces the accept/reject draw. The momentum refresh
// still uses the gate's RandomContext.
func WithUniformSource(fn func() float64) GateOption {
	return func(g *Gate) {
		g.uniform = fn
	}
}

// WithInvariantChecks turns the post-trajectory SU(2)/su(2) checks on or off
// and sets their tolerance. Builds tagged hmc_nochecks never run them.
func WithInvariantChecks(enabled bool, tol float64) GateOption {
	return func(g *Gate) {
		g.checkInvariants = enabled
		if tol > 0 {
			g.tolerance = tol
		}
	}
}

// WithTracer sets the tracer used for trajectory spans.
func WithTracer(t trace.Tracer) GateOption {
	return func(g *Gate) {
		if t != nil {
			g.tracer = t
		}
	}
}

// NewGate takes ownership of links. rng supplies the momentum refresh (its
// width is the momentum standard deviation) and, unless replaced, the
// uniform accept/reject draws.
func NewGate(links *lattice.Field, pool *Pool, params model.MDParams, rng *RandomContext, opts ...GateOption) (*Gate, error) {
	if links == nil {
		return nil, fmt.Errorf("links is nil")
	}
	if rng == nil {
		return nil, fmt.Errorf("random context is nil")
	}
	if params.Steps < 1 {
		return nil, fmt.Errorf("md steps must be positive, got %d", params.Steps)
	}
	g := &Gate{
		links:           links,
		momenta:         lattice.NewLike(links),
		half:            lattice.NewLike(links),
		saved:           lattice.NewLike(links),
		integrator:      NewLeapfrog(pool, params),
		obs:             NewObservables(pool, params.Beta),
		rng:             rng,
		steps:           params.Steps,
		uniform:         rng.Uniform,
		checkInvariants: true,
		tolerance:       DefaultInvariantTolerance,
		log:             logging.Noop(),
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Links is the current link configuration. It must not be modified while a
// trajectory is running.
func (g *Gate) Links() *lattice.Field { return g.links }

// Momenta are the momenta at the end of the last trajectory.
func (g *Gate) Momenta() *lattice.Field { return g.momenta }

// Observables exposes the engine used for the energy bookkeeping.
func (g *Gate) Observables() *Observables { return g.obs }

// State reports where the gate is in its cycle.
func (g *Gate) State() State { return g.state }

// Finish moves the gate to its terminal state.
func (g *Gate) Finish() { g.state = StateTerminal }

// Trajectory runs one full HMC update: snapshot the links, refresh the
// momenta, integrate, and accept or reject. On rejection, and on any error,
// the links are restored from the snapshot before returning.
func (g *Gate) Trajectory(ctx context.Context) (res Result, err error) {
	if g.state == StateTerminal {
		return Result{}, ErrGateTerminated
	}

	ctx, span := g.tracer.Start(ctx, "hmc.trajectory")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Float64("hmc.delta_e", res.DeltaE),
				attribute.Bool("hmc.accepted", res.Accepted),
				attribute.Float64("hmc.plaquette", res.Plaquette),
			)
		}
		span.End()
	}()

	g.state = StateProposing
	if err := g.saved.CopyFrom(g.links); err != nil {
		g.state = StateIdle
		return Result{}, err
	}
	RandomizeAlgebra(g.momenta, g.rng)

	res.Energy, err = g.obs.Energy(ctx, g.links, g.momenta)
	if err != nil {
		return Result{}, g.abort(fmt.Errorf("energy before: %w", err))
	}

	g.state = StateDeciding
	if err := g.integrator.Run(ctx, g.links, g.momenta, g.half, g.steps); err != nil {
		return Result{}, g.abort(err)
	}
	if invariantChecks && g.checkInvariants {
		if err := CheckLinks(g.links, g.tolerance).Err(); err != nil {
			return Result{}, g.abort(err)
		}
		if err := CheckMomenta(g.momenta, g.tolerance).Err(); err != nil {
			return Result{}, g.abort(err)
		}
	}

	res.EnergyAfter, err = g.obs.Energy(ctx, g.links, g.momenta)
	if err != nil {
		return Result{}, g.abort(fmt.Errorf("energy after: %w", err))
	}
	res.DeltaE = res.EnergyAfter.Total() - res.Energy.Total()
	g.log.Debug(ctx, "momentum energy",
		logging.Float("re", res.EnergyAfter.Kinetic),
		logging.Float("im", res.EnergyAfter.KineticImag),
	)

	res.Plaquette, err = g.obs.AveragePlaquette(ctx, g.links)
	if err != nil {
		return Result{}, g.abort(err)
	}

	if res.DeltaE > 0 {
		res.Uniform = g.uniform()
	}
	res.Accepted = Accept(res.DeltaE, res.Uniform)
	if !res.Accepted {
		if err := g.links.CopyFrom(g.saved); err != nil {
			return Result{}, g.abort(err)
		}
	}
	g.state = StateIdle

	g.log.Debug(ctx, "trajectory decided",
		logging.Float("energy_before", res.Energy.Total()),
		logging.Float("energy_after", res.EnergyAfter.Total()),
		logging.Float("delta_e", res.DeltaE),
		logging.Bool("accepted", res.Accepted),
	)
	return res, nil
}

// abort restores the snapshot and settles the state after a failure.
// Invariant violations are fatal; anything else leaves the gate usable.
func (g *Gate) abort(err error) error {
	if cerr := g.links.CopyFrom(g.saved); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if errors.Is(err, ErrInvariantViolation) || errors.Is(err, ErrNonHermitianMomenta) {
		g.state = StateTerminal
	} else {
		g.state = StateIdle
	}
	return err
}
