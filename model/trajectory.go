package model

import "time"

// MDParams holds the molecular-dynamics parameters of a trajectory.
type MDParams struct {
	TimeStep float64 // Δt
	Steps    int     // leapfrog steps per trajectory
	Beta     float64 // gauge coupling
}

// Outcome is the Metropolis decision for a trajectory.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeAccepted
)

func (o Outcome) String() string {
	if o == OutcomeAccepted {
		return "accepted"
	}
	return "rejected"
}

// TrajectoryRecord is the reportable result of one Metropolis-gated
// trajectory as seen by the chain driver.
type TrajectoryRecord struct {
	// Trial counts every trajectory attempted so far, starting at 1.
	Trial int
	// Computed counts accepted trajectories so far (after this one).
	Computed int
	// Stored is the snapshot index written for this trajectory, or -1.
	Stored int

	Outcome         Outcome
	EnergyBefore    float64
	EnergyAfter     float64
	DeltaE          float64
	BoltzmannFactor float64 // exp(-ΔE)
	Uniform         float64 // the draw compared against exp(-ΔE); 0 when ΔE <= 0
	Plaquette       float64 // average Re tr P after the trajectory (pre-restore)
	Volume          int
	AcceptanceRate  float64

	Duration time.Duration
}

// Accepted reports whether the trajectory was accepted.
func (r TrajectoryRecord) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}

// EnergyPerVolume is the post-trajectory energy normalised by lattice volume.
func (r TrajectoryRecord) EnergyPerVolume() float64 {
	if r.Volume == 0 {
		return r.EnergyAfter
	}
	return r.EnergyAfter / float64(r.Volume)
}

// SeriesIndex is the row index used by the per-outcome observable series:
// the number of accepted trajectories before this one.
func (r TrajectoryRecord) SeriesIndex() int {
	if r.Accepted() {
		return r.Computed - 1
	}
	return r.Computed
}
