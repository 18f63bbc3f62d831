package observability

import (
	"fmt"
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/su2-hmc/model"
)

// HMCCollector bundles Prometheus metrics for a Markov chain of HMC
// trajectories and exposes them over HTTP.
type HMCCollector struct {
	gatherer prometheus.Gatherer

	Trajectories        *prometheus.CounterVec
	TrajectoryDurations prometheus.Histogram
	AbsDeltaE           prometheus.Histogram

	Plaquette      prometheus.Gauge
	AcceptanceRate prometheus.Gauge
	EnergyPerSite  prometheus.Gauge

	ConfigsStored       prometheus.Counter
	InvariantViolations prometheus.Counter
}

// NewHMCCollector registers HMC Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewHMCCollector(reg prometheus.Registerer) (*HMCCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	trajectories := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hmc_trajectories_total",
		Help: "Total number of HMC trajectories, labeled by Metropolis outcome.",
	}, []string{"outcome"})
	trajectories, err := registerCounterVec(reg, trajectories, "hmc_trajectories_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hmc_trajectory_duration_seconds",
		Help:    "Wall-clock time of one trajectory including the energy bookkeeping.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60},
	}), "hmc_trajectory_duration_seconds")
	if err != nil {
		return nil, err
	}
	absDeltaE, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hmc_abs_delta_e",
		Help:    "Absolute energy violation |ΔE| of each trajectory.",
		Buckets: prometheus.ExponentialBuckets(1e-5, 10, 9),
	}), "hmc_abs_delta_e")
	if err != nil {
		return nil, err
	}

	plaquette, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hmc_plaquette",
		Help: "Average plaquette of the last trajectory.",
	}), "hmc_plaquette")
	if err != nil {
		return nil, err
	}
	acceptance, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hmc_acceptance_rate",
		Help: "Fraction of trajectories accepted so far.",
	}), "hmc_acceptance_rate")
	if err != nil {
		return nil, err
	}
	energy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hmc_energy_per_site",
		Help: "Hamiltonian after the last trajectory divided by the lattice volume.",
	}), "hmc_energy_per_site")
	if err != nil {
		return nil, err
	}

	stored, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hmc_configs_stored_total",
		Help: "Number of link configurations written as snapshots.",
	}), "hmc_configs_stored_total")
	if err != nil {
		return nil, err
	}
	violations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hmc_invariant_violations_total",
		Help: "Number of trajectories stopped by an SU(2)/su(2) invariant violation.",
	}), "hmc_invariant_violations_total")
	if err != nil {
		return nil, err
	}

	return &HMCCollector{
		gatherer:            gatherer,
		Trajectories:        trajectories,
		TrajectoryDurations: durations,
		AbsDeltaE:           absDeltaE,
		Plaquette:           plaquette,
		AcceptanceRate:      acceptance,
		EnergyPerSite:       energy,
		ConfigsStored:       stored,
		InvariantViolations: violations,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *HMCCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *HMCCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTrajectory records one decided trajectory. Its signature matches
// the chain listener type so the collector can be registered directly.
func (c *HMCCollector) ObserveTrajectory(rec model.TrajectoryRecord) {
	if c == nil {
		return
	}
	c.Trajectories.WithLabelValues(rec.Outcome.String()).Inc()
	c.TrajectoryDurations.Observe(rec.Duration.Seconds())
	if !math.IsNaN(rec.DeltaE) {
		c.AbsDeltaE.Observe(math.Abs(rec.DeltaE))
	}
	c.Plaquette.Set(rec.Plaquette)
	c.AcceptanceRate.Set(rec.AcceptanceRate)
	c.EnergyPerSite.Set(rec.EnergyPerVolume())
	if rec.Stored >= 0 {
		c.ConfigsStored.Inc()
	}
}

// IncInvariantViolations counts a trajectory aborted by an invariant check.
func (c *HMCCollector) IncInvariantViolations() {
	if c == nil {
		return
	}
	c.InvariantViolations.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
