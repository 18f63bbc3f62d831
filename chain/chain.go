package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/su2-hmc/core"
	"github.com/signalsfoundry/su2-hmc/internal/logging"
	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// ErrTrialLimit is returned when MaxTrials trajectories ran before Total
// configurations were stored.
var ErrTrialLimit = errors.New("trial limit reached")

// Proposer produces Metropolis-gated trajectories on a link field it owns.
// core.Gate implements it.
type Proposer interface {
	Trajectory(ctx context.Context) (core.Result, error)
	Links() *lattice.Field
	Finish()
}

// SnapshotSink persists link configurations selected by the chain.
type SnapshotSink interface {
	// StoreSnapshot is called with consecutive indices starting at 0.
	StoreSnapshot(ctx context.Context, index int, links *lattice.Field) error
	// StoreFinal is called once with the links left after the last trajectory.
	StoreFinal(ctx context.Context, links *lattice.Field) error
}

// Config bounds a chain.
type Config struct {
	// Total is the number of configurations to store.
	Total int
	// Skip stores every Skip-th accepted trajectory; 0 stores all of them.
	Skip int
	// MaxTrials stops the chain after this many trajectories; 0 is unlimited.
	MaxTrials int
}

// Validate reports malformed bounds.
func (c Config) Validate() error {
	switch {
	case c.Total < 1:
		return fmt.Errorf("chain total must be positive, got %d", c.Total)
	case c.Skip < 0:
		return fmt.Errorf("chain skip must not be negative, got %d", c.Skip)
	case c.MaxTrials < 0:
		return fmt.Errorf("chain max trials must not be negative, got %d", c.MaxTrials)
	}
	return nil
}

// Progress counts what a chain has done so far.
type Progress struct {
	Trials   int
	Accepted int
	Stored   int
}

// AcceptanceRate is Accepted/Trials, or 0 before the first trial.
func (p Progress) AcceptanceRate() float64 {
	if p.Trials == 0 {
		return 0
	}
	return float64(p.Accepted) / float64(p.Trials)
}

// Controller drives a Proposer until enough configurations are stored and
// notifies registered listeners after every trajectory.
type Controller struct {
	mu       sync.RWMutex
	progress Progress

	proposer  Proposer
	cfg       Config
	sink      SnapshotSink
	log       logging.Logger
	listeners []func(model.TrajectoryRecord)
}

// Option customises a Controller.
type Option func(*Controller)

// WithSink sets where stored configurations go. Without a sink stored
// configurations are only counted.
func WithSink(s SnapshotSink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// NewController constructs a controller.
func NewController(p Proposer, cfg Config, opts ...Option) (*Controller, error) {
	if p == nil {
		return nil, fmt.Errorf("proposer is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{proposer: p, cfg: cfg, log: logging.Noop()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// AddListener registers a callback invoked after every trajectory. Listeners
// run on the chain goroutine in registration order and must be registered
// before Run.
func (c *Controller) AddListener(fn func(model.TrajectoryRecord)) {
	c.listeners = append(c.listeners, fn)
}

// Progress returns the counters so far. Safe to call while Run is active.
func (c *Controller) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// Run executes trajectories until Total configurations are stored, then
// hands the final links to the sink and finishes the proposer.
func (c *Controller) Run(ctx context.Context) (Progress, error) {
	defer c.proposer.Finish()

	for {
		p := c.Progress()
		if p.Stored >= c.cfg.Total {
			break
		}
		if c.cfg.MaxTrials > 0 && p.Trials >= c.cfg.MaxTrials {
			return p, fmt.Errorf("%w: %d trials, %d of %d configurations stored",
				ErrTrialLimit, p.Trials, p.Stored, c.cfg.Total)
		}
		if err := ctx.Err(); err != nil {
			return p, err
		}

		rec, err := c.step(ctx)
		if err != nil {
			return c.Progress(), err
		}
		for _, fn := range c.listeners {
			fn(rec)
		}
	}

	if c.sink != nil {
		if err := c.sink.StoreFinal(ctx, c.proposer.Links()); err != nil {
			return c.Progress(), fmt.Errorf("store final links: %w", err)
		}
	}
	return c.Progress(), nil
}

// Start runs the chain in a separate goroutine. The returned channel yields
// the result of Run and is then closed.
func (c *Controller) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := c.Run(ctx)
		done <- err
	}()
	return done
}

func (c *Controller) step(ctx context.Context) (model.TrajectoryRecord, error) {
	started := time.Now()
	res, err := c.proposer.Trajectory(ctx)
	if err != nil {
		return model.TrajectoryRecord{}, fmt.Errorf("trajectory %d: %w", c.Progress().Trials+1, err)
	}

	c.mu.Lock()
	c.progress.Trials++
	stored := -1
	if res.Accepted {
		c.progress.Accepted++
		if c.cfg.Skip == 0 || c.progress.Accepted%c.cfg.Skip == 0 {
			stored = c.progress.Stored
		}
	}
	p := c.progress
	c.mu.Unlock()

	if stored >= 0 {
		if c.sink != nil {
			if err := c.sink.StoreSnapshot(ctx, stored, c.proposer.Links()); err != nil {
				return model.TrajectoryRecord{}, fmt.Errorf("store configuration %d: %w", stored, err)
			}
		}
		c.mu.Lock()
		c.progress.Stored++
		p = c.progress
		c.mu.Unlock()
	}

	outcome := model.OutcomeRejected
	if res.Accepted {
		outcome = model.OutcomeAccepted
	}
	rec := model.TrajectoryRecord{
		Trial:           p.Trials,
		Computed:        p.Accepted,
		Stored:          stored,
		Outcome:         outcome,
		EnergyBefore:    res.EnergyBefore(),
		EnergyAfter:     res.EnergyAfter.Total(),
		DeltaE:          res.DeltaE,
		BoltzmannFactor: res.BoltzmannFactor(),
		Uniform:         res.Uniform,
		Plaquette:       res.Plaquette,
		Volume:          c.proposer.Links().Volume(),
		AcceptanceRate:  p.AcceptanceRate(),
		Duration:        time.Since(started),
	}

	c.log.Info(ctx, "trajectory "+outcome.String(),
		logging.Int("trial", rec.Trial),
		logging.Float("delta_e", rec.DeltaE),
		logging.Float("plaquette", rec.Plaquette),
		logging.Float("acceptance_rate", rec.AcceptanceRate),
		logging.Int("stored", p.Stored),
	)
	return rec, nil
}
