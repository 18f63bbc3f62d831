package ledger

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/su2-hmc/model"
)

// History is an in-memory, thread-safe record of the trajectories of one
// chain.
type History struct {
	mu sync.RWMutex

	records []model.TrajectoryRecord

	nextSub int
	subs    map[int]func(model.TrajectoryRecord)
}

// NewHistory constructs an empty history.
func NewHistory() *History {
	return &History{subs: make(map[int]func(model.TrajectoryRecord))}
}

// Record appends rec and notifies subscribers. Its signature matches the
// chain listener type.
func (h *History) Record(rec model.TrajectoryRecord) {
	h.mu.Lock()
	h.records = append(h.records, rec)
	subs := make([]func(model.TrajectoryRecord), 0, len(h.subs))
	for id := 0; id < h.nextSub; id++ {
		if fn, ok := h.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	h.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, fn := range subs {
		fn(rec)
	}
}

// Subscribe registers a callback for new records, called in subscription
// order. It returns an unsubscribe function.
func (h *History) Subscribe(fn func(model.TrajectoryRecord)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Len returns the number of recorded trajectories.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Records returns a snapshot slice of all records in trial order.
func (h *History) Records() []model.TrajectoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.TrajectoryRecord(nil), h.records...)
}

// Last returns the most recent record.
func (h *History) Last() (model.TrajectoryRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return model.TrajectoryRecord{}, false
	}
	return h.records[len(h.records)-1], true
}

// Summary aggregates a history.
type Summary struct {
	Trials         int
	Accepted       int
	Stored         int
	AcceptanceRate float64

	// MeanBoltzmann is ⟨exp(−ΔE)⟩ over all trials; it is 1 for a correct
	// area-preserving, reversible integrator.
	MeanBoltzmann float64
	MeanAbsDeltaE float64
	MaxAbsDeltaE  float64

	// Plaquette statistics over accepted trajectories.
	MeanPlaquette   float64
	StdDevPlaquette float64
}

// Summary computes aggregate statistics over the recorded trajectories.
func (h *History) Summary() Summary {
	records := h.Records()
	var s Summary
	if len(records) == 0 {
		return s
	}

	boltzmann := make([]float64, 0, len(records))
	absDelta := make([]float64, 0, len(records))
	var plaquettes []float64
	for _, r := range records {
		s.Trials++
		if r.Accepted() {
			s.Accepted++
			plaquettes = append(plaquettes, r.Plaquette)
		}
		if r.Stored >= 0 {
			s.Stored++
		}
		boltzmann = append(boltzmann, r.BoltzmannFactor)
		d := math.Abs(r.DeltaE)
		absDelta = append(absDelta, d)
		s.MaxAbsDeltaE = math.Max(s.MaxAbsDeltaE, d)
	}

	s.AcceptanceRate = float64(s.Accepted) / float64(s.Trials)
	s.MeanBoltzmann = stat.Mean(boltzmann, nil)
	s.MeanAbsDeltaE = stat.Mean(absDelta, nil)
	switch len(plaquettes) {
	case 0:
	case 1:
		s.MeanPlaquette = plaquettes[0]
	default:
		s.MeanPlaquette, s.StdDevPlaquette = stat.MeanStdDev(plaquettes, nil)
	}
	return s
}
