package ledger

import (
	"math"
	"sync"
	"testing"

	"github.com/signalsfoundry/su2-hmc/model"
)

func record(trial int, accepted bool, deltaE, plaquette float64, stored int) model.TrajectoryRecord {
	rec := model.TrajectoryRecord{
		Trial:           trial,
		Stored:          stored,
		DeltaE:          deltaE,
		BoltzmannFactor: math.Exp(-deltaE),
		Plaquette:       plaquette,
	}
	if accepted {
		rec.Outcome = model.OutcomeAccepted
	}
	return rec
}

func TestSummaryAggregatesRecords(t *testing.T) {
	h := NewHistory()
	if s := h.Summary(); s != (Summary{}) {
		t.Fatalf("empty summary = %+v", s)
	}

	h.Record(record(1, true, -0.1, 1.0, 0))
	h.Record(record(2, false, 0.4, 0.5, -1))
	h.Record(record(3, true, 0.2, 2.0, 1))
	h.Record(record(4, true, 0.0, 1.5, -1))

	s := h.Summary()
	if s.Trials != 4 || s.Accepted != 3 || s.Stored != 2 || s.AcceptanceRate != 0.75 {
		t.Fatalf("counts = %+v", s)
	}
	if s.MaxAbsDeltaE != 0.4 {
		t.Fatalf("max |ΔE| = %v, want 0.4", s.MaxAbsDeltaE)
	}
	if math.Abs(s.MeanAbsDeltaE-0.175) > 1e-15 {
		t.Fatalf("mean |ΔE| = %v, want 0.175", s.MeanAbsDeltaE)
	}
	if math.Abs(s.MeanPlaquette-1.5) > 1e-15 || math.Abs(s.StdDevPlaquette-0.5) > 1e-15 {
		t.Fatalf("plaquette stats = %v ± %v, want 1.5 ± 0.5", s.MeanPlaquette, s.StdDevPlaquette)
	}
	wantBoltzmann := (math.Exp(0.1) + math.Exp(-0.4) + math.Exp(-0.2) + 1) / 4
	if math.Abs(s.MeanBoltzmann-wantBoltzmann) > 1e-14 {
		t.Fatalf("⟨exp(−ΔE)⟩ = %v, want %v", s.MeanBoltzmann, wantBoltzmann)
	}

	if last, ok := h.Last(); !ok || last.Trial != 4 {
		t.Fatalf("Last = %+v, %v", last, ok)
	}
}

func TestRecordsReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Record(record(1, true, 0, 1, 0))
	recs := h.Records()
	recs[0].Trial = 99
	if got := h.Records()[0].Trial; got != 1 {
		t.Fatalf("history mutated through Records(): trial %d", got)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	h := NewHistory()
	var first, second []int
	unsubFirst := h.Subscribe(func(r model.TrajectoryRecord) { first = append(first, r.Trial) })
	h.Subscribe(func(r model.TrajectoryRecord) { second = append(second, r.Trial) })

	h.Record(record(1, true, 0, 1, 0))
	unsubFirst()
	unsubFirst()
	h.Record(record(2, false, 1, 1, -1))

	if len(first) != 1 || first[0] != 1 {
		t.Fatalf("first subscriber saw %v", first)
	}
	if len(second) != 2 || second[1] != 2 {
		t.Fatalf("second subscriber saw %v", second)
	}
}

func TestHistoryConcurrentAccess(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				h.Record(record(i*50+j, j%2 == 0, 0.1, 1, -1))
				_ = h.Summary()
			}
		}()
	}
	wg.Wait()
	if h.Len() != 400 {
		t.Fatalf("Len = %d, want 400", h.Len())
	}
}
