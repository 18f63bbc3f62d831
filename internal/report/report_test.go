package report

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/su2-hmc/internal/config"
	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/ledger"
	"github.com/signalsfoundry/su2-hmc/model"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestSeriesSplitsByOutcome(t *testing.T) {
	dir := t.TempDir()
	s, err := CreateSeries(dir)
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	s.Record(model.TrajectoryRecord{
		Trial: 1, Computed: 1, Stored: 0, Outcome: model.OutcomeAccepted,
		EnergyAfter: 8, Plaquette: 1.5, Volume: 16, DeltaE: -0.25, BoltzmannFactor: math.Exp(0.25),
		AcceptanceRate: 1, Duration: 1500 * time.Microsecond,
	})
	s.Record(model.TrajectoryRecord{
		Trial: 2, Computed: 1, Stored: -1, Outcome: model.OutcomeRejected,
		EnergyAfter: 4, Plaquette: 1.25, Volume: 16, DeltaE: 3, Uniform: 0.5, AcceptanceRate: 0.5,
	})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := map[string][]string{
		EnergyFile:          {"0\t0.5"},
		PlaquetteFile:       {"0\t1.5"},
		EnergyRejectFile:    {"1\t0.25"},
		PlaquetteRejectFile: {"1\t1.25"},
	}
	for name, lines := range want {
		got := readLines(t, filepath.Join(dir, name))
		if len(got) != len(lines) || got[0] != lines[0] {
			t.Fatalf("%s = %q, want %q", name, got, lines)
		}
	}

	rows := readLines(t, filepath.Join(dir, TrajectoriesFile))
	if len(rows) != 3 || !strings.HasPrefix(rows[0], "trial\tcomputed\tstored\toutcome") {
		t.Fatalf("trajectories.tsv = %q", rows)
	}
	if fields := strings.Split(rows[1], "\t"); fields[3] != "accepted" || fields[11] != "1.5" {
		t.Fatalf("accepted row = %q", fields)
	}
	if fields := strings.Split(rows[2], "\t"); fields[2] != "-1" || fields[8] != "0.5" {
		t.Fatalf("rejected row = %q", fields)
	}
}

func TestCreateSeriesRefusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, PlaquetteRejectFile), []byte("old"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := CreateSeries(dir); !errors.Is(err, ErrOutputExists) {
		t.Fatalf("CreateSeries error = %v, want ErrOutputExists", err)
	}
	if got := readLines(t, filepath.Join(dir, PlaquetteRejectFile)); got[0] != "old" {
		t.Fatalf("existing output modified: %q", got)
	}
}

func TestCheckFreshListsOffenders(t *testing.T) {
	dir := t.TempDir()
	if err := CheckFresh(dir, SeriesFiles...); err != nil {
		t.Fatalf("empty dir flagged: %v", err)
	}
	for _, name := range []string{EnergyFile, "links.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	err := CheckFresh(dir, append([]string{"links.bin"}, SeriesFiles...)...)
	if !errors.Is(err, ErrOutputExists) {
		t.Fatalf("CheckFresh error = %v, want ErrOutputExists", err)
	}
	if !strings.Contains(err.Error(), EnergyFile) || !strings.Contains(err.Error(), "links.bin") {
		t.Fatalf("error %q does not list both files", err)
	}
}

func TestCheckHeadroom(t *testing.T) {
	dir := t.TempDir()
	if err := CheckHeadroom(dir, 1); err != nil {
		t.Fatalf("CheckHeadroom(1 byte): %v", err)
	}
	if err := CheckHeadroom(dir, math.MaxUint64); !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("CheckHeadroom(max) error = %v, want ErrInsufficientSpace", err)
	}
}

func TestSnapshotsWriteNumberedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	links := lattice.MustNew(lattice.Extents{LengthTime: 2, LengthSpace: 1})
	links.Fill(model.Identity())

	s := &Snapshots{Dir: dir, Pattern: "gauge-links-%04d.bin", Final: "links.bin", Enabled: true}
	if err := s.StoreSnapshot(ctx, 7, links); err != nil {
		t.Fatalf("StoreSnapshot: %v", err)
	}
	if err := s.StoreFinal(ctx, links); err != nil {
		t.Fatalf("StoreFinal: %v", err)
	}
	got, err := lattice.Load(filepath.Join(dir, "gauge-links-0007.bin"), lattice.Extents{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(links) {
		t.Fatalf("snapshot does not match links")
	}
	if err := s.StoreFinal(ctx, links); !errors.Is(err, ErrOutputExists) {
		t.Fatalf("second StoreFinal error = %v, want ErrOutputExists", err)
	}

	s = &Snapshots{Dir: dir, Pattern: "off-%d.bin", Final: "final.bin"}
	if err := s.StoreSnapshot(ctx, 0, links); err != nil {
		t.Fatalf("disabled StoreSnapshot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "off-0.bin")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("disabled snapshot written: %v", err)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	cfg, err := config.Read(strings.NewReader(`
[lattice]
length_time = 2
length_space = 2
[init]
hot_start_std = 0.5
seed = 42
[md]
time_step = 0.01
steps = 10
beta = 2
[chain]
total = 1
skip = 0
[output]
links = false
`))
	if err != nil {
		t.Fatalf("config.Read: %v", err)
	}

	started := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	m := NewManifest("run-1", cfg, started)
	m.Complete(ledger.Summary{Trials: 3, Accepted: 2, Stored: 1, AcceptanceRate: 2.0 / 3}, errors.New("boom"), started.Add(time.Minute))

	path := filepath.Join(t.TempDir(), ManifestFile)
	if err := m.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.RunID != "run-1" || got.Error != "boom" || !got.Finished.Equal(started.Add(time.Minute)) {
		t.Fatalf("manifest = %+v", got)
	}
	if got.Result.Trials != 3 || got.Result.Stored != 1 || got.Config.MD.Beta != 2 || got.Config.Init.Seed != 42 {
		t.Fatalf("manifest result/config = %+v / %+v", got.Result, got.Config)
	}
}
