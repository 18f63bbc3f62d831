package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/signalsfoundry/su2-hmc/model"
)

// ErrOutputExists indicates an output file left by a previous run.
var ErrOutputExists = errors.New("output already exists")

// Series file names.
const (
	EnergyFile          = "energy.tsv"
	PlaquetteFile       = "plaquette.tsv"
	EnergyRejectFile    = "energy-reject.tsv"
	PlaquetteRejectFile = "plaquette-reject.tsv"
	TrajectoriesFile    = "trajectories.tsv"
)

// SeriesFiles lists every file written by Series.
var SeriesFiles = []string{EnergyFile, PlaquetteFile, EnergyRejectFile, PlaquetteRejectFile, TrajectoriesFile}

var trajectoriesHeader = []string{
	"trial", "computed", "stored", "outcome", "energy_before", "energy_after",
	"delta_e", "boltzmann", "uniform", "plaquette", "acceptance_rate", "duration_ms",
}

// Series writes the tab-separated observable series of a chain. Accepted
// and rejected trajectories go to separate energy and plaquette files with
// rows "index<TAB>value"; trajectories.tsv carries every field of every
// trajectory under a header row.
type Series struct {
	mu sync.Mutex

	files   []*os.File
	writers map[string]*csv.Writer
	err     error
}

// CreateSeries creates the series files in dir. It fails with
// ErrOutputExists if any of them is already present.
func CreateSeries(dir string) (*Series, error) {
	s := &Series{writers: make(map[string]*csv.Writer, len(SeriesFiles))}
	for _, name := range SeriesFiles {
		f, err := createExclusive(filepath.Join(dir, name))
		if err != nil {
			s.Close()
			return nil, err
		}
		w := csv.NewWriter(f)
		w.Comma = '\t'
		s.files = append(s.files, f)
		s.writers[name] = w
	}
	if err := s.writers[TrajectoriesFile].Write(trajectoriesHeader); err != nil {
		s.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return s, nil
}

// Record appends rec to the series. Its signature matches the chain
// listener type; write errors are kept and reported by Err and Close.
func (s *Series) Record(rec model.TrajectoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}

	index := strconv.Itoa(rec.SeriesIndex())
	energy, plaquette := EnergyFile, PlaquetteFile
	if !rec.Accepted() {
		energy, plaquette = EnergyRejectFile, PlaquetteRejectFile
	}
	rows := []struct {
		file string
		row  []string
	}{
		{energy, []string{index, formatFloat(rec.EnergyPerVolume())}},
		{plaquette, []string{index, formatFloat(rec.Plaquette)}},
		{TrajectoriesFile, []string{
			strconv.Itoa(rec.Trial),
			strconv.Itoa(rec.Computed),
			strconv.Itoa(rec.Stored),
			rec.Outcome.String(),
			formatFloat(rec.EnergyBefore),
			formatFloat(rec.EnergyAfter),
			formatFloat(rec.DeltaE),
			formatFloat(rec.BoltzmannFactor),
			formatFloat(rec.Uniform),
			formatFloat(rec.Plaquette),
			formatFloat(rec.AcceptanceRate),
			formatFloat(float64(rec.Duration.Microseconds()) / 1000),
		}},
	}
	for _, r := range rows {
		w := s.writers[r.file]
		if err := w.Write(r.row); err != nil {
			s.err = fmt.Errorf("%s: %w", r.file, err)
			return
		}
		// Rows are flushed per trajectory so a killed run keeps its series.
		w.Flush()
		if err := w.Error(); err != nil {
			s.err = fmt.Errorf("%s: %w", r.file, err)
			return
		}
	}
}

// Err returns the first write error.
func (s *Series) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close flushes and closes every file.
func (s *Series) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := []error{s.err}
	for _, w := range s.writers {
		w.Flush()
		errs = append(errs, w.Error())
	}
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	s.files = nil
	return errors.Join(errs...)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func createExclusive(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, path)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
