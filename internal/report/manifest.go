package report

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/su2-hmc/internal/config"
	"github.com/signalsfoundry/su2-hmc/ledger"
)

// ManifestFile is the name of the run manifest.
const ManifestFile = "run.yaml"

// Manifest describes a finished (or failed) run for later analysis.
type Manifest struct {
	RunID     string         `yaml:"run_id"`
	Started   time.Time      `yaml:"started"`
	Finished  time.Time      `yaml:"finished"`
	GoVersion string         `yaml:"go_version"`
	Workers   int            `yaml:"workers"`
	Error     string         `yaml:"error,omitempty"`
	Config    *config.Config `yaml:"config"`
	Result    ManifestResult `yaml:"result"`
}

// ManifestResult is the aggregate outcome of the chain.
type ManifestResult struct {
	Trials          int     `yaml:"trials"`
	Accepted        int     `yaml:"accepted"`
	Stored          int     `yaml:"stored"`
	AcceptanceRate  float64 `yaml:"acceptance_rate"`
	MeanBoltzmann   float64 `yaml:"mean_boltzmann"`
	MeanAbsDeltaE   float64 `yaml:"mean_abs_delta_e"`
	MaxAbsDeltaE    float64 `yaml:"max_abs_delta_e"`
	MeanPlaquette   float64 `yaml:"mean_plaquette"`
	StdDevPlaquette float64 `yaml:"stddev_plaquette"`
}

// NewManifest starts a manifest for a run.
func NewManifest(runID string, cfg *config.Config, started time.Time) *Manifest {
	return &Manifest{
		RunID:     runID,
		Started:   started.UTC(),
		GoVersion: runtime.Version(),
		Workers:   cfg.Run.Workers,
		Config:    cfg,
	}
}

// Complete fills in the result from a history summary and the run error.
func (m *Manifest) Complete(s ledger.Summary, runErr error, finished time.Time) {
	m.Finished = finished.UTC()
	if runErr != nil {
		m.Error = runErr.Error()
	}
	m.Result = ManifestResult{
		Trials:          s.Trials,
		Accepted:        s.Accepted,
		Stored:          s.Stored,
		AcceptanceRate:  s.AcceptanceRate,
		MeanBoltzmann:   s.MeanBoltzmann,
		MeanAbsDeltaE:   s.MeanAbsDeltaE,
		MaxAbsDeltaE:    s.MaxAbsDeltaE,
		MeanPlaquette:   s.MeanPlaquette,
		StdDevPlaquette: s.StdDevPlaquette,
	}
}

// Write stores the manifest at path, replacing an older one.
func (m *Manifest) Write(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}
