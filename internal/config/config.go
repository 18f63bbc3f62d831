package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// ErrInvalidConfig indicates a missing, malformed or out-of-range setting.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes environment overrides: HMC_MD_BETA overrides md.beta.
const EnvPrefix = "HMC"

// Required keys. Everything else has a default.
var requiredKeys = []string{
	"lattice.length_time",
	"lattice.length_space",
	"init.hot_start_std",
	"init.seed",
	"md.time_step",
	"md.steps",
	"md.beta",
	"chain.total",
	"chain.skip",
	"output.links",
}

// Config is the validated run configuration.
type Config struct {
	Lattice LatticeConfig `yaml:"lattice"`
	Init    InitConfig    `yaml:"init"`
	MD      MDConfig      `yaml:"md"`
	Chain   ChainConfig   `yaml:"chain"`
	Output  OutputConfig  `yaml:"output"`
	Run     RunConfig     `yaml:"run"`
}

type LatticeConfig struct {
	LengthTime  int `yaml:"length_time"`
	LengthSpace int `yaml:"length_space"`
}

type InitConfig struct {
	HotStartStd float64 `yaml:"hot_start_std"`
	Seed        int64   `yaml:"seed"`
	// Cold starts from unit links instead of a hot start.
	Cold bool `yaml:"cold"`
}

type MDConfig struct {
	TimeStep    float64 `yaml:"time_step"`
	Steps       int     `yaml:"steps"`
	Beta        float64 `yaml:"beta"`
	MomentumStd float64 `yaml:"momentum_std"`
}

type ChainConfig struct {
	Total     int `yaml:"total"`
	Skip      int `yaml:"skip"`
	MaxTrials int `yaml:"max_trials"`
}

type OutputConfig struct {
	Links           bool   `yaml:"links"`
	Directory       string `yaml:"directory"`
	HistoryDB       string `yaml:"history_db,omitempty"`
	SnapshotPattern string `yaml:"snapshot_pattern"`
	FinalLinks      string `yaml:"final_links"`
}

type RunConfig struct {
	Workers         int    `yaml:"workers"`
	CheckInvariants bool   `yaml:"check_invariants"`
	MetricsAddr     string `yaml:"metrics_addr,omitempty"`
}

// Extents returns the lattice extents.
func (c *Config) Extents() lattice.Extents {
	return lattice.Extents{LengthTime: c.Lattice.LengthTime, LengthSpace: c.Lattice.LengthSpace}
}

// MDParams returns the molecular-dynamics parameters.
func (c *Config) MDParams() model.MDParams {
	return model.MDParams{TimeStep: c.MD.TimeStep, Steps: c.MD.Steps, Beta: c.MD.Beta}
}

// Seed is the generator seed as used by the random context.
func (c *Config) Seed() uint64 {
	return uint64(c.Init.Seed)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("init.cold", false)
	v.SetDefault("md.momentum_std", 1.0)
	v.SetDefault("chain.max_trials", 0)
	v.SetDefault("output.directory", ".")
	v.SetDefault("output.history_db", "")
	v.SetDefault("output.snapshot_pattern", "gauge-links-%04d.bin")
	v.SetDefault("output.final_links", "links.bin")
	v.SetDefault("run.workers", 0)
	v.SetDefault("run.check_invariants", true)
	v.SetDefault("run.metrics_addr", "")
}

// Load reads an INI configuration file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Read parses INI content, applies defaults and HMC_* environment overrides,
// and validates the result.
func Read(r io.Reader) (*Config, error) {
	v := viper.New()
	v.SetConfigType("ini")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidConfig, err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if !v.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	p := parser{v: v}
	cfg := &Config{
		Lattice: LatticeConfig{
			LengthTime:  p.getInt("lattice.length_time"),
			LengthSpace: p.getInt("lattice.length_space"),
		},
		Init: InitConfig{
			HotStartStd: p.getFloat("init.hot_start_std"),
			Seed:        p.getInt64("init.seed"),
			Cold:        p.getBool("init.cold"),
		},
		MD: MDConfig{
			TimeStep:    p.getFloat("md.time_step"),
			Steps:       p.getInt("md.steps"),
			Beta:        p.getFloat("md.beta"),
			MomentumStd: p.getFloat("md.momentum_std"),
		},
		Chain: ChainConfig{
			Total:     p.getInt("chain.total"),
			Skip:      p.getInt("chain.skip"),
			MaxTrials: p.getInt("chain.max_trials"),
		},
		Output: OutputConfig{
			Links:           p.getBool("output.links"),
			Directory:       p.getString("output.directory"),
			HistoryDB:       p.getString("output.history_db"),
			SnapshotPattern: p.getString("output.snapshot_pattern"),
			FinalLinks:      p.getString("output.final_links"),
		},
		Run: RunConfig{
			Workers:         p.getInt("run.workers"),
			CheckInvariants: p.getBool("run.check_invariants"),
			MetricsAddr:     p.getString("run.metrics_addr"),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Run.Workers == 0 {
		cfg.Run.Workers = defaultWorkers()
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var problems []string
	if err := c.Extents().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if !(c.Init.HotStartStd > 0) || math.IsInf(c.Init.HotStartStd, 0) {
		problems = append(problems, fmt.Sprintf("init.hot_start_std must be positive, got %v", c.Init.HotStartStd))
	}
	if c.MD.TimeStep == 0 || math.IsNaN(c.MD.TimeStep) || math.IsInf(c.MD.TimeStep, 0) {
		problems = append(problems, fmt.Sprintf("md.time_step must be finite and non-zero, got %v", c.MD.TimeStep))
	}
	if c.MD.Steps < 1 {
		problems = append(problems, fmt.Sprintf("md.steps must be positive, got %d", c.MD.Steps))
	}
	if math.IsNaN(c.MD.Beta) || math.IsInf(c.MD.Beta, 0) {
		problems = append(problems, fmt.Sprintf("md.beta must be finite, got %v", c.MD.Beta))
	}
	if !(c.MD.MomentumStd > 0) || math.IsInf(c.MD.MomentumStd, 0) {
		problems = append(problems, fmt.Sprintf("md.momentum_std must be positive, got %v", c.MD.MomentumStd))
	}
	if c.Chain.Total < 1 {
		problems = append(problems, fmt.Sprintf("chain.total must be positive, got %d", c.Chain.Total))
	}
	if c.Chain.Skip < 0 {
		problems = append(problems, fmt.Sprintf("chain.skip must not be negative, got %d", c.Chain.Skip))
	}
	if c.Chain.MaxTrials < 0 {
		problems = append(problems, fmt.Sprintf("chain.max_trials must not be negative, got %d", c.Chain.MaxTrials))
	}
	if c.Run.Workers < 0 {
		problems = append(problems, fmt.Sprintf("run.workers must not be negative, got %d", c.Run.Workers))
	}
	if c.Output.Links {
		if err := checkPattern(c.Output.SnapshotPattern); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Output.FinalLinks == "" {
		problems = append(problems, "output.final_links must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func checkPattern(pattern string) error {
	if strings.Count(pattern, "%") != 1 || !strings.Contains(pattern, "d") {
		return fmt.Errorf("output.snapshot_pattern %q must contain exactly one integer verb", pattern)
	}
	if a, b := fmt.Sprintf(pattern, 0), fmt.Sprintf(pattern, 1); a == b || strings.Contains(a, "%!") {
		return fmt.Errorf("output.snapshot_pattern %q does not number snapshots", pattern)
	}
	return nil
}

// defaultWorkers is the number of logical CPUs, or 0 (GOMAXPROCS) when it
// cannot be determined.
func defaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// parser converts raw viper values with cast so malformed input is reported
// rather than read as zero.
type parser struct {
	v    *viper.Viper
	errs []error
}

func (p *parser) fail(key string, raw any, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s: cannot use %q: %v", key, fmt.Sprint(raw), err))
}

func (p *parser) getInt(key string) int {
	raw := p.v.Get(key)
	n, err := cast.ToIntE(trim(raw))
	if err != nil {
		p.fail(key, raw, err)
	}
	return n
}

func (p *parser) getInt64(key string) int64 {
	raw := p.v.Get(key)
	n, err := cast.ToInt64E(trim(raw))
	if err != nil {
		p.fail(key, raw, err)
	}
	return n
}

func (p *parser) getFloat(key string) float64 {
	raw := p.v.Get(key)
	f, err := cast.ToFloat64E(trim(raw))
	if err != nil {
		p.fail(key, raw, err)
	}
	return f
}

func (p *parser) getBool(key string) bool {
	raw := p.v.Get(key)
	b, err := cast.ToBoolE(trim(raw))
	if err != nil {
		p.fail(key, raw, err)
	}
	return b
}

func (p *parser) getString(key string) string {
	return strings.TrimSpace(cast.ToString(p.v.Get(key)))
}

func trim(raw any) any {
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s)
	}
	return raw
}
