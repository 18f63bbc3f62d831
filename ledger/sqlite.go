package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// RunInfo describes one chain stored in a SQLiteStore.
type RunInfo struct {
	ID      string
	Started time.Time
	Extents lattice.Extents
	Params  model.MDParams
	Seed    int64
}

// SQLiteStore persists trajectory records of one or more runs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the history database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{`
		CREATE TABLE IF NOT EXISTS runs(
			id TEXT PRIMARY KEY,
			started REAL NOT NULL,
			length_time INTEGER NOT NULL,
			length_space INTEGER NOT NULL,
			beta REAL NOT NULL,
			time_step REAL NOT NULL,
			md_steps INTEGER NOT NULL,
			seed INTEGER NOT NULL
		)`, `
		CREATE TABLE IF NOT EXISTS trajectories(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			trial INTEGER NOT NULL,
			computed INTEGER NOT NULL,
			stored INTEGER NOT NULL,
			accepted INTEGER NOT NULL,
			energy_before REAL NOT NULL,
			energy_after REAL NOT NULL,
			delta_e REAL NOT NULL,
			boltzmann REAL NOT NULL,
			uniform REAL NOT NULL,
			plaquette REAL NOT NULL,
			volume INTEGER NOT NULL,
			acceptance_rate REAL NOT NULL,
			duration_ns INTEGER NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create history schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginRun registers a run. Its ID must be unique in the database.
func (s *SQLiteStore) BeginRun(ctx context.Context, run RunInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, started, length_time, length_space, beta, time_step, md_steps, seed)
		 VALUES(?,?,?,?,?,?,?,?)`,
		run.ID, float64(run.Started.UnixMilli())/1000.0,
		run.Extents.LengthTime, run.Extents.LengthSpace,
		run.Params.Beta, run.Params.TimeStep, run.Params.Steps, run.Seed)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Insert appends one trajectory of runID.
func (s *SQLiteStore) Insert(ctx context.Context, runID string, rec model.TrajectoryRecord) error {
	accepted := 0
	if rec.Accepted() {
		accepted = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trajectories(run_id, trial, computed, stored, accepted, energy_before,
			energy_after, delta_e, boltzmann, uniform, plaquette, volume, acceptance_rate, duration_ns)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, rec.Trial, rec.Computed, rec.Stored, accepted, rec.EnergyBefore,
		rec.EnergyAfter, rec.DeltaE, rec.BoltzmannFactor, rec.Uniform, rec.Plaquette,
		rec.Volume, rec.AcceptanceRate, rec.Duration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("insert trajectory %d: %w", rec.Trial, err)
	}
	return nil
}

// Trajectories returns the records of runID in trial order.
func (s *SQLiteStore) Trajectories(ctx context.Context, runID string) ([]model.TrajectoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trial, computed, stored, accepted, energy_before, energy_after, delta_e,
			boltzmann, uniform, plaquette, volume, acceptance_rate, duration_ns
		 FROM trajectories WHERE run_id = ? ORDER BY trial`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trajectories: %w", err)
	}
	defer rows.Close()

	var out []model.TrajectoryRecord
	for rows.Next() {
		var (
			rec      model.TrajectoryRecord
			accepted int
			duration int64
		)
		if err := rows.Scan(&rec.Trial, &rec.Computed, &rec.Stored, &accepted,
			&rec.EnergyBefore, &rec.EnergyAfter, &rec.DeltaE, &rec.BoltzmannFactor,
			&rec.Uniform, &rec.Plaquette, &rec.Volume, &rec.AcceptanceRate, &duration); err != nil {
			return nil, fmt.Errorf("scan trajectory: %w", err)
		}
		if accepted != 0 {
			rec.Outcome = model.OutcomeAccepted
		}
		rec.Duration = time.Duration(duration)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Runs lists the stored run IDs, oldest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY started, id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
