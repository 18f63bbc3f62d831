package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.sqlite3")
	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	run := RunInfo{
		ID:      "run-a",
		Started: time.Unix(1700000000, 0),
		Extents: lattice.Extents{LengthTime: 4, LengthSpace: 2},
		Params:  model.MDParams{TimeStep: 0.01, Steps: 10, Beta: 2},
		Seed:    42,
	}
	require.NoError(t, store.BeginRun(ctx, run))
	require.Error(t, store.BeginRun(ctx, run), "duplicate run id")

	accepted := record(1, true, -0.25, 1.75, 0)
	accepted.Computed, accepted.Volume, accepted.Duration = 1, 32, 3*time.Millisecond
	rejected := record(2, false, 1.5, 1.25, -1)
	rejected.Computed, rejected.Uniform, rejected.AcceptanceRate = 1, 0.8, 0.5

	require.NoError(t, store.Insert(ctx, run.ID, rejected))
	require.NoError(t, store.Insert(ctx, run.ID, accepted))
	require.NoError(t, store.Insert(ctx, "other", accepted))

	got, err := store.Trajectories(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, []model.TrajectoryRecord{accepted, rejected}, got)

	ids, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"run-a"}, ids)
}

func TestOpenSQLiteReopensExistingDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.sqlite3")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.BeginRun(ctx, RunInfo{ID: "r1", Started: time.Unix(1, 0)}))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	ids, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, ids)
}
