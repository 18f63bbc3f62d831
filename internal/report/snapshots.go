package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/signalsfoundry/su2-hmc/internal/logging"
	"github.com/signalsfoundry/su2-hmc/lattice"
)

// Snapshots writes link configurations selected by the chain as numbered
// binary files, plus the final configuration. Disabled snapshots are
// skipped; the final configuration is always written.
type Snapshots struct {
	Dir     string
	Pattern string // e.g. gauge-links-%04d.bin
	Final   string
	Enabled bool
	Log     logging.Logger
}

// SnapshotName is the file name of snapshot index.
func (s *Snapshots) SnapshotName(index int) string {
	return fmt.Sprintf(s.Pattern, index)
}

// StoreSnapshot writes snapshot index.
func (s *Snapshots) StoreSnapshot(ctx context.Context, index int, links *lattice.Field) error {
	if !s.Enabled {
		return nil
	}
	return s.save(ctx, s.SnapshotName(index), links)
}

// StoreFinal writes the final configuration.
func (s *Snapshots) StoreFinal(ctx context.Context, links *lattice.Field) error {
	return s.save(ctx, s.Final, links)
}

func (s *Snapshots) save(ctx context.Context, name string, links *lattice.Field) error {
	path := filepath.Join(s.Dir, name)
	if err := links.Save(path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrOutputExists, path)
		}
		return err
	}
	if s.Log != nil {
		s.Log.Debug(ctx, "links saved", logging.String("path", path), logging.Int("bytes", links.StorageBytes()))
	}
	return nil
}
