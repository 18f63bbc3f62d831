package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace indicates the output directory cannot hold the
// expected snapshots.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// CheckFresh fails with ErrOutputExists if any of names already exists in
// dir. All offenders are listed.
func CheckFresh(dir string, names ...string) error {
	var existing []error
	for _, name := range names {
		path := filepath.Join(dir, name)
		_, err := os.Stat(path)
		switch {
		case err == nil:
			existing = append(existing, fmt.Errorf("%w: %s", ErrOutputExists, path))
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return errors.Join(existing...)
}

// CheckHeadroom fails with ErrInsufficientSpace when the filesystem holding
// dir has less than need bytes free.
func CheckHeadroom(dir string, need uint64) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("disk usage of %s: %w", dir, err)
	}
	if usage.Free < need {
		return fmt.Errorf("%w: %s has %d bytes free, %d needed", ErrInsufficientSpace, dir, usage.Free, need)
	}
	return nil
}
