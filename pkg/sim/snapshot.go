package sim

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meltflow/meltflow/pkg/errors"
)

// WriteTemperature dumps this rank's owned temperature field to
// <dir>/T_<step>_<rank>.csv as x,y,z,T rows. One file per rank per
// interval; postprocessing stitches slabs by coordinate.
func (s *Simulation) WriteTemperature(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot create snapshot directory").
			WithContext("dir", dir)
	}

	path := filepath.Join(dir, fmt.Sprintf("T_%d_%d.csv", s.step, s.grid.Rank()))
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot create snapshot file").
			WithContext("path", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	T := s.grid.Temperature()
	nx, ny, nz := s.grid.OwnedRange()
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				pt := s.grid.CellCenter(i, j, k)
				fmt.Fprintf(w, "%.10f,%.10f,%.10f,%.10f\n", pt[0], pt[1], pt[2], T.At(i, j, k))
			}
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot flush snapshot file").
			WithContext("path", path)
	}
	return nil
}
