package solidify

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meltflow/meltflow/pkg/errors"
)

// WriteCSV dumps the recorded events to <dir>/data_<rank>.csv in fixed
// 10-decimal notation. The "exaca" format omits the gradient components;
// downstream grain growth tools recompute them.
func (r *Recorder) WriteCSV(dir string, rank int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot create sampling directory").
			WithContext("dir", dir)
	}

	path := filepath.Join(dir, fmt.Sprintf("data_%d.csv", rank))
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot create sampling file").
			WithContext("path", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range r.Events() {
		if r.format == "exaca" {
			fmt.Fprintf(w, "%.10f,%.10f,%.10f,%.10f,%.10f,%.10f\n",
				e.X, e.Y, e.Z, e.MeltTime, e.SolidTime, e.CoolingRate)
			continue
		}
		fmt.Fprintf(w, "%.10f,%.10f,%.10f,%.10f,%.10f,%.10f,%.10f,%.10f,%.10f\n",
			e.X, e.Y, e.Z, e.MeltTime, e.SolidTime, e.CoolingRate,
			e.GradX, e.GradY, e.GradZ)
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot flush sampling file").
			WithContext("path", path)
	}
	return f.Sync()
}
