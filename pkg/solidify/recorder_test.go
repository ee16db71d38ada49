package solidify

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meltflow/meltflow/internal/comm"
	"github.com/meltflow/meltflow/pkg/config"
	"github.com/meltflow/meltflow/pkg/grid"
)

const (
	testLiquidus = 1600.0
	testDt       = 1e-4
	testDx       = 1e-3
)

func recorderConfig() *config.Config {
	cfg := config.Default()
	cfg.Sampling.Enabled = true
	cfg.Properties.Solidus = 1500.0
	cfg.Properties.Liquidus = testLiquidus
	cfg.Time.TimeStep = testDt
	cfg.Space.CellSize = testDx
	return cfg
}

func serialGrid(t *testing.T, cells int, initial float64) *grid.Local {
	t.Helper()
	return rankGrid(t, nil, cells, initial)
}

func rankGrid(t *testing.T, c *comm.Comm, cells int, initial float64) *grid.Local {
	t.Helper()
	var types [6]string
	for d := range types {
		types[d] = "adiabatic"
	}
	boundary, err := grid.NewBoundary(types, [6]float64{})
	if err != nil {
		t.Fatalf("NewBoundary() error = %v", err)
	}
	high := [3]float64{float64(cells) * testDx, float64(cells) * testDx, float64(cells) * testDx}
	mesh := grid.NewMesh([3]float64{}, high, testDx)
	return grid.NewLocal(c, mesh, boundary, initial)
}

// setAll overwrites every owned cell and refreshes the ghosts so gradient
// stencils see consistent values.
func setAll(g *grid.Local, v float64) {
	nx, ny, nz := g.OwnedRange()
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				g.Temperature().Set(i, j, k, v)
			}
		}
	}
	g.ApplyBoundaries()
	g.ExchangeHalos()
}

func TestMeltThenSolidifyRecordsOneEvent(t *testing.T) {
	cfg := recorderConfig()
	g := serialGrid(t, 3, 300.0)
	r := NewRecorder(cfg, g)

	// Melt the center cell.
	meltAt := 5 * testDt
	g.SnapshotPrevious()
	g.Temperature().Set(1, 1, 1, 1700.0)
	r.Update(g, meltAt)
	if r.Count() != 0 {
		t.Fatalf("Count() after melt = %d, want 0", r.Count())
	}

	// Solidify it, with an asymmetric x-neighbor to give a gradient.
	solidAt := 6 * testDt
	g.SnapshotPrevious()
	g.Temperature().Set(1, 1, 1, 1100.0)
	g.Temperature().Set(2, 1, 1, 400.0)
	r.Update(g, solidAt)

	if r.Count() != 1 {
		t.Fatalf("Count() after solidify = %d, want 1", r.Count())
	}
	e := r.Events()[0]

	pt := g.CellCenter(1, 1, 1)
	if e.X != pt[0] || e.Y != pt[1] || e.Z != pt[2] {
		t.Errorf("event at (%v, %v, %v), want %v", e.X, e.Y, e.Z, pt)
	}

	meltFrac := (1700.0 - testLiquidus) / (1700.0 - 300.0)
	if got, want := e.MeltTime, meltAt-meltFrac*testDt; math.Abs(got-want) > 1e-15 {
		t.Errorf("MeltTime = %v, want %v", got, want)
	}
	solidFrac := (1100.0 - testLiquidus) / (1100.0 - 1700.0)
	if got, want := e.SolidTime, solidAt-solidFrac*testDt; math.Abs(got-want) > 1e-15 {
		t.Errorf("SolidTime = %v, want %v", got, want)
	}
	if got, want := e.CoolingRate, (1700.0-1100.0)/testDt; math.Abs(got-want) > 1e-9 {
		t.Errorf("CoolingRate = %v, want %v", got, want)
	}
	if got, want := e.GradX, (400.0-300.0)/(2*testDx); math.Abs(got-want) > 1e-9 {
		t.Errorf("GradX = %v, want %v", got, want)
	}
	if e.GradY != 0 || e.GradZ != 0 {
		t.Errorf("GradY, GradZ = %v, %v, want 0, 0", e.GradY, e.GradZ)
	}
}

func TestUpdateDisabled(t *testing.T) {
	cfg := recorderConfig()
	cfg.Sampling.Enabled = false
	g := serialGrid(t, 2, 1700.0)
	r := NewRecorder(cfg, g)

	g.SnapshotPrevious()
	setAll(g, 300.0)
	r.Update(g, testDt)
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0 when sampling disabled", r.Count())
	}
}

// meltSolidifyAll runs one full melt/solidify cycle over every owned cell.
func meltSolidifyAll(g *grid.Local, r *Recorder, step int) {
	g.SnapshotPrevious()
	setAll(g, 1700.0)
	r.Update(g, float64(2*step)*testDt)

	g.SnapshotPrevious()
	setAll(g, 300.0)
	r.Update(g, float64(2*step+1)*testDt)
}

func TestOverflowRedoLosesNoEvents(t *testing.T) {
	cfg := recorderConfig()
	g := serialGrid(t, 2, 300.0)
	r := NewRecorder(cfg, g)
	if r.Capacity() != 8 {
		t.Fatalf("initial Capacity() = %d, want 8", r.Capacity())
	}

	// First cycle fills the buffer exactly; that is an overflow and must
	// trigger a resize-and-redo pass.
	meltSolidifyAll(g, r, 1)
	if r.Count() != 8 {
		t.Fatalf("Count() after first cycle = %d, want 8", r.Count())
	}
	if r.Capacity() != 16 {
		t.Errorf("Capacity() after first cycle = %d, want 16", r.Capacity())
	}

	meltSolidifyAll(g, r, 2)
	if r.Count() != 16 {
		t.Fatalf("Count() after second cycle = %d, want 16", r.Count())
	}

	// Every row must carry real data: a dropped event would leave a zero row.
	for i, e := range r.Events() {
		if e.CoolingRate <= 0 || e.SolidTime <= 0 {
			t.Errorf("event %d = %+v, want populated row", i, e)
		}
	}
}

func TestProactiveGrowthNearCapacity(t *testing.T) {
	cfg := recorderConfig()
	g := serialGrid(t, 3, 300.0)
	r := NewRecorder(cfg, g)
	if r.Capacity() != 27 {
		t.Fatalf("initial Capacity() = %d, want 27", r.Capacity())
	}

	// Melt everything, then solidify all but two cells: 25 of 27 is past
	// the 90% watermark without overflowing.
	g.SnapshotPrevious()
	setAll(g, 1700.0)
	r.Update(g, testDt)

	g.SnapshotPrevious()
	setAll(g, 300.0)
	g.Temperature().Set(0, 0, 0, 1700.0)
	g.Temperature().Set(2, 2, 2, 1700.0)
	r.Update(g, 2*testDt)

	if r.Count() != 25 {
		t.Fatalf("Count() = %d, want 25", r.Count())
	}
	if r.Capacity() != 50 {
		t.Errorf("Capacity() = %d, want 50 after proactive growth", r.Capacity())
	}
}

func TestBoundsReduction(t *testing.T) {
	cfg := recorderConfig()
	lower := make([][3]float64, 2)
	upper := make([][3]float64, 2)

	group := comm.NewGroup(2)
	err := group.Run(func(c *comm.Comm) error {
		g := rankGrid(t, c, 4, 300.0)
		r := NewRecorder(cfg, g)

		// Each rank melts and solidifies its first owned cell.
		g.SnapshotPrevious()
		g.Temperature().Set(0, 0, 0, 1700.0)
		r.Update(g, testDt)
		g.SnapshotPrevious()
		g.Temperature().Set(0, 0, 0, 300.0)
		r.Update(g, 2*testDt)

		lower[c.Rank()] = r.LowerBounds(c)
		upper[c.Rank()] = r.UpperBounds(c)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Rank 0 owns x cells 0-1, rank 1 owns 2-3; both event cells sit at
	// y = z = 0.5 mm.
	wantLower := [3]float64{0.5 * testDx, 0.5 * testDx, 0.5 * testDx}
	wantUpper := [3]float64{2.5 * testDx, 0.5 * testDx, 0.5 * testDx}
	for rank := 0; rank < 2; rank++ {
		if lower[rank] != wantLower {
			t.Errorf("rank %d LowerBounds = %v, want %v", rank, lower[rank], wantLower)
		}
		if upper[rank] != wantUpper {
			t.Errorf("rank %d UpperBounds = %v, want %v", rank, upper[rank], wantUpper)
		}
	}
}

func TestBoundsEmpty(t *testing.T) {
	cfg := recorderConfig()
	g := serialGrid(t, 2, 300.0)
	r := NewRecorder(cfg, g)

	lower := r.LowerBounds(nil)
	upper := r.UpperBounds(nil)
	for d := 0; d < 3; d++ {
		if !math.IsInf(lower[d], 1) {
			t.Errorf("LowerBounds[%d] = %v, want +Inf with no events", d, lower[d])
		}
		if !math.IsInf(upper[d], -1) {
			t.Errorf("UpperBounds[%d] = %v, want -Inf with no events", d, upper[d])
		}
	}
}

func TestWriteCSVFormats(t *testing.T) {
	tests := []struct {
		format     string
		wantFields int
	}{
		{"default", 9},
		{"exaca", 6},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := recorderConfig()
			cfg.Sampling.Format = tt.format
			g := serialGrid(t, 2, 300.0)
			r := NewRecorder(cfg, g)
			meltSolidifyAll(g, r, 1)

			dir := t.TempDir()
			if err := r.WriteCSV(dir, 0); err != nil {
				t.Fatalf("WriteCSV() error = %v", err)
			}

			f, err := os.Open(filepath.Join(dir, "data_0.csv"))
			if err != nil {
				t.Fatalf("open output: %v", err)
			}
			defer f.Close()

			lines := 0
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				lines++
				if got := len(strings.Split(scanner.Text(), ",")); got != tt.wantFields {
					t.Errorf("line %d has %d fields, want %d", lines, got, tt.wantFields)
				}
			}
			if lines != r.Count() {
				t.Errorf("wrote %d lines, want %d", lines, r.Count())
			}
		})
	}
}

func TestWriteParquet(t *testing.T) {
	cfg := recorderConfig()
	g := serialGrid(t, 2, 300.0)
	r := NewRecorder(cfg, g)
	meltSolidifyAll(g, r, 1)

	dir := t.TempDir()
	if err := r.WriteParquet(dir, 3); err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "data_3.parquet"))
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("parquet output is empty")
	}
}
