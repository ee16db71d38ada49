package beam

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

const testPath = `Mode	X(m)	Y(m)	Z(m)	Power(W)	tParam
1	0.0	0.0	0.0	0	0
0	0.001	0.0	0.0	100	0.5
1	0.001	0.0	0.0	0	0.001
0	0.0	0.0	0.0	100	0.5
`

func writeScanPath(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadTestBeam(t *testing.T, content string) *MovingBeam {
	t.Helper()
	b, err := Load(writeScanPath(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b
}

func TestLoadPathTimes(t *testing.T) {
	b := loadTestBeam(t, testPath)
	segs := b.path.Segments

	// synthetic origin + 4 records
	if len(segs) != 5 {
		t.Fatalf("len(segments) = %d, want 5", len(segs))
	}

	// 1 mm at 0.5 m/s = 2 ms travel, then 1 ms dwell, then 2 ms back
	want := []float64{0, 0, 0.002, 0.003, 0.005}
	for i, w := range want {
		if math.Abs(segs[i].Time-w) > 1e-12 {
			t.Errorf("segment %d time = %g, want %g", i, segs[i].Time, w)
		}
	}

	if got := b.EndTime(); math.Abs(got-0.005) > 1e-12 {
		t.Errorf("EndTime() = %g, want 0.005", got)
	}
}

func TestLoadPathMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing scan path file")
	}
}

func TestFindIndexBrackets(t *testing.T) {
	b := loadTestBeam(t, testPath)
	segs := b.path.Segments

	times := []float64{0.0005, 0.001, 0.0025, 0.004, 0.0049}
	for _, q := range times {
		i := b.FindIndex(q)
		b.index = i
		if i < 1 || i >= len(segs) {
			t.Fatalf("FindIndex(%g) = %d out of range", q, i)
		}
		if segs[i-1].Time > q || segs[i].Time < q {
			t.Errorf("FindIndex(%g) = %d: bracket [%g, %g] does not contain query",
				q, i, segs[i-1].Time, segs[i].Time)
		}
	}
}

func TestFindIndexBackward(t *testing.T) {
	b := loadTestBeam(t, testPath)

	b.Move(0.004)
	forward := b.index

	// a backward query must step the cursor back, not search from zero
	i := b.FindIndex(0.001)
	if i >= forward {
		t.Errorf("backward FindIndex(0.001) = %d, cursor was %d", i, forward)
	}
	if got := b.FindIndex(0.004); got != forward {
		t.Errorf("re-advanced FindIndex = %d, want %d", got, forward)
	}
}

func TestFindIndexSkipsZeroDurationPoints(t *testing.T) {
	// marker: a zero-duration point segment between two rasters
	path := `header
0	0.001	0.0	0.0	100	0.5
1	0.001	0.0	0.0	100	0
0	0.002	0.0	0.0	100	0.5
`
	b := loadTestBeam(t, path)

	i := b.FindIndex(0.002)
	if b.path.Segments[i].Mode == ModePoint && b.path.Segments[i].Parameter == 0 {
		t.Errorf("FindIndex landed on a zero-duration point segment (index %d)", i)
	}
}

func TestMoveLineInterpolationAffine(t *testing.T) {
	b := loadTestBeam(t, testPath)

	// endpoints reproduce exactly
	b.Move(0.0)
	if b.Position()[0] != 0 {
		t.Errorf("position at t=0: x = %g, want 0", b.Position()[0])
	}
	b.Move(0.002)
	if math.Abs(b.Position()[0]-0.001) > 1e-12 {
		t.Errorf("position at t=0.002: x = %g, want 0.001", b.Position()[0])
	}

	// midpoint time yields midpoint position
	b.Move(0.001)
	if math.Abs(b.Position()[0]-0.0005) > 1e-12 {
		t.Errorf("position at t=0.001: x = %g, want 0.0005", b.Position()[0])
	}
}

func TestMovePointNoInterpolation(t *testing.T) {
	b := loadTestBeam(t, testPath)

	// two queries within the same dwell return identical positions
	b.Move(0.0022)
	p1 := b.Position()
	b.Move(0.0028)
	p2 := b.Position()
	if p1 != p2 {
		t.Errorf("point segment interpolated: %v != %v", p1, p2)
	}
	if math.Abs(p1[0]-0.001) > 1e-12 {
		t.Errorf("dwell position x = %g, want 0.001", p1[0])
	}
}

func TestMovePastEndTurnsOff(t *testing.T) {
	b := loadTestBeam(t, testPath)

	b.Move(0.004)
	frozen := b.Position()
	if b.Power() == 0 {
		t.Fatal("power off while path active")
	}

	b.Move(0.006)
	if b.Power() != 0 {
		t.Errorf("power past end = %g, want 0", b.Power())
	}
	if b.Position() != frozen {
		t.Errorf("position changed past end: %v != %v", b.Position(), frozen)
	}
}

func TestMovePowerAtBoundaryInstant(t *testing.T) {
	b := loadTestBeam(t, testPath)

	// exactly at the start of the raster the previous interval's power holds
	b.Move(0.0)
	if b.Power() != 0 {
		t.Errorf("power at t=0 = %g, want 0 (previous interval)", b.Power())
	}

	b.Move(0.0001)
	if b.Power() != 100 {
		t.Errorf("power inside raster = %g, want 100", b.Power())
	}
}

func TestEndTimeAllPowerOff(t *testing.T) {
	path := `header
1	0.0	0.0	0.0	0	0.001
1	0.001	0.0	0.0	0	0.001
`
	b := loadTestBeam(t, path)
	if got := b.EndTime(); got != 0 {
		t.Errorf("EndTime() = %g, want 0 for unpowered path", got)
	}
}

func TestGenerateSerpentine(t *testing.T) {
	dir := t.TempDir()
	files, err := Generate(GenerateSpec{
		MinPoint:     [2]float64{0, 0},
		MaxPoint:     [2]float64{0.001, 0.001},
		Hatch:        0.0002,
		NumRotations: 1,
		Power:        150,
		Speed:        0.8,
		DwellTime:    0.0001,
		BiDirection:  true,
	}, dir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("generated %d files, want 1", len(files))
	}

	// the generated file must load as a valid path with power on
	b, err := Load(files[0])
	if err != nil {
		t.Fatalf("Load(generated): %v", err)
	}
	if b.EndTime() <= 0 {
		t.Errorf("generated path EndTime = %g, want > 0", b.EndTime())
	}

	// every position must stay inside the bounding box
	for _, s := range b.path.Segments[1:] {
		if s.Position[0] < -1e-9 || s.Position[0] > 0.001+1e-9 ||
			s.Position[1] < -1e-9 || s.Position[1] > 0.001+1e-9 {
			t.Errorf("segment position %v outside pad bounds", s.Position)
		}
	}
}
