package beam

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/meltflow/meltflow/pkg/errors"
)

// GenerateSpec describes a serpentine hatch pattern to synthesize into
// scan path files, one file per rotation.
type GenerateSpec struct {
	MinPoint [2]float64 `yaml:"min_point"`
	MaxPoint [2]float64 `yaml:"max_point"`

	// Angle is the rotation increment between successive layers, degrees.
	Angle        float64 `yaml:"angle"`
	Hatch        float64 `yaml:"hatch"`
	NumRotations int     `yaml:"num_rotations"`

	Power     float64 `yaml:"power"`
	Speed     float64 `yaml:"speed"`
	DwellTime float64 `yaml:"dwell_time"`

	// BiDirection reverses every other hatch line.
	BiDirection bool `yaml:"bi_direction"`
}

type point struct{ x, y float64 }

type hatchLine struct{ start, end point }

// Generate writes one scan path file per rotation into dir, named
// path_<rotation>.txt, and returns the file names.
func Generate(spec GenerateSpec, dir string) ([]string, error) {
	if spec.Hatch <= 0 {
		return nil, errors.New(errors.CodeInvalidValue, "hatch spacing must be positive")
	}
	if spec.NumRotations < 1 {
		spec.NumRotations = 1
	}

	var files []string
	rotation := 0.0
	for i := 0; i < spec.NumRotations; i++ {
		lines := hatchPattern(spec, rotation*math.Pi/180.0)

		name := fmt.Sprintf("%s/path_%.0f.txt", dir, rotation)
		if err := writePath(name, lines, spec); err != nil {
			return nil, err
		}
		files = append(files, name)

		rotation += spec.Angle
	}
	return files, nil
}

// hatchPattern builds equally spaced parallel lines through the bounding
// box midpoint, rotates them, and crops them to the box.
func hatchPattern(spec GenerateSpec, angle float64) []hatchLine {
	minP := point{spec.MinPoint[0], spec.MinPoint[1]}
	maxP := point{spec.MaxPoint[0], spec.MaxPoint[1]}
	mid := point{(minP.x + maxP.x) / 2, (minP.y + maxP.y) / 2}

	n := numberOfLines(minP, maxP, spec.Hatch)

	// Long parallel lines through the pad, midpoint line included once.
	const great = 1e10
	var raw []hatchLine
	for i := n - 1; i > 0; i-- {
		h := mid.y - float64(i)*spec.Hatch
		raw = append(raw, hatchLine{point{-great, h}, point{great, h}})
	}
	for i := 0; i < n; i++ {
		h := mid.y + float64(i)*spec.Hatch
		raw = append(raw, hatchLine{point{-great, h}, point{great, h}})
	}

	var lines []hatchLine
	for _, l := range raw {
		rot := hatchLine{rotate(l.start, mid, angle), rotate(l.end, mid, angle)}
		cropped, ok := cropLine(rot, minP, maxP)
		if ok {
			lines = append(lines, cropped)
		}
	}
	return lines
}

func numberOfLines(minP, maxP point, step float64) int {
	nX := 0
	for x := minP.x; x <= maxP.x; x += step {
		nX++
	}
	nY := 0
	for y := minP.y; y <= maxP.y; y += step {
		nY++
	}
	if nX > nY {
		return nX
	}
	return nY
}

func rotate(p, origin point, angle float64) point {
	s, c := math.Sin(angle), math.Cos(angle)
	tx, ty := p.x-origin.x, p.y-origin.y
	return point{tx*c - ty*s + origin.x, tx*s + ty*c + origin.y}
}

// cropLine clips a line against the four box edges. Reports false when
// the line misses the box entirely.
func cropLine(l hatchLine, minP, maxP point) (hatchLine, bool) {
	edges := []hatchLine{
		{point{minP.x, minP.y}, point{minP.x, maxP.y}},
		{point{maxP.x, minP.y}, point{maxP.x, maxP.y}},
		{point{minP.x, maxP.y}, point{maxP.x, maxP.y}},
		{point{minP.x, minP.y}, point{maxP.x, minP.y}},
	}

	var hits []point
	for _, e := range edges {
		if p, ok := intersect(e, l); ok {
			hits = append(hits, p)
		}
	}
	if len(hits) == 0 {
		return hatchLine{}, false
	}

	sort.Slice(hits, func(i, j int) bool {
		return pointDist(l.start, hits[i]) < pointDist(l.start, hits[j])
	})
	return hatchLine{hits[0], hits[len(hits)-1]}, true
}

// intersect finds the intersection of two segments, if any.
func intersect(l1, l2 hatchLine) (point, bool) {
	x1, y1, x2, y2 := l1.start.x, l1.start.y, l1.end.x, l1.end.y
	x3, y3, x4, y4 := l2.start.x, l2.start.y, l2.end.x, l2.end.y

	den := (x1-x2)*(y3-y4) - (y1-y2)*(x3-x4)
	if den == 0 {
		return point{}, false
	}

	t := ((x1-x3)*(y3-y4) - (y1-y3)*(x3-x4)) / den
	u := -((x1-x2)*(y1-y3) - (y1-y2)*(x1-x3)) / den

	if t >= 0 && t <= 1 && u >= 0 && u <= 1 {
		return point{x1 + t*(x2-x1), y1 + t*(y2-y1)}, true
	}
	return point{}, false
}

func pointDist(a, b point) float64 {
	return math.Hypot(a.x-b.x, a.y-b.y)
}

// writePath emits the hatch pattern in scan path file format: a dwell
// (skywrite) move to the start of each line followed by a powered raster.
func writePath(name string, lines []hatchLine, spec GenerateSpec) error {
	f, err := os.Create(name)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot create scan path file").
			WithContext("path", name)
	}
	defer f.Close()

	fmt.Fprintln(f, "Mode\tX(m)\tY(m)\tZ(m)\tPower(W)\ttParam")

	for i, l := range lines {
		first, second := l.start, l.end
		if spec.BiDirection && i%2 == 1 {
			first, second = l.end, l.start
		}

		if i == 0 {
			// no initial dwell
			fmt.Fprintf(f, "1\t%g\t%g\t0\t0\t0\n", first.x, first.y)
		} else {
			fmt.Fprintf(f, "1\t%g\t%g\t0\t0\t%g\n", first.x, first.y, spec.DwellTime)
		}

		fmt.Fprintf(f, "0\t%g\t%g\t0\t%g\t%g\n", second.x, second.y, spec.Power, spec.Speed)
	}
	return nil
}
