package beam

import (
	"bufio"
	"math"
	"os"
	"strings"

	"github.com/meltflow/meltflow/pkg/errors"
)

// Eps is the small floating point value used for consistent path
// update logic.
const Eps = 1e-10

// Path is the ordered list of scan segments. The first element is a
// synthetic zero-power origin segment; segment times are absolute and
// computed once at load.
type Path struct {
	Segments []Segment
}

// LoadPath reads a scan path file. The file has one header line, then one
// whitespace-delimited record per line; blank lines are skipped.
func LoadPath(path string) (*Path, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileNotFound(path).WithContext("kind", "scan path")
	}
	defer f.Close()

	p := &Path{Segments: []Segment{{}}}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 || line == "" {
			continue
		}
		seg, err := parseSegment(line)
		if err != nil {
			return nil, errors.InvalidScanPath(path, lineNo, err)
		}
		p.Segments = append(p.Segments, seg)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidScanPath, "reading scan path").
			WithContext("path", path)
	}

	p.computeTimes()
	return p, nil
}

// computeTimes fills in the absolute time each segment is reached. Point
// segments add their dwell interval; line segments add travel distance
// over scan speed.
func (p *Path) computeTimes() {
	segs := p.Segments
	for i := 1; i < len(segs); i++ {
		if segs[i].Mode == ModePoint {
			segs[i].Time = segs[i-1].Time + segs[i].Parameter
		} else {
			segs[i].Time = segs[i-1].Time +
				dist(segs[i-1].Position, segs[i].Position)/segs[i].Parameter
		}
	}
}

// EndTime returns the time of the last segment with power on, scanning
// from the end of the path. Zero if the power is never on.
func (p *Path) EndTime() float64 {
	for i := len(p.Segments) - 1; i > 0; i-- {
		if p.Segments[i].Power > Eps {
			return p.Segments[i].Time
		}
	}
	return 0
}

func dist(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
