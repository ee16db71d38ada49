// Package beam models the moving heat source: the scan path description,
// the path-following state machine, and a serpentine path generator.
package beam

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment modes. A point segment dwells at a position for a time interval;
// a line segment travels to a position at a scan speed.
const (
	ModeLine  = 0
	ModePoint = 1
)

// Segment is one control point of the scan path.
type Segment struct {
	// Mode is ModePoint or ModeLine.
	Mode int

	// Position of the heat source center at the end of the segment.
	Position [3]float64

	// Power of the heat source over the segment.
	Power float64

	// Parameter is the dwell interval for point segments and the scan
	// speed for line segments.
	Parameter float64

	// Time is the absolute simulation time at which the segment ends.
	// Computed once when the path is loaded.
	Time float64
}

// parseSegment parses one whitespace-delimited scan path record:
// mode x y z power parameter.
func parseSegment(line string) (Segment, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Segment{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Segment{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}

	return Segment{
		Mode:      int(vals[0]),
		Position:  [3]float64{vals[1], vals[2], vals[3]},
		Power:     vals[4],
		Parameter: vals[5],
	}, nil
}
