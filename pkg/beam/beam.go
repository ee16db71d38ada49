package beam

// MovingBeam converts the scan path into continuous position and power at
// arbitrary simulation time. The segment cursor is retained between calls
// so that forward-advancing queries resume where the last one stopped;
// backward queries (sub-stepping, restart) step the cursor back first.
type MovingBeam struct {
	path     *Path
	index    int
	position [3]float64
	power    float64
	endTime  float64
}

// NewMovingBeam creates a beam following the given path.
func NewMovingBeam(p *Path) *MovingBeam {
	return &MovingBeam{
		path:    p,
		endTime: p.EndTime(),
	}
}

// Load reads a scan path file and returns a beam following it.
func Load(path string) (*MovingBeam, error) {
	p, err := LoadPath(path)
	if err != nil {
		return nil, err
	}
	return NewMovingBeam(p), nil
}

// Position returns the current beam center.
func (b *MovingBeam) Position() [3]float64 { return b.position }

// Power returns the current beam power.
func (b *MovingBeam) Power() float64 { return b.power }

// EndTime returns the last time the beam power is on.
func (b *MovingBeam) EndTime() float64 { return b.endTime }

// Index returns the current segment cursor.
func (b *MovingBeam) Index() int { return b.index }

// Move updates the beam state for the given time. Past the end of the
// path the power is turned off and the position freezes; this is the only
// terminal state.
func (b *MovingBeam) Move(time float64) {
	if time-b.endTime > Eps {
		b.power = 0
		return
	}

	b.index = b.FindIndex(time)
	i := b.index
	segs := b.path.Segments

	if i == 0 || segs[i].Mode == ModePoint {
		b.position = segs[i].Position
	} else {
		dt := segs[i].Time - segs[i-1].Time

		var displacement [3]float64
		if dt > 0 {
			frac := (time - segs[i-1].Time) / dt
			for d := 0; d < 3; d++ {
				displacement[d] = (segs[i].Position[d] - segs[i-1].Position[d]) * frac
			}
		}
		for d := 0; d < 3; d++ {
			b.position[d] = segs[i-1].Position[d] + displacement[d]
		}
	}

	// At the exact boundary instant keep the previous interval's power.
	if i == 0 {
		b.power = segs[0].Power
		return
	}
	if time-segs[i-1].Time > Eps {
		b.power = segs[i].Power
	} else {
		b.power = segs[i-1].Power
	}
}

// FindIndex returns the segment index i such that
// time[i-1] <= t <= time[i], starting from the previous cursor rather
// than from zero. Zero-duration point segments are instantaneous markers
// and are skipped. The result is clamped to the valid segment range.
func (b *MovingBeam) FindIndex(time float64) int {
	segs := b.path.Segments
	n := len(segs) - 1

	// step back for safe updating
	i := b.index
	for ; i > 0 && segs[i].Time > time; i-- {
	}

	// advance to the provided time
	for ; i < n && segs[i].Time < time; i++ {
	}

	// skip any point sources with zero duration
	for i < n && segs[i].Mode == ModePoint && segs[i].Parameter == 0 {
		i++
	}

	if i < 0 {
		i = 0
	}
	if i > n {
		i = n
	}
	return i
}
