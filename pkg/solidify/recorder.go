// Package solidify detects liquidus-crossing events on the temperature
// field and records the derived quantities downstream microstructure
// simulation needs: crossing coordinates, melt and solidification times,
// cooling rate, and thermal gradient.
package solidify

import (
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meltflow/meltflow/internal/comm"
	"github.com/meltflow/meltflow/pkg/config"
	"github.com/meltflow/meltflow/pkg/grid"
)

// Event is one recorded solidification event.
type Event struct {
	X, Y, Z     float64
	MeltTime    float64
	SolidTime   float64
	CoolingRate float64
	GradX       float64
	GradY       float64
	GradZ       float64
}

// Recorder accumulates events into a growable buffer with atomic slot
// allocation. The counter may transiently pass the capacity during a
// scan; rows past the capacity are never written, and the scan is redone
// against a larger buffer so no event is lost.
type Recorder struct {
	enabled  bool
	format   string
	liquidus float64
	dt       float64
	cellSize float64

	count    atomic.Int64
	capacity int
	events   []Event

	// meltTime holds, per owned cell, the sub-step-interpolated time the
	// cell last crossed above the liquidus.
	meltTime []float64
	ny, nz   int

	workers int
}

// NewRecorder creates a recorder sized to the rank's owned cell count.
func NewRecorder(cfg *config.Config, g *grid.Local) *Recorder {
	nx, ny, nz := g.OwnedRange()
	capacity := nx * ny * nz
	if capacity < 1 {
		capacity = 1
	}
	return &Recorder{
		enabled:  cfg.Sampling.Enabled,
		format:   cfg.Sampling.Format,
		liquidus: cfg.Properties.Liquidus,
		dt:       cfg.Time.TimeStep,
		cellSize: cfg.Space.CellSize,
		capacity: capacity,
		events:   make([]Event, capacity),
		meltTime: make([]float64, nx*ny*nz),
		ny:       ny,
		nz:       nz,
		workers:  runtime.GOMAXPROCS(0),
	}
}

// Count returns the number of recorded events.
func (r *Recorder) Count() int {
	return int(r.count.Load())
}

// Events returns the recorded events. The slice is valid until the next
// Update call.
func (r *Recorder) Events() []Event {
	return r.events[:r.Count()]
}

// Capacity returns the current event buffer capacity.
func (r *Recorder) Capacity() int {
	return r.capacity
}

// MeltHistory returns the per-cell melting times. The slice aliases the
// recorder's state; callers must copy before mutating.
func (r *Recorder) MeltHistory() []float64 {
	return r.meltTime
}

// Restore replaces the recorder's state with checkpointed events and melt
// history.
func (r *Recorder) Restore(events []Event, meltHistory []float64) {
	if n := len(events); n > r.capacity {
		r.grow(n)
	}
	copy(r.events, events)
	r.count.Store(int64(len(events)))
	copy(r.meltTime, meltHistory)
}

// Update scans the owned cells once for liquidus crossings. On buffer
// overflow the counter is rolled back to its pre-pass value, the buffer
// is doubled, and the scan reruns from scratch; slot numbers assigned in
// the overflowed pass are not recoverable, so a partial append would
// drop events. A pass that fills past 90% of capacity doubles the buffer
// for the next pass without redoing this one.
func (r *Recorder) Update(g *grid.Local, time float64) {
	if !r.enabled {
		return
	}

	countBefore := r.count.Load()

	r.scan(g, time)

	newCount := int(r.count.Load())
	switch {
	case newCount >= r.capacity:
		r.grow(2 * newCount)
		r.count.Store(countBefore)
		r.scan(g, time)
	case float64(newCount)/float64(r.capacity) > 0.9:
		r.grow(2 * newCount)
	}
}

// grow reallocates the buffer at the new capacity, preserving rows.
func (r *Recorder) grow(capacity int) {
	events := make([]Event, capacity)
	copy(events, r.events)
	r.events = events
	r.capacity = capacity
}

// scan fans the crossing detection out across worker slabs. Each event
// row is written by exactly one goroutine; only the counter is shared.
func (r *Recorder) scan(g *grid.Local, time float64) {
	nx, _, _ := g.OwnedRange()
	workers := r.workers
	if workers > nx {
		workers = nx
	}
	if workers < 1 {
		workers = 1
	}

	var eg errgroup.Group
	chunk := (nx + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > nx {
			hi = nx
		}
		if lo >= hi {
			break
		}
		eg.Go(func() error {
			r.scanSlab(g, time, lo, hi)
			return nil
		})
	}
	eg.Wait()
}

func (r *Recorder) scanSlab(g *grid.Local, time float64, lo, hi int) {
	T := g.Temperature()
	T0 := g.PreviousTemperature()
	_, ny, nz := g.OwnedRange()

	for i := lo; i < hi; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				temp := T.At(i, j, k)
				temp0 := T0.At(i, j, k)

				switch {
				case temp <= r.liquidus && temp0 > r.liquidus:
					// just solidified
					idx := int(r.count.Add(1)) - 1
					if idx >= r.capacity {
						continue
					}
					r.record(idx, g, i, j, k, temp, temp0, time)

				case temp > r.liquidus && temp0 <= r.liquidus:
					// just melted; keep only the most recent melt
					r.meltTime[r.cell(i, j, k)] = time - r.crossFrac(temp, temp0)*r.dt
				}
			}
		}
	}
}

// record fills one event row. The row index is exclusively owned by the
// caller; no synchronization is needed beyond the counter.
func (r *Recorder) record(idx int, g *grid.Local, i, j, k int, temp, temp0, time float64) {
	T := g.Temperature()
	pt := g.CellCenter(i, j, k)
	twoDx := 2.0 * r.cellSize

	r.events[idx] = Event{
		X:           pt[0],
		Y:           pt[1],
		Z:           pt[2],
		MeltTime:    r.meltTime[r.cell(i, j, k)],
		SolidTime:   time - r.crossFrac(temp, temp0)*r.dt,
		CoolingRate: (temp0 - temp) / r.dt,
		GradX:       (T.At(i+1, j, k) - T.At(i-1, j, k)) / twoDx,
		GradY:       (T.At(i, j+1, k) - T.At(i, j-1, k)) / twoDx,
		GradZ:       (T.At(i, j, k+1) - T.At(i, j, k-1)) / twoDx,
	}
}

// crossFrac is the within-step fraction at which the temperature crossed
// the liquidus, clamped to [0, 1].
func (r *Recorder) crossFrac(temp, temp0 float64) float64 {
	m := (temp - r.liquidus) / (temp - temp0)
	return math.Min(math.Max(m, 0), 1)
}

func (r *Recorder) cell(i, j, k int) int {
	return (i*r.ny+j)*r.nz + k
}

// LowerBounds reduces the event coordinate minimum across all ranks.
// A rank with no events contributes +Inf so it cannot corrupt the
// global result.
func (r *Recorder) LowerBounds(c *comm.Comm) [3]float64 {
	local := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	for _, e := range r.Events() {
		local[0] = math.Min(local[0], e.X)
		local[1] = math.Min(local[1], e.Y)
		local[2] = math.Min(local[2], e.Z)
	}
	if c == nil {
		return local
	}
	return c.AllreduceMin(local)
}

// UpperBounds reduces the event coordinate maximum across all ranks,
// with -Inf as the empty identity.
func (r *Recorder) UpperBounds(c *comm.Comm) [3]float64 {
	local := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, e := range r.Events() {
		local[0] = math.Max(local[0], e.X)
		local[1] = math.Max(local[1], e.Y)
		local[2] = math.Max(local[2], e.Z)
	}
	if c == nil {
		return local
	}
	return c.AllreduceMax(local)
}
