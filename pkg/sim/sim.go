// Package sim drives the time integration: it owns the per-rank coupling
// of scan path, grid, solver, and recorder, and the run orchestration
// across ranks.
package sim

import (
	"github.com/meltflow/meltflow/internal/comm"
	"github.com/meltflow/meltflow/pkg/beam"
	"github.com/meltflow/meltflow/pkg/checkpoint"
	"github.com/meltflow/meltflow/pkg/config"
	"github.com/meltflow/meltflow/pkg/errors"
	"github.com/meltflow/meltflow/pkg/grid"
	"github.com/meltflow/meltflow/pkg/solidify"
	"github.com/meltflow/meltflow/pkg/solver"
)

// Simulation is one rank's view of a run.
type Simulation struct {
	cfg      *config.Config
	comm     *comm.Comm
	beam     *beam.MovingBeam
	grid     *grid.Local
	solver   *solver.Solver
	recorder *solidify.Recorder

	step int
	time float64
}

// New builds a rank's simulation from the deck. A nil comm runs serial.
func New(cfg *config.Config, c *comm.Comm) (*Simulation, error) {
	b, err := beam.Load(cfg.Source.ScanPathFile)
	if err != nil {
		return nil, err
	}

	var types [6]string
	var values [6]float64
	for d, face := range cfg.Boundaries {
		types[d] = face.Type
		values[d] = face.Value
	}
	boundary, err := grid.NewBoundary(types, values)
	if err != nil {
		return nil, err
	}

	mesh := grid.NewMesh(cfg.Space.GlobalLowCorner, cfg.Space.GlobalHighCorner, cfg.Space.CellSize)
	g := grid.NewLocal(c, mesh, boundary, cfg.Space.InitialTemperature)

	return &Simulation{
		cfg:      cfg,
		comm:     c,
		beam:     b,
		grid:     g,
		solver:   solver.New(solver.NewProperties(cfg), 0),
		recorder: solidify.NewRecorder(cfg, g),
		time:     cfg.Time.StartTime,
	}, nil
}

// Step advances the simulation by one time step. Collective: every rank
// must call it once per step, in lockstep.
func (s *Simulation) Step() error {
	s.step++
	s.time += s.cfg.Time.TimeStep

	s.beam.Move(s.time)
	s.grid.SnapshotPrevious()
	if err := s.solver.Solve(s.grid, s.beam.Power(), s.beam.Position()); err != nil {
		return err
	}
	s.grid.ApplyBoundaries()
	s.grid.ExchangeHalos()
	s.recorder.Update(s.grid, s.time)
	return nil
}

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int { return s.step }

// Time returns the current simulated time.
func (s *Simulation) Time() float64 { return s.time }

// Beam returns the moving heat source.
func (s *Simulation) Beam() *beam.MovingBeam { return s.beam }

// Grid returns the rank's slab.
func (s *Simulation) Grid() *grid.Local { return s.grid }

// Recorder returns the solidification event recorder.
func (s *Simulation) Recorder() *solidify.Recorder { return s.recorder }

// State captures this rank's checkpointable state.
func (s *Simulation) State() checkpoint.RankState {
	nx, ny, nz := s.grid.OwnedRange()
	melt := make([]float64, len(s.recorder.MeltHistory()))
	copy(melt, s.recorder.MeltHistory())
	events := make([]solidify.Event, s.recorder.Count())
	copy(events, s.recorder.Events())

	return checkpoint.RankState{
		Rank:        s.grid.Rank(),
		NX:          nx,
		NY:          ny,
		NZ:          nz,
		Temperature: s.grid.Temperature().Owned(),
		MeltHistory: melt,
		Events:      events,
	}
}

// Restore rewinds the simulation to a checkpointed state. Collective:
// the ghost refresh exchanges halos across ranks.
func (s *Simulation) Restore(st *checkpoint.RankState, step int, time float64) error {
	nx, ny, nz := s.grid.OwnedRange()
	if st.NX != nx || st.NY != ny || st.NZ != nz {
		return errors.New(errors.CodeRankMismatch, "checkpoint slab does not match decomposition").
			WithContext("rank", s.grid.Rank()).
			WithContext("checkpoint_extents", [3]int{st.NX, st.NY, st.NZ}).
			WithContext("run_extents", [3]int{nx, ny, nz})
	}

	s.grid.Temperature().SetOwned(st.Temperature)
	s.grid.ApplyBoundaries()
	s.grid.ExchangeHalos()
	s.recorder.Restore(st.Events, st.MeltHistory)

	s.step = step
	s.time = time
	return nil
}

// WriteEvents dumps the recorder output for this rank in the deck's
// sampling format.
func (s *Simulation) WriteEvents() error {
	if !s.cfg.Sampling.Enabled {
		return nil
	}
	return s.recorder.WriteCSV(s.cfg.Sampling.Directory, s.grid.Rank())
}
