package sim

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/meltflow/meltflow/internal/comm"
	"github.com/meltflow/meltflow/internal/log"
	"github.com/meltflow/meltflow/pkg/checkpoint"
	"github.com/meltflow/meltflow/pkg/config"
	"github.com/meltflow/meltflow/pkg/errors"
	"github.com/meltflow/meltflow/pkg/telemetry"
	"github.com/meltflow/meltflow/pkg/tui"
)

// Options controls one run.
type Options struct {
	// Deck is the deck path, recorded in checkpoints for provenance.
	Deck string

	// Resume is a checkpoint ID to continue from.
	Resume string

	// SnapshotDir receives periodic temperature dumps.
	SnapshotDir string

	// ExportParquet additionally writes the event table as Parquet.
	ExportParquet bool

	// Progress renders a terminal progress bar.
	Progress bool
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Steps    int
	Events   int
	Duration time.Duration

	// Melt pool bounding box over all recorded events; ±Inf when no cell
	// ever solidified.
	LowerBound [3]float64
	UpperBound [3]float64
}

// Run executes the deck to completion across the configured ranks.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	runID := uuid.NewString()[:8]
	if opts.Resume != "" {
		runID = opts.Resume
	}
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = "snapshots"
	}

	if !cfg.StableCourant() {
		log.Warnw("courant number exceeds the 3-D FTCS stability bound; expect oscillations",
			"co", cfg.Time.Co, "bound", 1.0/6.0)
	}

	var backend checkpoint.Backend
	if cfg.Checkpoint.Enabled || opts.Resume != "" {
		var err error
		backend, err = checkpoint.NewBackend(ctx, cfg.Checkpoint)
		if err != nil {
			return nil, err
		}
	}

	var resume *checkpoint.Snapshot
	if opts.Resume != "" {
		snap, err := backend.Load(ctx, opts.Resume)
		if err != nil {
			return nil, err
		}
		if err := snap.Validate(cfg.Space.Ranks); err != nil {
			return nil, err
		}
		resume = snap
	}

	ranks := cfg.Space.Ranks
	sims := make([]*Simulation, ranks)
	states := make([]checkpoint.RankState, ranks)

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = tui.ShowProgress(int64(cfg.Time.NumSteps), "stepping")
	}

	result := &Result{RunID: runID}
	started := time.Now()

	group := comm.NewGroup(ranks)
	err := group.Run(func(c *comm.Comm) error {
		s, err := New(cfg, c)
		if err != nil {
			return err
		}
		sims[c.Rank()] = s

		if resume != nil {
			st := resume.State(c.Rank())
			if st == nil {
				return errors.New(errors.CodeRankMismatch, "checkpoint has no state for rank").
					WithContext("rank", c.Rank())
			}
			if err := s.Restore(st, resume.Step, resume.Time); err != nil {
				return err
			}
			if c.IsRoot() && bar != nil {
				bar.Add(resume.Step)
			}
		}

		// Phase spans are root-only; per-rank spans at simulation rates
		// would swamp the collector.
		var stepSpan trace.Span
		if c.IsRoot() {
			_, stepSpan = telemetry.StartSpan(ctx, "stepping")
			defer stepSpan.End()
		}

		for s.step < cfg.Time.NumSteps {
			// Cancellation is decided collectively so no rank leaves a
			// neighbor blocked in a halo exchange.
			if interrupted(ctx, c) {
				return errors.New(errors.CodeInterrupted, "run interrupted").
					WithContext("step", s.step)
			}

			if err := s.Step(); err != nil {
				return err
			}

			if c.IsRoot() {
				if bar != nil {
					bar.Add(1)
				}
				if s.step%cfg.Time.Monitor.Interval == 0 {
					log.Infow("step",
						"step", s.step,
						"of", cfg.Time.NumSteps,
						"time", s.time,
						"elapsed", time.Since(started).Round(time.Millisecond),
						"beam_power", s.beam.Power(),
						"events", s.recorder.Count())
				}
			}

			if s.step%cfg.Time.Output.Interval == 0 {
				if err := s.WriteTemperature(opts.SnapshotDir); err != nil {
					return err
				}
			}

			if backend != nil && s.step%cfg.Checkpoint.Every == 0 {
				if err := saveCheckpoint(ctx, c, s, backend, states, runID, opts.Deck); err != nil {
					log.Warnw("checkpoint save failed; run continues", "error", err)
				}
			}
		}

		var exportSpan trace.Span
		if c.IsRoot() {
			stepSpan.End()
			_, exportSpan = telemetry.StartSpan(ctx, "export")
			defer exportSpan.End()
		}

		// Collective reductions come before per-rank output so every rank
		// reaches them.
		lower := s.recorder.LowerBounds(c)
		upper := s.recorder.UpperBounds(c)
		if c.IsRoot() {
			result.LowerBound = lower
			result.UpperBound = upper
		}

		if err := s.WriteEvents(); err != nil {
			return err
		}
		if opts.ExportParquet && cfg.Sampling.Enabled {
			if err := s.recorder.WriteParquet(cfg.Sampling.Directory, c.Rank()); err != nil {
				return err
			}
		}
		return nil
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(started)
	result.Steps = cfg.Time.NumSteps
	for _, s := range sims {
		result.Events += s.recorder.Count()
	}

	log.Infow("run complete",
		"run_id", result.RunID,
		"steps", result.Steps,
		"events", result.Events,
		"duration", result.Duration)
	return result, nil
}

// interrupted resolves context cancellation collectively: the run stops
// only when every rank agrees, which they do by reducing the flag.
func interrupted(ctx context.Context, c *comm.Comm) bool {
	flag := 0.0
	select {
	case <-ctx.Done():
		flag = 1.0
	default:
	}
	agreed := c.AllreduceMax([3]float64{flag, 0, 0})
	return agreed[0] > 0
}

// saveCheckpoint gathers every rank's state and has the root persist the
// snapshot. Collective.
func saveCheckpoint(ctx context.Context, c *comm.Comm, s *Simulation, backend checkpoint.Backend, states []checkpoint.RankState, runID, deck string) error {
	states[c.Rank()] = s.State()
	c.Barrier()

	var err error
	if c.IsRoot() {
		snap := &checkpoint.Snapshot{
			ID:      runID,
			Deck:    deck,
			Step:    s.step,
			Time:    s.time,
			Ranks:   c.Size(),
			SavedAt: time.Now().UTC(),
			States:  append([]checkpoint.RankState(nil), states...),
		}
		err = backend.Save(ctx, snap)
	}
	c.Barrier()
	return err
}
