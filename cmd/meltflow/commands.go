package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meltflow/meltflow/internal/log"
	"github.com/meltflow/meltflow/pkg/beam"
	"github.com/meltflow/meltflow/pkg/checkpoint"
	"github.com/meltflow/meltflow/pkg/config"
	"github.com/meltflow/meltflow/pkg/inspect"
	"github.com/meltflow/meltflow/pkg/report"
	"github.com/meltflow/meltflow/pkg/sim"
	"github.com/meltflow/meltflow/pkg/telemetry"
	"github.com/meltflow/meltflow/pkg/tui"
	"github.com/meltflow/meltflow/pkg/watch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation deck",
	Long: `Run a deck to completion, writing solidification events and optional
temperature snapshots.

Examples:
  meltflow run -d deck.yaml
  meltflow run -d deck.yaml --ranks 4 --parquet
  meltflow run -d deck.yaml --resume 1a2b3c4d`,
	RunE: runSimulation,
}

var genpathCmd = &cobra.Command{
	Use:   "genpath",
	Short: "Generate serpentine scan path files",
	Long: `Generate raster scan path files for a rectangular region, one file per
layer rotation.

Examples:
  meltflow genpath --min 0,0 --max 1e-3,1e-3 --hatch 1e-4 --power 150 -o paths/`,
	RunE: runGenpath,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize an event export with SQL",
	Long: `Summarize the per-rank event CSVs, or run a raw SQL query against the
"events" view (columns: x, y, z, melt_time, solid_time, cooling_rate).

Examples:
  meltflow inspect -D solidification
  meltflow inspect -D solidification -q "SELECT count(*) FROM events WHERE cooling_rate > 1e6"`,
	RunE: runInspect,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build an XLSX report from an event export",
	RunE:  runReport,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the deck whenever it or the scan path changes",
	RunE:  runWatch,
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage run checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints",
	RunE:  runCheckpointsList,
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a stored checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointsDelete,
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsDeleteCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted, finishing current step...")
		cancel()
	}()
	return ctx, cancel
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(deckFile)
	if err != nil {
		return err
	}
	if ranksFlag > 0 {
		cfg.Space.Ranks = ranksFlag
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig(cfg.Telemetry.Endpoint))
		if err != nil {
			log.Warnw("telemetry disabled", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	tui.PrintBanner(version)

	res, err := execute(ctx, cfg, sim.Options{
		Deck:          deckFile,
		Resume:        resumeID,
		SnapshotDir:   snapshotDir,
		ExportParquet: exportPq,
		Progress:      !noProgress,
	})
	if err != nil {
		tui.PrintError(err)
		return err
	}

	tui.PrintRunSummary(tui.RunSummary{
		Steps:    res.Steps,
		Events:   res.Events,
		Duration: res.Duration,
	})
	return nil
}

// execute wraps one run in a trace span and prints the setup block.
func execute(ctx context.Context, cfg *config.Config, opts sim.Options) (*sim.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "run")
	defer span.End()

	mesh := cfg.Space.GlobalHighCorner
	cells := [3]int{}
	for d := 0; d < 3; d++ {
		cells[d] = int((mesh[d] - cfg.Space.GlobalLowCorner[d])/cfg.Space.CellSize + 0.5)
	}
	tui.PrintRunSetup(tui.RunSetup{
		RunID:    opts.Resume,
		Deck:     opts.Deck,
		Cells:    cells,
		Ranks:    cfg.Space.Ranks,
		TimeStep: cfg.Time.TimeStep,
		NumSteps: cfg.Time.NumSteps,
		Resumed:  opts.Resume != "",
	})

	res, err := sim.Run(ctx, cfg, opts)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return res, nil
}

func runGenpath(cmd *cobra.Command, args []string) error {
	if len(genMin) != 2 || len(genMax) != 2 {
		return fmt.Errorf("--min and --max take two values each (x,y)")
	}

	spec := beam.GenerateSpec{
		MinPoint:     [2]float64{genMin[0], genMin[1]},
		MaxPoint:     [2]float64{genMax[0], genMax[1]},
		Angle:        genAngle,
		Hatch:        genHatch,
		NumRotations: genRotations,
		Power:        genPower,
		Speed:        genSpeed,
		DwellTime:    genDwell,
		BiDirection:  genBiDir,
	}
	paths, err := beam.Generate(spec, genOutDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if queryFlag != "" {
		cols, rows, err := inspect.Query(ctx, exportDir, queryFlag)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for i, col := range cols {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, col)
		}
		fmt.Fprintln(w)
		for _, row := range rows {
			for i, v := range row {
				if i > 0 {
					fmt.Fprint(w, "\t")
				}
				fmt.Fprint(w, v)
			}
			fmt.Fprintln(w)
		}
		return w.Flush()
	}

	s, err := inspect.Summarize(ctx, exportDir)
	if err != nil {
		return err
	}
	fmt.Printf("Events:            %d\n", s.Events)
	fmt.Printf("Melt pool x (m):   [%.6e, %.6e]\n", s.MinX, s.MaxX)
	fmt.Printf("Melt pool y (m):   [%.6e, %.6e]\n", s.MinY, s.MaxY)
	fmt.Printf("Melt pool z (m):   [%.6e, %.6e]\n", s.MinZ, s.MaxZ)
	fmt.Printf("Solidified (s):    [%.6e, %.6e]\n", s.FirstSolidified, s.LastSolidified)
	fmt.Printf("Cooling rate (K/s): mean %.3e, max %.3e\n", s.MeanCoolingRate, s.MaxCoolingRate)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	stats, err := report.Generate(exportDir, reportOut)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d events)\n", reportOut, stats.Events)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rerun := func(string) error {
		cfg, err := config.Load(deckFile)
		if err != nil {
			return err
		}
		res, err := execute(ctx, cfg, sim.Options{
			Deck:        deckFile,
			SnapshotDir: snapshotDir,
			Progress:    false,
		})
		if err != nil {
			return err
		}
		log.Infow("re-run complete", "run_id", res.RunID, "events", res.Events)
		return nil
	}

	cfg, err := config.Load(deckFile)
	if err != nil {
		return err
	}

	w, err := watch.NewWatcher()
	if err != nil {
		return err
	}
	w.OnChange = rerun
	if err := w.Watch(deckFile); err != nil {
		return err
	}
	if err := w.Watch(cfg.Source.ScanPathFile); err != nil {
		return err
	}

	// Initial run, then block on changes.
	if err := rerun(deckFile); err != nil {
		tui.PrintError(err)
	}
	log.Infow("watching for changes", "deck", deckFile, "scan_path", cfg.Source.ScanPathFile)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	backend, err := backendFromDeck(ctx)
	if err != nil {
		return err
	}
	ids, err := backend.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No checkpoints.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTEP\tTIME\tRANKS\tSAVED")
	for _, id := range ids {
		snap, err := backend.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "%s\t?\t?\t?\t(unreadable)\n", id)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.6e\t%d\t%s\n",
			snap.ID, snap.Step, snap.Time, snap.Ranks, snap.SavedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runCheckpointsDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	backend, err := backendFromDeck(ctx)
	if err != nil {
		return err
	}
	if err := backend.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func backendFromDeck(ctx context.Context) (checkpoint.Backend, error) {
	cfg, err := config.Load(deckFile)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewBackend(ctx, cfg.Checkpoint)
}
