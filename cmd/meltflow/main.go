// MeltFlow - transient heat transfer simulation with a moving laser
// source, for additive manufacturing process analysis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meltflow/meltflow/internal/log"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	deckFile    string
	verbose     bool
	ranksFlag   int
	resumeID    string
	snapshotDir string
	exportPq    bool
	noProgress  bool

	// genpath flags
	genMin       []float64
	genMax       []float64
	genAngle     float64
	genHatch     float64
	genRotations int
	genPower     float64
	genSpeed     float64
	genDwell     float64
	genBiDir     bool
	genOutDir    string

	// inspect/report flags
	exportDir string
	queryFlag string
	reportOut string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "meltflow",
	Short: "MeltFlow - transient heat transfer with a moving laser source",
	Long: `MeltFlow simulates transient heat conduction driven by a moving Gaussian
heat source over a scan path, and records solidification conditions
(cooling rate, thermal gradient) for microstructure analysis.

Decks are YAML files describing the domain, material, source, and scan path.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return log.Init(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Run command flags
	runCmd.Flags().StringVarP(&deckFile, "deck", "d", "", "Input deck path (required)")
	runCmd.Flags().IntVar(&ranksFlag, "ranks", 0, "Override the deck's rank count")
	runCmd.Flags().StringVar(&resumeID, "resume", "", "Checkpoint ID to resume from")
	runCmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "snapshots", "Temperature snapshot directory")
	runCmd.Flags().BoolVar(&exportPq, "parquet", false, "Also export events as Parquet")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	runCmd.MarkFlagRequired("deck")

	// Genpath command flags
	genpathCmd.Flags().Float64SliceVar(&genMin, "min", []float64{0, 0}, "Scan region lower corner (x,y in m)")
	genpathCmd.Flags().Float64SliceVar(&genMax, "max", []float64{1e-3, 1e-3}, "Scan region upper corner (x,y in m)")
	genpathCmd.Flags().Float64Var(&genAngle, "angle", 0, "Initial hatch angle (degrees)")
	genpathCmd.Flags().Float64Var(&genHatch, "hatch", 1e-4, "Hatch spacing (m)")
	genpathCmd.Flags().IntVar(&genRotations, "rotations", 1, "Number of layer rotations")
	genpathCmd.Flags().Float64Var(&genPower, "power", 100, "Beam power (W)")
	genpathCmd.Flags().Float64Var(&genSpeed, "speed", 0.5, "Scan speed (m/s)")
	genpathCmd.Flags().Float64Var(&genDwell, "dwell", 1e-4, "Dwell time between hatch lines (s)")
	genpathCmd.Flags().BoolVar(&genBiDir, "bidirectional", true, "Alternate hatch direction")
	genpathCmd.Flags().StringVarP(&genOutDir, "out", "o", ".", "Output directory")

	// Inspect command flags
	inspectCmd.Flags().StringVarP(&exportDir, "dir", "D", "solidification", "Event export directory")
	inspectCmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Raw SQL over the events view")

	// Report command flags
	reportCmd.Flags().StringVarP(&exportDir, "dir", "D", "solidification", "Event export directory")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "report.xlsx", "Output workbook path")

	// Watch command flags
	watchCmd.Flags().StringVarP(&deckFile, "deck", "d", "", "Input deck path (required)")
	watchCmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "snapshots", "Temperature snapshot directory")
	watchCmd.MarkFlagRequired("deck")

	// Checkpoints command flags
	checkpointsCmd.PersistentFlags().StringVarP(&deckFile, "deck", "d", "", "Input deck path (required)")
	checkpointsCmd.MarkPersistentFlagRequired("deck")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(genpathCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkpointsCmd)
}
