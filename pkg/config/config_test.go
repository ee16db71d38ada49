package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/meltflow/meltflow/pkg/errors"
)

const testDeck = `
time:
  co: 0.2
  start_time: 0.0
  end_time: 0.001
  output:
    total_steps: 5
space:
  initial_temperature: 300.0
  cell_size: 25.0e-6
  global_low_corner: [0.0, 0.0, 0.0]
  global_high_corner: [1.0e-3, 1.0e-3, 0.5e-3]
  ranks: 2
source:
  absorption: 0.35
  two_sigma: [-85.0e-6, 85.0e-6, 60.0e-6]
  scan_path_file: scan.txt
properties:
  density: 7900.0
  specific_heat: 500.0
  thermal_conductivity: 20.0
  latent_heat: 2.6e5
  solidus: 1658.0
  liquidus: 1723.0
sampling:
  enabled: true
  format: exaca
boundaries:
  - type: adiabatic
  - type: adiabatic
  - type: adiabatic
  - type: adiabatic
  - type: adiabatic
  - type: dirichlet
    value: 300.0
`

func writeDeck(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write deck: %v", err)
	}
	return path
}

func TestLoadDeck(t *testing.T) {
	cfg, err := Load(writeDeck(t, testDeck))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Time.Co != 0.2 {
		t.Errorf("Co = %v, want 0.2", cfg.Time.Co)
	}
	if cfg.Space.Ranks != 2 {
		t.Errorf("Ranks = %d, want 2", cfg.Space.Ranks)
	}
	if cfg.Sampling.Format != "exaca" {
		t.Errorf("Format = %q, want exaca", cfg.Sampling.Format)
	}
	if cfg.Boundaries[5].Type != "dirichlet" || cfg.Boundaries[5].Value != 300.0 {
		t.Errorf("z+ boundary = %+v, want dirichlet 300", cfg.Boundaries[5])
	}

	// Defaults survive a partial deck.
	if cfg.Sampling.Directory != "solidification" {
		t.Errorf("Directory = %q, want default", cfg.Sampling.Directory)
	}
}

func TestLoadDerivedQuantities(t *testing.T) {
	cfg, err := Load(writeDeck(t, testDeck))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	alpha := 20.0 / (7900.0 * 500.0)
	if got := cfg.Properties.ThermalDiffusivity; math.Abs(got-alpha) > 1e-18 {
		t.Errorf("ThermalDiffusivity = %v, want %v", got, alpha)
	}

	dx := 25.0e-6
	wantDt := 0.2 * dx * dx / alpha
	if got := cfg.Time.TimeStep; math.Abs(got-wantDt)/wantDt > 1e-12 {
		t.Errorf("TimeStep = %v, want %v", got, wantDt)
	}
	if got, want := cfg.Time.NumSteps, int(0.001/wantDt); got != want {
		t.Errorf("NumSteps = %d, want %d", got, want)
	}

	// Negative spreads are magnitudes.
	if cfg.Source.TwoSigma[0] != 85.0e-6 {
		t.Errorf("TwoSigma[0] = %v, want 85e-6", cfg.Source.TwoSigma[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() on missing file succeeded, want error")
	}
	if errors.GetCode(err) != errors.CodeFileNotFound {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.CodeFileNotFound)
	}
}

func TestSetInterval(t *testing.T) {
	tests := []struct {
		name       string
		totalSteps int
		numSteps   int
		want       int
	}{
		{"disabled maps past the end", 0, 100, 101},
		{"even split", 10, 100, 10},
		{"more requests than steps clamps to one", 200, 100, 1},
		{"single request", 1, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Output{TotalSteps: tt.totalSteps}
			o.SetInterval(tt.numSteps)
			if o.Interval != tt.want {
				t.Errorf("Interval = %d, want %d", o.Interval, tt.want)
			}
		})
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cell size", func(c *Config) { c.Space.CellSize = 0 }},
		{"inverted corners", func(c *Config) { c.Space.GlobalHighCorner[1] = -1 }},
		{"negative density", func(c *Config) { c.Properties.Density = -1 }},
		{"liquidus below solidus", func(c *Config) { c.Properties.Liquidus = c.Properties.Solidus - 1 }},
		{"end before start", func(c *Config) { c.Time.EndTime = c.Time.StartTime }},
		{"zero courant", func(c *Config) { c.Time.Co = 0 }},
		{"no scan path", func(c *Config) { c.Source.ScanPathFile = "" }},
		{"bad boundary", func(c *Config) { c.Boundaries[0].Type = "mirror" }},
		{"bad format", func(c *Config) { c.Sampling.Format = "csv2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeDeck(t, testDeck))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MELTFLOW_RANKS", "8")
	t.Setenv("MELTFLOW_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load(writeDeck(t, testDeck))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Space.Ranks != 8 {
		t.Errorf("Ranks = %d, want 8 from environment", cfg.Space.Ranks)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("Telemetry = %+v, want enabled with endpoint", cfg.Telemetry)
	}
}

func TestStableCourant(t *testing.T) {
	cfg := Default()
	cfg.Time.Co = 1.0 / 6.0
	if !cfg.StableCourant() {
		t.Error("StableCourant() = false at the bound, want true")
	}
	cfg.Time.Co = 0.25
	if cfg.StableCourant() {
		t.Error("StableCourant() = true past the bound, want false")
	}
}
