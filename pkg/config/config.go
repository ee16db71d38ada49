// Package config loads and validates the MeltFlow input deck.
// Decks are YAML (JSON decks parse as well); derived quantities such as
// the time step are computed once at load.
package config

import (
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/meltflow/meltflow/pkg/errors"
)

// Output controls how often a periodic action (field dumps, monitoring)
// fires during the run.
type Output struct {
	// TotalSteps is the requested number of occurrences over the whole run.
	// Zero disables the action.
	TotalSteps int `yaml:"total_steps"`

	// Interval is derived at load: the action fires every Interval steps.
	Interval int `yaml:"-"`
}

// SetInterval derives the step interval from the requested occurrence count.
// A zero request maps to an interval past the end of the run; otherwise the
// interval is bounded to [1, numSteps].
func (o *Output) SetInterval(numSteps int) {
	if o.TotalSteps == 0 {
		o.Interval = numSteps + 1
		return
	}
	o.Interval = numSteps / o.TotalSteps
	if o.Interval > numSteps {
		o.Interval = numSteps
	}
	if o.Interval < 1 {
		o.Interval = 1
	}
}

// Time holds the temporal discretization inputs.
type Time struct {
	// Co is the Courant number used to derive the time step.
	Co        float64 `yaml:"co"`
	StartTime float64 `yaml:"start_time"`
	EndTime   float64 `yaml:"end_time"`

	Output  Output `yaml:"output"`
	Monitor Output `yaml:"monitor"`

	// Derived at load.
	TimeStep float64 `yaml:"-"`
	NumSteps int     `yaml:"-"`
}

// Space holds the spatial discretization inputs.
type Space struct {
	InitialTemperature float64    `yaml:"initial_temperature"`
	CellSize           float64    `yaml:"cell_size"`
	GlobalLowCorner    [3]float64 `yaml:"global_low_corner"`
	GlobalHighCorner   [3]float64 `yaml:"global_high_corner"`

	// Ranks is the number of in-process ranks the domain is decomposed
	// across. Zero means one rank.
	Ranks int `yaml:"ranks"`
}

// Source holds the moving heat source inputs.
type Source struct {
	Absorption   float64    `yaml:"absorption"`
	TwoSigma     [3]float64 `yaml:"two_sigma"`
	ScanPathFile string     `yaml:"scan_path_file"`
}

// Properties holds the material property inputs.
type Properties struct {
	Density             float64 `yaml:"density"`
	SpecificHeat        float64 `yaml:"specific_heat"`
	ThermalConductivity float64 `yaml:"thermal_conductivity"`
	LatentHeat          float64 `yaml:"latent_heat"`
	Solidus             float64 `yaml:"solidus"`
	Liquidus            float64 `yaml:"liquidus"`

	// Derived at load.
	ThermalDiffusivity float64 `yaml:"-"`
}

// Sampling controls solidification event recording and export.
type Sampling struct {
	Enabled   bool   `yaml:"enabled"`
	Type      string `yaml:"type"`   // solidification_data
	Format    string `yaml:"format"` // default | exaca
	Directory string `yaml:"directory"`
}

// BoundaryFace configures one face of the domain.
type BoundaryFace struct {
	Type  string  `yaml:"type"` // dirichlet | neumann | adiabatic
	Value float64 `yaml:"value"`
}

// Checkpoint configures run checkpointing.
type Checkpoint struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"` // local | redis | s3
	Dir     string `yaml:"dir"`

	// Every is the checkpoint interval in steps.
	Every int `yaml:"every"`

	Redis RedisBackend `yaml:"redis"`
	S3    S3Backend    `yaml:"s3"`
}

// RedisBackend holds Redis checkpoint backend settings.
type RedisBackend struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
}

// S3Backend holds S3 checkpoint backend settings. Credentials are
// optional; the default AWS chain applies when unset.
type S3Backend struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Telemetry configures optional OTLP trace export.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Config is the full MeltFlow input deck.
type Config struct {
	Time       Time            `yaml:"time"`
	Space      Space           `yaml:"space"`
	Source     Source          `yaml:"source"`
	Properties Properties      `yaml:"properties"`
	Sampling   Sampling        `yaml:"sampling"`
	Boundaries [6]BoundaryFace `yaml:"boundaries"`
	Checkpoint Checkpoint      `yaml:"checkpoint"`
	Telemetry  Telemetry       `yaml:"telemetry"`
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{
		Time: Time{
			Co: 0.25,
			Output: Output{
				TotalSteps: 0,
			},
			Monitor: Output{
				TotalSteps: 10,
			},
		},
		Space: Space{
			InitialTemperature: 300.0,
			Ranks:              1,
		},
		Source: Source{
			Absorption: 1.0,
		},
		Sampling: Sampling{
			Type:      "solidification_data",
			Format:    "default",
			Directory: "solidification",
		},
		Checkpoint: Checkpoint{
			Backend: "local",
			Dir:     "checkpoints",
		},
	}
	for d := range cfg.Boundaries {
		cfg.Boundaries[d] = BoundaryFace{Type: "adiabatic"}
	}
	return cfg
}

// Load reads a deck file, merges it over the defaults, applies environment
// overrides, and computes the derived quantities.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(path)
		}
		return nil, errors.Wrap(err, errors.CodeInvalidDeck, "cannot read input deck")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidDeck, "cannot parse input deck").
			WithContext("path", path)
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Finalize()
	return cfg, nil
}

// loadEnv applies environment variable overrides.
func (c *Config) loadEnv() {
	if v := os.Getenv("MELTFLOW_RANKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Space.Ranks = n
		}
	}
	if v := os.Getenv("MELTFLOW_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
}

// Validate checks the deck for fatal configuration errors.
func (c *Config) Validate() error {
	if c.Space.CellSize <= 0 {
		return errors.New(errors.CodeInvalidValue, "cell size must be positive").
			WithContext("cell_size", c.Space.CellSize)
	}
	for d := 0; d < 3; d++ {
		if c.Space.GlobalHighCorner[d] <= c.Space.GlobalLowCorner[d] {
			return errors.New(errors.CodeInvalidValue, "domain corners are inverted").
				WithContext("axis", d)
		}
	}
	if c.Properties.Density <= 0 || c.Properties.SpecificHeat <= 0 ||
		c.Properties.ThermalConductivity <= 0 {
		return errors.New(errors.CodeInvalidValue, "material properties must be positive")
	}
	if c.Properties.Liquidus < c.Properties.Solidus {
		return errors.New(errors.CodeInvalidValue, "liquidus below solidus").
			WithContext("solidus", c.Properties.Solidus).
			WithContext("liquidus", c.Properties.Liquidus)
	}
	if c.Time.EndTime <= c.Time.StartTime {
		return errors.New(errors.CodeInvalidValue, "end time must exceed start time")
	}
	if c.Time.Co <= 0 {
		return errors.New(errors.CodeInvalidValue, "courant number must be positive").
			WithContext("co", c.Time.Co)
	}
	if c.Source.ScanPathFile == "" {
		return errors.New(errors.CodeInvalidScanPath, "scan path file not set")
	}
	for d, b := range c.Boundaries {
		switch b.Type {
		case "dirichlet", "neumann", "adiabatic":
		default:
			return errors.InvalidBoundary(faceName(d), b.Type)
		}
	}
	switch c.Sampling.Format {
	case "", "default", "exaca":
	default:
		return errors.New(errors.CodeInvalidValue, "unknown sampling format").
			WithContext("format", c.Sampling.Format)
	}
	return nil
}

// Finalize computes the derived quantities. Validate must have passed.
func (c *Config) Finalize() {
	p := &c.Properties

	p.ThermalDiffusivity = p.ThermalConductivity / (p.Density * p.SpecificHeat)

	// The magnitude of the source spread is what matters.
	for d := 0; d < 3; d++ {
		c.Source.TwoSigma[d] = math.Abs(c.Source.TwoSigma[d])
	}

	t := &c.Time
	dx := c.Space.CellSize
	t.TimeStep = t.Co * dx * dx / p.ThermalDiffusivity
	t.NumSteps = int((t.EndTime - t.StartTime) / t.TimeStep)

	t.Output.SetInterval(t.NumSteps)
	t.Monitor.SetInterval(t.NumSteps)

	if c.Space.Ranks < 1 {
		c.Space.Ranks = 1
	}
	if c.Checkpoint.Every < 1 {
		c.Checkpoint.Every = t.Monitor.Interval
	}
	if c.Sampling.Format == "" {
		c.Sampling.Format = "default"
	}
}

// StableCourant reports whether the configured Courant number is inside the
// 3-D FTCS stability bound. The limit is not enforced; callers log it.
func (c *Config) StableCourant() bool {
	return c.Time.Co <= 1.0/6.0
}

func faceName(d int) string {
	names := [6]string{"x-", "x+", "y-", "y+", "z-", "z+"}
	if d < 0 || d >= 6 {
		return "?"
	}
	return names[d]
}
