// Package solver advances the temperature field one explicit step under
// diffusion, latent heat, and the moving Gaussian source (FTCS scheme).
package solver

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/meltflow/meltflow/pkg/config"
	"github.com/meltflow/meltflow/pkg/errors"
	"github.com/meltflow/meltflow/pkg/grid"
)

// Properties holds the scalar constants the per-cell update needs,
// derived once from the input deck.
type Properties struct {
	Dt       float64
	Solidus  float64
	Liquidus float64

	// RhoCp is density * specific heat; RhoLfByDT adds the latent heat
	// released over the mushy zone as a boosted apparent heat capacity.
	RhoCp     float64
	RhoLfByDT float64

	// KByDx2 is thermal conductivity / cell size squared.
	KByDx2 float64

	// Gaussian source shape: per-axis radius, inverse variance, peak
	// intensity, and the normalized-weight cutoff.
	R    [3]float64
	AInv [3]float64
	I0   float64
	WMax float64
}

// NewProperties derives the solver constants from the deck.
func NewProperties(cfg *config.Config) Properties {
	p := Properties{
		Dt:       cfg.Time.TimeStep,
		Solidus:  cfg.Properties.Solidus,
		Liquidus: cfg.Properties.Liquidus,
	}

	dx := cfg.Space.CellSize
	rho := cfg.Properties.Density
	cp := cfg.Properties.SpecificHeat
	lf := cfg.Properties.LatentHeat

	p.RhoCp = rho * cp
	p.RhoLfByDT = rho * lf / (p.Liquidus - p.Solidus)
	p.KByDx2 = cfg.Properties.ThermalConductivity / (dx * dx)

	for d := 0; d < 3; d++ {
		p.R[d] = cfg.Source.TwoSigma[d] / math.Sqrt2
		p.AInv[d] = 1.0 / (p.R[d] * p.R[d])
	}
	p.I0 = (2.0 * cfg.Source.Absorption) /
		(math.Pi * math.Sqrt(math.Pi) * p.R[0] * p.R[1] * p.R[2])

	// cut off 3 standard deviations from the source center
	p.WMax = math.Log(3) + 2*math.Log(10)

	return p
}

// Solver executes the per-cell update over a rank's owned range.
type Solver struct {
	props   Properties
	workers int

	// beam state for the current step
	power    float64
	position [3]float64
}

// New creates a solver. workers <= 0 uses GOMAXPROCS.
func New(props Properties, workers int) *Solver {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Solver{props: props, workers: workers}
}

// Solve computes the updated temperature for every owned cell from the
// previous-step snapshot. Neighbor reads come only from the snapshot, so
// the result is independent of the order cells are visited in.
func (s *Solver) Solve(g *grid.Local, beamPower float64, beamPos [3]float64) error {
	s.power = beamPower
	s.position = beamPos

	nx, _, _ := g.OwnedRange()
	workers := s.workers
	if workers > nx {
		workers = nx
	}
	if workers < 1 {
		workers = 1
	}

	// slab the x range across workers; slabs are disjoint so writes
	// never overlap
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
			return s.solveSlab(g, lo, hi)
		})
	}
	return eg.Wait()
}

func (s *Solver) solveSlab(g *grid.Local, lo, hi int) error {
	p := s.props
	T := g.Temperature()
	T0 := g.PreviousTemperature()
	_, ny, nz := g.OwnedRange()

	for i := lo; i < hi; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				x := T0.At(i, j, k)

				dtByRhoCp := p.Dt / p.RhoCp
				if x >= p.Solidus && x <= p.Liquidus {
					dtByRhoCp = p.Dt / (p.RhoCp + p.RhoLfByDT)
				}

				rhs := s.laplacian(T0, i, j, k) + s.source(g, i, j, k)

				v := x + rhs*dtByRhoCp
				if math.IsNaN(v) {
					return errors.New(errors.CodeSolverFailed, "temperature update produced NaN").
						WithContext("cell", [3]int{i, j, k})
				}
				T.Set(i, j, k, v)
			}
		}
	}
	return nil
}

// laplacian is the 7-point centered stencil over the snapshot.
func (s *Solver) laplacian(T0 *grid.Field, i, j, k int) float64 {
	return (T0.At(i-1, j, k) + T0.At(i+1, j, k) +
		T0.At(i, j-1, k) + T0.At(i, j+1, k) +
		T0.At(i, j, k-1) + T0.At(i, j, k+1) -
		6.0*T0.At(i, j, k)) * s.props.KByDx2
}

// weight is the normalized Gaussian exponent at a cell center.
func (s *Solver) weight(g *grid.Local, i, j, k int) float64 {
	pt := g.CellCenter(i, j, k)
	var w float64
	for d := 0; d < 3; d++ {
		dist := pt[d] - s.position[d]
		w += dist * dist * s.props.AInv[d]
	}
	return w
}

// source is the beam heating term. Beyond the cutoff radius the
// contribution is exactly zero, skipping the exponential.
func (s *Solver) source(g *grid.Local, i, j, k int) float64 {
	if s.power == 0 {
		return 0
	}
	w := s.weight(g, i, j, k)
	if w >= s.props.WMax {
		return 0
	}
	return s.props.I0 * s.power * math.Exp(-w)
}
