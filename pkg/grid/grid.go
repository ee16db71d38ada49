package grid

import (
	"github.com/meltflow/meltflow/internal/comm"
)

// Local is one rank's slab of the global domain: the owned cell range,
// the temperature field pair, and the face boundary conditions that fall
// on this rank.
type Local struct {
	mesh     *Mesh
	comm     *comm.Comm
	boundary Boundary

	// slab extent along x
	xStart int

	nx, ny, nz int

	temperature *Field
	previous    *Field
}

// NewLocal decomposes the mesh across the communicator's ranks and builds
// this rank's slab, with both fields at the initial temperature and the
// ghost layer primed. A nil communicator means a single serial rank.
func NewLocal(c *comm.Comm, mesh *Mesh, boundary Boundary, initial float64) *Local {
	rank, size := 0, 1
	if c != nil {
		rank, size = c.Rank(), c.Size()
	}

	sizes := slabSizes(mesh.Cells[0], size)
	xStart := 0
	for r := 0; r < rank; r++ {
		xStart += sizes[r]
	}

	g := &Local{
		mesh:     mesh,
		comm:     c,
		boundary: boundary,
		xStart:   xStart,
		nx:       sizes[rank],
		ny:       mesh.Cells[1],
		nz:       mesh.Cells[2],
	}
	g.temperature = NewField(g.nx, g.ny, g.nz, initial)
	g.previous = NewField(g.nx, g.ny, g.nz, initial)

	// prime ghosts before the first step
	g.ApplyBoundaries()
	g.ExchangeHalos()
	return g
}

// OwnedRange returns the owned cell extents of this rank.
func (g *Local) OwnedRange() (nx, ny, nz int) {
	return g.nx, g.ny, g.nz
}

// Temperature returns the current temperature field.
func (g *Local) Temperature() *Field { return g.temperature }

// PreviousTemperature returns the previous-step snapshot field.
func (g *Local) PreviousTemperature() *Field { return g.previous }

// SnapshotPrevious copies the current temperature into the previous
// field. The stencil update reads only the snapshot.
func (g *Local) SnapshotPrevious() {
	g.previous.CopyFrom(g.temperature)
}

// CellSize returns the mesh cell size.
func (g *Local) CellSize() float64 { return g.mesh.CellSize }

// CellCenter returns the global coordinates of an owned cell's center.
func (g *Local) CellCenter(i, j, k int) [3]float64 {
	return g.mesh.CellCenter(g.xStart+i, j, k)
}

// Rank returns this slab's rank index.
func (g *Local) Rank() int {
	if g.comm == nil {
		return 0
	}
	return g.comm.Rank()
}

// onLowFace reports whether this rank touches the global x- face.
func (g *Local) onLowFace() bool { return g.Rank() == 0 }

// onHighFace reports whether this rank touches the global x+ face.
func (g *Local) onHighFace() bool {
	if g.comm == nil {
		return true
	}
	return g.comm.Rank() == g.comm.Size()-1
}

// ApplyBoundaries updates the ghost layer on every face of this slab
// that lies on the global domain boundary.
func (g *Local) ApplyBoundaries() {
	if g.onLowFace() {
		g.boundary.apply(g.temperature, 0)
	}
	if g.onHighFace() {
		g.boundary.apply(g.temperature, 1)
	}
	for face := 2; face < 6; face++ {
		g.boundary.apply(g.temperature, face)
	}
}

// ExchangeHalos swaps boundary planes with the slab neighbors. Blocking
// and collective: every rank must call it once per step.
func (g *Local) ExchangeHalos() {
	if g.comm == nil || g.comm.Size() == 1 {
		return
	}
	rank, size := g.comm.Rank(), g.comm.Size()

	// sends are buffered; post both before receiving
	if rank > 0 {
		g.comm.Send(rank-1, g.temperature.PlaneX(0))
	}
	if rank < size-1 {
		g.comm.Send(rank+1, g.temperature.PlaneX(g.nx-1))
	}

	if rank > 0 {
		g.temperature.SetPlaneX(-1, g.comm.Recv(rank-1))
	}
	if rank < size-1 {
		g.temperature.SetPlaneX(g.nx, g.comm.Recv(rank+1))
	}
}
