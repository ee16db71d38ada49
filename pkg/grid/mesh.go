// Package grid provides the structured grid the solver runs on: a uniform
// cell-centered mesh, dense scalar fields with a one-cell ghost margin,
// per-face boundary conditions, slab domain decomposition across ranks,
// and halo exchange between slab neighbors.
package grid

import "math"

// Mesh is the global uniform mesh.
type Mesh struct {
	LowCorner  [3]float64
	HighCorner [3]float64
	CellSize   float64

	// Cells is the global cell count per axis.
	Cells [3]int
}

// NewMesh builds the global mesh from the domain corners and cell size.
func NewMesh(low, high [3]float64, cellSize float64) *Mesh {
	m := &Mesh{
		LowCorner:  low,
		HighCorner: high,
		CellSize:   cellSize,
	}
	for d := 0; d < 3; d++ {
		m.Cells[d] = int(math.Round((high[d] - low[d]) / cellSize))
		if m.Cells[d] < 1 {
			m.Cells[d] = 1
		}
	}
	return m
}

// CellCenter returns the coordinates of the center of a global cell.
func (m *Mesh) CellCenter(i, j, k int) [3]float64 {
	return [3]float64{
		m.LowCorner[0] + (float64(i)+0.5)*m.CellSize,
		m.LowCorner[1] + (float64(j)+0.5)*m.CellSize,
		m.LowCorner[2] + (float64(k)+0.5)*m.CellSize,
	}
}

// slabSizes splits n cells across ranks as evenly as possible; the
// remainder goes to the lowest ranks one cell each.
func slabSizes(n, ranks int) []int {
	sizes := make([]int, ranks)
	base := n / ranks
	rem := n % ranks
	for r := range sizes {
		sizes[r] = base
		if r < rem {
			sizes[r]++
		}
	}
	return sizes
}
