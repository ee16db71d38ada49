package grid

import "github.com/meltflow/meltflow/pkg/errors"

// Boundary condition kinds, one per face. The string names accepted in
// the input deck map onto these.
const (
	bcDirichlet = iota
	bcNeumann
	bcAdiabatic
)

// Face order: x-, x+, y-, y+, z-, z+.
var faceNames = [6]string{"x-", "x+", "y-", "y+", "z-", "z+"}

// Boundary applies one condition per face of the global domain.
type Boundary struct {
	kinds  [6]int
	values [6]float64
}

// NewBoundary parses the per-face condition types. Invalid type strings
// are configuration errors.
func NewBoundary(types [6]string, values [6]float64) (Boundary, error) {
	var b Boundary
	b.values = values
	for d, s := range types {
		switch s {
		case "dirichlet":
			b.kinds[d] = bcDirichlet
		case "neumann":
			b.kinds[d] = bcNeumann
		case "adiabatic", "":
			b.kinds[d] = bcAdiabatic
		default:
			return Boundary{}, errors.InvalidBoundary(faceNames[d], s)
		}
	}
	return b, nil
}

// apply updates the ghost layer of one face. The plane normal points out
// of the domain; ghost cells sit one cell outside the owned range.
//
// dirichlet pins the ghost to the configured value, neumann increments
// it by the configured flux value, adiabatic mirrors the first interior
// cell (zero gradient).
func (b Boundary) apply(f *Field, face int) {
	kind := b.kinds[face]
	value := b.values[face]

	axis := face / 2
	dir := -1
	if face%2 == 1 {
		dir = 1
	}

	n := [3]int{f.NX, f.NY, f.NZ}

	// ghost index along the face axis, and its interior neighbor
	g := -1
	if dir == 1 {
		g = n[axis]
	}

	var lo, hi [3]int
	for d := 0; d < 3; d++ {
		lo[d], hi[d] = -GhostWidth, n[d]+GhostWidth
	}
	lo[axis], hi[axis] = g, g+1

	for i := lo[0]; i < hi[0]; i++ {
		for j := lo[1]; j < hi[1]; j++ {
			for k := lo[2]; k < hi[2]; k++ {
				switch kind {
				case bcDirichlet:
					f.Set(i, j, k, value)
				case bcNeumann:
					f.Add(i, j, k, value)
				default:
					ii, jj, kk := i, j, k
					switch axis {
					case 0:
						ii -= dir
					case 1:
						jj -= dir
					case 2:
						kk -= dir
					}
					f.Set(i, j, k, f.At(ii, jj, kk))
				}
			}
		}
	}
}
