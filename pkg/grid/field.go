package grid

// GhostWidth is the ghost margin around the owned cells. It matches the
// stencil radius of the solver.
const GhostWidth = 1

// Field is a dense scalar array over an owned index range plus the ghost
// margin. Owned indices run [0, N); ghost indices are -1 and N per axis.
type Field struct {
	NX, NY, NZ int // owned extents

	data []float64

	// strides for the padded array
	sy, sx int
}

// NewField allocates a field of the given owned extents, filled with the
// initial value everywhere including ghosts.
func NewField(nx, ny, nz int, initial float64) *Field {
	py, pz := ny+2*GhostWidth, nz+2*GhostWidth
	f := &Field{
		NX: nx, NY: ny, NZ: nz,
		data: make([]float64, (nx+2*GhostWidth)*py*pz),
		sy:   pz,
		sx:   py * pz,
	}
	if initial != 0 {
		for i := range f.data {
			f.data[i] = initial
		}
	}
	return f
}

// idx maps owned-relative indices (ghosts at -1 and N) to the flat array.
func (f *Field) idx(i, j, k int) int {
	return (i+GhostWidth)*f.sx + (j+GhostWidth)*f.sy + (k + GhostWidth)
}

// At returns the value at (i, j, k).
func (f *Field) At(i, j, k int) float64 {
	return f.data[f.idx(i, j, k)]
}

// Set stores a value at (i, j, k).
func (f *Field) Set(i, j, k int, v float64) {
	f.data[f.idx(i, j, k)] = v
}

// Add increments the value at (i, j, k).
func (f *Field) Add(i, j, k int, v float64) {
	f.data[f.idx(i, j, k)] += v
}

// CopyFrom copies every value (ghosts included) from another field of the
// same shape. The two fields must never alias.
func (f *Field) CopyFrom(src *Field) {
	copy(f.data, src.data)
}

// PlaneX extracts the x-plane at owned index i (ghost corners included)
// into a flat slice of (NY+2)*(NZ+2) values.
func (f *Field) PlaneX(i int) []float64 {
	py, pz := f.NY+2*GhostWidth, f.NZ+2*GhostWidth
	out := make([]float64, py*pz)
	base := (i + GhostWidth) * f.sx
	copy(out, f.data[base:base+py*pz])
	return out
}

// SetPlaneX stores a flat plane slice at owned index i.
func (f *Field) SetPlaneX(i int, plane []float64) {
	base := (i + GhostWidth) * f.sx
	copy(f.data[base:], plane)
}

// Owned copies the owned cells (no ghosts) into a flat slice in i-major
// order.
func (f *Field) Owned() []float64 {
	out := make([]float64, f.NX*f.NY*f.NZ)
	n := 0
	for i := 0; i < f.NX; i++ {
		for j := 0; j < f.NY; j++ {
			for k := 0; k < f.NZ; k++ {
				out[n] = f.At(i, j, k)
				n++
			}
		}
	}
	return out
}

// SetOwned restores the owned cells from a flat slice produced by Owned.
// Ghosts are untouched; callers refresh them afterwards.
func (f *Field) SetOwned(values []float64) {
	n := 0
	for i := 0; i < f.NX; i++ {
		for j := 0; j < f.NY; j++ {
			for k := 0; k < f.NZ; k++ {
				f.Set(i, j, k, values[n])
				n++
			}
		}
	}
}

// Sum returns the sum over the owned cells only.
func (f *Field) Sum() float64 {
	var s float64
	for i := 0; i < f.NX; i++ {
		for j := 0; j < f.NY; j++ {
			for k := 0; k < f.NZ; k++ {
				s += f.At(i, j, k)
			}
		}
	}
	return s
}
