// Package lattice stores one 2×2 complex matrix per site and direction of a
// periodic four-dimensional hypercubic lattice.
//
// Storage is a single flat slice. The flat offset of (n1, n2, n3, n4, μ) is
//
//	n1·stride1 + n2·stride2 + n3·stride3 + n4·stride4 + μ
//
// with stride4 = Dims, stride3 = Dims·Ls, stride2 = Dims·Ls², stride1 = Dims·Ls³,
// so the flat order is time-major and direction-minor. The binary snapshot
// layout follows the same order.
package lattice

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/su2-hmc/model"
)

// Dims is the number of space-time directions.
const Dims = 4

var (
	// ErrInvalidExtents indicates a non-positive lattice extent.
	ErrInvalidExtents = errors.New("lattice extents must be positive")
	// ErrShapeMismatch indicates two fields with different extents.
	ErrShapeMismatch = errors.New("lattice shapes differ")
)

// Extents are the lattice sizes along time and the three space axes.
type Extents struct {
	LengthTime  int
	LengthSpace int
}

// Volume returns the number of lattice sites.
func (e Extents) Volume() int {
	return e.LengthTime * e.LengthSpace * e.LengthSpace * e.LengthSpace
}

// Validate checks that both extents are positive.
func (e Extents) Validate() error {
	if e.LengthTime < 1 || e.LengthSpace < 1 {
		return fmt.Errorf("%w: time=%d space=%d", ErrInvalidExtents, e.LengthTime, e.LengthSpace)
	}
	return nil
}

// Axis returns the extent of axis 0 (time) through 3.
func (e Extents) Axis(axis int) int {
	if axis == 0 {
		return e.LengthTime
	}
	return e.LengthSpace
}

func (e Extents) String() string {
	return fmt.Sprintf("%dx%d^3", e.LengthTime, e.LengthSpace)
}

// Coord is a site coordinate (n1 time, n2, n3, n4 space).
type Coord [Dims]int

// Shift returns c moved by steps along axis mu. The result may lie one step
// outside the primary range; Field look-ups wrap it.
func (c Coord) Shift(mu, steps int) Coord {
	c[mu] += steps
	return c
}

// Field is the dense, owned storage for a link or momentum configuration.
type Field struct {
	ext Extents

	stride1, stride2, stride3, stride4 int

	data []model.Matrix
}

// New allocates a zero-valued field for the given extents.
func New(ext Extents) (*Field, error) {
	if err := ext.Validate(); err != nil {
		return nil, err
	}
	ls := ext.LengthSpace
	f := &Field{
		ext:     ext,
		stride4: Dims,
		stride3: Dims * ls,
		stride2: Dims * ls * ls,
		stride1: Dims * ls * ls * ls,
	}
	f.data = make([]model.Matrix, ext.Volume()*Dims)
	return f, nil
}

// MustNew is New for extents already known to be valid.
func MustNew(ext Extents) *Field {
	f, err := New(ext)
	if err != nil {
		panic(err)
	}
	return f
}

// NewLike allocates a zero field with the same extents as f.
func NewLike(f *Field) *Field {
	return MustNew(f.ext)
}

// Extents returns the lattice extents.
func (f *Field) Extents() Extents { return f.ext }

// LengthTime returns the time extent.
func (f *Field) LengthTime() int { return f.ext.LengthTime }

// LengthSpace returns the spatial extent.
func (f *Field) LengthSpace() int { return f.ext.LengthSpace }

// Volume returns the number of sites.
func (f *Field) Volume() int { return f.ext.Volume() }

// Size returns the number of stored matrices (Volume·4).
func (f *Field) Size() int { return len(f.data) }

// SliceLen is the number of matrices in one time slice.
func (f *Field) SliceLen() int { return f.stride1 }

func wrap(n, extent, axis int) int {
	if n < -1 || n > extent {
		panic(fmt.Sprintf("lattice: coordinate %d on axis %d outside [-1, %d]", n, axis, extent))
	}
	return (n + extent) % extent
}

// Index returns the flat offset of (c, mu). Coordinates may be one step
// outside the lattice on any axis; anything further panics.
func (f *Field) Index(c Coord, mu int) int {
	if mu < 0 || mu >= Dims {
		panic(fmt.Sprintf("lattice: direction %d outside [0, %d)", mu, Dims))
	}
	return wrap(c[0], f.ext.LengthTime, 0)*f.stride1 +
		wrap(c[1], f.ext.LengthSpace, 1)*f.stride2 +
		wrap(c[2], f.ext.LengthSpace, 2)*f.stride3 +
		wrap(c[3], f.ext.LengthSpace, 3)*f.stride4 +
		mu
}

// Normalize maps an arbitrary coordinate onto the primary range.
func (f *Field) Normalize(c Coord) Coord {
	for axis := range c {
		extent := f.ext.Axis(axis)
		c[axis] = ((c[axis] % extent) + extent) % extent
	}
	return c
}

// Coord returns the site coordinate and direction stored at flat offset i.
func (f *Field) Coord(i int) (Coord, int) {
	mu := i % Dims
	i /= Dims
	ls := f.ext.LengthSpace
	var c Coord
	c[3] = i % ls
	i /= ls
	c[2] = i % ls
	i /= ls
	c[1] = i % ls
	c[0] = i / ls
	return c, mu
}

// At returns the matrix at (c, mu).
func (f *Field) At(c Coord, mu int) model.Matrix {
	return f.data[f.Index(c, mu)]
}

// Set stores m at (c, mu).
func (f *Field) Set(c Coord, mu int, m model.Matrix) {
	f.data[f.Index(c, mu)] = m
}

// Get is At with the coordinates spelled out.
func (f *Field) Get(n1, n2, n3, n4, mu int) model.Matrix {
	return f.At(Coord{n1, n2, n3, n4}, mu)
}

// Put is Set with the coordinates spelled out.
func (f *Field) Put(n1, n2, n3, n4, mu int, m model.Matrix) {
	f.Set(Coord{n1, n2, n3, n4}, mu, m)
}

// Flat returns the matrix at flat offset i.
func (f *Field) Flat(i int) model.Matrix { return f.data[i] }

// SetFlat stores m at flat offset i.
func (f *Field) SetFlat(i int, m model.Matrix) { f.data[i] = m }

// Fill stores m at every site and direction.
func (f *Field) Fill(m model.Matrix) {
	for i := range f.data {
		f.data[i] = m
	}
}

// ForSlice calls fn for every (coord, mu) of time slice n1 in flat order,
// passing the flat offset i alongside.
func (f *Field) ForSlice(n1 int, fn func(i int, c Coord, mu int)) {
	ls := f.ext.LengthSpace
	i := n1 * f.stride1
	for n2 := 0; n2 < ls; n2++ {
		for n3 := 0; n3 < ls; n3++ {
			for n4 := 0; n4 < ls; n4++ {
				c := Coord{n1, n2, n3, n4}
				for mu := 0; mu < Dims; mu++ {
					fn(i, c, mu)
					i++
				}
			}
		}
	}
}

// Clone returns an independent deep copy. Cost is O(Size).
func (f *Field) Clone() *Field {
	out := *f
	out.data = make([]model.Matrix, len(f.data))
	copy(out.data, f.data)
	return &out
}

// CopyFrom overwrites f with the contents of src without allocating.
func (f *Field) CopyFrom(src *Field) error {
	if f.ext != src.ext {
		return fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, f.ext, src.ext)
	}
	copy(f.data, src.data)
	return nil
}

// Equal reports whether f and o have the same extents and identical entries.
func (f *Field) Equal(o *Field) bool {
	if f.ext != o.ext {
		return false
	}
	for i := range f.data {
		if f.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

// MaxDistance returns the largest element-wise deviation between f and o.
func (f *Field) MaxDistance(o *Field) (float64, error) {
	if f.ext != o.ext {
		return 0, fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, f.ext, o.ext)
	}
	largest := 0.0
	for i := range f.data {
		if d := f.data[i].Sub(o.data[i]).MaxAbs(); d > largest {
			largest = d
		}
	}
	return largest, nil
}

// StorageBytes is the payload size of the field in the snapshot layout.
func (f *Field) StorageBytes() int {
	return len(f.data) * matrixBytes
}
