package model

import (
	"fmt"
	"math"
	"math/cmplx"
)

// DefaultTolerance is the element-wise tolerance used by the sanity
// predicates when callers do not supply their own.
const DefaultTolerance = 1e-5

// Matrix is a 2×2 complex matrix stored row-major:
// [0]=(0,0) [1]=(0,1) [2]=(1,0) [3]=(1,1).
//
// Matrices are small values; all arithmetic returns a new Matrix.
type Matrix [4]complex128

// Identity returns the 2×2 identity.
func Identity() Matrix {
	return Matrix{1, 0, 0, 1}
}

// NewMatrix builds a matrix from its four entries in row-major order.
func NewMatrix(a00, a01, a10, a11 complex128) Matrix {
	return Matrix{a00, a01, a10, a11}
}

// At returns the entry at (row, col).
func (m Matrix) At(row, col int) complex128 {
	return m[row*2+col]
}

// Add returns m + o.
func (m Matrix) Add(o Matrix) Matrix {
	return Matrix{m[0] + o[0], m[1] + o[1], m[2] + o[2], m[3] + o[3]}
}

// Sub returns m - o.
func (m Matrix) Sub(o Matrix) Matrix {
	return Matrix{m[0] - o[0], m[1] - o[1], m[2] - o[2], m[3] - o[3]}
}

// Mul returns the matrix product m·o.
func (m Matrix) Mul(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
	}
}

// Scale returns c·m.
func (m Matrix) Scale(c complex128) Matrix {
	return Matrix{c * m[0], c * m[1], c * m[2], c * m[3]}
}

// ScaleReal returns s·m.
func (m Matrix) ScaleReal(s float64) Matrix {
	return m.Scale(complex(s, 0))
}

// Adjoint returns the conjugate transpose m†.
func (m Matrix) Adjoint() Matrix {
	return Matrix{cmplx.Conj(m[0]), cmplx.Conj(m[2]), cmplx.Conj(m[1]), cmplx.Conj(m[3])}
}

// Trace returns m(0,0) + m(1,1).
func (m Matrix) Trace() complex128 {
	return m[0] + m[3]
}

// Det returns the determinant.
func (m Matrix) Det() complex128 {
	return m[0]*m[3] - m[1]*m[2]
}

// MaxAbs returns the largest absolute value of the real or imaginary part of
// any entry.
func (m Matrix) MaxAbs() float64 {
	largest := 0.0
	for _, v := range m {
		largest = math.Max(largest, math.Abs(real(v)))
		largest = math.Max(largest, math.Abs(imag(v)))
	}
	return largest
}

// IsFinite reports whether no entry is NaN or infinite.
func (m Matrix) IsFinite() bool {
	for _, v := range m {
		if cmplx.IsNaN(v) || cmplx.IsInf(v) {
			return false
		}
	}
	return true
}

// IsZero reports whether every real and imaginary part is within tol of zero.
func (m Matrix) IsZero(tol float64) bool {
	return m.IsFinite() && m.MaxAbs() <= tol
}

// IsEqual reports whether m and o agree element-wise within tol.
func (m Matrix) IsEqual(o Matrix, tol float64) bool {
	return m.Sub(o).IsZero(tol)
}

// IsHermitian reports whether m = m† within tol.
func (m Matrix) IsHermitian(tol float64) bool {
	return m.Sub(m.Adjoint()).IsZero(tol)
}

// IsUnity reports whether m is the identity within tol.
func (m Matrix) IsUnity(tol float64) bool {
	return m.IsEqual(Identity(), tol)
}

// IsUnitary reports whether m·m† = I within tol.
func (m Matrix) IsUnitary(tol float64) bool {
	return m.Mul(m.Adjoint()).IsUnity(tol)
}

// String renders the matrix on one line, rows separated by a semicolon.
func (m Matrix) String() string {
	return fmt.Sprintf("[%v %v; %v %v]", m[0], m[1], m[2], m[3])
}
