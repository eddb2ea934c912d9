package paeth

import "math"

// Float is the element type of matrices, shear descriptors and pixel
// buffers. Every operation in this package is generic over it so that the
// same code serves single and double precision pipelines.
type Float interface {
	float32 | float64
}

// Mat2 is a 2x2 matrix in row-major order:
//
//	| M11  M12 |
//	| M21  M22 |
//
// It acts on column vectors: (x', y') = M * (x, y).
type Mat2[T Float] struct {
	M11, M12 T
	M21, M22 T
}

// Identity2 returns the 2x2 identity matrix.
func Identity2[T Float]() Mat2[T] {
	return Mat2[T]{M11: 1, M22: 1}
}

// Rotation2 returns the counter-clockwise rotation by angle radians.
func Rotation2[T Float](angle float64) Mat2[T] {
	sin, cos := math.Sincos(angle)
	return Mat2[T]{
		M11: T(cos), M12: T(-sin),
		M21: T(sin), M22: T(cos),
	}
}

// Mul returns m * o.
func (m Mat2[T]) Mul(o Mat2[T]) Mat2[T] {
	return Mat2[T]{
		M11: m.M11*o.M11 + m.M12*o.M21,
		M12: m.M11*o.M12 + m.M12*o.M22,
		M21: m.M21*o.M11 + m.M22*o.M21,
		M22: m.M21*o.M12 + m.M22*o.M22,
	}
}

// Apply transforms the column vector (x, y).
func (m Mat2[T]) Apply(x, y T) (T, T) {
	return m.M11*x + m.M12*y, m.M21*x + m.M22*y
}

// Det returns the determinant.
func (m Mat2[T]) Det() T {
	return m.M11*m.M22 - m.M12*m.M21
}

// Transpose returns the transposed matrix.
func (m Mat2[T]) Transpose() Mat2[T] {
	return Mat2[T]{M11: m.M11, M12: m.M21, M21: m.M12, M22: m.M22}
}

// Inverse returns the inverse matrix.
// The second result is false if the matrix is singular.
func (m Mat2[T]) Inverse() (Mat2[T], bool) {
	det := m.Det()
	if det == 0 {
		return Mat2[T]{}, false
	}
	inv := 1 / det
	return Mat2[T]{
		M11: m.M22 * inv, M12: -m.M12 * inv,
		M21: -m.M21 * inv, M22: m.M11 * inv,
	}, true
}

// ApproxEqual reports whether every element of m is within tol of o.
func (m Mat2[T]) ApproxEqual(o Mat2[T], tol T) bool {
	return abs(m.M11-o.M11) <= tol && abs(m.M12-o.M12) <= tol &&
		abs(m.M21-o.M21) <= tol && abs(m.M22-o.M22) <= tol
}

// IsRotation reports whether m is orthonormal with determinant +1
// within tol.
func (m Mat2[T]) IsRotation(tol T) bool {
	return m.Transpose().Mul(m).ApproxEqual(Identity2[T](), tol) && abs(m.Det()-1) <= tol
}

// Mat3 is a 3x3 matrix in row-major order acting on column vectors.
type Mat3[T Float] struct {
	M11, M12, M13 T
	M21, M22, M23 T
	M31, M32, M33 T
}

// Identity3 returns the 3x3 identity matrix.
func Identity3[T Float]() Mat3[T] {
	return Mat3[T]{M11: 1, M22: 1, M33: 1}
}

// Rotation3 returns the rotation described by an axis-angle vector: the
// rotation axis is axis/|axis| and the angle in radians is |axis|.
// A zero vector yields the identity.
func Rotation3[T Float](axis [3]float64) Mat3[T] {
	angle := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if angle == 0 {
		return Identity3[T]()
	}
	x, y, z := axis[0]/angle, axis[1]/angle, axis[2]/angle
	sin, cos := math.Sincos(angle)
	t := 1 - cos

	// Rodrigues: R = I + sin*K + (1-cos)*K^2
	return Mat3[T]{
		M11: T(cos + x*x*t), M12: T(x*y*t - z*sin), M13: T(x*z*t + y*sin),
		M21: T(y*x*t + z*sin), M22: T(cos + y*y*t), M23: T(y*z*t - x*sin),
		M31: T(z*x*t - y*sin), M32: T(z*y*t + x*sin), M33: T(cos + z*z*t),
	}
}

// Row returns row i (0-based).
func (m Mat3[T]) Row(i int) [3]T {
	switch i {
	case 0:
		return [3]T{m.M11, m.M12, m.M13}
	case 1:
		return [3]T{m.M21, m.M22, m.M23}
	case 2:
		return [3]T{m.M31, m.M32, m.M33}
	}
	panic("paeth: Mat3 row index out of range")
}

// Mul returns m * o.
func (m Mat3[T]) Mul(o Mat3[T]) Mat3[T] {
	return Mat3[T]{
		M11: m.M11*o.M11 + m.M12*o.M21 + m.M13*o.M31,
		M12: m.M11*o.M12 + m.M12*o.M22 + m.M13*o.M32,
		M13: m.M11*o.M13 + m.M12*o.M23 + m.M13*o.M33,

		M21: m.M21*o.M11 + m.M22*o.M21 + m.M23*o.M31,
		M22: m.M21*o.M12 + m.M22*o.M22 + m.M23*o.M32,
		M23: m.M21*o.M13 + m.M22*o.M23 + m.M23*o.M33,

		M31: m.M31*o.M11 + m.M32*o.M21 + m.M33*o.M31,
		M32: m.M31*o.M12 + m.M32*o.M22 + m.M33*o.M32,
		M33: m.M31*o.M13 + m.M32*o.M23 + m.M33*o.M33,
	}
}

// Apply transforms the column vector (x, y, z).
func (m Mat3[T]) Apply(x, y, z T) (T, T, T) {
	return m.M11*x + m.M12*y + m.M13*z,
		m.M21*x + m.M22*y + m.M23*z,
		m.M31*x + m.M32*y + m.M33*z
}

// Det returns the determinant.
func (m Mat3[T]) Det() T {
	return m.M11*(m.M22*m.M33-m.M23*m.M32) -
		m.M12*(m.M21*m.M33-m.M23*m.M31) +
		m.M13*(m.M21*m.M32-m.M22*m.M31)
}

// Transpose returns the transposed matrix.
func (m Mat3[T]) Transpose() Mat3[T] {
	return Mat3[T]{
		M11: m.M11, M12: m.M21, M13: m.M31,
		M21: m.M12, M22: m.M22, M23: m.M32,
		M31: m.M13, M32: m.M23, M33: m.M33,
	}
}

// Inverse returns the inverse matrix computed from the adjugate.
// The second result is false if the matrix is singular.
func (m Mat3[T]) Inverse() (Mat3[T], bool) {
	det := m.Det()
	if det == 0 {
		return Mat3[T]{}, false
	}
	inv := 1 / det
	return Mat3[T]{
		M11: (m.M22*m.M33 - m.M23*m.M32) * inv,
		M12: (m.M13*m.M32 - m.M12*m.M33) * inv,
		M13: (m.M12*m.M23 - m.M13*m.M22) * inv,

		M21: (m.M23*m.M31 - m.M21*m.M33) * inv,
		M22: (m.M11*m.M33 - m.M13*m.M31) * inv,
		M23: (m.M13*m.M21 - m.M11*m.M23) * inv,

		M31: (m.M21*m.M32 - m.M22*m.M31) * inv,
		M32: (m.M12*m.M31 - m.M11*m.M32) * inv,
		M33: (m.M11*m.M22 - m.M12*m.M21) * inv,
	}, true
}

// ApproxEqual reports whether every element of m is within tol of o.
func (m Mat3[T]) ApproxEqual(o Mat3[T], tol T) bool {
	a, b := m.elems(), o.elems()
	for i := range a {
		if abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// IsRotation reports whether m is orthonormal with determinant +1
// within tol.
func (m Mat3[T]) IsRotation(tol T) bool {
	return m.Transpose().Mul(m).ApproxEqual(Identity3[T](), tol) && abs(m.Det()-1) <= tol
}

func (m Mat3[T]) elems() [9]T {
	return [9]T{m.M11, m.M12, m.M13, m.M21, m.M22, m.M23, m.M31, m.M32, m.M33}
}

func abs[T Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}
