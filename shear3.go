package paeth

import "fmt"

// Shear3 is the factorization of a 3D rotation into three one-dimensional
// shears. Each shear is the identity except for one row:
//
//	ShearX row 1 = (XX, XY, XZ)
//	ShearY row 2 = (YX, YY, YZ)
//	ShearZ row 3 = (ZX, ZY, ZZ)
//
// The x-shear is applied first: R = ShearZ * ShearY * ShearX.
type Shear3[T Float] struct {
	XX, XY, XZ T
	YX, YY, YZ T
	ZX, ZY, ZZ T
}

// Decompose3 factors the rotation m into a Shear3 by peeling one shear at
// a time: the first row of m is ShearX, the second row of m*ShearX^-1 is
// ShearY and the third row of m*ShearX^-1*ShearY^-1 is ShearZ.
//
// It returns ErrDegenerateShearPivot when XX, YY or ZZ is below
// PivotEpsilon.
func Decompose3[T Float](m Mat3[T]) (Shear3[T], error) {
	rx := m.Row(0)
	if abs(rx[0]) <= PivotEpsilon {
		return Shear3[T]{}, fmt.Errorf("%w: xx = %g", ErrDegenerateShearPivot, float64(rx[0]))
	}
	m = m.Mul(InverseRowShear(0, rx))

	ry := m.Row(1)
	if abs(ry[1]) <= PivotEpsilon {
		return Shear3[T]{}, fmt.Errorf("%w: yy = %g", ErrDegenerateShearPivot, float64(ry[1]))
	}
	m = m.Mul(InverseRowShear(1, ry))

	rz := m.Row(2)
	if abs(rz[2]) <= PivotEpsilon {
		return Shear3[T]{}, fmt.Errorf("%w: zz = %g", ErrDegenerateShearPivot, float64(rz[2]))
	}

	return Shear3[T]{
		XX: rx[0], XY: rx[1], XZ: rx[2],
		YX: ry[0], YY: ry[1], YZ: ry[2],
		ZX: rz[0], ZY: rz[1], ZZ: rz[2],
	}, nil
}

// RowShear returns the identity with row i (0-based) replaced by r.
func RowShear[T Float](i int, r [3]T) Mat3[T] {
	m := Identity3[T]()
	switch i {
	case 0:
		m.M11, m.M12, m.M13 = r[0], r[1], r[2]
	case 1:
		m.M21, m.M22, m.M23 = r[0], r[1], r[2]
	case 2:
		m.M31, m.M32, m.M33 = r[0], r[1], r[2]
	default:
		panic("paeth: shear row index out of range")
	}
	return m
}

// InverseRowShear returns the inverse of RowShear(i, r) in closed form.
// The pivot r[i] must be non-zero.
func InverseRowShear[T Float](i int, r [3]T) Mat3[T] {
	inv := 1 / r[i]
	var q [3]T
	for j := range q {
		q[j] = -r[j] * inv
	}
	q[i] = inv
	return RowShear(i, q)
}

// ShearX returns the x-shear as a matrix.
func (s Shear3[T]) ShearX() Mat3[T] { return RowShear(0, [3]T{s.XX, s.XY, s.XZ}) }

// ShearY returns the y-shear as a matrix.
func (s Shear3[T]) ShearY() Mat3[T] { return RowShear(1, [3]T{s.YX, s.YY, s.YZ}) }

// ShearZ returns the z-shear as a matrix.
func (s Shear3[T]) ShearZ() Mat3[T] { return RowShear(2, [3]T{s.ZX, s.ZY, s.ZZ}) }

// Compose multiplies the shears back together in application order.
func (s Shear3[T]) Compose() Mat3[T] {
	return s.ShearZ().Mul(s.ShearY()).Mul(s.ShearX())
}

// Verify checks that the shears reproduce m within tol.
func (s Shear3[T]) Verify(m Mat3[T], tol T) error {
	if got := s.Compose(); !got.ApproxEqual(m, tol) {
		return fmt.Errorf("%w: composed %v, want %v", ErrNotRotation, got, m)
	}
	return nil
}

// XPass returns the filter parameters of the x-shear pass. The cross
// terms act on the y and z coordinates.
func (s Shear3[T]) XPass() (FilterParams3[T], error) {
	return NewFilterParams3(s.XX, s.XY, s.XZ)
}

// YPass returns the filter parameters of the y-shear pass. The cross
// terms act on the x and z coordinates.
func (s Shear3[T]) YPass() (FilterParams3[T], error) {
	return NewFilterParams3(s.YY, s.YX, s.YZ)
}

// ZPass returns the filter parameters of the z-shear pass. The cross
// terms act on the x and y coordinates.
func (s Shear3[T]) ZPass() (FilterParams3[T], error) {
	return NewFilterParams3(s.ZZ, s.ZX, s.ZY)
}
