package paeth

import "fmt"

// Shear2 is the Paeth factorization of a 2D rotation into two
// one-dimensional shears:
//
//	ShearX = | XX  XY |    ShearY = | 1   0  |
//	         | 0   1  |             | YX  YY |
//
// The x-shear is applied first: R = ShearY * ShearX.
type Shear2[T Float] struct {
	XX, XY T
	YX, YY T
}

// Decompose2 factors the rotation m into a Shear2.
//
// It returns ErrDegenerateShearPivot when |m.M11| is below PivotEpsilon.
// Decompose2 does not check that m is a rotation; use Verify for that.
func Decompose2[T Float](m Mat2[T]) (Shear2[T], error) {
	if abs(m.M11) <= PivotEpsilon {
		return Shear2[T]{}, fmt.Errorf("%w: m11 = %g", ErrDegenerateShearPivot, float64(m.M11))
	}
	yx := m.M21 / m.M11
	return Shear2[T]{
		XX: m.M11,
		XY: m.M12,
		YX: yx,
		YY: m.M22 - yx*m.M12,
	}, nil
}

// ShearX returns the x-shear as a matrix.
func (s Shear2[T]) ShearX() Mat2[T] {
	return Mat2[T]{M11: s.XX, M12: s.XY, M22: 1}
}

// ShearY returns the y-shear as a matrix.
func (s Shear2[T]) ShearY() Mat2[T] {
	return Mat2[T]{M11: 1, M21: s.YX, M22: s.YY}
}

// Compose multiplies the shears back together in application order.
func (s Shear2[T]) Compose() Mat2[T] {
	return s.ShearY().Mul(s.ShearX())
}

// Verify checks that the shears reproduce m within tol.
func (s Shear2[T]) Verify(m Mat2[T], tol T) error {
	if got := s.Compose(); !got.ApproxEqual(m, tol) {
		return fmt.Errorf("%w: composed %v, want %v", ErrNotRotation, got, m)
	}
	return nil
}

// XPass returns the filter parameters of the x-shear pass.
func (s Shear2[T]) XPass() (FilterParams[T], error) {
	return NewFilterParams(s.XX, s.XY)
}

// YPass returns the filter parameters of the y-shear pass.
func (s Shear2[T]) YPass() (FilterParams[T], error) {
	return NewFilterParams(s.YY, s.YX)
}
