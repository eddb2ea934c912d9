package paeth

import "fmt"

// FilterParams parameterizes one anti-aliased shear pass along an axis.
//
// For the shear x' = c*x + k*y the pass maps a destination coordinate u
// back to the source coordinate Scale*u + Cross*y. The footprint of a
// destination sample on the source line is the trapezoid with corners
// Tau[0] <= Tau[1] <= Tau[2] <= Tau[3] (relative to the mapped centre),
// and no source sample farther than BandHalfWidth from the centre
// contributes.
//
// Tau holds the sorted corners ±1/(2c) ± k/(2c) clamped to
// [-BandHalfWidth, BandHalfWidth], so Tau[3]-Tau[0] never exceeds
// 2*BandHalfWidth.
type FilterParams[T Float] struct {
	Scale         T
	Cross         T
	BandHalfWidth T
	Tau           [4]T
}

// NewFilterParams derives the pass parameters for the shear with
// diagonal coefficient c and cross coefficient k.
//
// It returns ErrDegenerateShearPivot when |c| is below PivotEpsilon.
func NewFilterParams[T Float](c, k T) (FilterParams[T], error) {
	if abs(c) <= PivotEpsilon {
		return FilterParams[T]{}, fmt.Errorf("%w: c = %g", ErrDegenerateShearPivot, float64(c))
	}
	h := bandHalfWidth(abs(k))
	return FilterParams[T]{
		Scale:         1 / c,
		Cross:         -k / c,
		BandHalfWidth: h,
		Tau:           thresholds(c, k, h),
	}, nil
}

// FilterParams3 parameterizes one shear pass of a 3D rotation. The pass
// has two cross terms, one per untouched axis.
type FilterParams3[T Float] struct {
	Scale         T
	Cross         [2]T
	BandHalfWidth T
	Tau           [4]T
}

// NewFilterParams3 derives the pass parameters for the shear with
// diagonal coefficient c and cross coefficients k1, k2.
//
// The footprint is the trapezoid of a 2D pass whose cross coefficient is
// |k1|+|k2|, the widest spread the two cross terms can produce together.
func NewFilterParams3[T Float](c, k1, k2 T) (FilterParams3[T], error) {
	p, err := NewFilterParams(c, abs(k1)+abs(k2))
	if err != nil {
		return FilterParams3[T]{}, err
	}
	return FilterParams3[T]{
		Scale:         p.Scale,
		Cross:         [2]T{-k1 / c, -k2 / c},
		BandHalfWidth: p.BandHalfWidth,
		Tau:           p.Tau,
	}, nil
}

// bandHalfWidth returns min(1, 1/k) for k >= 0.
func bandHalfWidth[T Float](k T) T {
	if k <= 1 {
		return 1
	}
	return 1 / k
}

// thresholds returns the four footprint corners ±1/(2c) ± k/(2c) in
// ascending order, clamped to the band [-h, h].
func thresholds[T Float](c, k, h T) [4]T {
	a := 0.5 / c
	b := 0.5 * k / c
	tau := [4]T{-a - b, -a + b, a - b, a + b}

	// insertion sort; four elements
	for i := 1; i < len(tau); i++ {
		for j := i; j > 0 && tau[j] < tau[j-1]; j-- {
			tau[j], tau[j-1] = tau[j-1], tau[j]
		}
	}
	for i, t := range tau {
		tau[i] = min(max(t, -h), h)
	}
	return tau
}
