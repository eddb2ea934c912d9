package paeth

import "errors"

// PivotEpsilon is the smallest pivot magnitude the decomposers accept.
// Rotations whose pivots fall below it (90 degree turns about an axis of
// the shear sequence, for example) have no usable shear factorization.
const PivotEpsilon = 1e-6

// Decomposition and pipeline errors.
var (
	// ErrDegenerateShearPivot is returned when a pivot of the shear
	// factorization is zero or numerically negligible.
	ErrDegenerateShearPivot = errors.New("paeth: degenerate shear pivot")

	// ErrNotRotation is returned by Verify when a shear sequence does not
	// reproduce the rotation it was derived from.
	ErrNotRotation = errors.New("paeth: shears do not reproduce rotation")

	// ErrPipelineBusy is returned by Forward while the previous invocation
	// of the same pipeline is still executing.
	ErrPipelineBusy = errors.New("paeth: pipeline busy")

	// ErrClosed is returned by a pipeline after Close.
	ErrClosed = errors.New("paeth: pipeline closed")

	// ErrInvalidSize is returned for non-positive image dimensions or a
	// pixel slice that does not match them.
	ErrInvalidSize = errors.New("paeth: invalid image size")

	// ErrBufferTooSmall is returned when a source or destination buffer
	// cannot hold the image.
	ErrBufferTooSmall = errors.New("paeth: buffer too small")
)
