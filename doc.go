// Package paeth rotates raster images and volumes with one-dimensional
// shear passes.
//
// # Overview
//
// A rotation is factored into a fixed sequence of shears (Paeth
// decomposition): two for 2D, three for 3D. Each shear moves samples
// along a single axis, so it can be executed as a separable, anti-aliased
// resampling pass over rows or columns. The passes run on a compute queue
// as a chain of dependent dispatches.
//
// # Quick Start
//
//	q := software.New(0) // or wgpu.Open()
//	defer q.Close()
//
//	s, err := paeth.Decompose2(paeth.Rotation2[float32](math.Pi / 6))
//	if err != nil {
//	    return err // 90 degree turns have no factorization
//	}
//
//	r, err := paeth.NewRotator2[float32](q, width, height)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	rotated, err := r.Rotate(ctx, pixels, s)
//
// # Convention
//
// Matrices act on column vectors and the x-shear is applied first:
//
//	R = ShearY * ShearX            (2D)
//	R = ShearZ * ShearY * ShearX   (3D)
//
// The pipelines run their passes in the same order. Rotations turn about
// the image centre ((nx-1)/2, (ny-1)/2). Samples whose footprint leaves
// the image are filled by clamping to the nearest edge sample.
//
// # Architecture
//
// The package is organized into:
//   - Pure math: Mat2, Mat3, Decompose2, Decompose3, NewFilterParams
//   - Pipelines: Rotator2, Rotator3 (own their intermediate buffers)
//   - compute: the queue capability interface and backend registry
//   - compute/software, compute/wgpu: backends
//
// Decomposition errors are reported before any work reaches the queue.
// A pipeline accepts one in-flight Forward at a time; use one pipeline per
// concurrent rotation.
package paeth

// Version is the library version reported by paeth-rotate -version.
const Version = "0.1.0"
