package paeth

import (
	"context"
	"fmt"

	"github.com/gogpu/paeth/compute"
	"github.com/gogpu/paeth/internal/shader"
)

// Rotator2 rotates nx by ny images on a compute queue with two chained
// shear passes. Pixels are row-major values of type T.
//
// A Rotator2 owns one intermediate buffer, so at most one Forward may be
// in flight at a time; Forward reports ErrPipelineBusy otherwise. Use one
// Rotator2 per concurrent rotation. The queue is borrowed and never
// closed by the rotator.
type Rotator2[T Float] struct {
	p      *pipeline
	nx, ny int
	wx, wy T
}

// NewRotator2 builds the shear program on q and allocates the
// intermediate buffer for nx by ny images.
//
// Build and allocation errors wrap compute.ErrBuildFailure and
// compute.ErrAllocationFailure. Nothing is retried, and resources created
// before the failure are released.
func NewRotator2[T Float](q compute.Queue, nx, ny int) (*Rotator2[T], error) {
	bytes, err := imageBytes[T](nx, ny)
	if err != nil {
		return nil, err
	}
	p, err := newPipeline(q, shader.Shear2(shader.ElemName[T]()),
		[]string{shader.ShearX, shader.ShearY}, 1, bytes)
	if err != nil {
		return nil, err
	}
	Logger().Info("paeth: 2D rotator created", "nx", nx, "ny", ny, "elem", shader.ElemName[T]())
	return &Rotator2[T]{
		p:  p,
		nx: nx,
		ny: ny,
		wx: T(nx-1) / 2,
		wy: T(ny-1) / 2,
	}, nil
}

// Size returns the image extents.
func (r *Rotator2[T]) Size() (nx, ny int) { return r.nx, r.ny }

// Forward enqueues the rotation of src into dst described by s and
// returns the completion event of the last pass without blocking.
//
// The x-pass reads src into the intermediate buffer after waitFor
// completes; the y-pass reads the intermediate buffer into dst after the
// x-pass completes. dst is not written before that.
//
// Both passes' filter parameters are derived before any work is
// enqueued, so a degenerate shear returns ErrDegenerateShearPivot
// without touching the device.
func (r *Rotator2[T]) Forward(src, dst compute.Buffer, s Shear2[T], waitFor []compute.Event) (compute.Event, error) {
	fx, err := s.XPass()
	if err != nil {
		return nil, fmt.Errorf("paeth: x-pass: %w", err)
	}
	fy, err := s.YPass()
	if err != nil {
		return nil, fmt.Errorf("paeth: y-pass: %w", err)
	}

	return r.p.run(src, dst, waitFor, func(k []compute.Kernel, tmp []compute.Buffer) []pass {
		return []pass{
			{
				kernel: k[0],
				global: compute.R2(r.nx, r.ny),
				bind:   func(b *binder) { r.bind(b, fx, src, tmp[0]) },
				state:  StateXPassDispatched,
			},
			{
				kernel: k[1],
				global: compute.R2(r.ny, r.nx),
				bind:   func(b *binder) { r.bind(b, fy, tmp[0], dst) },
				state:  StateYPassDispatched,
			},
		}
	})
}

// Rotate uploads pixels, rotates them by s and returns the result. It
// blocks until the rotation completes or ctx is done.
func (r *Rotator2[T]) Rotate(ctx context.Context, pixels []T, s Shear2[T]) ([]T, error) {
	return roundTrip(ctx, r.p.queue, pixels, r.p.bytes, func(src, dst compute.Buffer) (compute.Event, error) {
		return r.Forward(src, dst, s, nil)
	})
}

// State reports the progress of the latest Forward.
func (r *Rotator2[T]) State() PassState {
	return r.p.status(StateYPassDispatched)
}

// Close waits for the in-flight Forward, if any, and releases the
// program, kernels and intermediate buffer. It returns the error of that
// last invocation. Forward returns ErrClosed afterwards.
func (r *Rotator2[T]) Close() error {
	return r.p.close()
}

func (r *Rotator2[T]) bind(b *binder, f FilterParams[T], in, out compute.Buffer) {
	bindElem(b, shader.Arg2Scale, f.Scale)
	bindElem(b, shader.Arg2Cross, f.Cross)
	bindElem(b, shader.Arg2Band, f.BandHalfWidth)
	bindElem(b, shader.Arg2Tau0, f.Tau[0])
	bindElem(b, shader.Arg2Tau1, f.Tau[1])
	bindElem(b, shader.Arg2Tau2, f.Tau[2])
	bindElem(b, shader.Arg2Tau3, f.Tau[3])
	bindInt(b, shader.Arg2NX, r.nx)
	bindInt(b, shader.Arg2NY, r.ny)
	bindElem(b, shader.Arg2WX, r.wx)
	bindElem(b, shader.Arg2WY, r.wy)
	bindBuffer(b, shader.Arg2Src, in)
	bindBuffer(b, shader.Arg2Dst, out)
}
