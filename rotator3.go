package paeth

import (
	"context"
	"fmt"

	"github.com/gogpu/paeth/compute"
	"github.com/gogpu/paeth/internal/shader"
)

// Rotator3 rotates nx by ny by nz volumes on a compute queue with three
// chained shear passes. Voxels are stored x fastest, then y, then z.
//
// The passes run src -> tmp[0] -> tmp[1] -> dst, so a Rotator3 owns two
// intermediate buffers and, like Rotator2, accepts one Forward at a time.
type Rotator3[T Float] struct {
	p          *pipeline
	nx, ny, nz int
	wx, wy, wz T
}

// NewRotator3 builds the 3D shear program on q and allocates both
// intermediate buffers.
func NewRotator3[T Float](q compute.Queue, nx, ny, nz int) (*Rotator3[T], error) {
	bytes, err := imageBytes[T](nx, ny, nz)
	if err != nil {
		return nil, err
	}
	p, err := newPipeline(q, shader.Shear3(shader.ElemName[T]()),
		[]string{shader.Shear3X, shader.Shear3Y, shader.Shear3Z}, 2, bytes)
	if err != nil {
		return nil, err
	}
	Logger().Info("paeth: 3D rotator created", "nx", nx, "ny", ny, "nz", nz, "elem", shader.ElemName[T]())
	return &Rotator3[T]{
		p:  p,
		nx: nx, ny: ny, nz: nz,
		wx: T(nx-1) / 2,
		wy: T(ny-1) / 2,
		wz: T(nz-1) / 2,
	}, nil
}

// Size returns the volume extents.
func (r *Rotator3[T]) Size() (nx, ny, nz int) { return r.nx, r.ny, r.nz }

// Forward enqueues the rotation of src into dst described by s and
// returns the completion event of the z-pass without blocking. Each pass
// is gated on the previous one; the x-pass waits for waitFor.
func (r *Rotator3[T]) Forward(src, dst compute.Buffer, s Shear3[T], waitFor []compute.Event) (compute.Event, error) {
	fx, err := s.XPass()
	if err != nil {
		return nil, fmt.Errorf("paeth: x-pass: %w", err)
	}
	fy, err := s.YPass()
	if err != nil {
		return nil, fmt.Errorf("paeth: y-pass: %w", err)
	}
	fz, err := s.ZPass()
	if err != nil {
		return nil, fmt.Errorf("paeth: z-pass: %w", err)
	}

	return r.p.run(src, dst, waitFor, func(k []compute.Kernel, tmp []compute.Buffer) []pass {
		return []pass{
			{
				kernel: k[0],
				global: compute.R3(r.nx, r.ny, r.nz),
				bind:   func(b *binder) { r.bind(b, fx, src, tmp[0]) },
				state:  StateXPassDispatched,
			},
			{
				kernel: k[1],
				global: compute.R3(r.ny, r.nx, r.nz),
				bind:   func(b *binder) { r.bind(b, fy, tmp[0], tmp[1]) },
				state:  StateYPassDispatched,
			},
			{
				kernel: k[2],
				global: compute.R3(r.nz, r.nx, r.ny),
				bind:   func(b *binder) { r.bind(b, fz, tmp[1], dst) },
				state:  StateZPassDispatched,
			},
		}
	})
}

// Rotate uploads voxels, rotates them by s and returns the result.
func (r *Rotator3[T]) Rotate(ctx context.Context, voxels []T, s Shear3[T]) ([]T, error) {
	return roundTrip(ctx, r.p.queue, voxels, r.p.bytes, func(src, dst compute.Buffer) (compute.Event, error) {
		return r.Forward(src, dst, s, nil)
	})
}

// State reports the progress of the latest Forward.
func (r *Rotator3[T]) State() PassState {
	return r.p.status(StateZPassDispatched)
}

// Close waits for the in-flight Forward and releases the program, kernels
// and both intermediate buffers.
func (r *Rotator3[T]) Close() error {
	return r.p.close()
}

func (r *Rotator3[T]) bind(b *binder, f FilterParams3[T], in, out compute.Buffer) {
	bindElem(b, shader.Arg3Scale, f.Scale)
	bindElem(b, shader.Arg3CrossA, f.Cross[0])
	bindElem(b, shader.Arg3CrossB, f.Cross[1])
	bindElem(b, shader.Arg3Band, f.BandHalfWidth)
	for i, t := range f.Tau {
		bindElem(b, shader.Arg3Tau0+i, t)
	}
	bindInt(b, shader.Arg3NX, r.nx)
	bindInt(b, shader.Arg3NY, r.ny)
	bindInt(b, shader.Arg3NZ, r.nz)
	bindElem(b, shader.Arg3WX, r.wx)
	bindElem(b, shader.Arg3WY, r.wy)
	bindElem(b, shader.Arg3WZ, r.wz)
	bindBuffer(b, shader.Arg3Src, in)
	bindBuffer(b, shader.Arg3Dst, out)
}
