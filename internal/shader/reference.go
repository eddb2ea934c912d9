package shader

import (
	"fmt"
	"math"

	"github.com/gogpu/paeth/compute"
	"github.com/gogpu/paeth/compute/software"
)

func init() {
	register[float32]()
	register[float64]()
}

func register[T Elem]() {
	elem := ElemName[T]()
	software.RegisterKernel(ShearX, elem, shear2X[T])
	software.RegisterKernel(ShearY, elem, shear2Y[T])
	software.RegisterKernel(Shear3X, elem, shear3X[T])
	software.RegisterKernel(Shear3Y, elem, shear3Y[T])
	software.RegisterKernel(Shear3Z, elem, shear3Z[T])
}

// Footprint is the host form of the coverage filter in footprint.wgsl.
type Footprint[T Elem] struct {
	Band T
	Tau  [4]T
}

// Coverage returns the footprint area left of t.
func (f Footprint[T]) Coverage(t T) T {
	t0, t1, t2, t3 := f.Tau[0], f.Tau[1], f.Tau[2], f.Tau[3]
	if t <= t0 {
		return 0
	}
	if t < t1 {
		d := t - t0
		return d * d / (2 * (t1 - t0))
	}
	rise := 0.5 * (t1 - t0)
	if t < t2 {
		return rise + (t - t1)
	}
	fall := 0.5 * (t3 - t2)
	if t < t3 {
		d := t3 - t
		return rise + (t2 - t1) + fall - d*d/(2*(t3-t2))
	}
	return rise + (t2 - t1) + fall
}

// Resample filters the line of n samples starting at src[base] and spaced
// by stride at the source coordinate center.
func (f Footprint[T]) Resample(src []T, base, n, stride int, center T) T {
	first := int(math.Floor(float64(center - f.Band + 0.5)))
	var acc, norm T
	for j := first; j < first+4; j++ {
		lo := T(j) - 0.5 - center
		w := f.Coverage(lo+1) - f.Coverage(lo)
		acc += w * src[base+clampIndex(j, n)*stride]
		norm += w
	}
	if norm <= 0 {
		k := clampIndex(int(math.Round(float64(center))), n)
		return src[base+k*stride]
	}
	return acc / norm
}

func clampIndex(j, n int) int {
	return min(max(j, 0), n-1)
}

// argReader decodes dispatch arguments, keeping the first error.
type argReader struct {
	args *software.Args
	err  error
}

func elemArg[T Elem](r *argReader, i int) T {
	v, err := software.Arg[T](r.args, i)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func intArg(r *argReader, i int) int {
	v, err := software.Arg[int32](r.args, i)
	if err != nil && r.err == nil {
		r.err = err
	}
	return int(v)
}

func bufferArg[T Elem](r *argReader, i, want int) []T {
	v, err := software.View[T](r.args, i)
	if err != nil && r.err == nil {
		r.err = err
	}
	if r.err == nil && len(v) < want {
		r.err = fmt.Errorf("argument %d holds %d elements, need %d", i, len(v), want)
	}
	return v
}

// madFunc returns a*x + b*y + c.
type madFunc[T Elem] func(a, x, b, y, c T) T

// newMAD picks the fused form when the host has hardware FMA.
func newMAD[T Elem](fused bool) madFunc[T] {
	if fused {
		return func(a, x, b, y, c T) T {
			return T(math.FMA(float64(a), float64(x), math.FMA(float64(b), float64(y), float64(c))))
		}
	}
	return func(a, x, b, y, c T) T { return a*x + b*y + c }
}

type pass2[T Elem] struct {
	mad          madFunc[T]
	fp           Footprint[T]
	scale, cross T
	nx, ny       int
	wx, wy       T
	src, dst     []T
}

func readPass2[T Elem](a *software.Args) (*pass2[T], error) {
	r := &argReader{args: a}
	p := &pass2[T]{
		mad:   newMAD[T](software.HasFMA()),
		scale: elemArg[T](r, Arg2Scale),
		cross: elemArg[T](r, Arg2Cross),
		fp: Footprint[T]{
			Band: elemArg[T](r, Arg2Band),
			Tau: [4]T{
				elemArg[T](r, Arg2Tau0), elemArg[T](r, Arg2Tau1),
				elemArg[T](r, Arg2Tau2), elemArg[T](r, Arg2Tau3),
			},
		},
		nx: intArg(r, Arg2NX),
		ny: intArg(r, Arg2NY),
		wx: elemArg[T](r, Arg2WX),
		wy: elemArg[T](r, Arg2WY),
	}
	if r.err == nil && (p.nx <= 0 || p.ny <= 0) {
		r.err = fmt.Errorf("image size %dx%d", p.nx, p.ny)
	}
	p.src = bufferArg[T](r, Arg2Src, p.nx*p.ny)
	p.dst = bufferArg[T](r, Arg2Dst, p.nx*p.ny)
	return p, r.err
}

func shear2X[T Elem](a *software.Args) (func(compute.Range), error) {
	p, err := readPass2[T](a)
	if err != nil {
		return nil, err
	}
	return func(gid compute.Range) {
		u, y := gid[0], gid[1]
		if u >= p.nx || y >= p.ny {
			return
		}
		center := p.mad(p.scale, T(u)-p.wx, p.cross, T(y)-p.wy, p.wx)
		p.dst[y*p.nx+u] = p.fp.Resample(p.src, y*p.nx, p.nx, 1, center)
	}, nil
}

func shear2Y[T Elem](a *software.Args) (func(compute.Range), error) {
	p, err := readPass2[T](a)
	if err != nil {
		return nil, err
	}
	return func(gid compute.Range) {
		v, x := gid[0], gid[1]
		if v >= p.ny || x >= p.nx {
			return
		}
		center := p.mad(p.scale, T(v)-p.wy, p.cross, T(x)-p.wx, p.wy)
		p.dst[v*p.nx+x] = p.fp.Resample(p.src, x, p.ny, p.nx, center)
	}, nil
}

type pass3[T Elem] struct {
	mad            madFunc[T]
	fp             Footprint[T]
	scale          T
	crossA, crossB T
	nx, ny, nz     int
	wx, wy, wz     T
	src, dst       []T
}

func readPass3[T Elem](a *software.Args) (*pass3[T], error) {
	r := &argReader{args: a}
	p := &pass3[T]{
		mad:    newMAD[T](software.HasFMA()),
		scale:  elemArg[T](r, Arg3Scale),
		crossA: elemArg[T](r, Arg3CrossA),
		crossB: elemArg[T](r, Arg3CrossB),
		fp: Footprint[T]{
			Band: elemArg[T](r, Arg3Band),
			Tau: [4]T{
				elemArg[T](r, Arg3Tau0), elemArg[T](r, Arg3Tau1),
				elemArg[T](r, Arg3Tau2), elemArg[T](r, Arg3Tau3),
			},
		},
		nx: intArg(r, Arg3NX),
		ny: intArg(r, Arg3NY),
		nz: intArg(r, Arg3NZ),
		wx: elemArg[T](r, Arg3WX),
		wy: elemArg[T](r, Arg3WY),
		wz: elemArg[T](r, Arg3WZ),
	}
	if r.err == nil && (p.nx <= 0 || p.ny <= 0 || p.nz <= 0) {
		r.err = fmt.Errorf("volume size %dx%dx%d", p.nx, p.ny, p.nz)
	}
	n := p.nx * p.ny * p.nz
	p.src = bufferArg[T](r, Arg3Src, n)
	p.dst = bufferArg[T](r, Arg3Dst, n)
	return p, r.err
}

func shear3X[T Elem](a *software.Args) (func(compute.Range), error) {
	p, err := readPass3[T](a)
	if err != nil {
		return nil, err
	}
	return func(gid compute.Range) {
		u, y, z := gid[0], gid[1], gid[2]
		if u >= p.nx || y >= p.ny || z >= p.nz {
			return
		}
		center := p.mad(p.scale, T(u)-p.wx, p.crossA, T(y)-p.wy, p.mad(p.crossB, T(z)-p.wz, 0, 0, p.wx))
		base := (z*p.ny + y) * p.nx
		p.dst[base+u] = p.fp.Resample(p.src, base, p.nx, 1, center)
	}, nil
}

func shear3Y[T Elem](a *software.Args) (func(compute.Range), error) {
	p, err := readPass3[T](a)
	if err != nil {
		return nil, err
	}
	return func(gid compute.Range) {
		v, x, z := gid[0], gid[1], gid[2]
		if v >= p.ny || x >= p.nx || z >= p.nz {
			return
		}
		center := p.mad(p.scale, T(v)-p.wy, p.crossA, T(x)-p.wx, p.mad(p.crossB, T(z)-p.wz, 0, 0, p.wy))
		base := z*p.ny*p.nx + x
		p.dst[base+v*p.nx] = p.fp.Resample(p.src, base, p.ny, p.nx, center)
	}, nil
}

func shear3Z[T Elem](a *software.Args) (func(compute.Range), error) {
	p, err := readPass3[T](a)
	if err != nil {
		return nil, err
	}
	return func(gid compute.Range) {
		w, x, y := gid[0], gid[1], gid[2]
		if w >= p.nz || x >= p.nx || y >= p.ny {
			return
		}
		center := p.mad(p.scale, T(w)-p.wz, p.crossA, T(x)-p.wx, p.mad(p.crossB, T(y)-p.wy, 0, 0, p.wz))
		base := y*p.nx + x
		stride := p.nx * p.ny
		p.dst[base+w*stride] = p.fp.Resample(p.src, base, p.nz, stride, center)
	}, nil
}
