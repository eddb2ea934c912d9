package paeth

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/paeth/compute"
)

func newTestRotator3(t *testing.T, q compute.Queue, nx, ny, nz int) *Rotator3[float32] {
	t.Helper()
	r, err := NewRotator3[float32](q, nx, ny, nz)
	if err != nil {
		t.Fatalf("NewRotator3: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func mustShear3(t *testing.T, axis [3]float64) Shear3[float32] {
	t.Helper()
	s, err := Decompose3(Rotation3[float32](axis))
	if err != nil {
		t.Fatalf("Decompose3(%v): %v", axis, err)
	}
	return s
}

func TestRotator3Identity(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny, nz = 12, 9, 7
	r := newTestRotator3(t, q, nx, ny, nz)

	in := make([]float32, nx*ny*nz)
	for i := range in {
		in[i] = float32(i % 17)
	}
	out, err := r.Rotate(context.Background(), in, mustShear3(t, [3]float64{}))
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-4 {
			t.Fatalf("voxel %d = %v, want %v", i, out[i], in[i])
		}
	}
	if got := r.State(); got != StateComplete {
		t.Errorf("State = %v, want Complete", got)
	}
}

func TestRotator3HalfTurnAboutZ(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny, nz = 9, 7, 5
	r := newTestRotator3(t, q, nx, ny, nz)

	at := func(x, y, z int) int { return (z*ny+y)*nx + x }
	in := make([]float32, nx*ny*nz)
	in[at(4, 3, 2)] = 1
	in[at(1, 2, 4)] = 0.5

	out, err := r.Rotate(context.Background(), in, mustShear3(t, [3]float64{0, 0, math.Pi}))
	if err != nil {
		t.Fatal(err)
	}
	if v := out[at(4, 3, 2)]; math.Abs(float64(v-1)) > 1e-4 {
		t.Errorf("center voxel = %v, want 1", v)
	}
	if v := out[at(nx-1-1, ny-1-2, 4)]; math.Abs(float64(v-0.5)) > 1e-4 {
		t.Errorf("mirrored voxel = %v, want 0.5", v)
	}
}

func TestRotator3UniformStaysUniform(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny, nz = 10, 10, 10
	r := newTestRotator3(t, q, nx, ny, nz)

	in := make([]float32, nx*ny*nz)
	for i := range in {
		in[i] = 2
	}
	out, err := r.Rotate(context.Background(), in, mustShear3(t, [3]float64{0.3, -0.4, 0.5}))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out {
		if math.Abs(float64(v)-2) > 1e-4 {
			t.Fatalf("voxel %d = %v, want 2", i, v)
		}
	}
}

func TestRotator3MovesMass(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny, nz = 32, 28, 24
	r := newTestRotator3(t, q, nx, ny, nz)

	c := [3]float64{float64(nx-1) / 2, float64(ny-1) / 2, float64(nz-1) / 2}
	off := [3]float64{6, -4, 3}
	in := make([]float32, nx*ny*nz)
	for z := range nz {
		for y := range ny {
			for x := range nx {
				dx := float64(x) - c[0] - off[0]
				dy := float64(y) - c[1] - off[1]
				dz := float64(z) - c[2] - off[2]
				in[(z*ny+y)*nx+x] = float32(math.Exp(-(dx*dx + dy*dy + dz*dz) / 4))
			}
		}
	}

	axis := [3]float64{0.3, -0.4, 0.5}
	out, err := r.Rotate(context.Background(), in, mustShear3(t, axis))
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	var got [3]float64
	for z := range nz {
		for y := range ny {
			for x := range nx {
				v := float64(out[(z*ny+y)*nx+x])
				sum += v
				got[0] += v * float64(x)
				got[1] += v * float64(y)
				got[2] += v * float64(z)
			}
		}
	}
	for i := range got {
		got[i] /= sum
	}

	m := Rotation3[float64](axis)
	rx, ry, rz := m.Apply(off[0], off[1], off[2])
	want := [3]float64{c[0] + rx, c[1] + ry, c[2] + rz}
	if d := math.Sqrt((got[0]-want[0])*(got[0]-want[0]) +
		(got[1]-want[1])*(got[1]-want[1]) +
		(got[2]-want[2])*(got[2]-want[2])); d > 0.5 {
		t.Errorf("centroid (%.2f, %.2f, %.2f), want (%.2f, %.2f, %.2f)",
			got[0], got[1], got[2], want[0], want[1], want[2])
	}
}

func TestRotator3Busy(t *testing.T) {
	q := newTestQueue(t)
	const n = 4 * 4 * 4
	r := newTestRotator3(t, q, 4, 4, 4)

	src := upload(t, q, make([]float32, n))
	dst := upload(t, q, make([]float32, n))
	gate := compute.NewSignal()

	ev, err := r.Forward(src, dst, mustShear3(t, [3]float64{}), []compute.Event{gate})
	if err != nil {
		t.Fatal(err)
	}
	if got := r.State(); got != StateZPassDispatched {
		t.Errorf("State = %v, want ZPassDispatched", got)
	}
	if _, err := r.Forward(src, dst, mustShear3(t, [3]float64{}), nil); !errors.Is(err, ErrPipelineBusy) {
		t.Errorf("second Forward: err = %v, want ErrPipelineBusy", err)
	}
	gate.Complete(nil)
	if err := ev.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRotator3Errors(t *testing.T) {
	q := newTestQueue(t)

	if _, err := NewRotator3[float32](q, 4, 0, 4); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("zero extent: err = %v, want ErrInvalidSize", err)
	}

	r := newTestRotator3(t, q, 4, 4, 4)
	buf := upload(t, q, make([]float32, 64))
	bad := Shear3[float32]{XX: 1, YY: 1, ZZ: 0}
	if _, err := r.Forward(buf, buf, bad, nil); !errors.Is(err, ErrDegenerateShearPivot) {
		t.Errorf("degenerate z pivot: err = %v", err)
	}
	if _, err := r.Rotate(context.Background(), make([]float32, 10), mustShear3(t, [3]float64{})); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Rotate with wrong length: err = %v", err)
	}
	if nx, ny, nz := r.Size(); nx != 4 || ny != 4 || nz != 4 {
		t.Errorf("Size = %d, %d, %d", nx, ny, nz)
	}
}
