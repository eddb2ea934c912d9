package paeth

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/paeth/compute"
	"github.com/gogpu/paeth/compute/software"
)

func newTestQueue(t *testing.T) *software.Queue {
	t.Helper()
	q := software.New(4)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func newTestRotator2(t *testing.T, q compute.Queue, nx, ny int) *Rotator2[float32] {
	t.Helper()
	r, err := NewRotator2[float32](q, nx, ny)
	if err != nil {
		t.Fatalf("NewRotator2: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func mustShear2(t *testing.T, degrees float64) Shear2[float32] {
	t.Helper()
	s, err := Decompose2(Rotation2[float32](degrees * math.Pi / 180))
	if err != nil {
		t.Fatalf("Decompose2(%v deg): %v", degrees, err)
	}
	return s
}

func upload(t *testing.T, q compute.Queue, pixels []float32) compute.Buffer {
	t.Helper()
	b, err := q.CreateBuffer(len(pixels) * 4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Release)
	if err := q.WriteBuffer(context.Background(), b, 0, compute.Encode(pixels), nil); err != nil {
		t.Fatal(err)
	}
	return b
}

func download(t *testing.T, q compute.Queue, b compute.Buffer, n int, waitFor ...compute.Event) []float32 {
	t.Helper()
	raw := make([]byte, n*4)
	if err := q.ReadBuffer(context.Background(), b, 0, raw, waitFor); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	out := make([]float32, n)
	if err := compute.Decode(raw, out); err != nil {
		t.Fatal(err)
	}
	return out
}

func centerDot(nx, ny int) []float32 {
	p := make([]float32, nx*ny)
	p[(ny/2)*nx+nx/2] = 1
	return p
}

func TestRotator2Identity(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 64, 64
	r := newTestRotator2(t, q, nx, ny)

	in := make([]float32, nx*ny)
	for i := range in {
		in[i] = 0.5
	}
	out, err := r.Rotate(context.Background(), in, mustShear2(t, 0))
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-5 {
			t.Fatalf("pixel %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestRotator2IdentityGradient(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 37, 21
	r := newTestRotator2(t, q, nx, ny)

	in := make([]float32, nx*ny)
	for y := range ny {
		for x := range nx {
			in[y*nx+x] = float32(x) + 100*float32(y)
		}
	}
	out, err := r.Rotate(context.Background(), in, mustShear2(t, 0))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-3 {
			t.Fatalf("pixel (%d, %d) = %v, want %v", i%nx, i/nx, out[i], in[i])
		}
	}
}

func TestRotator2HalfTurnKeepsCenter(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 65, 65
	r := newTestRotator2(t, q, nx, ny)

	out, err := r.Rotate(context.Background(), centerDot(nx, ny), mustShear2(t, 180))
	if err != nil {
		t.Fatal(err)
	}
	center := (ny/2)*nx + nx/2
	if math.Abs(float64(out[center]-1)) > 1e-4 {
		t.Errorf("center = %v, want 1", out[center])
	}
	for i, v := range out {
		if i != center && math.Abs(float64(v)) > 1e-4 {
			t.Fatalf("pixel (%d, %d) = %v, want 0", i%nx, i/nx, v)
		}
	}
}

func TestRotator2HalfTurnMirrorsCorner(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 16, 10
	r := newTestRotator2(t, q, nx, ny)

	in := make([]float32, nx*ny)
	in[2*nx+3] = 1
	out, err := r.Rotate(context.Background(), in, mustShear2(t, 180))
	if err != nil {
		t.Fatal(err)
	}
	want := (ny-1-2)*nx + (nx - 1 - 3)
	if math.Abs(float64(out[want]-1)) > 1e-4 {
		t.Errorf("mirrored pixel = %v, want 1", out[want])
	}
}

func TestRotator2UniformStaysUniform(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 40, 30
	r := newTestRotator2(t, q, nx, ny)

	in := make([]float32, nx*ny)
	for i := range in {
		in[i] = 0.25
	}
	for _, deg := range []float64{-75, -30, 10, 45, 135} {
		out, err := r.Rotate(context.Background(), in, mustShear2(t, deg))
		if err != nil {
			t.Fatalf("%v deg: %v", deg, err)
		}
		for i, v := range out {
			if math.Abs(float64(v)-0.25) > 1e-4 {
				t.Fatalf("%v deg: pixel (%d, %d) = %v, want 0.25", deg, i%nx, i/nx, v)
			}
		}
	}
}

func TestRotator2MovesMass(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 64, 64
	r := newTestRotator2(t, q, nx, ny)

	wx, wy := float64(nx-1)/2, float64(ny-1)/2
	px, py := wx+12, wy
	in := make([]float32, nx*ny)
	for y := range ny {
		for x := range nx {
			dx, dy := float64(x)-px, float64(y)-py
			in[y*nx+x] = float32(math.Exp(-(dx*dx + dy*dy) / 4))
		}
	}

	out, err := r.Rotate(context.Background(), in, mustShear2(t, 30))
	if err != nil {
		t.Fatal(err)
	}
	var sum, cx, cy float64
	for y := range ny {
		for x := range nx {
			v := float64(out[y*nx+x])
			sum += v
			cx += v * float64(x)
			cy += v * float64(y)
		}
	}
	cx, cy = cx/sum, cy/sum

	sin, cos := math.Sincos(math.Pi / 6)
	wantX, wantY := wx+12*cos, wy+12*sin
	if math.Hypot(cx-wantX, cy-wantY) > 0.5 {
		t.Errorf("centroid (%.2f, %.2f), want (%.2f, %.2f)", cx, cy, wantX, wantY)
	}
}

func TestRotator2SequentialForwards(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 65, 65
	r := newTestRotator2(t, q, nx, ny)
	ctx := context.Background()

	src := upload(t, q, centerDot(nx, ny))
	dst := upload(t, q, make([]float32, nx*ny))
	center := (ny/2)*nx + nx/2

	for i, deg := range []float64{0, 180, 0} {
		ev, err := r.Forward(src, dst, mustShear2(t, deg), nil)
		if err != nil {
			t.Fatalf("Forward %d: %v", i, err)
		}
		if err := ev.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
		if got := r.State(); got != StateComplete {
			t.Errorf("State after Wait %d = %v, want Complete", i, got)
		}
		out := download(t, q, dst, nx*ny)
		if math.Abs(float64(out[center]-1)) > 1e-4 {
			t.Errorf("Forward %d (%v deg): center = %v", i, deg, out[center])
		}
	}
}

func TestRotator2WaitListAndBusy(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 32, 16
	r := newTestRotator2(t, q, nx, ny)
	ctx := context.Background()

	if got := r.State(); got != StateIdle {
		t.Fatalf("initial State = %v, want Idle", got)
	}

	src := upload(t, q, centerDot(nx, ny))
	dst := upload(t, q, make([]float32, nx*ny))
	gate := compute.NewSignal()

	ev, err := r.Forward(src, dst, mustShear2(t, 0), []compute.Event{gate})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Status() != compute.StatusPending {
		t.Fatalf("event completed before its wait-list")
	}
	if got := r.State(); got != StateYPassDispatched {
		t.Errorf("State = %v, want YPassDispatched", got)
	}

	if _, err := r.Forward(src, dst, mustShear2(t, 0), nil); !errors.Is(err, ErrPipelineBusy) {
		t.Fatalf("second Forward: err = %v, want ErrPipelineBusy", err)
	}

	// dst must stay untouched until the gate opens.
	if out := download(t, q, dst, nx*ny); out[(ny/2)*nx+nx/2] != 0 {
		t.Fatal("destination written before the wait-list completed")
	}

	gate.Complete(nil)
	if err := ev.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Forward(src, dst, mustShear2(t, 0), nil); err != nil {
		t.Fatalf("Forward after completion: %v", err)
	}
}

func TestRotator2DependencyFailure(t *testing.T) {
	q := newTestQueue(t)
	r := newTestRotator2(t, q, 8, 8)

	src := upload(t, q, make([]float32, 64))
	dst := upload(t, q, make([]float32, 64))
	gate := compute.NewSignal()
	ev, err := r.Forward(src, dst, mustShear2(t, 0), []compute.Event{gate})
	if err != nil {
		t.Fatal(err)
	}
	gate.Complete(errors.New("upstream failed"))

	if err := ev.Wait(context.Background()); !errors.Is(err, compute.ErrDeviceFailure) {
		t.Fatalf("Wait: err = %v, want ErrDeviceFailure", err)
	}
	if got := r.State(); got != StateFailed {
		t.Errorf("State = %v, want Failed", got)
	}
}

func TestRotator2ForwardErrors(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 8, 8
	r := newTestRotator2(t, q, nx, ny)

	good := upload(t, q, make([]float32, nx*ny))
	small, err := q.CreateBuffer(nx*ny*4 - 4)
	if err != nil {
		t.Fatal(err)
	}
	defer small.Release()

	tests := []struct {
		name     string
		src, dst compute.Buffer
		s        Shear2[float32]
		want     error
	}{
		{"degenerate x pivot", good, good, Shear2[float32]{XX: 0, XY: 1, YY: 1}, ErrDegenerateShearPivot},
		{"degenerate y pivot", good, good, Shear2[float32]{XX: 1, YY: 0}, ErrDegenerateShearPivot},
		{"small source", small, good, mustShear2(t, 0), ErrBufferTooSmall},
		{"small destination", good, small, mustShear2(t, 0), ErrBufferTooSmall},
		{"nil destination", good, nil, mustShear2(t, 0), ErrBufferTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := r.Forward(tt.src, tt.dst, tt.s, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if ev != nil {
				t.Error("event returned with an error")
			}
		})
	}
	if got := r.State(); got != StateIdle {
		t.Errorf("State after rejected calls = %v, want Idle", got)
	}
}

func TestRotator2Close(t *testing.T) {
	q := newTestQueue(t)
	r, err := NewRotator2[float32](q, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	buf := upload(t, q, make([]float32, 64))
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := r.Forward(buf, buf, mustShear2(t, 0), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Forward after Close: err = %v, want ErrClosed", err)
	}

	// The queue is borrowed, not closed.
	if _, err := q.CreateBuffer(16); err != nil {
		t.Errorf("queue unusable after rotator Close: %v", err)
	}
}

func TestNewRotator2Errors(t *testing.T) {
	q := newTestQueue(t)

	for _, size := range [][2]int{{0, 8}, {8, 0}, {-1, 4}, {1 << 16, 1 << 16}, {4, math.MaxInt / 2}} {
		if _, err := NewRotator2[float32](q, size[0], size[1]); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("NewRotator2(%d, %d): err = %v, want ErrInvalidSize", size[0], size[1], err)
		}
	}

	if _, err := NewRotator2[float32](failingQueue{Queue: q, build: true}, 8, 8); !errors.Is(err, compute.ErrBuildFailure) {
		t.Errorf("build failure: err = %v", err)
	}
	if _, err := NewRotator2[float32](failingQueue{Queue: q, alloc: true}, 8, 8); !errors.Is(err, compute.ErrAllocationFailure) {
		t.Errorf("allocation failure: err = %v", err)
	}
}

func TestRotator2RotateSizeMismatch(t *testing.T) {
	q := newTestQueue(t)
	r := newTestRotator2(t, q, 8, 8)
	if _, err := r.Rotate(context.Background(), make([]float32, 63), mustShear2(t, 0)); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("err = %v, want ErrInvalidSize", err)
	}
}

func TestRotator2Float64(t *testing.T) {
	q := newTestQueue(t)
	const nx, ny = 33, 33
	r, err := NewRotator2[float64](q, nx, ny)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	in := make([]float64, nx*ny)
	in[(ny/2)*nx+nx/2] = 1
	s, err := Decompose2(Rotation2[float64](math.Pi))
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Rotate(context.Background(), in, s)
	if err != nil {
		t.Fatal(err)
	}
	if got := out[(ny/2)*nx+nx/2]; math.Abs(got-1) > 1e-9 {
		t.Errorf("center = %v, want 1", got)
	}
}

func TestPassStateString(t *testing.T) {
	tests := []struct {
		s    PassState
		want string
	}{
		{StateIdle, "Idle"},
		{StateXPassDispatched, "XPassDispatched"},
		{StateYPassDispatched, "YPassDispatched"},
		{StateZPassDispatched, "ZPassDispatched"},
		{StateComplete, "Complete"},
		{StateFailed, "Failed"},
		{PassState(42), "PassState(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("PassState(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

// failingQueue injects construction failures into a working queue.
type failingQueue struct {
	compute.Queue
	build bool
	alloc bool
}

func (q failingQueue) BuildProgram(source string) (compute.Program, error) {
	if q.build {
		return nil, compute.ErrBuildFailure
	}
	return q.Queue.BuildProgram(source)
}

func (q failingQueue) CreateBuffer(size int) (compute.Buffer, error) {
	if q.alloc {
		return nil, compute.ErrAllocationFailure
	}
	return q.Queue.CreateBuffer(size)
}
