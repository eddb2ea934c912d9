package paeth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/paeth/compute"
	"github.com/gogpu/paeth/internal/shader"
)

// PassState is the progress of one pipeline invocation.
type PassState int

const (
	// StateIdle means no invocation has been issued yet.
	StateIdle PassState = iota

	// StateXPassDispatched means the x-pass was enqueued and the
	// invocation stopped there.
	StateXPassDispatched

	// StateYPassDispatched means the y-pass was enqueued. For a 2D
	// pipeline this is the last dispatch of a successful Forward.
	StateYPassDispatched

	// StateZPassDispatched means the z-pass of a 3D pipeline was enqueued.
	StateZPassDispatched

	// StateComplete means every pass finished on the device.
	StateComplete

	// StateFailed means a dispatch was rejected or a pass failed on the
	// device.
	StateFailed
)

// String returns the state name.
func (s PassState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateXPassDispatched:
		return "XPassDispatched"
	case StateYPassDispatched:
		return "YPassDispatched"
	case StateZPassDispatched:
		return "ZPassDispatched"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("PassState(%d)", int(s))
	}
}

// pass is one dispatch of an invocation.
type pass struct {
	kernel compute.Kernel
	global compute.Range
	bind   func(*binder)
	state  PassState
}

// pipeline owns the program, kernels and intermediate buffers shared by
// the 2D and 3D rotators, and enforces one in-flight invocation.
type pipeline struct {
	queue   compute.Queue
	program compute.Program
	kernels []compute.Kernel
	tmp     []compute.Buffer
	bytes   int

	mu     sync.Mutex
	closed bool
	state  PassState
	last   compute.Event
}

func newPipeline(q compute.Queue, source string, entries []string, ntmp, bytes int) (*pipeline, error) {
	if q == nil {
		return nil, errors.New("paeth: nil compute queue")
	}
	prog, err := q.BuildProgram(source)
	if err != nil {
		return nil, fmt.Errorf("paeth: build shear program: %w", err)
	}
	p := &pipeline{queue: q, program: prog, bytes: bytes}

	for _, name := range entries {
		k, err := prog.Kernel(name)
		if err != nil {
			p.release()
			return nil, fmt.Errorf("paeth: kernel %s: %w", name, err)
		}
		p.kernels = append(p.kernels, k)
	}
	for range ntmp {
		b, err := q.CreateBuffer(bytes)
		if err != nil {
			p.release()
			return nil, fmt.Errorf("paeth: intermediate buffer: %w", err)
		}
		p.tmp = append(p.tmp, b)
	}
	return p, nil
}

// imageBytes returns the byte size of an image with the given extents, or
// ErrInvalidSize when an extent is not positive or the element count does
// not fit the kernels' 32-bit indices.
func imageBytes[T Float](dims ...int) (int, error) {
	n := 1
	for _, d := range dims {
		if d <= 0 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidSize, dims)
		}
		if d > math.MaxInt32/n {
			return 0, fmt.Errorf("%w: %v exceeds %d elements", ErrInvalidSize, dims, math.MaxInt32)
		}
		n *= d
	}
	return n * compute.SizeOf[T](), nil
}

// run checks the buffers and dispatches the passes returned by plan in
// order, each gated on the previous one. The first pass waits for waitFor.
func (p *pipeline) run(src, dst compute.Buffer, waitFor []compute.Event,
	plan func(kernels []compute.Kernel, tmp []compute.Buffer) []pass,
) (compute.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.last != nil && p.last.Status() == compute.StatusPending {
		return nil, ErrPipelineBusy
	}
	if err := p.checkBuffer("source", src); err != nil {
		return nil, err
	}
	if err := p.checkBuffer("destination", dst); err != nil {
		return nil, err
	}

	local := compute.Range(shader.WorkgroupSize)
	wait := waitFor
	var prev compute.Event
	for _, ps := range plan(p.kernels, p.tmp) {
		b := &binder{kernel: ps.kernel}
		ps.bind(b)
		if b.err != nil {
			return nil, p.fail(prev, b.err)
		}
		ev, err := p.queue.Enqueue(ps.kernel, ps.global, local, wait)
		if err != nil {
			return nil, p.fail(prev, fmt.Errorf("paeth: dispatch %s: %w", ps.kernel.Name(), err))
		}
		Logger().Debug("paeth: pass dispatched", "kernel", ps.kernel.Name(), "global", ps.global.String())
		p.state = ps.state
		prev = ev
		wait = []compute.Event{ev}
	}
	p.last = prev
	return prev, nil
}

// fail records a rejected dispatch. Passes already enqueued keep running
// against the intermediate buffers, so the last of them stays the guard.
func (p *pipeline) fail(prev compute.Event, err error) error {
	p.state = StateFailed
	if prev != nil {
		p.last = prev
	}
	return err
}

func (p *pipeline) checkBuffer(role string, b compute.Buffer) error {
	if b == nil {
		return fmt.Errorf("%w: %s buffer is nil", ErrBufferTooSmall, role)
	}
	if b.Size() < p.bytes {
		return fmt.Errorf("%w: %s buffer has %d bytes, need %d", ErrBufferTooSmall, role, b.Size(), p.bytes)
	}
	return nil
}

// status resolves the state of the latest invocation against its event.
func (p *pipeline) status(final PassState) PassState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != final || p.last == nil {
		return p.state
	}
	switch p.last.Status() {
	case compute.StatusComplete:
		return StateComplete
	case compute.StatusFailed:
		return StateFailed
	default:
		return p.state
	}
}

// close waits for the in-flight invocation and releases the resources.
func (p *pipeline) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	if p.last != nil {
		if werr := p.last.Wait(context.Background()); werr != nil {
			Logger().Warn("paeth: in-flight invocation failed during close", "err", werr)
			err = werr
		}
	}
	p.release()
	return err
}

func (p *pipeline) release() {
	for _, b := range p.tmp {
		b.Release()
	}
	for _, k := range p.kernels {
		k.Release()
	}
	if p.program != nil {
		p.program.Release()
	}
	p.tmp, p.kernels, p.program = nil, nil, nil
}

// binder binds kernel arguments, keeping the first error.
type binder struct {
	kernel compute.Kernel
	err    error
}

func bindElem[T Float](b *binder, i int, v T) {
	if b.err == nil {
		b.err = compute.SetScalar(b.kernel, i, v)
	}
}

func bindInt(b *binder, i, v int) {
	if b.err == nil {
		b.err = compute.SetScalar(b.kernel, i, int32(v))
	}
}

func bindBuffer(b *binder, i int, buf compute.Buffer) {
	if b.err == nil {
		b.err = b.kernel.SetBuffer(i, buf)
	}
}

// roundTrip uploads pixels, runs forward and reads the result back.
func roundTrip[T Float](ctx context.Context, q compute.Queue, pixels []T, bytes int,
	forward func(src, dst compute.Buffer) (compute.Event, error),
) ([]T, error) {
	if len(pixels)*compute.SizeOf[T]() != bytes {
		return nil, fmt.Errorf("%w: %d pixels for %d bytes", ErrInvalidSize, len(pixels), bytes)
	}
	src, err := q.CreateBuffer(bytes)
	if err != nil {
		return nil, fmt.Errorf("paeth: source buffer: %w", err)
	}
	dst, err := q.CreateBuffer(bytes)
	if err != nil {
		src.Release()
		return nil, fmt.Errorf("paeth: destination buffer: %w", err)
	}

	var done compute.Event
	defer func() {
		release := func() {
			src.Release()
			dst.Release()
		}
		if done == nil || done.Status() != compute.StatusPending {
			release()
			return
		}
		// The caller gave up waiting; free the buffers once the device
		// is done with them.
		go func() {
			_ = done.Wait(context.Background())
			release()
		}()
	}()

	if err := q.WriteBuffer(ctx, src, 0, compute.Encode(pixels), nil); err != nil {
		return nil, fmt.Errorf("paeth: upload: %w", err)
	}
	ev, err := forward(src, dst)
	if err != nil {
		return nil, err
	}
	done = ev

	out := make([]byte, bytes)
	if err := q.ReadBuffer(ctx, dst, 0, out, []compute.Event{ev}); err != nil {
		return nil, fmt.Errorf("paeth: readback: %w", err)
	}
	result := make([]T, len(pixels))
	if err := compute.Decode(out, result); err != nil {
		return nil, err
	}
	return result, nil
}
