// Package software is a compute backend that runs kernels on the host.
//
// Programs are WGSL sources whose entry points have host implementations
// registered with RegisterKernel. Dispatches run asynchronously: each
// Enqueue starts a goroutine that waits for the wait-list and then runs
// the workgroups of the dispatch on a shared worker pool. Buffers are
// plain host memory in little-endian layout, so the backend requires a
// little-endian host.
//
// The backend registers itself with compute under the name "software".
package software

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/paeth/compute"
)

// MaxBufferSize is the largest buffer the backend allocates.
const MaxBufferSize = 1<<31 - 1

var errQueueClosed = errors.New("software: queue closed")

func init() {
	compute.Register(compute.BackendSoftware, func() (compute.Queue, error) {
		return New(0), nil
	})
}

// Queue is a host compute queue. It implements compute.Queue.
type Queue struct {
	pool   *pool
	info   DeviceInfo
	mu     sync.RWMutex
	closed bool
	active sync.WaitGroup
}

// New returns a queue backed by workers goroutines.
// If workers is 0 or negative, GOMAXPROCS is used.
func New(workers int) *Queue {
	p := newPool(workers)
	q := &Queue{pool: p, info: hostInfo(p.workers)}
	compute.Logger().Debug("software: queue created", "workers", p.workers, "device", q.info.String())
	return q
}

// Info describes the host device.
func (q *Queue) Info() DeviceInfo { return q.info }

// Describe implements compute.Describer.
func (q *Queue) Describe() string { return q.info.String() }

// Close waits for enqueued work to finish and stops the workers.
// Close is safe to call multiple times.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.active.Wait()
	q.pool.close()
	return nil
}

// BuildProgram implements compute.Queue.
func (q *Queue) BuildProgram(source string) (compute.Program, error) {
	layout, err := compute.ParseLayout(source)
	if err != nil {
		return nil, err
	}
	impls := make(map[string]KernelFunc, len(layout.Entries))
	for name := range layout.Entries {
		fn, ok := lookupKernel(name, layout.Elem)
		if !ok {
			return nil, fmt.Errorf("%w: no host implementation of %s for elem %q",
				compute.ErrBuildFailure, name, layout.Elem)
		}
		impls[name] = fn
	}
	compute.Logger().Debug("software: program built", "entries", len(impls), "elem", layout.Elem)
	return &program{queue: q, layout: layout, impls: impls}, nil
}

// CreateBuffer implements compute.Queue.
func (q *Queue) CreateBuffer(size int) (compute.Buffer, error) {
	if size <= 0 || size > MaxBufferSize {
		return nil, fmt.Errorf("%w: buffer size %d out of range (1..%d)", compute.ErrAllocationFailure, size, MaxBufferSize)
	}
	mem := make([]uint64, (size+7)/8)
	return &buffer{
		queue: q,
		data:  unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(mem))), size),
		mem:   mem,
	}, nil
}

// WriteBuffer implements compute.Queue.
func (q *Queue) WriteBuffer(ctx context.Context, dst compute.Buffer, offset int, data []byte, waitFor []compute.Event) error {
	b, err := q.bufferRange(dst, offset, len(data))
	if err != nil {
		return err
	}
	if err := compute.WaitAll(ctx, waitFor...); err != nil {
		return err
	}
	copy(b, data)
	return nil
}

// ReadBuffer implements compute.Queue.
func (q *Queue) ReadBuffer(ctx context.Context, src compute.Buffer, offset int, data []byte, waitFor []compute.Event) error {
	b, err := q.bufferRange(src, offset, len(data))
	if err != nil {
		return err
	}
	if err := compute.WaitAll(ctx, waitFor...); err != nil {
		return err
	}
	copy(data, b)
	return nil
}

func (q *Queue) bufferRange(buf compute.Buffer, offset, n int) ([]byte, error) {
	b, ok := buf.(*buffer)
	if !ok || b.queue != q {
		return nil, fmt.Errorf("%w: buffer %T does not belong to this queue", compute.ErrDispatchFailure, buf)
	}
	if b.released.Load() {
		return nil, fmt.Errorf("%w: buffer released", compute.ErrDispatchFailure)
	}
	if offset < 0 || n < 0 || offset+n > len(b.data) {
		return nil, fmt.Errorf("%w: range [%d, %d) outside buffer of %d bytes",
			compute.ErrDispatchFailure, offset, offset+n, len(b.data))
	}
	return b.data[offset : offset+n], nil
}

// Enqueue implements compute.Queue.
func (q *Queue) Enqueue(k compute.Kernel, global, local compute.Range, waitFor []compute.Event) (compute.Event, error) {
	kk, ok := k.(*kernel)
	if !ok || kk.program.queue != q {
		return nil, fmt.Errorf("%w: kernel %T does not belong to this queue", compute.ErrDispatchFailure, k)
	}
	if !global.Valid() || !local.Valid() {
		return nil, fmt.Errorf("%w: %s: invalid range global %v local %v", compute.ErrDispatchFailure, kk.name, global, local)
	}
	if want := kk.program.layout.Entries[kk.name].WorkgroupSize; local != want {
		return nil, fmt.Errorf("%w: %s: local size %v, kernel declares %v", compute.ErrDispatchFailure, kk.name, local, want)
	}
	args, err := kk.capture()
	if err != nil {
		return nil, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, fmt.Errorf("%w: %w", compute.ErrDispatchFailure, errQueueClosed)
	}

	sig := compute.NewSignal()
	q.active.Add(1)
	go func() {
		defer q.active.Done()
		sig.Complete(q.execute(kk, args, global, local, waitFor))
	}()

	compute.Logger().Debug("software: dispatch enqueued",
		"kernel", kk.name, "global", global.String(), "local", local.String(), "waitFor", len(waitFor))
	return sig, nil
}

// Flush implements compute.Queue. Work starts as soon as it is enqueued,
// so there is nothing to flush.
func (q *Queue) Flush() error { return nil }

func (q *Queue) execute(k *kernel, args *Args, global, local compute.Range, waitFor []compute.Event) error {
	if err := compute.WaitAll(context.Background(), waitFor...); err != nil {
		return fmt.Errorf("%s: dependency failed: %w", k.name, err)
	}

	invoke, err := k.impl(args)
	if err != nil {
		return fmt.Errorf("%s: %w", k.name, err)
	}

	groups := global.Groups(local)
	var (
		failOnce sync.Once
		failure  error
	)
	ok := q.pool.run(groups.Volume(), func(g int) {
		defer func() {
			if r := recover(); r != nil {
				failOnce.Do(func() { failure = fmt.Errorf("%s: workgroup %d panicked: %v", k.name, g, r) })
			}
		}()
		origin := compute.Range{
			(g % groups[0]) * local[0],
			(g / groups[0] % groups[1]) * local[1],
			(g / (groups[0] * groups[1])) * local[2],
		}
		for z := range local[2] {
			for y := range local[1] {
				for x := range local[0] {
					invoke(compute.Range{origin[0] + x, origin[1] + y, origin[2] + z})
				}
			}
		}
	})
	if !ok {
		return fmt.Errorf("%s: %w", k.name, errQueueClosed)
	}
	return failure
}

type buffer struct {
	queue    *Queue
	data     []byte
	mem      []uint64
	released atomic.Bool
}

func (b *buffer) Size() int { return len(b.data) }

func (b *buffer) Release() { b.released.Store(true) }

type program struct {
	queue    *Queue
	layout   *compute.Layout
	impls    map[string]KernelFunc
	released atomic.Bool
}

func (p *program) Kernel(name string) (compute.Kernel, error) {
	if p.released.Load() {
		return nil, fmt.Errorf("%w: program released", compute.ErrBuildFailure)
	}
	impl, ok := p.impls[name]
	if !ok {
		return nil, fmt.Errorf("%w: no entry point %q", compute.ErrBuildFailure, name)
	}
	return &kernel{
		program: p,
		name:    name,
		impl:    impl,
		scalars: make([][]byte, len(p.layout.Params)),
		buffers: make([]*buffer, len(p.layout.Storage)),
	}, nil
}

func (p *program) Release() { p.released.Store(true) }

type kernel struct {
	program  *program
	name     string
	impl     KernelFunc
	scalars  [][]byte
	buffers  []*buffer
	released bool
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) Arity() int { return k.program.layout.Arity() }

func (k *kernel) SetArg(i int, v []byte) error {
	if err := k.program.layout.CheckArg(i, v); err != nil {
		return fmt.Errorf("%s: %w", k.name, err)
	}
	k.scalars[i] = append([]byte(nil), v...)
	return nil
}

func (k *kernel) SetBuffer(i int, b compute.Buffer) error {
	if err := k.program.layout.CheckBuffer(i); err != nil {
		return fmt.Errorf("%s: %w", k.name, err)
	}
	bb, ok := b.(*buffer)
	if !ok || bb.queue != k.program.queue {
		return fmt.Errorf("%w: %s: buffer %T does not belong to this queue", compute.ErrDispatchFailure, k.name, b)
	}
	k.buffers[i-len(k.scalars)] = bb
	return nil
}

func (k *kernel) Release() { k.released = true }

// capture snapshots the bound arguments for one dispatch.
func (k *kernel) capture() (*Args, error) {
	if k.released {
		return nil, fmt.Errorf("%w: %s: kernel released", compute.ErrDispatchFailure, k.name)
	}
	args := &Args{
		layout:  k.program.layout,
		scalars: make([][]byte, len(k.scalars)),
		buffers: make([][]byte, len(k.buffers)),
	}
	for i, s := range k.scalars {
		if s == nil {
			return nil, fmt.Errorf("%w: %s: argument %d (%s) not set",
				compute.ErrDispatchFailure, k.name, i, k.program.layout.Params[i].Name)
		}
		args.scalars[i] = s
	}
	for i, b := range k.buffers {
		if b == nil {
			return nil, fmt.Errorf("%w: %s: argument %d (%s) not set",
				compute.ErrDispatchFailure, k.name, len(k.scalars)+i, k.program.layout.Storage[i].Name)
		}
		if b.released.Load() {
			return nil, fmt.Errorf("%w: %s: argument %d uses a released buffer",
				compute.ErrDispatchFailure, k.name, len(k.scalars)+i)
		}
		args.buffers[i] = b.data
	}
	return args, nil
}
