//go:build !nogpu

// Package wgpu is a compute backend that runs kernels on a WebGPU device
// through the gogpu/wgpu HAL.
//
// WGSL sources are compiled to SPIR-V with naga. Dispatches are recorded
// into a command batch that is submitted with a fence when an event of the
// batch is waited on, when buffers are written or read, or on Flush.
// Ordering between dispatches of one queue follows submission order;
// wait-list events from other sources gate the submission of the batch.
//
// The pipeline element type must be f32: WGSL has no portable f64.
//
// The backend registers itself with compute under the name "wgpu". Build
// with -tags nogpu to leave it out.
package wgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/paeth/compute"
)

// pollInterval is how long a single fence wait blocks before the context
// is checked again.
const pollInterval = 2 * time.Millisecond

var errQueueClosed = errors.New("wgpu: queue closed")

func init() {
	compute.Register(compute.BackendWGPU, func() (compute.Queue, error) {
		q, err := Open()
		if err != nil {
			return nil, err
		}
		return q, nil
	})
}

// Queue is a compute queue on a HAL device. It implements compute.Queue.
type Queue struct {
	device hal.Device
	queue  hal.Queue

	// Set only when the queue opened the device itself.
	instance hal.Instance
	adapter  string

	mu          sync.Mutex
	closed      bool
	open        *batch
	unsubmitted map[*batch]struct{}
	inflight    map[*batch]struct{}
}

// NewQueue wraps a device and queue owned by the caller. Close does not
// destroy them.
func NewQueue(device hal.Device, queue hal.Queue) (*Queue, error) {
	if device == nil || queue == nil {
		return nil, errors.New("wgpu: nil device or queue")
	}
	return newQueue(device, queue), nil
}

func newQueue(device hal.Device, queue hal.Queue) *Queue {
	return &Queue{
		device:      device,
		queue:       queue,
		unsubmitted: make(map[*batch]struct{}),
		inflight:    make(map[*batch]struct{}),
	}
}

// Describe implements compute.Describer.
func (q *Queue) Describe() string {
	if q.adapter != "" {
		return "wgpu: " + q.adapter
	}
	return "wgpu: shared device"
}

// Close submits batched work, waits for it, and destroys the device if
// the queue opened it. Close is safe to call multiple times.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	b := q.open
	q.open = nil
	q.mu.Unlock()

	var err error
	if b != nil {
		err = q.submit(b)
	}
	q.mu.Lock()
	inflight := make([]*batch, 0, len(q.inflight))
	for b := range q.inflight {
		inflight = append(inflight, b)
	}
	q.mu.Unlock()
	for _, b := range inflight {
		if werr := b.wait(context.Background()); werr != nil {
			compute.Logger().Warn("wgpu: batch failed during close", "err", werr)
		}
	}

	if q.instance != nil {
		q.device.Destroy()
		q.instance.Destroy()
		q.instance = nil
	}
	return err
}

// BuildProgram implements compute.Queue.
func (q *Queue) BuildProgram(source string) (compute.Program, error) {
	layout, err := compute.ParseLayout(source)
	if err != nil {
		return nil, err
	}
	if layout.Elem == "f64" {
		return nil, fmt.Errorf("%w: f64 kernels are not supported by WGSL devices", compute.ErrBuildFailure)
	}
	spirv, err := shaders.get(source, compileSPIRV)
	if err != nil {
		return nil, err
	}
	res, err := buildResources(q.device, layout, spirv)
	if err != nil {
		return nil, err
	}
	_, hits, misses := shaders.stats()
	compute.Logger().Debug("wgpu: program built",
		"entries", len(layout.Entries), "spirv_words", len(spirv),
		"cache_hits", hits, "cache_misses", misses)
	return &program{queue: q, layout: layout, res: res}, nil
}

// CreateBuffer implements compute.Queue.
func (q *Queue) CreateBuffer(size int) (compute.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer size %d", compute.ErrAllocationFailure, size)
	}
	alloc := alignUp(size, 4)
	b, err := q.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "paeth_storage",
		Size:  uint64(alloc),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", compute.ErrAllocationFailure, err)
	}
	return &buffer{queue: q, raw: b, size: size, alloc: alloc}, nil
}

// WriteBuffer implements compute.Queue. Work enqueued before the call is
// submitted first, so it does not observe the new contents.
func (q *Queue) WriteBuffer(ctx context.Context, dst compute.Buffer, offset int, data []byte, waitFor []compute.Event) error {
	b, err := q.ownBuffer(dst)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("%w: range [%d, %d) outside buffer of %d bytes",
			compute.ErrDispatchFailure, offset, offset+len(data), b.size)
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("%w: write of %d bytes at %d is not 4-byte aligned",
			compute.ErrDispatchFailure, len(data), offset)
	}
	if err := compute.WaitAll(ctx, waitFor...); err != nil {
		return err
	}
	if err := q.drain(ctx); err != nil {
		return err
	}
	q.queue.WriteBuffer(b.raw, uint64(offset), data)
	return nil
}

// ReadBuffer implements compute.Queue. The data is copied through a
// mappable staging buffer after all previously enqueued work.
func (q *Queue) ReadBuffer(ctx context.Context, src compute.Buffer, offset int, data []byte, waitFor []compute.Event) error {
	b, err := q.ownBuffer(src)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("%w: range [%d, %d) outside buffer of %d bytes",
			compute.ErrDispatchFailure, offset, offset+len(data), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	if err := compute.WaitAll(ctx, waitFor...); err != nil {
		return err
	}
	if err := q.drain(ctx); err != nil {
		return err
	}

	lo := offset &^ 3
	hi := min(alignUp(offset+len(data), 4), b.alloc)
	staging, err := q.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "paeth_staging",
		Size:  uint64(hi - lo),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: staging buffer: %w", compute.ErrAllocationFailure, err)
	}

	rb := newBatch(q)
	if err := rb.begin("paeth_readback"); err != nil {
		q.device.DestroyBuffer(staging)
		return err
	}
	rb.encoder.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{
		{SrcOffset: uint64(lo), DstOffset: 0, Size: uint64(hi - lo)},
	})
	if err := q.submit(rb); err != nil {
		q.device.DestroyBuffer(staging)
		return err
	}
	if err := rb.wait(ctx); err != nil {
		if ctx.Err() != nil {
			// The copy is still in flight.
			go func() {
				_ = rb.wait(context.Background())
				q.device.DestroyBuffer(staging)
			}()
		} else {
			q.device.DestroyBuffer(staging)
		}
		return err
	}
	defer q.device.DestroyBuffer(staging)

	raw := make([]byte, hi-lo)
	if err := q.queue.ReadBuffer(staging, 0, raw); err != nil {
		return fmt.Errorf("%w: readback: %w", compute.ErrDeviceFailure, err)
	}
	copy(data, raw[offset-lo:])
	return nil
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
	params, buffers, err := kk.capture()
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", compute.ErrDispatchFailure, errQueueClosed)
	}
	gate := q.gateLocked(waitFor)
	var flushed *batch
	if len(gate) > 0 && q.open != nil && len(q.open.gate) == 0 {
		flushed, q.open = q.open, nil
	}
	if q.open == nil {
		b := newBatch(q)
		if err := b.begin("paeth_batch"); err != nil {
			q.mu.Unlock()
			if flushed != nil {
				_ = q.submit(flushed)
			}
			return nil, err
		}
		q.open = b
	}
	b := q.open
	b.gate = append(b.gate, gate...)
	err = b.record(kk, params, buffers, global.Groups(local))
	q.mu.Unlock()

	if flushed != nil {
		if serr := q.submit(flushed); serr != nil {
			compute.Logger().Warn("wgpu: batch submission failed", "err", serr)
		}
	}
	if err != nil {
		return nil, err
	}
	compute.Logger().Debug("wgpu: dispatch recorded",
		"kernel", kk.name, "global", global.String(), "local", local.String(), "gates", len(gate))
	return &event{batch: b}, nil
}

// Flush implements compute.Queue.
func (q *Queue) Flush() error {
	q.mu.Lock()
	b := q.open
	q.open = nil
	q.mu.Unlock()
	if b == nil {
		return nil
	}
	return q.submit(b)
}

// flushBatch submits b if it is still the open batch.
func (q *Queue) flushBatch(b *batch) {
	q.mu.Lock()
	if q.open != b {
		q.mu.Unlock()
		return
	}
	q.open = nil
	q.mu.Unlock()
	if err := q.submit(b); err != nil {
		compute.Logger().Warn("wgpu: batch submission failed", "err", err)
	}
}

// gateLocked returns the wait-list events that submission order alone
// does not satisfy.
func (q *Queue) gateLocked(waitFor []compute.Event) []compute.Event {
	var gate []compute.Event
	for _, e := range waitFor {
		if e == nil {
			continue
		}
		if own, ok := e.(*event); ok && own.batch.queue == q {
			if own.batch == q.open || own.batch.isSubmitted() {
				continue
			}
			gate = append(gate, e)
			continue
		}
		if e.Status() == compute.StatusComplete {
			continue
		}
		gate = append(gate, e)
	}
	return gate
}

// drain submits the open batch and waits until every flushed batch has
// reached the device queue.
func (q *Queue) drain(ctx context.Context) error {
	if err := q.Flush(); err != nil {
		return err
	}
	q.mu.Lock()
	pending := make([]*batch, 0, len(q.unsubmitted))
	for b := range q.unsubmitted {
		pending = append(pending, b)
	}
	q.mu.Unlock()

	for _, b := range pending {
		select {
		case <-b.submitted:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// submit ends the encoding of b and hands it to the device queue, right
// away or once its gate events complete.
func (q *Queue) submit(b *batch) error {
	cmd, err := b.encoder.EndEncoding()
	if err != nil {
		err = fmt.Errorf("%w: end encoding: %w", compute.ErrDispatchFailure, err)
		b.fail(err)
		return err
	}
	b.cmd = cmd
	fence, err := q.device.CreateFence()
	if err != nil {
		err = fmt.Errorf("%w: create fence: %w", compute.ErrDeviceFailure, err)
		b.fail(err)
		return err
	}
	b.fence = fence

	q.mu.Lock()
	q.inflight[b] = struct{}{}
	if len(b.gate) > 0 {
		q.unsubmitted[b] = struct{}{}
	}
	q.mu.Unlock()

	if len(b.gate) == 0 {
		return b.commit()
	}
	go func() {
		if err := compute.WaitAll(context.Background(), b.gate...); err != nil {
			b.fail(fmt.Errorf("dependency failed: %w", err))
		} else {
			_ = b.commit()
		}
		q.mu.Lock()
		delete(q.unsubmitted, b)
		q.mu.Unlock()
	}()
	return nil
}

func (q *Queue) ownBuffer(buf compute.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b.queue != q {
		return nil, fmt.Errorf("%w: buffer %T does not belong to this queue", compute.ErrDispatchFailure, buf)
	}
	if b.raw == nil {
		return nil, fmt.Errorf("%w: buffer released", compute.ErrDispatchFailure)
	}
	return b, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
