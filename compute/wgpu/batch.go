//go:build !nogpu

package wgpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/paeth/compute"
)

// batch is a command buffer under construction or in flight, together
// with the per-dispatch resources it keeps alive.
type batch struct {
	queue   *Queue
	encoder hal.CommandEncoder
	gate    []compute.Event
	passes  int

	bindGroups []hal.BindGroup
	uniforms   []hal.Buffer

	// submitted is closed once the batch reached the device queue, or
	// failed before that; err is set before it closes.
	submitted chan struct{}
	cmd       hal.CommandBuffer
	fence     hal.Fence
	err       error

	pollMu sync.Mutex
	once   sync.Once
	done   chan struct{}
	result error
}

func newBatch(q *Queue) *batch {
	return &batch{
		queue:     q,
		submitted: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (b *batch) begin(label string) error {
	encoder, err := b.queue.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("%w: create command encoder: %w", compute.ErrDispatchFailure, err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("%w: begin encoding: %w", compute.ErrDispatchFailure, err)
	}
	b.encoder = encoder
	return nil
}

// record appends one compute pass dispatching k over groups.
func (b *batch) record(k *kernel, params []byte, buffers []*buffer, groups compute.Range) error {
	device := b.queue.device
	layout := k.program.layout

	entries := make([]gputypes.BindGroupEntry, 0, len(buffers)+1)
	if layout.ParamsBinding >= 0 {
		size := uint64(alignUp(max(len(params), 16), 16))
		ub, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: k.name + "_params",
			Size:  size,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("%w: %s: uniform buffer: %w", compute.ErrDispatchFailure, k.name, err)
		}
		b.uniforms = append(b.uniforms, ub)
		b.queue.queue.WriteBuffer(ub, 0, params)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(layout.ParamsBinding),
			Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: size},
		})
	}
	for i, sb := range layout.Storage {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(sb.Binding),
			Resource: gputypes.BufferBinding{Buffer: buffers[i].raw.NativeHandle(), Offset: 0, Size: uint64(buffers[i].alloc)},
		})
	}

	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   k.name + "_bg",
		Layout:  k.program.res.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: create bind group: %w", compute.ErrDispatchFailure, k.name, err)
	}
	b.bindGroups = append(b.bindGroups, bg)

	pass := b.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: k.name})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(uint32(groups[0]), uint32(groups[1]), uint32(groups[2]))
	pass.End()
	b.passes++
	return nil
}

// commit submits the encoded command buffer.
func (b *batch) commit() error {
	if err := b.queue.queue.Submit([]hal.CommandBuffer{b.cmd}, b.fence, 1); err != nil {
		err = fmt.Errorf("%w: submit: %w", compute.ErrDeviceFailure, err)
		b.fail(err)
		return err
	}
	compute.Logger().Debug("wgpu: batch submitted", "passes", b.passes)
	close(b.submitted)
	return nil
}

// fail marks a batch that never reached the device.
func (b *batch) fail(err error) {
	b.err = err
	close(b.submitted)
}

func (b *batch) isSubmitted() bool {
	select {
	case <-b.submitted:
		return true
	default:
		return false
	}
}

// wait blocks until the batch completes on the device or ctx is done.
func (b *batch) wait(ctx context.Context) error {
	select {
	case <-b.submitted:
	case <-ctx.Done():
		return ctx.Err()
	}
	if b.err != nil {
		b.finish(b.err)
		return b.result
	}
	for {
		select {
		case <-b.done:
			return b.result
		default:
		}
		b.poll(pollInterval)
		if ctx.Err() != nil {
			select {
			case <-b.done:
				return b.result
			default:
				return ctx.Err()
			}
		}
	}
}

// poll waits up to timeout for the fence and finishes the batch when it
// signals.
func (b *batch) poll(timeout time.Duration) {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	b.pollLocked(timeout)
}

func (b *batch) pollLocked(timeout time.Duration) {
	select {
	case <-b.done:
		return
	default:
	}
	ok, err := b.queue.device.Wait(b.fence, 1, timeout)
	switch {
	case err != nil:
		b.finish(fmt.Errorf("%w: wait for fence: %w", compute.ErrDeviceFailure, err))
	case ok:
		b.finish(nil)
	}
}

// status reports the batch state without blocking for long.
func (b *batch) status() compute.Status {
	select {
	case <-b.done:
	default:
		if !b.isSubmitted() {
			return compute.StatusPending
		}
		if b.err != nil {
			b.finish(b.err)
		} else if b.pollMu.TryLock() {
			b.pollLocked(0)
			b.pollMu.Unlock()
		}
	}
	select {
	case <-b.done:
		if b.result != nil {
			return compute.StatusFailed
		}
		return compute.StatusComplete
	default:
		return compute.StatusPending
	}
}

// finish records the outcome and frees the batch resources.
func (b *batch) finish(err error) {
	b.once.Do(func() {
		b.result = err
		device := b.queue.device
		if b.fence != nil {
			device.DestroyFence(b.fence)
		}
		if b.cmd != nil {
			device.FreeCommandBuffer(b.cmd)
		}
		for _, g := range b.bindGroups {
			device.DestroyBindGroup(g)
		}
		for _, u := range b.uniforms {
			device.DestroyBuffer(u)
		}
		b.fence, b.cmd, b.bindGroups, b.uniforms = nil, nil, nil, nil

		q := b.queue
		q.mu.Lock()
		delete(q.inflight, b)
		q.mu.Unlock()
		close(b.done)
	})
}

// event is the completion of one dispatch; it completes with its batch.
type event struct {
	batch *batch
}

// Wait implements compute.Event. It submits the batch if it is still
// being recorded.
func (e *event) Wait(ctx context.Context) error {
	e.batch.queue.flushBatch(e.batch)
	return e.batch.wait(ctx)
}

// Status implements compute.Event.
func (e *event) Status() compute.Status {
	return e.batch.status()
}

type buffer struct {
	queue *Queue
	raw   hal.Buffer
	size  int
	alloc int
}

func (b *buffer) Size() int { return b.size }

func (b *buffer) Release() {
	if b.raw != nil {
		b.queue.device.DestroyBuffer(b.raw)
		b.raw = nil
	}
}

type program struct {
	queue  *Queue
	layout *compute.Layout
	res    *pipelineResources
}

func (p *program) Kernel(name string) (compute.Kernel, error) {
	if p.res == nil {
		return nil, fmt.Errorf("%w: program released", compute.ErrBuildFailure)
	}
	pipeline, ok := p.res.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: no entry point %q", compute.ErrBuildFailure, name)
	}
	return &kernel{
		program:  p,
		name:     name,
		pipeline: pipeline,
		scalars:  make([][]byte, len(p.layout.Params)),
		buffers:  make([]*buffer, len(p.layout.Storage)),
	}, nil
}

func (p *program) Release() {
	if p.res != nil {
		p.res.destroy()
		p.res = nil
	}
}

type kernel struct {
	program  *program
	name     string
	pipeline hal.ComputePipeline
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

// capture packs the bound arguments for one dispatch.
func (k *kernel) capture() ([]byte, []*buffer, error) {
	if k.released || k.program.res == nil {
		return nil, nil, fmt.Errorf("%w: %s: kernel released", compute.ErrDispatchFailure, k.name)
	}
	params, err := k.program.layout.PackParams(k.scalars)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", k.name, err)
	}
	buffers := make([]*buffer, len(k.buffers))
	for i, b := range k.buffers {
		if b == nil || b.raw == nil {
			return nil, nil, fmt.Errorf("%w: %s: buffer argument %d (%s) not set or released",
				compute.ErrDispatchFailure, k.name, len(k.scalars)+i, k.program.layout.Storage[i].Name)
		}
		buffers[i] = b
	}
	return params, buffers, nil
}

// bindGroupLayoutEntries describes the uniform and storage bindings of
// layout.
func bindGroupLayoutEntries(layout *compute.Layout) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(layout.Storage)+1)
	if layout.ParamsBinding >= 0 {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(layout.ParamsBinding),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}
	for _, sb := range layout.Storage {
		typ := gputypes.BufferBindingTypeStorage
		if sb.ReadOnly {
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(sb.Binding),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
	}
	return entries
}
