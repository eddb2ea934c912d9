// Package compute defines the capability interface that paeth pipelines use
// to run kernels on a device: build a program, allocate buffers, bind
// kernel arguments and enqueue dispatches gated on completion events.
//
// Implementations live in sub-packages:
//   - compute/software runs kernels on a goroutine worker pool
//   - compute/wgpu runs them on a WebGPU device via gogpu/wgpu
//
// Kernel sources are WGSL. The binding between positional kernel arguments
// and WGSL resources is described by [ParseLayout].
//
// Resource lifecycle:
//   - Resources are created by the queue and released by their owner
//   - Releasing a resource that queued work still uses is undefined
//   - A queue is never closed by code that merely borrowed it
package compute

import (
	"context"
	"fmt"
)

// Queue schedules work on a compute device. Ordering between enqueued
// work is expressed only through wait-lists; an implementation may run
// independent work concurrently. Implementations must be safe for
// concurrent use.
type Queue interface {
	// BuildProgram compiles a WGSL source. Errors wrap ErrBuildFailure.
	BuildProgram(source string) (Program, error)

	// CreateBuffer allocates a device buffer of size bytes.
	// Errors wrap ErrAllocationFailure.
	CreateBuffer(size int) (Buffer, error)

	// WriteBuffer waits for waitFor, then copies data into dst at offset.
	// It returns once the data is visible to subsequently enqueued work.
	WriteBuffer(ctx context.Context, dst Buffer, offset int, data []byte, waitFor []Event) error

	// ReadBuffer waits for waitFor, then copies len(data) bytes of src
	// starting at offset into data.
	ReadBuffer(ctx context.Context, src Buffer, offset int, data []byte, waitFor []Event) error

	// Enqueue schedules k over the global range in workgroups of size
	// local, to start after every event in waitFor has completed.
	// Arguments are captured at the time of the call. Errors wrap
	// ErrDispatchFailure and mean that nothing was scheduled.
	Enqueue(k Kernel, global, local Range, waitFor []Event) (Event, error)

	// Flush submits any batched work to the device without waiting.
	Flush() error
}

// Program is a compiled kernel source.
type Program interface {
	// Kernel returns the entry point called name.
	// Errors wrap ErrBuildFailure.
	Kernel(name string) (Kernel, error)

	// Release frees the program. Kernels obtained from it must be
	// released first.
	Release()
}

// Kernel is an entry point of a Program together with its bound arguments.
// A Kernel is not safe for concurrent use.
type Kernel interface {
	// Name returns the entry point name.
	Name() string

	// Arity returns the number of positional arguments.
	Arity() int

	// SetArg binds the scalar argument i to the little-endian encoding v.
	SetArg(i int, v []byte) error

	// SetBuffer binds the buffer argument i.
	SetBuffer(i int, b Buffer) error

	// Release frees the kernel.
	Release()
}

// Buffer is a device memory allocation.
type Buffer interface {
	// Size returns the size in bytes.
	Size() int

	// Release frees the allocation.
	Release()
}

// Event tracks the completion of enqueued work.
type Event interface {
	// Wait blocks until the work completes or ctx is done. It returns an
	// error wrapping ErrDeviceFailure if the work failed, or ctx.Err().
	Wait(ctx context.Context) error

	// Status reports the current state without blocking.
	Status() Status
}

// Status is the execution state of enqueued work.
type Status int

const (
	// StatusPending means the work has not finished yet.
	StatusPending Status = iota

	// StatusComplete means the work finished successfully.
	StatusComplete

	// StatusFailed means the work, or one of its dependencies, failed.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusComplete:
		return "Complete"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Range is a dispatch extent in up to three dimensions.
type Range [3]int

// R1 returns the one-dimensional range (x, 1, 1).
func R1(x int) Range { return Range{x, 1, 1} }

// R2 returns the two-dimensional range (x, y, 1).
func R2(x, y int) Range { return Range{x, y, 1} }

// R3 returns the range (x, y, z).
func R3(x, y, z int) Range { return Range{x, y, z} }

// Volume returns the number of invocations in r.
func (r Range) Volume() int { return r[0] * r[1] * r[2] }

// Valid reports whether every dimension is positive.
func (r Range) Valid() bool { return r[0] > 0 && r[1] > 0 && r[2] > 0 }

// Groups returns the number of workgroups of size local needed to cover r.
func (r Range) Groups(local Range) Range {
	var g Range
	for i := range g {
		g[i] = (r[i] + local[i] - 1) / local[i]
	}
	return g
}

// String formats r as "XxYxZ".
func (r Range) String() string {
	return fmt.Sprintf("%dx%dx%d", r[0], r[1], r[2])
}

// Describer is implemented by queues that can describe their device.
type Describer interface {
	Describe() string
}
