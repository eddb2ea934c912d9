package software

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/paeth/compute"
)

// KernelFunc is the host implementation of a WGSL entry point.
//
// It is called once per dispatch with the bound arguments and returns the
// function executed for every invocation of the dispatch, including the
// invocations of partial workgroups past the global range, exactly as a
// GPU would run them. The invocation function is called concurrently.
type KernelFunc func(args *Args) (func(gid compute.Range), error)

var (
	kernelsMu sync.RWMutex
	kernels   = make(map[string]KernelFunc)
)

func kernelKey(entry, elem string) string {
	if elem == "" {
		elem = "f32"
	}
	return entry + "/" + elem
}

// RegisterKernel registers the host implementation of the entry point
// named entry for sources whose elem alias is elem ("f32" or "f64").
// Registering the same pair twice replaces the earlier implementation.
func RegisterKernel(entry, elem string, fn KernelFunc) {
	if fn == nil {
		panic("software: RegisterKernel with nil function")
	}
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	kernels[kernelKey(entry, elem)] = fn
}

func lookupKernel(entry, elem string) (KernelFunc, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	fn, ok := kernels[kernelKey(entry, elem)]
	return fn, ok
}

// Args are the arguments of one dispatch, captured at enqueue time.
type Args struct {
	layout  *compute.Layout
	scalars [][]byte
	buffers [][]byte
}

// Len returns the number of positional arguments.
func (a *Args) Len() int { return a.layout.Arity() }

// Scalar returns the encoding of scalar argument i.
func (a *Args) Scalar(i int) ([]byte, error) {
	if i < 0 || i >= len(a.scalars) {
		return nil, fmt.Errorf("software: argument %d is not a scalar", i)
	}
	return a.scalars[i], nil
}

// Buffer returns the memory of buffer argument i.
func (a *Args) Buffer(i int) ([]byte, error) {
	j := i - len(a.scalars)
	if j < 0 || j >= len(a.buffers) {
		return nil, fmt.Errorf("software: argument %d is not a buffer", i)
	}
	return a.buffers[j], nil
}

// Arg decodes scalar argument i as T.
func Arg[T compute.Scalar](a *Args, i int) (T, error) {
	var v [1]T
	b, err := a.Scalar(i)
	if err != nil {
		return v[0], err
	}
	if err := compute.Decode(b, v[:]); err != nil {
		return v[0], fmt.Errorf("software: argument %d: %w", i, err)
	}
	return v[0], nil
}

// View returns buffer argument i as a slice of T sharing its memory.
// Trailing bytes that do not fill a whole element are not part of the view.
func View[T compute.Scalar](a *Args, i int) ([]T, error) {
	b, err := a.Buffer(i)
	if err != nil {
		return nil, err
	}
	n := len(b) / compute.SizeOf[T]()
	if n == 0 {
		return nil, nil
	}
	// buffers are backed by []uint64, so any scalar type is aligned.
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n), nil
}
