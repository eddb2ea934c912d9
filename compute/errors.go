package compute

import "errors"

// Failure kinds. Backends wrap the underlying cause with one of these so
// callers can classify errors with errors.Is.
var (
	// ErrBuildFailure means a kernel source could not be compiled or an
	// entry point could not be found.
	ErrBuildFailure = errors.New("compute: build failure")

	// ErrAllocationFailure means a device buffer could not be allocated.
	ErrAllocationFailure = errors.New("compute: allocation failure")

	// ErrDispatchFailure means work could not be scheduled: bad argument
	// binding, invalid ranges or a rejected submission.
	ErrDispatchFailure = errors.New("compute: dispatch failure")

	// ErrDeviceFailure means scheduled work failed while executing.
	ErrDeviceFailure = errors.New("compute: device failure")
)

// Registry errors.
var (
	// ErrUnknownBackend is returned by Open for an unregistered name.
	ErrUnknownBackend = errors.New("compute: unknown backend")

	// ErrNoBackend is returned by OpenDefault when no backend could be opened.
	ErrNoBackend = errors.New("compute: no backend available")
)
