package compute

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Backend names registered by the sub-packages of compute.
const (
	BackendWGPU     = "wgpu"
	BackendSoftware = "software"
)

// Factory opens a new queue on a backend. The caller owns the returned
// queue and closes it through io.Closer when the backend supports it.
type Factory func() (Queue, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for OpenDefault (first that opens wins).
	backendPriority = []string{BackendWGPU, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a queue on the named backend.
func Open(name string) (Queue, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Available())
	}
	q, err := factory()
	if err != nil {
		return nil, fmt.Errorf("compute: open %s: %w", name, err)
	}
	Logger().Info("compute: backend opened", "backend", name)
	return q, nil
}

// OpenDefault opens the best available backend. Backends are tried in
// priority order (wgpu, then software, then any other in name order);
// a backend that fails to open is logged and skipped.
// It returns the queue together with the name of the backend that served.
func OpenDefault() (Queue, string, error) {
	order := slices.Clone(backendPriority)
	for _, name := range Available() {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	var errs []error
	for _, name := range order {
		if !IsRegistered(name) {
			continue
		}
		q, err := Open(name)
		if err == nil {
			return q, name, nil
		}
		Logger().Warn("compute: backend unavailable, trying next", "backend", name, "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, "", ErrNoBackend
	}
	return nil, "", fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}
