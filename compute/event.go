package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Signal is an Event completed from the host side. Backends that execute
// work on host goroutines, or that need to merge several device events,
// use it directly.
type Signal struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewSignal returns a pending signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Complete marks the signal finished. A non-nil err fails it; the error is
// wrapped with ErrDeviceFailure unless it already is. Only the first call
// has an effect.
func (s *Signal) Complete(err error) {
	s.once.Do(func() {
		if err != nil && !isDeviceFailure(err) {
			err = fmt.Errorf("%w: %w", ErrDeviceFailure, err)
		}
		s.err = err
		close(s.done)
	})
}

// Done returns a channel closed when the signal completes.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Wait implements Event.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status implements Event.
func (s *Signal) Status() Status {
	select {
	case <-s.done:
		if s.err != nil {
			return StatusFailed
		}
		return StatusComplete
	default:
		return StatusPending
	}
}

// WaitAll waits for every event in order and returns the first error.
// A dependency failure is reported as ErrDeviceFailure.
func WaitAll(ctx context.Context, events ...Event) error {
	for i, e := range events {
		if e == nil {
			continue
		}
		if err := e.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			if !isDeviceFailure(err) {
				err = fmt.Errorf("%w: %w", ErrDeviceFailure, err)
			}
			return fmt.Errorf("wait event %d: %w", i, err)
		}
	}
	return nil
}

func isDeviceFailure(err error) bool {
	return errors.Is(err, ErrDeviceFailure)
}
