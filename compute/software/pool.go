package software

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// pool runs workgroups on a fixed set of goroutines.
//
// Each worker owns a queue and steals from the other queues when its own
// is empty, which balances dispatches whose workgroups take uneven time
// (rows that clamp at the border, for instance).
type pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// newPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func newPool(workers int) *pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(workers*4, 8)

	p := &pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func (p *pool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue, or returns nil.
func (p *pool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.queues[i]:
			return work
		default:
		}
	}
	return nil
}

// run calls fn(i) for every i in [0, n) on the workers and waits for all
// calls to return. It reports false if the pool was closed before every
// call could be queued; calls that were not queued are skipped.
func (p *pool) run(n int, fn func(i int)) bool {
	if n == 0 {
		return true
	}
	if !p.running.Load() {
		return false
	}

	var wg sync.WaitGroup
	wg.Add(n)
	queued := true
	for i := range n {
		if !queued {
			wg.Done()
			continue
		}
		item := func() {
			defer wg.Done()
			fn(i)
		}
		select {
		case p.queues[i%p.workers] <- item:
		case <-p.done:
			wg.Done()
			queued = false
		}
	}
	wg.Wait()
	return queued
}

// close stops the workers after they drain their queues.
// It must not race with run. Calling close twice is safe.
func (p *pool) close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}
