//go:build !nogpu

package wgpu

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func countingCompiler(calls *int) func(string) ([]uint32, error) {
	return func(source string) ([]uint32, error) {
		*calls++
		return []uint32{uint32(len(source))}, nil
	}
}

func TestSPIRVCacheHit(t *testing.T) {
	c := newSPIRVCache(4)
	calls := 0
	compile := countingCompiler(&calls)

	for range 3 {
		words, err := c.get("fn main() {}", compile)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(words) != 1 || words[0] != 12 {
			t.Errorf("words = %v", words)
		}
	}
	if calls != 1 {
		t.Errorf("compile called %d times, want 1", calls)
	}
	n, hits, misses := c.stats()
	if n != 1 || hits != 2 || misses != 1 {
		t.Errorf("stats = (%d, %d, %d), want (1, 2, 1)", n, hits, misses)
	}
}

func TestSPIRVCacheErrorsNotCached(t *testing.T) {
	c := newSPIRVCache(4)
	fail := errors.New("boom")
	calls := 0
	compile := func(string) ([]uint32, error) {
		calls++
		return nil, fail
	}
	for range 2 {
		if _, err := c.get("bad", compile); !errors.Is(err, fail) {
			t.Errorf("error = %v, want %v", err, fail)
		}
	}
	if calls != 2 {
		t.Errorf("compile called %d times, want 2", calls)
	}
	if n, _, _ := c.stats(); n != 0 {
		t.Errorf("cache holds %d entries after failures", n)
	}
}

func TestSPIRVCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newSPIRVCache(2)
	calls := 0
	compile := countingCompiler(&calls)

	mustGet := func(src string) {
		t.Helper()
		if _, err := c.get(src, compile); err != nil {
			t.Fatalf("get(%q): %v", src, err)
		}
	}
	mustGet("a")
	mustGet("b")
	mustGet("a") // b is now the oldest
	mustGet("c") // evicts b
	if n, _, _ := c.stats(); n != 2 {
		t.Fatalf("len = %d, want 2", n)
	}

	before := calls
	mustGet("a")
	if calls != before {
		t.Error("a was evicted")
	}
	mustGet("b")
	if calls != before+1 {
		t.Error("b was not evicted")
	}
}

func TestSPIRVCacheConcurrent(t *testing.T) {
	c := newSPIRVCache(8)
	var mu sync.Mutex
	calls := map[string]int{}
	compile := func(src string) ([]uint32, error) {
		mu.Lock()
		calls[src]++
		mu.Unlock()
		return []uint32{1}, nil
	}

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.get("src"+strconv.Itoa(i%4), compile)
		}()
	}
	wg.Wait()
	for src, n := range calls {
		if n != 1 {
			t.Errorf("%s compiled %d times", src, n)
		}
	}
}
