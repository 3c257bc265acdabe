package exec

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSerialPreservesOrder(t *testing.T) {
	s := NewSerial("test")

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	const n = 100
	for i := 0; i < n; i++ {
		i := i
		s.Async(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == n-1 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for serial queue to drain")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran out of order (got value %d)", i, v)
		}
	}
}

func TestSerialNeverOverlaps(t *testing.T) {
	s := NewSerial("test")

	var inFlight atomic.Int32
	var overlapped atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		s.Async(func() {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			wg.Done()
		})
	}
	wg.Wait()

	if overlapped.Load() {
		t.Error("serial executor ran callbacks concurrently")
	}
}

func TestSerialContainsPanic(t *testing.T) {
	s := NewSerial("test")
	done := make(chan struct{})

	s.Async(func() { panic("boom") })
	s.Async(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("a panicking callback stopped the queue")
	}
}

func TestConcurrentRunsAsync(t *testing.T) {
	done := make(chan struct{})
	Concurrent{}.Async(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(3)
	defer p.Close()

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 30; i++ {
		wg.Add(1)
		p.Async(func() {
			cur := inFlight.Add(1)
			for {
				prev := peak.Load()
				if cur <= prev || peak.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			wg.Done()
		})
	}
	wg.Wait()

	if got := peak.Load(); got > 3 {
		t.Errorf("pool ran %d callbacks concurrently, limit is 3", got)
	}
}

func TestPoolCloseDrainsQueue(t *testing.T) {
	p := NewPool(1)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		p.Async(func() {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		})
	}
	p.Close()

	if got := ran.Load(); got != 10 {
		t.Errorf("expected 10 callbacks to run before Close returned, got %d", got)
	}
	// Submissions after Close are dropped.
	p.Async(func() { ran.Add(1) })
	time.Sleep(10 * time.Millisecond)
	if got := ran.Load(); got != 10 {
		t.Errorf("callback ran after Close, count %d", got)
	}
}

func TestMainIsSingleton(t *testing.T) {
	if Main() != Main() {
		t.Error("Main should return the same queue every time")
	}
}
