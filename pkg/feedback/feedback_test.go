package feedback

import (
	"sync"
	"testing"
	"time"

	"github.com/KieranHarper/Yakka/pkg/exec"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestNotifyDeliversInSubscriptionOrder(t *testing.T) {
	var r Registry[int]
	q := exec.NewSerial("test")

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		i := i
		r.Subscribe(nil, func(v int) {
			mu.Lock()
			order = append(order, i)
			if len(order) == 10 {
				close(done)
			}
			mu.Unlock()
		})
	}

	r.Notify(q, 1)
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("handler %d fired out of order (position %d)", v, i)
		}
	}
}

func TestSubscriberExecutorOverride(t *testing.T) {
	var r Registry[string]
	def := exec.NewSerial("default")
	override := exec.NewSerial("override")

	done := make(chan struct{})
	var onOverride bool

	r.Subscribe(override, func(string) {
		// The override queue is idle except for this delivery, so a
		// callback enqueued here after Notify must run after us.
		onOverride = true
		close(done)
	})
	r.Notify(def, "x")
	waitFor(t, done)

	if !onOverride {
		t.Error("handler did not run")
	}
}

func TestNotifyBatchesConsecutiveHandlers(t *testing.T) {
	var r Registry[int]
	q := exec.NewSerial("test")

	// Interleave handler delivery with an unrelated callback on the same
	// queue: batched handlers must all run before anything enqueued after
	// Notify.
	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	r.Subscribe(nil, func(int) { mu.Lock(); order = append(order, "a"); mu.Unlock() })
	r.Subscribe(nil, func(int) { mu.Lock(); order = append(order, "b"); mu.Unlock() })

	r.Notify(q, 0)
	q.Async(func() {
		mu.Lock()
		order = append(order, "after")
		mu.Unlock()
		close(done)
	})
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "after" {
		t.Errorf("unexpected delivery order: %v", order)
	}
}

func TestNilHandlerIgnored(t *testing.T) {
	var r Registry[int]
	r.Subscribe(nil, nil)
	if r.Len() != 0 {
		t.Error("nil handler should not be stored")
	}
}

func TestLen(t *testing.T) {
	var r Registry[int]
	r.Subscribe(nil, func(int) {})
	r.Subscribe(nil, func(int) {})
	if r.Len() != 2 {
		t.Errorf("expected 2 subscribers, got %d", r.Len())
	}
}
