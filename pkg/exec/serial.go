package exec

import "sync"

// Serial is an executor that runs callbacks one at a time in submission
// order. The queue is unbounded so Async never blocks; a drain goroutine is
// started on demand and exits when the queue empties.
type Serial struct {
	name string

	mu       sync.Mutex
	queue    []func()
	draining bool
}

// NewSerial creates a named serial queue. The name appears in panic logs.
func NewSerial(name string) *Serial {
	return &Serial{name: name}
}

// Async enqueues fn to run after all previously enqueued callbacks.
func (s *Serial) Async(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
	s.mu.Unlock()
}

func (s *Serial) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		runProtected("exec.Serial("+s.name+")", fn)
	}
}

// Len reports how many callbacks are waiting (excluding one mid-run).
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
