package exec

import "sync"

// Pool is an executor backed by a fixed number of worker goroutines. Use it
// as a task work executor when the number of concurrently executing work
// closures must be capped below what the Line or MultiTask limits provide.
//
// The submission queue is unbounded, so Async never blocks callers.
type Pool struct {
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	wg sync.WaitGroup
}

// NewPool starts a pool with n workers. n < 1 is treated as 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{workers: n}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Async enqueues fn for execution by the next free worker. Calls after
// Close are dropped.
func (p *Pool) Async(fn func()) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, fn)
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		runProtected("exec.Pool", fn)
	}
}

// Close stops accepting work, waits for queued callbacks to finish, and
// releases the workers. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// Workers reports the worker count fixed at creation.
func (p *Pool) Workers() int {
	return p.workers
}
