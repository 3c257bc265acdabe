package task

import (
	"sync"
	"sync/atomic"
	"time"
)

// Process is the restricted handle given to running work. One Process is
// created per work invocation (so each retry attempt gets a fresh one); it
// becomes inert once the attempt resolves or is superseded, making every
// method on a stale Process a safe no-op. A Process does not keep its task
// alive beyond the task's own lifecycle.
type Process struct {
	task    *Task
	attempt uint64

	done atomic.Bool

	pollMu   sync.Mutex
	pollStop chan struct{}
}

// ShouldCancel reports whether cancellation has been requested for the
// task. Polling-style work checks this between units of progress.
func (p *Process) ShouldCancel() bool {
	if p.done.Load() {
		return false
	}
	p.task.mu.Lock()
	defer p.task.mu.Unlock()
	if p.attempt != p.task.attempt {
		return false
	}
	return p.task.state == StateCancelling
}

// OnShouldCancel registers a callback fired once on the work executor when
// cancellation is requested, or immediately if it already has been. Use
// this instead of polling when the work can react to a push.
func (p *Process) OnShouldCancel(h func()) {
	if h == nil || p.done.Load() {
		return
	}
	p.task.registerShouldCancel(p, h)
}

// Progress forwards a progress report to the task's progress subscribers.
// Values are conventionally in [0.0, 1.0] but are passed through exactly
// as given; no clamping is applied. Progress has no effect on state.
func (p *Process) Progress(pct float64) {
	if p.done.Load() {
		return
	}
	p.task.reportProgress(p, pct)
}

// ProgressEvery starts a recurring poller that samples provider and
// forwards the value as a progress report. Calling it again replaces the
// previous poller; a nil provider stops polling. The poller stops
// automatically when the attempt resolves.
func (p *Process) ProgressEvery(interval time.Duration, provider func() float64) {
	p.pollMu.Lock()
	if p.pollStop != nil {
		close(p.pollStop)
		p.pollStop = nil
	}
	if provider == nil || interval <= 0 || p.done.Load() {
		p.pollMu.Unlock()
		return
	}
	stop := make(chan struct{})
	p.pollStop = stop
	p.pollMu.Unlock()

	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				p.Progress(provider())
			}
		}
	}()
}

// Succeed signals that this attempt completed its goal. The first terminal
// signal on a Process wins; the rest are ignored.
func (p *Process) Succeed() {
	if !p.settle() {
		return
	}
	p.task.attemptDone(p, OutcomeSuccess)
}

// Cancel signals that this attempt stopped in response to a cancellation
// request.
func (p *Process) Cancel() {
	if !p.settle() {
		return
	}
	p.task.attemptDone(p, OutcomeCancelled)
}

// Fail signals that this attempt did not complete its goal. Failure routes
// through the task's retry budget before it can become the task's final
// outcome.
func (p *Process) Fail() {
	if !p.settle() {
		return
	}
	p.task.attemptDone(p, OutcomeFailure)
}

// settle marks the process finished, stopping the progress poller. It
// reports whether this call was the first terminal signal.
func (p *Process) settle() bool {
	if !p.done.CompareAndSwap(false, true) {
		return false
	}
	p.stopPolling()
	return true
}

// invalidate is called by the task when the attempt is superseded (retry)
// or the task finishes through another path.
func (p *Process) invalidate() {
	p.done.Store(true)
	p.stopPolling()
}

func (p *Process) stopPolling() {
	p.pollMu.Lock()
	if p.pollStop != nil {
		close(p.pollStop)
		p.pollStop = nil
	}
	p.pollMu.Unlock()
}
