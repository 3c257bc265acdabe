// Package line implements the admission-controlled run queue: a Line
// accepts tasks, starts them FIFO up to a concurrency limit, and reclaims
// capacity as they finish. It is the scheduling layer above pkg/task.
package line

import (
	"sync"

	"github.com/KieranHarper/Yakka/pkg/exec"
	"github.com/KieranHarper/Yakka/pkg/feedback"
	"github.com/KieranHarper/Yakka/pkg/logger"
	"github.com/KieranHarper/Yakka/pkg/task"
)

// Option configures a Line.
type Option func(*Line)

// WithLimit caps how many tasks the line keeps running at once.
// 0 means unlimited.
func WithLimit(n int) Option {
	return func(l *Line) {
		if n < 0 {
			n = 0
		}
		l.limit = n
	}
}

// WithWorkExecutor assigns an executor to every task the line starts.
// Tasks keep their own setting when this option is absent.
func WithWorkExecutor(ex exec.Executor) Option {
	return func(l *Line) { l.workEx = ex }
}

// WithFeedbackExecutor sets the default delivery context for the line's
// own events. Defaults to exec.Main.
func WithFeedbackExecutor(ex exec.Executor) Option {
	return func(l *Line) { l.feedbackEx = ex }
}

// Line is an admission-controlled task queue. A new Line is running
// (accepting starts) from creation.
//
// All methods are safe for concurrent use.
type Line struct {
	mu      sync.Mutex
	running bool
	limit   int
	pending []*task.Task
	active  map[string]*task.Task

	admitMu sync.Mutex // serializes admission so started events keep FIFO order

	workEx     exec.Executor
	feedbackEx exec.Executor

	emptyFeedback   feedback.Registry[struct{}]
	startedFeedback feedback.Registry[*task.Task]
}

// New creates a line and starts admission immediately.
func New(opts ...Option) *Line {
	l := &Line{
		running: true,
		active:  make(map[string]*task.Task),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Add enqueues a task and, if the line is running, immediately attempts
// admission.
func (l *Line) Add(t *task.Task) {
	l.AddAll(t)
}

// AddAll enqueues tasks in order.
func (l *Line) AddAll(ts ...*task.Task) {
	l.mu.Lock()
	l.pending = append(l.pending, ts...)
	l.mu.Unlock()
	l.admit()
}

// Start resumes admission. Lines are born running; Start is only needed
// after Stop.
func (l *Line) Start() {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	l.admit()
}

// Stop pauses admission. Already-running tasks are unaffected and still
// reclaim capacity as they finish; pending tasks stay queued.
func (l *Line) Stop() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// CancelAll cancels every running and pending task and clears both sets.
// Pending tasks are cancelled before they ever start, which permanently
// prevents them from running.
func (l *Line) CancelAll() {
	l.mu.Lock()
	pend := l.pending
	l.pending = nil
	act := make([]*task.Task, 0, len(l.active))
	for _, t := range l.active {
		act = append(act, t)
	}
	l.active = make(map[string]*task.Task)
	hadAny := len(pend)+len(act) > 0
	l.mu.Unlock()

	logger.Get().Debugf("line: cancelling %d running and %d pending tasks", len(act), len(pend))
	for _, t := range act {
		t.Cancel()
	}
	for _, t := range pend {
		t.Cancel()
	}
	if hadAny {
		l.fireBecameEmpty()
	}
}

// StopAndCancel composes Stop and CancelAll.
func (l *Line) StopAndCancel() {
	l.Stop()
	l.CancelAll()
}

// PendingCount reports how many tasks wait for admission.
func (l *Line) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// RunningCount reports how many admitted tasks have not finished yet.
func (l *Line) RunningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// OnBecameEmpty registers a handler fired each time the line transitions
// to having no running and no pending tasks. Useful for shutdown
// coordination.
func (l *Line) OnBecameEmpty(h func(), on ...exec.Executor) {
	l.emptyFeedback.Subscribe(optionalExecutor(on), func(struct{}) { h() })
}

// OnTaskStarted registers a handler fired for every task the line admits,
// in admission order.
func (l *Line) OnTaskStarted(h func(*task.Task), on ...exec.Executor) {
	l.startedFeedback.Subscribe(optionalExecutor(on), h)
}

// admit starts pending tasks FIFO while the line is running and capacity
// remains. Each admitted task gets a finish observer that reclaims its
// slot and re-triggers admission. The whole pop/start/notify sequence runs
// under admitMu so concurrent Add calls and finish-driven re-admission
// cannot interleave started events out of queue order.
func (l *Line) admit() {
	l.admitMu.Lock()
	defer l.admitMu.Unlock()
	for {
		l.mu.Lock()
		if !l.running || len(l.pending) == 0 || (l.limit > 0 && len(l.active) >= l.limit) {
			l.mu.Unlock()
			return
		}
		t := l.pending[0]
		l.pending = l.pending[1:]
		l.active[t.ID()] = t
		ex := l.workEx
		l.mu.Unlock()

		if ex != nil {
			t.SetWorkExecutor(ex)
		}
		id := t.ID()
		wasTerminal := t.State().Terminal()
		t.OnFinish(func(task.Outcome) { l.taskFinished(id) })
		t.Start()

		// A task cancelled before admission refuses to start and will
		// never finish; release its slot instead of leaking capacity.
		if t.State() == task.StateNotStarted {
			l.release(id)
			continue
		}
		// A task that was already terminal when added never started here:
		// the finish replay reclaims its slot and no started event fires.
		if wasTerminal {
			continue
		}

		logger.Get().Debugf("line: started task %s", id)
		l.fireTaskStarted(t)
	}
}

// taskFinished reclaims the capacity of a finished task and continues
// draining the queue. Draining on finish keeps the line moving even when
// Stop was never called.
func (l *Line) taskFinished(id string) {
	if !l.release(id) {
		return
	}
	l.admit()
}

// release removes a task from the active set, firing became-empty when it
// was the last one anywhere. Reports whether the task was actually active.
func (l *Line) release(id string) bool {
	l.mu.Lock()
	if _, ok := l.active[id]; !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.active, id)
	becameEmpty := len(l.active) == 0 && len(l.pending) == 0
	l.mu.Unlock()

	if becameEmpty {
		l.fireBecameEmpty()
	}
	return true
}

func (l *Line) fireBecameEmpty() {
	l.emptyFeedback.Notify(l.defaultFeedbackExecutor(), struct{}{})
}

func (l *Line) fireTaskStarted(t *task.Task) {
	l.startedFeedback.Notify(l.defaultFeedbackExecutor(), t)
}

func (l *Line) defaultFeedbackExecutor() exec.Executor {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.feedbackEx != nil {
		return l.feedbackEx
	}
	return exec.Main()
}

func optionalExecutor(on []exec.Executor) exec.Executor {
	if len(on) > 0 {
		return on[0]
	}
	return nil
}
