// Package task implements the task lifecycle engine: a Task is a unit of
// asynchronous work with a forward-only state machine, cooperative
// cancellation, progress/outcome feedback, automatic retry with a
// configurable wait schedule, and composition into serial/parallel groups
// (see MultiTask). Tasks are started directly, after another task, or
// through a line.Line.
package task

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KieranHarper/Yakka/pkg/backoff"
	"github.com/KieranHarper/Yakka/pkg/exec"
	"github.com/KieranHarper/Yakka/pkg/feedback"
	"github.com/KieranHarper/Yakka/pkg/logger"
)

// Work is the closure a task executes. It receives a Process handle for
// reporting progress, observing cancellation, and signalling the outcome
// of this attempt. Work that never signals leaves its task in
// Running/Cancelling forever; the engine does not force-terminate
// non-cooperative work.
type Work func(*Process)

// Task is a unit of asynchronous work with a lifecycle.
//
// All methods are safe for concurrent use from any goroutine. State
// mutations are serialized through the task's internal lock; no method
// blocks its caller beyond that (work, feedback and retries are dispatched
// onto executors).
type Task struct {
	id string

	mu             sync.Mutex
	name           string
	state          State
	outcome        Outcome // valid once state is terminal
	work           Work
	preStartCancel bool

	workEx     exec.Executor // where work and should-cancel callbacks run
	feedbackEx exec.Executor // default delivery context for handlers

	retryWaits []time.Duration
	retryIndex int
	retryTimer *time.Timer

	attempt      uint64
	proc         *Process
	shouldCancel func()

	group *group // non-nil when this task is a MultiTask

	startFeedback    feedback.Registry[struct{}]
	progressFeedback feedback.Registry[float64]
	retryFeedback    feedback.Registry[struct{}]
	finishFeedback   feedback.Registry[Outcome]
}

// New creates a task in NotStarted with no work attached. Starting it
// without attaching work finishes it with OutcomeFailure.
func New() *Task {
	return &Task{id: uuid.NewString()}
}

// NewWithWork creates a task with its work closure attached.
func NewWithWork(w Work) *Task {
	t := New()
	t.SetWork(w)
	return t
}

// ID returns the process-unique identifier used for registry lookup.
func (t *Task) ID() string {
	return t.id
}

// SetName attaches a human-readable label used in logs. It has no effect
// on identity or lookup.
func (t *Task) SetName(name string) {
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

// Name returns the label set with SetName, or the empty string.
func (t *Task) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Outcome returns the terminal classification and true once the task has
// finished, or zero and false before that.
func (t *Task) Outcome() (Outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Terminal() {
		return 0, false
	}
	return t.outcome, true
}

// SetWork replaces the work to run. Only the value in place when Start
// takes effect is used; assignments after that are ignored for the current
// run. Work must be set before starting, otherwise the task fails.
func (t *Task) SetWork(w Work) {
	t.mu.Lock()
	t.work = w
	t.mu.Unlock()
}

// SetRetrySchedule enables autoretry with the given ordered wait
// durations. The schedule length is the maximum number of times a failing
// work closure is re-invoked after its first attempt. Set before starting.
func (t *Task) SetRetrySchedule(waits []time.Duration) {
	cp := make([]time.Duration, len(waits))
	copy(cp, waits)
	t.mu.Lock()
	t.retryWaits = cp
	t.retryIndex = 0
	t.mu.Unlock()
}

// RetryWithBackoff enables autoretry with an exponentially doubling wait
// schedule of the given length. See backoff.Exponential for the timeline
// contract.
func (t *Task) RetryWithBackoff(initial time.Duration, attempts int) {
	t.SetRetrySchedule(backoff.Exponential(initial, attempts))
}

// SetWorkExecutor overrides where the work closure (and should-cancel
// callbacks) run. Defaults to exec.Background.
func (t *Task) SetWorkExecutor(ex exec.Executor) {
	t.mu.Lock()
	t.workEx = ex
	t.mu.Unlock()
}

// SetFeedbackExecutor overrides the default delivery context for feedback
// handlers registered without their own executor. Defaults to exec.Main.
func (t *Task) SetFeedbackExecutor(ex exec.Executor) {
	t.mu.Lock()
	t.feedbackEx = ex
	t.mu.Unlock()
}

// Start transitions NotStarted->Running exactly once; any later or
// concurrent call is a no-op, as is starting a task that was cancelled
// before it ever started. Side effects in order: registry insertion, start
// feedback, work invocation with a fresh Process. A task with no work
// finishes with OutcomeFailure through the normal finish path, so finish
// handlers still fire.
func (t *Task) Start() {
	t.mu.Lock()
	if t.state != StateNotStarted || t.preStartCancel {
		t.mu.Unlock()
		return
	}
	t.state = StateRunning
	name := t.name
	t.mu.Unlock()

	registerRunning(t)
	logger.Get().Debugf("task %s (%q) started", t.id, name)
	t.fireStart()
	t.beginAttempt()
}

// StartWithFinish registers a finish handler and starts the task. Shorthand
// for OnFinish followed by Start.
func (t *Task) StartWithFinish(h func(Outcome), on ...exec.Executor) {
	if h != nil {
		t.OnFinish(h, on...)
	}
	t.Start()
}

// StartAfter subscribes this task to dep's finish event. When dep
// finishes, this task starts if dep's outcome is among allowed (an empty
// allowed set means any outcome). Otherwise dep's outcome propagates:
// this task finishes immediately with that outcome without ever starting.
// The subscription itself keeps this task reachable until resolution.
// Cancelling this task while it waits prevents it from starting and from
// firing any feedback, as if it had never been asked to start.
func (t *Task) StartAfter(dep *Task, allowed ...Outcome) {
	dep.OnFinish(func(o Outcome) {
		if len(allowed) == 0 {
			t.Start()
			return
		}
		for _, a := range allowed {
			if a == o {
				t.Start()
				return
			}
		}
		t.finish(o)
	})
}

// Cancel requests cooperative cancellation. On a Running task it
// transitions to Cancelling and invokes the registered should-cancel
// callback on the work executor. On a NotStarted task it latches a
// pre-start cancel: the task will refuse to start and will never fire
// feedback. Cancel is idempotent and a no-op on Cancelling or terminal
// tasks.
func (t *Task) Cancel() {
	t.mu.Lock()
	switch t.state {
	case StateNotStarted:
		t.preStartCancel = true
		t.mu.Unlock()
	case StateRunning:
		t.state = StateCancelling
		cb := t.shouldCancel
		t.shouldCancel = nil
		ex := t.workExecutorLocked()
		t.mu.Unlock()
		logger.Get().Debugf("task %s cancelling", t.id)
		if cb != nil {
			ex.Async(cb)
		}
	default:
		t.mu.Unlock()
	}
}

// OnStart registers a handler for the start event, delivered on the given
// executor (or the task's feedback executor when omitted). A handler
// registered while the task is already actively running fires immediately;
// after the task has finished it does not fire.
func (t *Task) OnStart(h func(), on ...exec.Executor) {
	ex := optionalExecutor(on)
	t.mu.Lock()
	switch {
	case t.state == StateNotStarted:
		t.startFeedback.Subscribe(ex, func(struct{}) { h() })
		t.mu.Unlock()
	case t.state == StateRunning || t.state == StateCancelling:
		fex := t.deliveryExecutorLocked(ex)
		t.mu.Unlock()
		fex.Async(h)
	default:
		t.mu.Unlock()
	}
}

// OnProgress registers a handler for progress reports from the running
// work. Values are forwarded exactly as reported; the engine applies no
// clamping.
func (t *Task) OnProgress(h func(float64), on ...exec.Executor) {
	t.progressFeedback.Subscribe(optionalExecutor(on), h)
}

// OnRetry registers a handler fired before each re-invocation of failing
// work.
func (t *Task) OnRetry(h func(), on ...exec.Executor) {
	t.retryFeedback.Subscribe(optionalExecutor(on), func(struct{}) { h() })
}

// OnFinish registers a handler for the terminal outcome. Every handler
// observes exactly one outcome exactly once: a handler registered after
// the task has already finished is replayed immediately with the known
// outcome rather than dropped.
func (t *Task) OnFinish(h func(Outcome), on ...exec.Executor) {
	ex := optionalExecutor(on)
	t.mu.Lock()
	if t.state.Terminal() {
		o := t.outcome
		fex := t.deliveryExecutorLocked(ex)
		t.mu.Unlock()
		fex.Async(func() { h(o) })
		return
	}
	t.finishFeedback.Subscribe(ex, h)
	t.mu.Unlock()
}

// beginAttempt dispatches one invocation of the work closure with a fresh
// Process. Called on first start and on each retry.
func (t *Task) beginAttempt() {
	t.mu.Lock()
	if t.state != StateRunning && t.state != StateCancelling {
		t.mu.Unlock()
		return
	}
	w := t.work
	t.attempt++
	t.shouldCancel = nil
	p := &Process{task: t, attempt: t.attempt}
	t.proc = p
	ex := t.workExecutorLocked()
	t.mu.Unlock()

	if w == nil {
		logger.Get().Debugf("task %s has no work attached, failing", t.id)
		t.finish(OutcomeFailure)
		return
	}
	ex.Async(func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 8192)
				n := runtime.Stack(buf, false)
				logger.Get().Errorf("task %s: work panicked: %v\n%s", t.id, r, buf[:n])
				p.Fail()
			}
		}()
		w(p)
	})
}

// attemptDone resolves a terminal signal from the given attempt's Process.
// Signals from superseded attempts are ignored.
func (t *Task) attemptDone(p *Process, o Outcome) {
	t.mu.Lock()
	if p.attempt != t.attempt || t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	if o != OutcomeFailure {
		t.mu.Unlock()
		t.finish(o)
		return
	}

	// Failure consults the retry budget, but only while Running: a failure
	// reported after a cancel request resolves immediately.
	if t.state == StateRunning && t.retryIndex < len(t.retryWaits) {
		wait := t.retryWaits[t.retryIndex]
		t.retryIndex++
		t.proc = nil
		t.shouldCancel = nil
		t.retryTimer = time.AfterFunc(wait, t.retryFire)
		t.mu.Unlock()

		p.invalidate()
		logger.Get().Debugf("task %s: attempt failed, retrying in %v", t.id, wait)
		t.fireRetryScheduled()
		return
	}
	t.mu.Unlock()
	t.finish(OutcomeFailure)
}

// retryFire runs when the retry timer elapses. A cancel request that
// arrived during the wait wins: with no work in flight there is nothing to
// cooperate with, so the task resolves to Cancelled instead of re-invoking
// work the caller asked to stop.
func (t *Task) retryFire() {
	t.mu.Lock()
	t.retryTimer = nil
	st := t.state
	t.mu.Unlock()

	switch st {
	case StateRunning:
		t.beginAttempt()
	case StateCancelling:
		t.finish(OutcomeCancelled)
	}
}

// finish moves the task to the terminal state for o, at most once. Later
// finish signals of any kind are ignored, which protects against
// double-finish bugs in user work. A pre-start-cancelled task never
// finishes (it was never asked to run).
func (t *Task) finish(o Outcome) {
	t.mu.Lock()
	if t.state.Terminal() || (t.state == StateNotStarted && t.preStartCancel) {
		t.mu.Unlock()
		return
	}
	wasActive := t.state == StateRunning || t.state == StateCancelling
	t.state = o.state()
	t.outcome = o
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	p := t.proc
	t.proc = nil
	t.shouldCancel = nil
	t.mu.Unlock()

	if p != nil {
		p.invalidate()
	}
	if wasActive {
		unregisterRunning(t.id)
	}
	logger.Get().Debugf("task %s finished: %s", t.id, o)
	t.fireFinish(o)
}

// registerShouldCancel stores the work's cancellation callback, or fires
// it immediately (once) if cancellation has already been requested.
func (t *Task) registerShouldCancel(p *Process, h func()) {
	t.mu.Lock()
	if p.attempt != t.attempt {
		t.mu.Unlock()
		return
	}
	switch t.state {
	case StateCancelling:
		ex := t.workExecutorLocked()
		t.mu.Unlock()
		ex.Async(h)
	case StateRunning:
		t.shouldCancel = h
		t.mu.Unlock()
	default:
		t.mu.Unlock()
	}
}

func (t *Task) reportProgress(p *Process, pct float64) {
	t.mu.Lock()
	if p.attempt != t.attempt || t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	def := t.feedbackExecutorLocked()
	t.mu.Unlock()
	t.progressFeedback.Notify(def, pct)
}

func (t *Task) fireStart() {
	t.startFeedback.Notify(t.defaultFeedbackExecutor(), struct{}{})
}

func (t *Task) fireRetryScheduled() {
	t.retryFeedback.Notify(t.defaultFeedbackExecutor(), struct{}{})
}

func (t *Task) fireFinish(o Outcome) {
	t.finishFeedback.Notify(t.defaultFeedbackExecutor(), o)
}

func (t *Task) defaultFeedbackExecutor() exec.Executor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.feedbackExecutorLocked()
}

func (t *Task) feedbackExecutorLocked() exec.Executor {
	if t.feedbackEx != nil {
		return t.feedbackEx
	}
	return exec.Main()
}

func (t *Task) workExecutorLocked() exec.Executor {
	if t.workEx != nil {
		return t.workEx
	}
	return exec.Background()
}

// deliveryExecutorLocked resolves the executor for a single immediate
// delivery: the per-handler override if present, else the task default.
func (t *Task) deliveryExecutorLocked(override exec.Executor) exec.Executor {
	if override != nil {
		return override
	}
	return t.feedbackExecutorLocked()
}

func optionalExecutor(on []exec.Executor) exec.Executor {
	if len(on) > 0 {
		return on[0]
	}
	return nil
}
