package task

import (
	"sync"

	"github.com/KieranHarper/Yakka/pkg/logger"
)

// MultiTaskConfig controls how a composite task drives its sub-tasks.
type MultiTaskConfig struct {
	// MaxConcurrent caps how many sub-tasks run at once. 0 means
	// unlimited.
	MaxConcurrent int
	// RequireSuccess makes any non-Success sub-task outcome fail the
	// composite immediately: remaining running sub-tasks receive a cancel
	// request, pending ones never start, and the composite signals Failure
	// without waiting for the rest to drain.
	RequireSuccess bool
}

// NewMultiTask builds a composite task that owns the given sub-tasks and
// admits them FIFO up to the concurrency limit. The composite is an
// ordinary Task: it can be subscribed to, retried, cancelled, chained and
// lined up like any other. Overall progress is the arithmetic mean of
// per-sub-task progress, where a sub-task counts as 0 until its first
// report and as 1 once finished.
//
// Cancelling the composite clears the pending sub-tasks (they never start)
// and propagates the cancel request to the running ones; the composite
// resolves to Cancelled once those drain. Without RequireSuccess,
// sub-task failures do not fail the composite.
func NewMultiTask(cfg MultiTaskConfig, subs ...*Task) *Task {
	t := New()
	g := &group{cfg: cfg, subs: subs, owner: t}
	t.group = g
	t.SetWork(g.run)
	return t
}

// NewSerialTask builds a composite that runs its sub-tasks one at a time
// in the given order: each sub-task starts only after the previous one
// reached a terminal state.
func NewSerialTask(subs ...*Task) *Task {
	return NewMultiTask(MultiTaskConfig{MaxConcurrent: 1}, subs...)
}

// NewParallelTask builds a composite that runs all sub-tasks concurrently.
func NewParallelTask(subs ...*Task) *Task {
	return NewMultiTask(MultiTaskConfig{}, subs...)
}

// NewParallelTaskLimit builds a composite that runs sub-tasks concurrently
// with at most limit in flight (0 = unlimited).
func NewParallelTaskLimit(limit int, subs ...*Task) *Task {
	return NewMultiTask(MultiTaskConfig{MaxConcurrent: limit}, subs...)
}

// group is the orchestration routine behind a MultiTask. The sub-task set
// is partitioned into pending, running and finished; the partitions stay
// disjoint and covering at every step.
type group struct {
	cfg   MultiTaskConfig
	owner *Task

	mu         sync.Mutex
	subs       []*Task
	pending    []int
	running    map[int]struct{}
	finished   map[int]struct{}
	subscribed map[int]struct{} // persists across composite retries
	progress   []float64
	proc       *Process
	cancelled  bool
	failed     bool
	done       bool
}

// serial reports whether the group admits one sub-task at a time. Used by
// chaining to decide whether to flatten.
func (g *group) serial() bool {
	return g.cfg.MaxConcurrent == 1
}

// append adds sub-tasks; only valid while the owner has not started.
func (g *group) append(subs ...*Task) {
	g.mu.Lock()
	g.subs = append(g.subs, subs...)
	g.mu.Unlock()
}

// run is the composite's work closure. On a retry of the composite it
// starts over with fresh partitions; already-finished sub-tasks replay
// their outcome immediately.
func (g *group) run(p *Process) {
	g.mu.Lock()
	g.proc = p
	g.pending = g.pending[:0]
	for i := range g.subs {
		g.pending = append(g.pending, i)
	}
	g.running = make(map[int]struct{})
	g.finished = make(map[int]struct{})
	g.progress = make([]float64, len(g.subs))
	g.cancelled = false
	g.failed = false
	g.done = false
	g.mu.Unlock()

	p.OnShouldCancel(g.cancelRequested)
	g.admit()
}

// admit starts pending sub-tasks FIFO while capacity remains.
func (g *group) admit() {
	for {
		g.mu.Lock()
		if g.done || g.cancelled || g.failed {
			g.mu.Unlock()
			return
		}
		if len(g.pending) == 0 {
			drained := len(g.running) == 0
			g.mu.Unlock()
			if drained {
				g.complete()
			}
			return
		}
		if g.cfg.MaxConcurrent > 0 && len(g.running) >= g.cfg.MaxConcurrent {
			g.mu.Unlock()
			return
		}
		i := g.pending[0]
		g.pending = g.pending[1:]
		g.running[i] = struct{}{}
		sub := g.subs[i]
		if g.subscribed == nil {
			g.subscribed = make(map[int]struct{})
		}
		_, seen := g.subscribed[i]
		g.subscribed[i] = struct{}{}
		g.mu.Unlock()

		// Subscribe once per sub-task; later composite attempts reuse the
		// handlers from the first admission.
		idx := i
		if !seen {
			sub.OnProgress(func(pct float64) { g.subProgress(idx, pct) })
			sub.OnFinish(func(o Outcome) { g.subFinished(idx, o) })
		}
		sub.Start()

		switch st := sub.State(); {
		case st == StateNotStarted:
			// Cancelled before it ever started: it refuses to run and will
			// never produce a finish event. Retire its slot so the
			// composite can still drain.
			g.subFinished(idx, OutcomeCancelled)
		case st.Terminal():
			// Finished during an earlier composite attempt: the existing
			// subscription fired back then and will not replay, so retire
			// the slot with the recorded outcome.
			if o, ok := sub.Outcome(); ok {
				g.subFinished(idx, o)
			}
		}
	}
}

func (g *group) subProgress(i int, pct float64) {
	g.mu.Lock()
	if _, ok := g.finished[i]; ok || g.done {
		g.mu.Unlock()
		return
	}
	g.progress[i] = pct
	g.mu.Unlock()
	g.reportAggregate()
}

func (g *group) subFinished(i int, o Outcome) {
	g.mu.Lock()
	if _, ok := g.finished[i]; ok {
		g.mu.Unlock()
		return
	}
	delete(g.running, i)
	g.finished[i] = struct{}{}
	g.progress[i] = 1

	if g.done {
		g.mu.Unlock()
		g.reportAggregate()
		return
	}

	if g.cfg.RequireSuccess && o != OutcomeSuccess && !g.failed {
		g.failed = true
		g.done = true
		g.pending = g.pending[:0]
		var toCancel []*Task
		for j := range g.running {
			toCancel = append(toCancel, g.subs[j])
		}
		p := g.proc
		g.mu.Unlock()

		g.reportAggregate()
		logger.Get().Debugf("multitask %s: sub-task %s finished %s, failing composite", g.owner.id, g.subs[i].id, o)
		for _, s := range toCancel {
			s.Cancel()
		}
		p.Fail()
		return
	}

	drained := len(g.pending) == 0 && len(g.running) == 0
	cancelled := g.cancelled
	g.mu.Unlock()

	g.reportAggregate()
	if drained {
		g.complete()
	} else if !cancelled {
		g.admit()
	}
}

// cancelRequested handles the composite's own should-cancel: pending
// sub-tasks are dropped so they never start, running ones get the cancel
// request, and the composite resolves once they drain.
func (g *group) cancelRequested() {
	g.mu.Lock()
	if g.done || g.cancelled {
		g.mu.Unlock()
		return
	}
	g.cancelled = true
	var toCancel []*Task
	for _, i := range g.pending {
		toCancel = append(toCancel, g.subs[i])
	}
	g.pending = g.pending[:0]
	for j := range g.running {
		toCancel = append(toCancel, g.subs[j])
	}
	drained := len(g.running) == 0
	g.mu.Unlock()

	for _, s := range toCancel {
		s.Cancel()
	}
	if drained {
		g.complete()
	}
}

// complete signals the overall outcome once pending and running are both
// empty: Cancelled when cancellation was requested, otherwise Success.
// Failure is only reached through the RequireSuccess short-circuit.
func (g *group) complete() {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	g.done = true
	cancelled := g.cancelled
	p := g.proc
	g.mu.Unlock()

	if cancelled {
		p.Cancel()
	} else {
		p.Succeed()
	}
}

func (g *group) reportAggregate() {
	g.mu.Lock()
	if len(g.progress) == 0 {
		g.mu.Unlock()
		return
	}
	var sum float64
	for _, v := range g.progress {
		sum += v
	}
	mean := sum / float64(len(g.progress))
	p := g.proc
	g.mu.Unlock()
	p.Progress(mean)
}
