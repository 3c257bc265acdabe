// Package feedback implements the subscriber registry used for task and
// line event delivery. Handlers are stored per event kind together with an
// optional delivery executor; notification preserves subscription order and
// batches consecutive handlers that share an executor into a single
// dispatch.
package feedback

import (
	"sync"

	"github.com/KieranHarper/Yakka/pkg/exec"
)

type subscriber[T any] struct {
	ex exec.Executor
	fn func(T)
}

// Registry is a thread-safe list of subscribers for one event kind.
// The zero value is ready to use.
type Registry[T any] struct {
	mu   sync.Mutex
	subs []subscriber[T]
}

// Subscribe registers fn. A nil executor means "use the default passed to
// Notify". Nil handlers are ignored.
func (r *Registry[T]) Subscribe(ex exec.Executor, fn func(T)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.subs = append(r.subs, subscriber[T]{ex: ex, fn: fn})
	r.mu.Unlock()
}

// Len reports the number of subscribers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Notify delivers v to every subscriber in subscription order. Handlers
// without an executor override are delivered on def. Consecutive handlers
// targeting the same executor are dispatched as one batch, so a serial
// executor preserves their relative order with no interleaving.
func (r *Registry[T]) Notify(def exec.Executor, v T) {
	r.mu.Lock()
	subs := make([]subscriber[T], len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	deliver(def, subs, v)
}

func deliver[T any](def exec.Executor, subs []subscriber[T], v T) {
	i := 0
	for i < len(subs) {
		ex := subs[i].ex
		if ex == nil {
			ex = def
		}
		j := i + 1
		for j < len(subs) {
			next := subs[j].ex
			if next == nil {
				next = def
			}
			if next != ex {
				break
			}
			j++
		}
		batch := subs[i:j]
		ex.Async(func() {
			for _, s := range batch {
				s.fn(v)
			}
		})
		i = j
	}
}
