// Package exec provides the execution-context abstraction the task engine
// dispatches callbacks onto. An Executor runs callbacks asynchronously,
// possibly serialized; the engine never assumes which goroutine a callback
// lands on, only the ordering contract of the chosen executor.
package exec

import (
	"runtime"
	"sync"

	"github.com/KieranHarper/Yakka/pkg/logger"
)

// Executor runs a callback asynchronously. Async must not block the caller
// beyond enqueueing.
type Executor interface {
	Async(fn func())
}

// runProtected executes fn, containing any panic so a rogue callback cannot
// take down the process. The panic is logged with its stack.
func runProtected(origin string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 8192)
			n := runtime.Stack(buf, false)
			logger.Get().Errorf("%s: recovered panic: %v\n%s", origin, r, buf[:n])
		}
	}()
	fn()
}

// Concurrent is an executor that runs every callback on its own goroutine.
// It is the default work executor.
type Concurrent struct{}

// Async runs fn on a new goroutine.
func (Concurrent) Async(fn func()) {
	go runProtected("exec.Concurrent", fn)
}

var (
	mainOnce  sync.Once
	mainQueue *Serial
)

// Main returns the process-wide serial queue used as the default feedback
// delivery context.
func Main() *Serial {
	mainOnce.Do(func() {
		mainQueue = NewSerial("main")
	})
	return mainQueue
}

// Background returns the default work executor.
func Background() Executor {
	return Concurrent{}
}
