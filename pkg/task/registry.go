package task

import "sync"

// The running-task registry holds a strong reference to every task between
// its NotStarted->Running transition and its terminal transition. It keeps
// in-flight tasks reachable without external references and supports
// lookup by identifier while active. Iteration is deliberately not
// exposed.
var registry = struct {
	sync.RWMutex
	m map[string]*Task
}{m: make(map[string]*Task)}

// Find returns the task with the given identifier if it is currently
// running (or cancelling). Tasks that have not started or have finished
// are not found.
func Find(id string) (*Task, bool) {
	registry.RLock()
	t, ok := registry.m[id]
	registry.RUnlock()
	return t, ok
}

func registerRunning(t *Task) {
	registry.Lock()
	registry.m[t.id] = t
	registry.Unlock()
}

func unregisterRunning(id string) {
	registry.Lock()
	delete(registry.m, id)
	registry.Unlock()
}
