package task

// Then returns a serial composite running the receiver followed by next.
// Chaining onto a not-yet-started serial composite appends to it instead
// of nesting, so a.Then(b).Then(c) produces one flat serial group.
func (t *Task) Then(next ...*Task) *Task {
	if g := t.compositeGroup(); g != nil && g.serial() && t.State() == StateNotStarted {
		g.append(next...)
		return t
	}
	subs := append([]*Task{t}, next...)
	return NewSerialTask(subs...)
}

// Alongside returns a parallel composite running the receiver together
// with others. Chaining onto a not-yet-started unlimited parallel
// composite appends to it instead of nesting.
func (t *Task) Alongside(others ...*Task) *Task {
	if g := t.compositeGroup(); g != nil && !g.serial() && g.cfg.MaxConcurrent == 0 && t.State() == StateNotStarted {
		g.append(others...)
		return t
	}
	subs := append([]*Task{t}, others...)
	return NewParallelTask(subs...)
}

func (t *Task) compositeGroup() *group {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.group
}
