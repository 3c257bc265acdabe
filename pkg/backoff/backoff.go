// Package backoff generates retry wait schedules. A schedule is an ordered
// list of durations; its length is the number of retries a task will
// attempt after its first failure.
package backoff

import "time"

// DefaultSeed is the second entry of an exponential timeline whose initial
// wait is zero. Doubling resumes from it.
const DefaultSeed = 100 * time.Millisecond

// Exponential returns a timeline of count waits starting at initial and
// doubling thereafter. A negative initial is treated as zero. When initial
// is zero the second entry is DefaultSeed, since doubling zero would yield
// an all-zero schedule.
func Exponential(initial time.Duration, count int) []time.Duration {
	if count <= 0 {
		return nil
	}
	if initial < 0 {
		initial = 0
	}
	waits := make([]time.Duration, count)
	waits[0] = initial
	next := initial * 2
	if initial == 0 {
		next = DefaultSeed
	}
	for i := 1; i < count; i++ {
		waits[i] = next
		next *= 2
	}
	return waits
}

// Constant returns a timeline of count equal waits.
func Constant(wait time.Duration, count int) []time.Duration {
	if count <= 0 {
		return nil
	}
	if wait < 0 {
		wait = 0
	}
	waits := make([]time.Duration, count)
	for i := range waits {
		waits[i] = wait
	}
	return waits
}
