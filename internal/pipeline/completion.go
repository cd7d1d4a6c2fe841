package pipeline

import "sync"

// CompletionFlag carries the deferred end-of-stream signal from the bus
// monitor to the host thread. Set once per end-of-stream event, cleared by
// the first subsequent take: at-most-once delivery regardless of how often
// the host polls.
type CompletionFlag struct {
	mu  sync.Mutex
	set bool
}

// Signal marks the current playback cycle as completed. Called from the
// bus monitor; must never invoke host code.
func (f *CompletionFlag) Signal() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

// TakeAndReset atomically reads and clears the flag.
func (f *CompletionFlag) TakeAndReset() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.set
	f.set = false
	return was
}
