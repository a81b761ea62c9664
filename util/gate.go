package util

import "context"

// A Gate limits concurrency. Every gate has a maximum number of goroutines
// to allow through at a time. Goroutines enter the gate by calling Enter(),
// and signal that they are done by calling Leave().
type Gate chan struct{}

// NewGate returns a Gate which accepts at most n entries at a time. A value
// of n less than one is treated as one.
func NewGate(n int) Gate {
	if n < 1 {
		n = 1
	}
	return Gate(make(chan struct{}, n))
}

// Enter blocks the calling goroutine until there are less than n goroutines
// inside the gate.
func (g Gate) Enter() {
	g <- struct{}{}
}

// EnterContext is like Enter but gives up when ctx is done. It returns true
// if the caller is now inside the gate and must call Leave.
func (g Gate) EnterContext(ctx context.Context) bool {
	// don't admit anyone after cancellation even if there is room
	if ctx.Err() != nil {
		return false
	}
	select {
	case g <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Leave marks a goroutine outside the critical section. Each call to Enter
// must be balanced with a call to Leave, though not necessarily from the
// same goroutine.
func (g Gate) Leave() {
	<-g
}
