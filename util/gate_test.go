package util

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestGateBound runs more goroutines than the gate admits and records the
// most that were ever inside at once.
func TestGateBound(t *testing.T) {
	var tests = []struct {
		size     int
		expected int64
	}{
		{3, 3},
		{1, 1},
		{0, 1},
	}
	for _, test := range tests {
		g := NewGate(test.size)
		var inside, most int64
		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.Enter()
				n := atomic.AddInt64(&inside, 1)
				for {
					m := atomic.LoadInt64(&most)
					if n <= m || atomic.CompareAndSwapInt64(&most, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt64(&inside, -1)
				g.Leave()
			}()
		}
		wg.Wait()
		if most > test.expected {
			t.Errorf("NewGate(%d): Received %d inside at once, expected at most %d", test.size, most, test.expected)
		}
	}
}

func TestGateContext(t *testing.T) {
	g := NewGate(1)
	g.Enter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		done <- g.EnterContext(ctx)
	}()
	cancel()
	if ok := <-done; ok {
		t.Errorf("Received true, expected false after cancel")
	}
	g.Leave()
	if ok := g.EnterContext(ctx); ok {
		t.Errorf("Received true, expected false for a cancelled context")
	}
	if ok := g.EnterContext(context.Background()); !ok {
		t.Errorf("Received false, expected true")
	}
}
