package util

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Policy says what ForEach does when a task fails.
type Policy int

const (
	// FailFast stops scheduling new tasks after the first failure and
	// reports that failure.
	FailFast Policy = iota

	// CollectAll runs every task and keeps each task's error with its
	// result.
	CollectAll

	// SkipFailed runs every task, logs the failures and leaves them out of
	// the results.
	SkipFailed
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case CollectAll:
		return "collect-all"
	case SkipFailed:
		return "skip-failed"
	}
	return "unknown"
}

// Result is the outcome of one task. Index is the position of the input it
// was computed from.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// ForEach runs fn over items with at most workers tasks running at once.
// Results are returned in input order. With FailFast, tasks never started
// are absent from the results and the first error is returned. With
// CollectAll every item has a result. With SkipFailed only successful
// items have a result.
//
// If ctx is canceled no further tasks are started and ctx.Err() is returned
// unless the policy already has an error to report.
func ForEach[T, R any](ctx context.Context, workers int, policy Policy, items []T, fn func(context.Context, T) (R, error)) ([]Result[R], error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		gate     = NewGate(workers)
		wg       sync.WaitGroup
		m        sync.Mutex
		results  = make([]Result[R], len(items))
		started  = make([]bool, len(items))
		firsterr error
	)
	for i := range items {
		if !gate.EnterContext(ctx) {
			break
		}
		started[i] = true
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer gate.Leave()
			v, err := fn(ctx, items[i])
			results[i] = Result[R]{Index: i, Value: v, Err: err}
			if err != nil && policy == FailFast {
				m.Lock()
				if firsterr == nil {
					firsterr = err
				}
				m.Unlock()
				cancel()
			}
		}(i)
	}
	wg.Wait()

	var out []Result[R]
	for i := range results {
		if !started[i] {
			continue
		}
		if results[i].Err != nil && policy == SkipFailed {
			log.WithField("index", i).Println("skipping failed task:", results[i].Err)
			continue
		}
		out = append(out, results[i])
	}
	if firsterr != nil {
		return out, firsterr
	}
	// tasks can only be left unstarted without an error if the parent
	// context was canceled
	for i := range started {
		if !started[i] {
			return out, ctx.Err()
		}
	}
	return out, nil
}

// Values returns the values of results, in order.
func Values[R any](results []Result[R]) []R {
	out := make([]R, 0, len(results))
	for _, r := range results {
		out = append(out, r.Value)
	}
	return out
}
