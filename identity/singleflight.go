package identity

import (
	"sync"
)

// singleflight collapses concurrent lookups of the same token into one.
type singleflight struct {
	mu       sync.Mutex         // controls everything below
	inflight map[string]*lookup // lookups in progress
}

type lookup struct {
	wg   sync.WaitGroup
	user User
	err  error
}

// Do calls fn for key, unless a call for key is already running, in which
// case it waits for that one and returns its result.
func (s *singleflight) Do(key string, fn func() (User, error)) (User, error) {
	s.mu.Lock()
	if r, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		r.wg.Wait()
		return r.user, r.err
	}
	r := &lookup{}
	r.wg.Add(1)
	if s.inflight == nil {
		s.inflight = make(map[string]*lookup)
	}
	s.inflight[key] = r
	s.mu.Unlock()
	defer func() {
		r.wg.Done()
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}()

	r.user, r.err = fn()
	return r.user, r.err
}
