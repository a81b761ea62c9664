package identity

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached remembers the answers of another Verifier for a while, so a
// remote service is not asked about the same token on every request.
// Rejected tokens are remembered too. Lookup errors are not. Concurrent
// misses for one token share a single lookup.
type Cached struct {
	// LookupTimeout bounds a shared lookup. It does not depend on any one
	// caller's context, since other callers may be waiting on the answer.
	LookupTimeout time.Duration

	v      Verifier
	c      *cache.Cache
	flight singleflight
}

// DefaultLookupTimeout is the LookupTimeout given by NewCached.
const DefaultLookupTimeout = 10 * time.Second

// NewCached wraps v. Answers are kept for ttl, and expired ones are swept
// every cleanup interval.
func NewCached(v Verifier, ttl, cleanup time.Duration) *Cached {
	return &Cached{
		LookupTimeout: DefaultLookupTimeout,
		v:             v,
		c:             cache.New(ttl, cleanup),
	}
}

type answer struct {
	user User
	err  error
}

// Verify returns the cached answer for token, or looks it up. A caller
// whose ctx ends stops waiting, but the lookup carries on for the others.
func (c *Cached) Verify(ctx context.Context, token string) (User, error) {
	if u, ok := c.c.Get(token); ok {
		return u.(User), nil
	}
	result := make(chan answer, 1)
	go func() {
		u, err := c.flight.Do(token, func() (User, error) {
			lctx, cancel := context.WithTimeout(context.Background(), c.LookupTimeout)
			defer cancel()
			u, err := c.v.Verify(lctx, token)
			if err != nil {
				return u, err
			}
			c.c.SetDefault(token, u)
			return u, nil
		})
		result <- answer{u, err}
	}()
	select {
	case a := <-result:
		return a.user, a.err
	case <-ctx.Done():
		return User{}, ctx.Err()
	}
}

// Flush forgets every cached answer.
func (c *Cached) Flush() {
	c.c.Flush()
}
