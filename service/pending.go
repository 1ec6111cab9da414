package service

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PendingRequests collapses concurrent ownership checks for the same key into
// one underlying query. A key is registered for exactly the lifetime of its
// query and removed once, however many callers wait on it
type PendingRequests struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewPendingRequests creates an empty registry
func NewPendingRequests() *PendingRequests {
	return &PendingRequests{inflight: make(map[string]struct{})}
}

// Do runs fn for key unless a call for key is already in flight, in which case
// it waits for and returns that call's result. shared reports whether the
// result was delivered to more than one caller. A caller whose ctx ends stops
// waiting; the in-flight query keeps running for the others
func (p *PendingRequests) Do(ctx context.Context, key string, fn func() (bool, error)) (value bool, shared bool, err error) {
	ch := p.group.DoChan(key, func() (v interface{}, err error) {
		p.mu.Lock()
		p.inflight[key] = struct{}{}
		p.mu.Unlock()

		defer func() {
			p.mu.Lock()
			delete(p.inflight, key)
			p.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("ownership check for %s panicked: %v", key, r)
			}
		}()
		return fn()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Shared, res.Err
		}
		return res.Val.(bool), res.Shared, nil
	case <-ctx.Done():
		return false, false, ctx.Err()
	}
}

// InFlight reports whether a query for key is running
func (p *PendingRequests) InFlight(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[key]
	return ok
}

// Len returns the number of keys with a running query
func (p *PendingRequests) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}
