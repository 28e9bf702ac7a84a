// Package limiter bounds how many rasterizations run at once across all
// flipbook sessions.
package limiter

import (
	"context"
	"sync/atomic"
)

// Slots is a counting semaphore of render slots.
type Slots struct {
	sem     chan struct{}
	waiting atomic.Int64
}

type Options struct {
	MaxInflight int
}

// New creates a slot pool. MaxInflight defaults to 2.
func New(opts Options) *Slots {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	return &Slots{sem: make(chan struct{}, opts.MaxInflight)}
}

// Allow tries to reserve a slot without waiting.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (s *Slots) Allow() (func(), bool) {
	select {
	case s.sem <- struct{}{}:
		return s.releaser(), true
	default:
		return func() {}, false
	}
}

// Acquire waits for a slot or for ctx to end.
func (s *Slots) Acquire(ctx context.Context) (func(), error) {
	if release, ok := s.Allow(); ok {
		return release, nil
	}
	s.waiting.Add(1)
	defer s.waiting.Add(-1)
	select {
	case s.sem <- struct{}{}:
		return s.releaser(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// releaser returns a release func that is safe to call more than once.
func (s *Slots) releaser() func() {
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			<-s.sem
		}
	}
}

// Capacity is the configured number of slots.
func (s *Slots) Capacity() int { return cap(s.sem) }

// InUse is the number of slots currently held.
func (s *Slots) InUse() int { return len(s.sem) }

// Waiting is the number of callers blocked in Acquire.
func (s *Slots) Waiting() int { return int(s.waiting.Load()) }
