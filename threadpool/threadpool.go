// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package threadpool implements spec.md §4.11: a pool bounding how many
// posted tasks run concurrently, plus Strand, a FIFO wrapper that
// serializes its own posted tasks without pinning them to any one
// worker. It is the shape the loader and repack packages both drive
// their background work through (spec.md §4.8, §4.10).
//
// Concurrency is bounded with a weighted semaphore rather than a fixed
// set of goroutines draining a shared channel: Go acquires one unit
// before spawning a task's goroutine and releases it on completion, so
// at most n tasks ever run at once and a caller submitting faster than
// that is blocked in Go itself, the same backpressure shape the
// teacher's own prefetcher (ion/blockfmt/prefetch.go) gets from a fixed
// worker count ranging over a channel, expressed here with
// golang.org/x/sync/semaphore instead of a hand-rolled worker loop.
package threadpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Task is one unit of work posted to a Pool or a Strand.
type Task func()

// Pool bounds how many posted tasks run concurrently to n, defaulting
// to hardware concurrency when New is called with n <= 0, matching
// spec.md §5's "worker count defaults to hardware concurrency".
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New returns a Pool that runs at most n tasks concurrently.
func New(n int) *Pool {
	if n <= 0 {
		n = defaultParallelism()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

// Go posts a task to the pool. It blocks until a concurrency slot is
// free, providing natural backpressure against unbounded task
// submission. Tasks posted after Stop are silently dropped.
func (p *Pool) Go(t Task) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		p.wg.Done()
		return
	}
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		t()
	}()
}

// Stop marks the pool so tasks posted after this call are dropped, and
// waits for every task already accepted by Go to finish. Matching
// spec.md §4.11's "destruction drains pending work unless the user has
// already called an explicit stop": a task already running (or already
// past the stopped check in Go) is always allowed to complete.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Strand is a FIFO queue of tasks guaranteed to run in post order,
// serialized against one another, but backed by the shared Pool rather
// than a dedicated goroutine (spec.md §4.11: "tasks posted to different
// strands may run concurrently"; "without pinning to a thread").
type Strand struct {
	pool *Pool

	mu      sync.Mutex
	queue   []Task
	running bool
}

// NewStrand returns a Strand that posts its serialized work to pool.
func NewStrand(pool *Pool) *Strand {
	return &Strand{pool: pool}
}

// Post appends t to the strand's queue. If the strand is not currently
// draining, this call schedules a drain task on the underlying Pool.
func (s *Strand) Post(t Task) {
	s.mu.Lock()
	s.queue = append(s.queue, t)
	start := !s.running
	if start {
		s.running = true
	}
	s.mu.Unlock()
	if start {
		s.pool.Go(s.drain)
	}
}

// drain runs queued tasks in order until the queue empties, then
// releases the running flag. A task posted concurrently with the
// final empty check always re-triggers drain (see the CAS-like
// re-check under the lock), so no task is ever left unscheduled.
func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		t()
	}
}
