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

package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4)
	defer p.Stop()

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.Go(func() {
			defer wg.Done()
			atomic.AddInt64(&n, 1)
		})
	}
	wg.Wait()
	if n != 100 {
		t.Fatalf("got %d completed tasks, want 100", n)
	}
}

func TestStrandSerializesOrder(t *testing.T) {
	p := New(8)
	defer p.Stop()

	s := NewStrand(p)
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		s.Post(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 50 {
		t.Fatalf("got %d tasks run, want 50", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("strand ran tasks out of post order: %v", order)
		}
	}
}

func TestStrandsRunConcurrently(t *testing.T) {
	p := New(4)
	defer p.Stop()

	const n = 4
	strands := make([]*Strand, n)
	for i := range strands {
		strands[i] = NewStrand(p)
	}

	var wg sync.WaitGroup
	release := make(chan struct{})
	var entered int64
	for i := range strands {
		wg.Add(1)
		strands[i].Post(func() {
			defer wg.Done()
			atomic.AddInt64(&entered, 1)
			<-release
		})
	}
	// all n strands should be able to make progress concurrently since
	// each is an independent FIFO over the shared pool.
	deadline := time.After(5 * time.Second)
	for atomic.LoadInt64(&entered) != n {
		select {
		case <-deadline:
			t.Fatalf("only %d/%d strands made concurrent progress", atomic.LoadInt64(&entered), n)
		default:
		}
	}
	close(release)
	wg.Wait()
}
