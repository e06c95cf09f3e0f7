// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package batch provides a bounded-queue fixed-worker scheduler for chunked
// stream processing. Producers block when the queue is full and results are
// drained in submission order, so a pipeline's output is deterministic
// regardless of worker scheduling.
package batch

import "sync"

type indexed[T any] struct {
	idx int64
	val T
}

// Pool runs a fixed number of workers over a bounded queue of jobs.
// Closing the queue is the end-of-stream signal; workers drain remaining
// jobs and exit, and the results channel closes only after all workers
// have exited, so no completed work is lost.
type Pool[J, R any] struct {
	jobs chan indexed[J]
	done chan indexed[R]
	out  chan R
	quit chan struct{}

	workers sync.WaitGroup
	once    sync.Once
	err     error

	next int64 // submission index; owned by the producer goroutine.
}

// New returns a running Pool of the given number of workers applying fn to
// each submitted job. The queue holds up to depth pending jobs; a producer
// submitting to a full queue blocks. An error from fn cancels the pool.
func New[J, R any](workers, depth int, fn func(J) (R, error)) *Pool[J, R] {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = workers
	}
	p := &Pool[J, R]{
		jobs: make(chan indexed[J], depth),
		done: make(chan indexed[R], workers+depth),
		out:  make(chan R, depth),
		quit: make(chan struct{}),
	}

	p.workers.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer p.workers.Done()
			for j := range p.jobs {
				r, err := fn(j.val)
				if err != nil {
					p.fail(err)
					return
				}
				select {
				case p.done <- indexed[R]{idx: j.idx, val: r}:
				case <-p.quit:
					return
				}
			}
		}()
	}
	go func() {
		p.workers.Wait()
		close(p.done)
	}()

	// Reorder completed batches into submission order.
	go func() {
		defer close(p.out)
		pending := make(map[int64]R)
		var next int64
		for d := range p.done {
			pending[d.idx] = d.val
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				select {
				case p.out <- r:
				case <-p.quit:
					return
				}
				next++
			}
		}
	}()

	return p
}

func (p *Pool[J, R]) fail(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.quit)
	})
}

// Submit queues j for processing, blocking while the queue is full.
// It reports whether the job was accepted; false means the pool has
// failed and the producer should stop.
func (p *Pool[J, R]) Submit(j J) bool {
	select {
	case <-p.quit:
		return false
	case p.jobs <- indexed[J]{idx: p.next, val: j}:
		p.next++
		return true
	}
}

// Close signals end of input. No further Submit calls may be made.
func (p *Pool[J, R]) Close() { close(p.jobs) }

// Cancel aborts the pool with the given error, for fatal conditions
// detected downstream of the workers. The first error wins.
func (p *Pool[J, R]) Cancel(err error) { p.fail(err) }

// Results returns the channel of results in submission order. It is closed
// after Close has been called and all workers have exited, or after the
// pool has been cancelled.
func (p *Pool[J, R]) Results() <-chan R { return p.out }

// Err returns the error that cancelled the pool, if any. It must only be
// called after Results has been fully drained.
func (p *Pool[J, R]) Err() error {
	select {
	case <-p.quit:
		return p.err
	default:
		return nil
	}
}
