// Package pipeline drives branch processors over a combined logic tree.
// Branches are dispatched in index order; each processor has at most one
// branch in flight, and processors get bounded compute and IO pools for any
// work they fan out.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"ltcombine/internal/errors"
)

const (
	minIOThreads = 3
	maxIOThreads = 20
)

// DefaultComputeThreads is the available parallelism
func DefaultComputeThreads() int {
	return runtime.GOMAXPROCS(0)
}

// DefaultIOThreads sizes the IO pool from the compute pool size
func DefaultIOThreads(compute int) int {
	return min(maxIOThreads, max(minIOThreads, compute))
}

// Task is a unit of work run on an Executor
type Task func(ctx context.Context) error

// Executor runs tasks asynchronously with bounded concurrency.
type Executor interface {
	// Submit schedules task and returns immediately
	Submit(ctx context.Context, task Task) *Future
	// Size is the maximum number of tasks running at once
	Size() int
	// Name identifies the pool in logs
	Name() string
}

// Future is the pending result of a submitted task
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done is closed when the task has finished
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task has finished and returns its error
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// Pool is a semaphore-bounded Executor
type Pool struct {
	name string
	size int
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// NewPool creates a pool running at most size tasks at once.
func NewPool(name string, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		name: name,
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Submit implements Executor. If ctx is cancelled before a slot frees up
// the task does not run and the future holds the context error.
func (p *Pool) Submit(ctx context.Context, task Task) *Future {
	f := newFuture()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.complete(err)
			return
		}
		defer p.sem.Release(1)
		f.complete(run(ctx, task))
	}()
	return f
}

func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal("task panicked", fmt.Errorf("%v", r))
		}
	}()
	return task(ctx)
}

// Wait blocks until every submitted task has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size implements Executor
func (p *Pool) Size() int { return p.size }

// Name implements Executor
func (p *Pool) Name() string { return p.name }
