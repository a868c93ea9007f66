// Package parallel provides the executors used by the data-parallel stages.
//
// Both implementations run the same work functions over the same ranges, so
// callers that only write disjoint index ranges get identical results from
// either one.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Executor runs work either serially or on a bounded pool of goroutines
type Executor interface {
	// For splits [0, n) into contiguous chunks and calls fn once per chunk.
	// The first error returned by any chunk is returned.
	For(n int, fn func(lo, hi int) error) error

	// Run executes independent tasks and waits for all of them
	Run(tasks ...func() error) error

	// Workers returns the number of tasks that may run at once
	Workers() int
}

// Serial runs everything on the calling goroutine
type Serial struct{}

// For calls fn once over the whole range
func (Serial) For(n int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	return fn(0, n)
}

// Run executes the tasks in order, stopping at the first error
func (Serial) Run(tasks ...func() error) error {
	for _, task := range tasks {
		if err := task(); err != nil {
			return err
		}
	}
	return nil
}

// Workers always returns 1
func (Serial) Workers() int { return 1 }

// Pool runs work on up to a fixed number of goroutines
type Pool struct {
	workers int
}

// NewPool creates a pool. A non-positive worker count uses every CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

// Workers returns the configured goroutine limit
func (p *Pool) Workers() int { return p.workers }

// For divides the range among the workers, one chunk each
func (p *Pool) For(n int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	workers := p.workers
	if workers > n {
		workers = n
	}
	perWorker := (n + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += perWorker {
		hi := lo + perWorker
		if hi > n {
			hi = n
		}
		g.Go(func() error { return fn(lo, hi) })
	}
	return g.Wait()
}

// Run executes the tasks concurrently, at most Workers at a time
func (p *Pool) Run(tasks ...func() error) error {
	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, task := range tasks {
		g.Go(task)
	}
	return g.Wait()
}

// New returns a serial executor for workers == 1 and a pool otherwise
func New(workers int) Executor {
	if workers == 1 {
		return Serial{}
	}
	return NewPool(workers)
}
