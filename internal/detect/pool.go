package detect

import (
	"context"
	"runtime"
	"sync"
)

// Pool is a fixed-size worker pool shared by all in-flight requests. Scoring
// calls are synchronous and CPU-bound, so bounding them keeps a large batch
// from starving the rest of the process.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewPool creates a pool with the given number of workers. A size of zero or
// less defaults to GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		tasks: make(chan func()),
	}

	p.wg.Add(size)
	for range size {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}

	return p
}

// Submit schedules a task on the pool, blocking until a worker accepts it or
// the context is done. The task itself is responsible for observing its own
// deadline once running.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
