package worker

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/anime-shed/bookscan-go/internal/logger"
)

// Pool manages concurrent image processing tasks on top of an ants goroutine pool.
type Pool struct {
	workers int
	pool    *ants.Pool
	wg      sync.WaitGroup
	once    sync.Once
}

// ErrPoolFull is returned by Submit on a non-blocking pool whose workers are all busy
var ErrPoolFull = ants.ErrPoolOverload

// NewPool creates a new pool with the specified number of workers. Submit
// blocks while every worker is busy.
func NewPool(workers int) (*Pool, error) {
	return newPool(workers, false)
}

// NewUploadPool creates a pool for slow background I/O. Submit never blocks;
// it returns ErrPoolFull when every worker is busy.
func NewUploadPool(workers int) (*Pool, error) {
	return newPool(workers, true)
}

func newPool(workers int, nonblocking bool) (*Pool, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p, err := ants.NewPool(workers,
		ants.WithNonblocking(nonblocking),
		ants.WithPanicHandler(func(r interface{}) {
			logger.WithField("panic", r).Error("Worker task panicked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	return &Pool{workers: workers, pool: p}, nil
}

// Workers returns the configured pool size
func (wp *Pool) Workers() int {
	if wp == nil {
		return 1
	}
	return wp.workers
}

// Submit queues a fire-and-forget job. Wait blocks until every submitted job is done.
func (wp *Pool) Submit(job func()) error {
	wp.wg.Add(1)
	err := wp.pool.Submit(func() {
		defer wp.wg.Done()
		job()
	})
	if err != nil {
		wp.wg.Done()
		return fmt.Errorf("submitting job: %w", err)
	}
	return nil
}

// Run executes jobs concurrently and returns once all of them have finished.
// A nil pool runs the jobs inline.
func (wp *Pool) Run(jobs ...func()) error {
	if wp == nil {
		for _, job := range jobs {
			job()
		}
		return nil
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		if err := wp.pool.Submit(func() {
			defer wg.Done()
			job()
		}); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submitting job: %w", err)
		}
	}
	wg.Wait()
	return nil
}

// Wait waits for all submitted jobs to complete
func (wp *Pool) Wait() {
	wp.wg.Wait()
}

// Close waits for queued jobs and releases the pool
func (wp *Pool) Close() {
	wp.once.Do(func() {
		wp.wg.Wait()
		wp.pool.Release()
	})
}
