package realtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 8

// Pool runs jobs on a bounded number of goroutines.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	log *zap.Logger
}

// NewPool returns a Pool running at most workers jobs at once.
func NewPool(workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), log: log}
}

// Submit blocks until a worker slot frees up or ctx is done, then runs job in
// its own goroutine. A panicking job is logged and releases its slot.
func (p *Pool) Submit(ctx context.Context, name string, job func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("realtime: pool: %w", err)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
			}
		}()
		job()
	}()
	return nil
}

// Wait blocks until every submitted job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
