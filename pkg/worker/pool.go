package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
)

// Pool bounds the number of jobs running at the same time.
type Pool struct {
	limit   int
	tickets chan int
	num     atomic.Int32
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
}

// NewPool creates a pool running at most limit jobs at once.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = 10
	}

	p := &Pool{
		limit:   limit,
		tickets: make(chan int, limit),
	}
	for i := range limit {
		p.tickets <- i
	}
	return p
}

// Do blocks until a slot is free, then runs job in its own goroutine.
// It gives up when ctx is done or the pool has been closed.
func (p *Pool) Do(ctx context.Context, job func(ctx context.Context)) (ticket int, err error) {
	if p.closed.Load() {
		return -1, ErrPoolClosed
	}

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case ticket = <-p.tickets:
	}

	p.num.Add(1)
	p.wg.Add(1)
	go func() {
		defer func() {
			p.num.Add(-1)
			p.tickets <- ticket
			p.wg.Done()
		}()
		if job != nil {
			job(ctx)
		}
	}()
	return ticket, nil
}

// Wait closes the pool and waits for the running jobs to finish.
func (p *Pool) Wait() {
	p.once.Do(func() { p.closed.Store(true) })
	p.wg.Wait()
}

// Num returns the number of jobs in progress.
func (p *Pool) Num() int {
	return int(p.num.Load())
}

// Limit returns the pool size.
func (p *Pool) Limit() int {
	return p.limit
}
