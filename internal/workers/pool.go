// Package workers provides a bounded goroutine pool whose tasks are tracked
// by a quiescence barrier.
//
// The pool never queues: when every worker is busy, Go runs the task on the
// calling goroutine (backpressure valve). This bounds memory under bursts of
// submissions, keeps producers from outrunning consumers, and avoids the
// deadlock a blocking submit would cause when tasks submit more tasks.
package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ivoronin/dupesniff/internal/barrier"
	"github.com/panjf2000/ants/v2"
)

// ErrStopped is returned by Go after the pool's context has been cancelled.
var ErrStopped = errors.New("worker pool stopped")

// Pool runs tasks on at most size goroutines and tracks them for Wait.
type Pool struct {
	ctx     context.Context
	ants    *ants.Pool
	barrier barrier.Barrier
}

// New creates a pool with size workers.
// Cancelling ctx stops the pool from accepting new tasks; in-flight tasks finish.
func New(ctx context.Context, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pool{ctx: ctx, ants: p}, nil
}

// Go registers fn with the barrier and schedules it.
//
// Registration happens before scheduling, so a task submitting children from
// inside its body always has them tracked before it becomes terminal.
// If no worker is idle, fn runs synchronously before Go returns.
func (p *Pool) Go(fn func() error) error {
	if p.Stopped() {
		return ErrStopped
	}

	task := barrier.NewTask(fn)
	p.barrier.Register(task)

	if err := p.ants.Submit(task.Run); err != nil {
		// ErrPoolOverload (saturated) or ErrPoolClosed: never drop the task
		task.Run()
	}
	return nil
}

// Wait blocks until every task submitted so far, and every task they
// submitted in turn, has finished.
func (p *Pool) Wait() error {
	return p.barrier.Await(context.WithoutCancel(p.ctx))
}

// Failed returns the number of tasks that returned an error or panicked
// and have been observed by Wait.
func (p *Pool) Failed() int64 { return p.barrier.Failed() }

// Stopped reports whether the pool rejects new tasks.
func (p *Pool) Stopped() bool { return p.ctx.Err() != nil }

// Release frees the pool's goroutines. Call after Wait.
func (p *Pool) Release() { p.ants.Release() }
