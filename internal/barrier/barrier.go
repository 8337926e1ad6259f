// Package barrier tracks a dynamically growing set of asynchronous tasks and
// waits for all of them to finish.
//
// # The Problem
//
// Directory walking and hashing fan out recursively: a running task may submit
// more tasks before it completes. "Is the pool idle?" checks that sample an
// active-worker count are racy, because a worker can be between finishing one
// task and submitting its follow-up when the count reads zero.
//
// # Algorithm
//
// Await repeats snapshot → wait → recheck:
//
//	┌──► snapshot live (non-terminal) handles, pruning terminal ones
//	│        │
//	│        ├──► snapshot empty? ──► return (quiescent)
//	│        │
//	│        └──► wait until every handle in the snapshot is terminal
//	│                 │
//	└─────────────────┘ (tasks may have registered children meanwhile)
//
// Correctness rests on one invariant: a task registers its children BEFORE it
// becomes terminal. So when a snapshot taken after a full wait is empty, no
// task that could still register work exists.
package barrier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a Task.
type State int32

const (
	StatePending   State = iota // Registered, not started
	StateRunning                // Executing
	StateCompleted              // Returned nil
	StateFailed                 // Returned an error or panicked
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether the state is Completed or Failed.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Task is a handle to one unit of asynchronous work.
type Task struct {
	fn    func() error
	state atomic.Int32
	err   error // Written once before done is closed
	done  chan struct{}
}

// NewTask creates a pending task that will execute fn when Run is called.
func NewTask(fn func() error) *Task {
	return &Task{fn: fn, done: make(chan struct{})}
}

// Run executes the task exactly once. Subsequent calls are no-ops.
// A panic inside fn is recovered and reported as a failure.
func (t *Task) Run() {
	if !t.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return
	}
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("task panicked: %v", r)
		}
		if t.err != nil {
			t.state.Store(int32(StateFailed))
		} else {
			t.state.Store(int32(StateCompleted))
		}
	}()
	t.err = t.fn()
}

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Done returns a channel closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Barrier waits for quiescence of a set of registered tasks.
// The zero value is ready to use.
type Barrier struct {
	mu      sync.Mutex
	handles []*Task
	failed  atomic.Int64
}

// Register adds a task to the tracked set.
// Safe to call concurrently, including from tasks that are being awaited.
func (b *Barrier) Register(t *Task) {
	b.mu.Lock()
	b.handles = append(b.handles, t)
	b.mu.Unlock()
}

// Await blocks until every registered task is terminal and no new task was
// registered during the wait. Returns ctx.Err() if ctx ends first; tasks keep
// running in that case.
func (b *Barrier) Await(ctx context.Context) error {
	for {
		snapshot := b.snapshot()
		if len(snapshot) == 0 {
			return nil
		}
		for _, t := range snapshot {
			select {
			case <-t.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Failed returns the number of pruned tasks that ended in StateFailed.
func (b *Barrier) Failed() int64 { return b.failed.Load() }

// snapshot prunes terminal handles and returns a copy of the live ones.
func (b *Barrier) snapshot() []*Task {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.handles[:0]
	for _, t := range b.handles {
		switch t.State() {
		case StateCompleted:
		case StateFailed:
			b.failed.Add(1)
		default:
			live = append(live, t)
		}
	}
	clear(b.handles[len(live):]) // Release pruned tasks for GC
	b.handles = live

	return append([]*Task(nil), live...)
}
