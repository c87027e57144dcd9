package app

import (
	"context"
	"sync"
)

// commandQueue is an unbounded FIFO of jobs drained by a single worker.
type commandQueue struct {
	mu     sync.Mutex
	jobs   []func(context.Context)
	closed bool
	wake   chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{wake: make(chan struct{}, 1)}
}

func (q *commandQueue) push(job func(context.Context)) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	q.signal()
}

// close lets next return false once the queued jobs are drained.
func (q *commandQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *commandQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next blocks until a job is available, the queue is closed and empty, or ctx
// is done.
func (q *commandQueue) next(ctx context.Context) (func(context.Context), bool) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs[0] = nil
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return job, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}
