// Package async is the task scheduler the session adapter runs its
// asynchronous work on: a fixed pool of workers draining a submission
// queue. Work items carry an optional cleanup hook that runs exactly once
// per item, whether the work returned, failed, or panicked.
package async

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrClosed  = errors.New("async: queue closed")
	ErrNilWork = errors.New("async: nil work item")
)

type item struct {
	work    func()
	cleanup func()
}

// Queue executes submitted work items on a fixed set of worker goroutines.
// Submission never blocks; pending items queue in arrival order.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []item
	closed  bool
	workers sync.WaitGroup
}

func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	q.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues one work item. cleanup may be nil; when present it runs
// after work finishes, including after a recovered panic. On error neither
// work nor cleanup runs.
func (q *Queue) Submit(work, cleanup func()) error {
	if work == nil {
		return ErrNilWork
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, item{work: work, cleanup: cleanup})
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

// Close stops intake, lets the workers drain everything already submitted,
// and returns once they have exited.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.workers.Wait()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	q.workers.Wait()
}

func (q *Queue) worker() {
	defer q.workers.Done()
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		it := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		run(it)
	}
}

func run(it item) {
	defer func() {
		if it.cleanup != nil {
			it.cleanup()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("async: work item panicked")
		}
	}()
	it.work()
}
