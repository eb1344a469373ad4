package async

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/wsess/internal/testutil/testlog"
)

func TestSubmitRunsWorkOffThread(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(2)
	defer q.Close()

	done := make(chan struct{})
	if err := q.Submit(func() { close(done) }, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("work item never ran")
	}
}

func TestCleanupRunsOnceAfterWork(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	defer q.Close()

	var order []string
	var mu sync.Mutex
	done := make(chan struct{})
	err := q.Submit(
		func() {
			mu.Lock()
			order = append(order, "work")
			mu.Unlock()
		},
		func() {
			mu.Lock()
			order = append(order, "cleanup")
			mu.Unlock()
			close(done)
		},
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("cleanup never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "work" || order[1] != "cleanup" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestCleanupRunsAfterPanicAndQueueSurvives(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	defer q.Close()

	cleaned := make(chan struct{})
	if err := q.Submit(func() { panic("boom") }, func() { close(cleaned) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-cleaned:
	case <-time.After(2 * time.Second):
		t.Fatalf("cleanup did not run after panic")
	}

	ran := make(chan struct{})
	if err := q.Submit(func() { close(ran) }, nil); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker died after panic")
	}
}

func TestSubmitAfterCloseReturnsErrClosed(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	q.Close()
	if err := q.Submit(func() {}, nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSubmitNilWorkRejected(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	defer q.Close()
	if err := q.Submit(nil, nil); err != ErrNilWork {
		t.Fatalf("expected ErrNilWork, got %v", err)
	}
}

func TestCloseDrainsPendingWork(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)

	var ran atomic.Int32
	const n = 16
	for i := 0; i < n; i++ {
		if err := q.Submit(func() { ran.Add(1) }, nil); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	q.Close()
	if got := ran.Load(); got != n {
		t.Fatalf("drained %d of %d items", got, n)
	}
}
