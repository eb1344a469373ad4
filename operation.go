package wsess

import (
	"context"
	"sync"
)

// Operation is the async-completion token handed to callers of Connect and
// Send. It completes exactly once; the pending state is observable through
// Result returning ErrPending.
type Operation struct {
	done chan struct{}
	once sync.Once
	res  Result
}

func newOperation() *Operation {
	return &Operation{done: make(chan struct{})}
}

// Done returns a channel closed when the operation completes.
func (op *Operation) Done() <-chan struct{} { return op.done }

// Result returns the completion result, or ErrPending while the operation
// is still in flight.
func (op *Operation) Result() (Result, error) {
	select {
	case <-op.done:
		return op.res, nil
	default:
		return Result{}, ErrPending
	}
}

// Wait blocks until the operation completes or ctx is done.
func (op *Operation) Wait(ctx context.Context) (Result, error) {
	select {
	case <-op.done:
		return op.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (op *Operation) complete(res Result) {
	op.once.Do(func() {
		op.res = res
		close(op.done)
	})
}
