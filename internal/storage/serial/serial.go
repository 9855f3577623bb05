// Package serial wraps a feed cache store with strict FIFO operation
// ordering.
//
// Operations submitted against one Queue execute one at a time, in
// submission order, regardless of how many goroutines submit them. Each
// operation's result is buffered on its channel before the next operation
// starts executing, so completions are observable in submission order and
// never interleave.
package serial

import (
	"context"
	"errors"
	"sync"

	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/storage"
)

// ErrClosed indicates an operation was submitted after Close.
var ErrClosed = errors.New("serial queue is closed")

// RetrieveResult is the completion value of an asynchronous retrieval.
// Found=false with a nil Err means the slot is empty.
type RetrieveResult struct {
	Cached feed.Cached
	Found  bool
	Err    error
}

// Queue serializes all operations against a wrapped store.
type Queue struct {
	store storage.Store

	mu     sync.Mutex
	cond   *sync.Cond
	ops    []func()
	closed bool
	done   chan struct{}
}

// Wrap starts a queue owning all access to the provided store. The caller
// must stop using the store directly once wrapped.
func Wrap(store storage.Store) *Queue {
	q := &Queue{
		store: store,
		done:  make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Retrieve submits an asynchronous retrieval. The returned channel yields
// exactly one result and is then closed.
func (q *Queue) Retrieve(ctx context.Context) <-chan RetrieveResult {
	result := make(chan RetrieveResult, 1)
	ok := q.enqueue(func() {
		cached, found, err := q.store.Retrieve(ctx)
		result <- RetrieveResult{Cached: cached, Found: found, Err: err}
		close(result)
	})
	if !ok {
		result <- RetrieveResult{Err: ErrClosed}
		close(result)
	}
	return result
}

// Insert submits an asynchronous slot replacement. The returned channel
// yields exactly one error value (nil on success) and is then closed.
func (q *Queue) Insert(ctx context.Context, cached feed.Cached) <-chan error {
	result := make(chan error, 1)
	ok := q.enqueue(func() {
		result <- q.store.Insert(ctx, cached)
		close(result)
	})
	if !ok {
		result <- ErrClosed
		close(result)
	}
	return result
}

// Delete submits an asynchronous slot clear. The returned channel yields
// exactly one error value (nil on success) and is then closed.
func (q *Queue) Delete(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	ok := q.enqueue(func() {
		result <- q.store.Delete(ctx)
		close(result)
	})
	if !ok {
		result <- ErrClosed
		close(result)
	}
	return result
}

// Close waits for every submitted operation to complete, then closes the
// wrapped store. Operations submitted after Close complete with ErrClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	alreadyClosed := q.closed
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()

	<-q.done
	if alreadyClosed {
		return nil
	}
	return q.store.Close()
}

// enqueue appends an operation in submission order. Submission order is the
// order in which callers win the queue lock.
func (q *Queue) enqueue(op func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.ops = append(q.ops, op)
	q.cond.Signal()
	return true
}

func (q *Queue) loop() {
	for {
		q.mu.Lock()
		for len(q.ops) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.ops) == 0 {
			q.mu.Unlock()
			close(q.done)
			return
		}
		op := q.ops[0]
		q.ops = q.ops[1:]
		q.mu.Unlock()

		op()
	}
}
