package rag

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mealscout/mealscout/engine/domain"
)

const (
	DefaultWorkers   = 1
	DefaultQueueSize = 64
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("rag: request queue full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("rag: dispatcher closed")
)

// Asker answers a single request, either in full or as ranked results
// only. *Session implements it.
type Asker interface {
	Ask(ctx context.Context, req Request) (*Answer, error)
	Search(ctx context.Context, req Request) ([]domain.SearchResult, error)
}

type job struct {
	ctx  context.Context
	run  func(context.Context) (*Answer, error)
	done chan jobResult
}

type jobResult struct {
	answer *Answer
	err    error
}

// Dispatcher feeds requests from a bounded queue to a fixed set of
// workers. With one worker requests are answered strictly in arrival order.
type Dispatcher struct {
	asker  Asker
	jobs   chan job
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines draining a queue of queueSize
// slots. Non-positive values select the defaults.
func NewDispatcher(asker Asker, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{asker: asker, jobs: make(chan job, queueSize), logger: logger}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.jobs {
		if err := j.ctx.Err(); err != nil {
			j.done <- jobResult{err: err}
			continue
		}
		ans, err := j.run(j.ctx)
		j.done <- jobResult{answer: ans, err: err}
	}
}

// Submit queues req and waits for its answer. It fails fast with
// ErrQueueFull when the queue is full and returns ctx.Err() if ctx ends
// first; ctx is also passed to the worker handling the request.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (*Answer, error) {
	return d.enqueue(ctx, func(ctx context.Context) (*Answer, error) {
		return d.asker.Ask(ctx, req)
	})
}

// Search queues a retrieval-only request. It shares the queue and the
// workers with Submit and fails the same way.
func (d *Dispatcher) Search(ctx context.Context, req Request) ([]domain.SearchResult, error) {
	ans, err := d.enqueue(ctx, func(ctx context.Context) (*Answer, error) {
		results, err := d.asker.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Answer{Results: results}, nil
	})
	if err != nil {
		return nil, err
	}
	return ans.Results, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, run func(context.Context) (*Answer, error)) (*Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j := job{ctx: ctx, run: run, done: make(chan jobResult, 1)}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case d.jobs <- j:
		d.mu.RUnlock()
	default:
		d.mu.RUnlock()
		d.logger.Warn("rag: request rejected", "reason", "queue full", "capacity", cap(d.jobs))
		return nil, ErrQueueFull
	}

	select {
	case r := <-j.done:
		return r.answer, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of queued requests not yet picked up.
func (d *Dispatcher) Pending() int { return len(d.jobs) }

// Close stops accepting requests and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
