package blockstream

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	bserrors "github.com/tamirms/blockstream/errors"
)

// Backend is the synchronous storage contract. FileStore, MmapStore and
// MemStore implement it; Queue turns any Backend into an AsyncStore.
type Backend interface {
	// BlockSize returns the fixed transfer unit in bytes.
	BlockSize() int

	// ReadBlockAt reads the block identified by bid into dst.
	ReadBlockAt(bid BID, dst []byte) error

	// WriteBlockAt writes src to the block identified by bid.
	WriteBlockAt(bid BID, src []byte) error
}

// Queue executes block operations against a Backend on a pool of worker
// goroutines, implementing AsyncStore. Requests are served in submission
// order per worker but complete in arbitrary order across workers, which is
// exactly the substrate the Prefetcher's ordering guarantees are built over.
type Queue struct {
	backend  Backend
	requests chan *Request
	group    *errgroup.Group
	ctx      context.Context

	mu     sync.Mutex
	closed bool
}

// NewQueue starts a request queue over backend. Workers stop serving new I/O
// when ctx is canceled; queued requests are then completed with ctx.Err() so
// that waiters unblock.
func NewQueue(ctx context.Context, backend Backend, opts ...QueueOption) *Queue {
	cfg := defaultQueueConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	q := &Queue{
		backend:  backend,
		requests: make(chan *Request, cfg.depth),
		ctx:      ctx,
	}

	q.group, _ = errgroup.WithContext(ctx)
	for range cfg.workers {
		q.group.Go(q.runWorker)
	}
	return q
}

// BlockSize returns the backend's block size.
func (q *Queue) BlockSize() int { return q.backend.BlockSize() }

// Read submits an asynchronous read of bid into dst.
func (q *Queue) Read(bid BID, dst []byte, on CompletionFunc) *Request {
	r := newRequest(opRead, bid, dst, on)
	q.submit(r)
	return r
}

// Write submits an asynchronous write of src to bid.
func (q *Queue) Write(bid BID, src []byte, on CompletionFunc) *Request {
	r := newRequest(opWrite, bid, src, on)
	q.submit(r)
	return r
}

// submit hands a request to the workers, or completes it immediately with
// ErrStoreClosed after Close. Holding the mutex across the channel send keeps
// the send ordered before the channel close in Close; workers always drain,
// so the send cannot block indefinitely.
func (q *Queue) submit(r *Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		r.complete(bserrors.ErrStoreClosed)
		return
	}
	q.requests <- r
}

// runWorker serves requests until the queue is closed. I/O errors travel to
// the requester through Request.complete, never through the group.
func (q *Queue) runWorker() error {
	for r := range q.requests {
		select {
		case <-q.ctx.Done():
			r.complete(q.ctx.Err())
			continue
		default:
		}

		var err error
		switch r.op {
		case opRead:
			err = q.backend.ReadBlockAt(r.bid, r.buf)
		case opWrite:
			err = q.backend.WriteBlockAt(r.bid, r.buf)
		}
		r.complete(err)
	}
	return nil
}

// Close stops accepting requests, waits for queued and in-flight requests to
// complete, and joins the workers. Safe to call once.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.requests)
	q.mu.Unlock()

	return q.group.Wait()
}
