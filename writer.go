package blockstream

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	bserrors "github.com/tamirms/blockstream/errors"
)

// Writer is the write-behind buffering engine: a producer fills one block
// while previously filled blocks are flushed to storage asynchronously.
//
// It owns a pool of `total` block buffers. At most total/2 writes are kept
// outstanding concurrently (semaphore-bounded), leaving the remaining buffers
// free so the producer never stalls on I/O under steady throughput. A block
// handed to Write is owned by the engine until its write completes, at which
// point it returns to the free list.
type Writer struct {
	store  AsyncStore
	ctx    context.Context
	total  int
	free   chan *Block
	blocks []Block

	inflight sync.WaitGroup
	sem      *semaphore.Weighted

	mu       sync.Mutex
	writeErr error // first write failure, sticky
	closed   bool
}

// NewWriter creates a write-behind engine owning total block buffers.
// total must be at least 1. ctx bounds waits for a free write slot; canceling
// it unblocks a producer stuck behind slow storage.
func NewWriter(ctx context.Context, store AsyncStore, total int, opts ...WriterOption) (*Writer, error) {
	if total < 1 {
		return nil, bserrors.ErrZeroBuffers
	}

	cfg := &writerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	maxInflight := cfg.maxInflight
	if maxInflight == 0 {
		maxInflight = max(1, total/2)
	}

	w := &Writer{
		store:  store,
		ctx:    ctx,
		total:  total,
		free:   make(chan *Block, total),
		blocks: make([]Block, total),
		sem:    semaphore.NewWeighted(int64(maxInflight)),
	}

	blockSize := store.BlockSize()
	for i := range w.blocks {
		w.blocks[i] = Block{Data: make([]byte, blockSize), slot: i, owner: w}
		w.free <- &w.blocks[i]
	}
	return w, nil
}

// GetFreeBlock returns a buffer from the free list for the producer to fill,
// blocking while all buffers are lent out or in flight. It also surfaces any
// write failure recorded since the last call.
func (w *Writer) GetFreeBlock() (*Block, error) {
	select {
	case b := <-w.free:
		return b, w.err()
	case <-w.ctx.Done():
		return nil, w.ctx.Err()
	}
}

// Write enqueues b for asynchronous write to bid and immediately returns a
// different buffer from the free list for the caller to continue filling.
// Ownership of b transfers to the engine until its write completes; the
// caller must not touch b.Data until the same handle reappears from a later
// GetFreeBlock or Write call.
//
// A non-nil error is either a prior write's recorded failure or a context
// cancellation; the returned buffer is valid whenever it is non-nil.
func (w *Writer) Write(b *Block, bid BID) (*Block, error) {
	if b == nil || b.owner != w {
		return nil, bserrors.ErrForeignBlock
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, bserrors.ErrClosed
	}
	w.mu.Unlock()

	// Bounds concurrently outstanding writes. Blocks the producer only when
	// storage cannot keep up with half the pool already in flight.
	if err := w.sem.Acquire(w.ctx, 1); err != nil {
		return nil, err
	}

	w.inflight.Add(1)
	w.store.Write(bid, b.Data, func(_ *Request, err error) {
		if err != nil {
			w.mu.Lock()
			if w.writeErr == nil {
				w.writeErr = err
			}
			w.mu.Unlock()
		}
		w.sem.Release(1)
		// The write is complete, so the engine may lend the buffer out again.
		w.free <- b
		w.inflight.Done()
	})

	select {
	case nb := <-w.free:
		return nb, w.err()
	case <-w.ctx.Done():
		return nil, w.ctx.Err()
	}
}

// Drain blocks until every outstanding write has completed and returns the
// first recorded write failure, if any. The engine remains usable afterwards.
func (w *Writer) Drain() error {
	w.inflight.Wait()
	return w.err()
}

// Close drains all outstanding writes and shuts the engine down. No
// asynchronous operation references the pool's buffers after Close returns.
// Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.inflight.Wait()
	return w.err()
}

func (w *Writer) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeErr
}
