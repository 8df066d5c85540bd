package blockstream

import (
	"errors"
	"io"

	bserrors "github.com/tamirms/blockstream/errors"
)

// Prefetcher overlaps block reads with consumption of already-read data.
//
// It is constructed with a consumption sequence (the order the caller needs
// blocks in) and a fetch order (a permutation giving the order blocks are
// physically read in, typically produced by an external prefetch scheduler).
// A bounded pool of min(buffers, len(seq)) block buffers is kept populated
// ahead of consumption; the caller always receives blocks in consumption
// order regardless of physical completion order.
//
// The usual loop:
//
//	p, err := blockstream.NewPrefetcher(store, seq, order, buffers)
//	if err != nil { return err }
//	defer p.Close()
//
//	b, err := p.Pull()
//	for {
//	    if err != nil { return err }
//	    consume(b.Data)
//	    b, err = p.Consumed(b)
//	    if errors.Is(err, io.EOF) { break }
//	}
//
// A Prefetcher is driven from a single goroutine; only the store's completion
// goroutines touch it concurrently, and that interaction is confined to the
// per-index completion switches.
type Prefetcher struct {
	store AsyncStore
	seq   []BID
	order []int

	nextRead    int // next fetch-order position to issue
	nextConsume int // next consumption index owed to the caller

	slots  []prefetchSlot
	blocks []Block // loan handles, one per slot, stable for the engine's lifetime

	// Per consumption index. assigned maps an index to the slot holding (or
	// about to hold) its block, or -1. completed[i] is signaled once index
	// i's read has finished; readErrs[i] is written before that signal.
	assigned  []int
	completed []*Switch
	readErrs  []error

	onFetch CompletionFunc
	closed  bool
}

type prefetchSlot struct {
	buf []byte
	req *Request
}

const unassigned = -1

// NewPrefetcher allocates min(buffers, len(seq)) block buffers and immediately
// issues reads for the first entries of the fetch order.
//
// seq is the consumption sequence; order must be a permutation of
// [0, len(seq)) and describes the physical fetch order. buffers must be at
// least 1. The sequence and order slices are retained; the caller must not
// mutate them while the Prefetcher is live.
func NewPrefetcher(store AsyncStore, seq []BID, order []int, buffers int, opts ...PrefetchOption) (*Prefetcher, error) {
	if len(seq) == 0 {
		return nil, bserrors.ErrEmptySequence
	}
	if buffers < 1 {
		return nil, bserrors.ErrZeroBuffers
	}

	n := len(seq)
	nreadblocks := min(buffers, n)
	if err := validateOrder(order, n, nreadblocks); err != nil {
		return nil, err
	}

	cfg := &prefetchConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	p := &Prefetcher{
		store:     store,
		seq:       seq,
		order:     order,
		slots:     make([]prefetchSlot, nreadblocks),
		blocks:    make([]Block, nreadblocks),
		assigned:  make([]int, n),
		completed: make([]*Switch, n),
		readErrs:  make([]error, n),
		onFetch:   cfg.onFetch,
	}

	blockSize := store.BlockSize()
	for i := range p.slots {
		buf := make([]byte, blockSize)
		p.slots[i].buf = buf
		p.blocks[i] = Block{Data: buf, slot: i, owner: p}
	}
	for i := range p.assigned {
		p.assigned[i] = unassigned
		p.completed[i] = NewSwitch()
	}

	for i := 0; i < nreadblocks; i++ {
		p.issueRead(i, order[i])
	}
	p.nextRead = nreadblocks

	return p, nil
}

// issueRead assigns consumption index idx to the given buffer slot and starts
// the read. The composed completion runs the caller's hook first and signals
// the index's switch last: a waiter must never observe the switch on before
// the hook has run, since the hook may rely on Pull/Consumed not yet having
// returned this buffer.
func (p *Prefetcher) issueRead(slot, idx int) {
	p.assigned[idx] = slot
	sw := p.completed[idx]
	hook := p.onFetch
	p.slots[slot].req = p.store.Read(p.seq[idx], p.slots[slot].buf, func(r *Request, err error) {
		if err != nil {
			p.readErrs[idx] = err
		}
		if hook != nil {
			hook(r, err)
		}
		sw.Signal()
	})
}

// wait blocks until consumption index idx has been read and returns the loan
// handle for the buffer holding it.
func (p *Prefetcher) wait(idx int) (*Block, error) {
	p.completed[idx].Wait()
	slot := p.assigned[idx]
	return &p.blocks[slot], p.readErrs[idx]
}

// Pull returns the buffer holding the next unconsumed block, blocking until
// its read has completed. A non-nil error reports that block's read failure;
// the loan handle is still returned so the buffer can be recycled via
// Consumed. Returns io.EOF once the sequence is exhausted.
func (p *Prefetcher) Pull() (*Block, error) {
	if p.closed {
		return nil, bserrors.ErrClosed
	}
	if p.nextConsume >= len(p.seq) {
		return nil, io.EOF
	}
	b, err := p.wait(p.nextConsume)
	p.nextConsume++
	return b, err
}

// Consumed returns a buffer the caller has finished reading and, in the same
// call, hands back the next block in consumption order. The returned slot is
// recycled into a new read for the next fetch-order entry, if any remain.
//
// Returns io.EOF (and no block) once the consumption sequence is exhausted.
// b must be a handle previously returned by Pull or Consumed of this engine.
func (p *Prefetcher) Consumed(b *Block) (*Block, error) {
	if p.closed {
		return nil, bserrors.ErrClosed
	}
	if b == nil || b.owner != p {
		return nil, bserrors.ErrForeignBlock
	}

	slot := b.slot
	// Normally already complete, since the buffer was only handed to the
	// caller after its read finished. Guards a caller recycling a block it
	// obtained but never waited on.
	if req := p.slots[slot].req; req != nil {
		_ = req.Wait()
	}
	p.slots[slot].req = nil

	if p.nextRead < len(p.seq) {
		p.issueRead(slot, p.order[p.nextRead])
		p.nextRead++
	}

	if p.nextConsume >= len(p.seq) {
		return nil, io.EOF
	}
	nb, err := p.wait(p.nextConsume)
	p.nextConsume++
	return nb, err
}

// Empty reports whether all blocks of the consumption sequence have been
// handed to the caller.
func (p *Prefetcher) Empty() bool {
	return p.nextConsume >= len(p.seq)
}

// Pos returns the next consumption-sequence index the caller will receive.
func (p *Prefetcher) Pos() int {
	return p.nextConsume
}

// Close joins all in-flight reads so that no asynchronous operation still
// references the engine's buffers, then releases them. It must be called even
// when the sequence was not fully consumed. Returns the first error among
// still-outstanding reads. Safe to call more than once.
func (p *Prefetcher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for i := range p.slots {
		if req := p.slots[i].req; req != nil {
			if err := req.Wait(); err != nil {
				errs = append(errs, err)
			}
			p.slots[i].req = nil
		}
	}
	return errors.Join(errs...)
}
