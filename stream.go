package blockstream

import (
	"context"
	"errors"

	bserrors "github.com/tamirms/blockstream/errors"
)

// OutputStream writes fixed-size records to a sequence of blocks with
// write-behind buffering: appending never waits for storage unless the
// writer's buffer pool is exhausted.
//
// Records are packed back to back into the current block; when it fills, the
// block is submitted for asynchronous write to the next destination BID and a
// free buffer is adopted in its place. The final, partially filled block must
// be either padded out with Fill or force-submitted with Flush before Close.
type OutputStream struct {
	w          *Writer
	bids       []BID
	nextBID    int
	recordSize int
	perBlock   int

	cur  *Block
	elem int // record cursor within cur

	fail   error // terminal submit failure, sticky
	closed bool
}

// NewOutputStream creates a record stream writing to the given destination
// blocks in order. recordSize must be positive and divide the store's block
// size. The stream owns an internal Writer sized by WithWriteBuffers
// (default 4).
func NewOutputStream(ctx context.Context, store AsyncStore, bids []BID, recordSize int, opts ...StreamOption) (*OutputStream, error) {
	if recordSize <= 0 || store.BlockSize()%recordSize != 0 {
		return nil, bserrors.ErrInvalidRecordSize
	}

	cfg := defaultStreamConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	w, err := NewWriter(ctx, store, cfg.buffers, cfg.writerOpts...)
	if err != nil {
		return nil, err
	}

	cur, err := w.GetFreeBlock()
	if err != nil {
		return nil, errors.Join(err, w.Close())
	}

	return &OutputStream{
		w:          w,
		bids:       bids,
		recordSize: recordSize,
		perBlock:   store.BlockSize() / recordSize,
		cur:        cur,
	}, nil
}

// Append copies rec into the stream. rec must be exactly one record long.
func (s *OutputStream) Append(rec []byte) error {
	if s.closed {
		return bserrors.ErrClosed
	}
	if len(rec) != s.recordSize {
		return bserrors.ErrInvalidRecordSize
	}
	copy(s.cur.Record(s.elem, s.recordSize), rec)
	return s.Advance()
}

// Current returns the in-progress record slot for in-place mutation. The
// slice is only valid until the next Advance, Append, Fill or Flush call.
func (s *OutputStream) Current() []byte {
	return s.cur.Record(s.elem, s.recordSize)
}

// Advance commits the current record and moves the cursor to the next slot,
// submitting the block for asynchronous write if it just became full.
func (s *OutputStream) Advance() error {
	if s.closed {
		return bserrors.ErrClosed
	}
	if s.fail != nil {
		return s.fail
	}
	s.elem++
	if s.elem >= s.perBlock {
		return s.submit()
	}
	return nil
}

// Fill appends copies of pad until the current block has been flushed, i.e.
// the in-block cursor is back at 0. A stream already at a block boundary is
// left untouched.
func (s *OutputStream) Fill(pad []byte) error {
	for s.elem != 0 {
		if err := s.Append(pad); err != nil {
			return err
		}
	}
	return nil
}

// Flush force-submits the current block regardless of fill level. Record
// slots past the cursor hold stale data; use Fill instead when trailing
// contents matter.
func (s *OutputStream) Flush() error {
	if s.closed {
		return bserrors.ErrClosed
	}
	if s.fail != nil {
		return s.fail
	}
	s.elem = s.perBlock
	return s.submit()
}

// submit hands the current block to the writer and adopts a free buffer.
// Failures that leave the stream without a usable buffer or destination are
// terminal and sticky; a recorded asynchronous write error is reported but
// the stream remains usable.
func (s *OutputStream) submit() error {
	if s.nextBID >= len(s.bids) {
		s.fail = bserrors.ErrOutOfBlocks
		return s.fail
	}
	bid := s.bids[s.nextBID]
	s.nextBID++
	s.elem = 0

	nb, err := s.w.Write(s.cur, bid)
	if nb == nil {
		s.fail = err
		return err
	}
	s.cur = nb
	return err
}

// Pos returns the record cursor within the current block.
func (s *OutputStream) Pos() int {
	return s.elem
}

// BlocksWritten returns how many blocks have been submitted so far.
func (s *OutputStream) BlocksWritten() int {
	return s.nextBID
}

// RecordCapacity returns the number of records per block.
func (s *OutputStream) RecordCapacity() int {
	return s.perBlock
}

// Close drains all outstanding writes and releases the stream's buffers.
// Closing with a non-empty partial block is a contract violation and returns
// ErrPartialBlock after draining; pad with Fill or force with Flush first.
// Safe to call more than once.
func (s *OutputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var partial error
	if s.fail == nil && s.elem != 0 {
		partial = bserrors.ErrPartialBlock
	}
	return errors.Join(partial, s.w.Close())
}
