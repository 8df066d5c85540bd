package blockstream

import (
	"sync"

	bserrors "github.com/tamirms/blockstream/errors"
)

// MemStore is an in-memory Backend. It exists for tests, examples and small
// working sets; reading a BID that was never written is an error rather than
// returning zeroes, which catches ordering bugs early.
type MemStore struct {
	blockSize int

	mu     sync.Mutex
	blocks map[BID][]byte
	nalloc int64
}

// NewMemStore creates an empty in-memory block store.
func NewMemStore(blockSize int) (*MemStore, error) {
	if blockSize <= 0 {
		return nil, bserrors.ErrInvalidBlockSize
	}
	return &MemStore{
		blockSize: blockSize,
		blocks:    make(map[BID][]byte),
	}, nil
}

// BlockSize returns the store's block size in bytes.
func (s *MemStore) BlockSize() int { return s.blockSize }

// Allocate reserves n fresh BIDs.
func (s *MemStore) Allocate(n int) ([]BID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bids := make([]BID, n)
	for i := range bids {
		bids[i] = BID(s.nalloc)
		s.nalloc++
	}
	return bids, nil
}

// ReadBlockAt copies the block at bid into dst.
func (s *MemStore) ReadBlockAt(bid BID, dst []byte) error {
	if len(dst) != s.blockSize {
		return bserrors.ErrShortBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.blocks[bid]
	if !ok {
		return bserrors.ErrUnknownBID
	}
	copy(dst, src)
	return nil
}

// WriteBlockAt stores a copy of src as the block at bid.
func (s *MemStore) WriteBlockAt(bid BID, src []byte) error {
	if len(src) != s.blockSize {
		return bserrors.ErrShortBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	blk, ok := s.blocks[bid]
	if !ok {
		blk = make([]byte, s.blockSize)
		s.blocks[bid] = blk
	}
	copy(blk, src)
	return nil
}
