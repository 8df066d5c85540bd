package blockstream

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"

	bserrors "github.com/tamirms/blockstream/errors"
)

// MmapStore is a fixed-capacity block store over a memory-mapped file.
// Reads and writes are plain memory copies, which makes it the fastest
// backend when the working set fits the page cache. Capacity is fixed at
// creation; Allocate fails with ErrStoreFull past it.
type MmapStore struct {
	file      *os.File
	mm        mmap.MMap
	data      []byte
	blockSize int
	nblocks   int

	nalloc atomic.Int64
	closed atomic.Bool
}

// CreateMmapStore creates a block file of exactly nblocks blocks at path and
// maps it read-write. The file is preallocated to avoid SIGBUS on disk full,
// and the mapping is prefaulted for write throughput where supported.
func CreateMmapStore(path string, blockSize, nblocks int) (*MmapStore, error) {
	if blockSize <= 0 {
		return nil, bserrors.ErrInvalidBlockSize
	}
	if nblocks < 1 {
		return nil, bserrors.ErrZeroBuffers
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create mmap block file: %w", err)
	}

	size := int64(blockSize) * int64(nblocks)
	if err := fallocateFile(file, size); err != nil {
		primaryErr := fmt.Errorf("preallocate mmap block file: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	mm, err := mmap.MapRegion(file, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		primaryErr := fmt.Errorf("mmap block file: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	s := &MmapStore{
		file:      file,
		mm:        mm,
		data:      []byte(mm),
		blockSize: blockSize,
		nblocks:   nblocks,
	}
	prefaultRegion(s.data)
	return s, nil
}

// BlockSize returns the store's block size in bytes.
func (s *MmapStore) BlockSize() int { return s.blockSize }

// Capacity returns the fixed number of blocks the store can hold.
func (s *MmapStore) Capacity() int { return s.nblocks }

// Allocate reserves n fresh BIDs, failing with ErrStoreFull when the mapped
// region cannot hold them.
func (s *MmapStore) Allocate(n int) ([]BID, error) {
	if s.closed.Load() {
		return nil, bserrors.ErrStoreClosed
	}
	next := s.nalloc.Add(int64(n))
	if next > int64(s.nblocks) {
		s.nalloc.Add(int64(-n))
		return nil, bserrors.ErrStoreFull
	}
	bids := make([]BID, n)
	for i := range bids {
		bids[i] = BID(next - int64(n) + int64(i))
	}
	return bids, nil
}

func (s *MmapStore) region(bid BID, n int) ([]byte, error) {
	if s.closed.Load() {
		return nil, bserrors.ErrStoreClosed
	}
	if n != s.blockSize {
		return nil, bserrors.ErrShortBlock
	}
	if bid < 0 || int(bid) >= s.nblocks {
		return nil, bserrors.ErrInvalidBID
	}
	off := int64(bid) * int64(s.blockSize)
	return s.data[off : off+int64(s.blockSize)], nil
}

// ReadBlockAt copies the block at bid into dst.
func (s *MmapStore) ReadBlockAt(bid BID, dst []byte) error {
	src, err := s.region(bid, len(dst))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// WriteBlockAt copies src into the block at bid.
func (s *MmapStore) WriteBlockAt(bid BID, src []byte) error {
	dst, err := s.region(bid, len(src))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// Flush writes dirty pages back to the file.
func (s *MmapStore) Flush() error {
	if s.closed.Load() {
		return bserrors.ErrStoreClosed
	}
	return s.mm.Flush()
}

// Close flushes, unmaps and closes the backing file. The caller must have
// drained any Queue serving this store first. Safe to call more than once.
func (s *MmapStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	flushErr := s.mm.Flush()
	unmapErr := s.mm.Unmap()
	s.mm = nil
	s.data = nil
	return errors.Join(flushErr, unmapErr, s.file.Close())
}
