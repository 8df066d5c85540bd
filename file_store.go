package blockstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	bserrors "github.com/tamirms/blockstream/errors"
)

// checksumTrailerSize is the per-block on-disk overhead when checksums are
// enabled: one little-endian uint64 after the payload.
const checksumTrailerSize = 8

// FileStore is a block store over a regular file. Blocks are fixed-size and
// addressed by BID slot number; an optional checksum trailer is verified on
// every read. ReadBlockAt and WriteBlockAt use positioned I/O and are safe
// for concurrent use from multiple Queue workers.
type FileStore struct {
	file      *os.File
	path      string
	blockSize int
	stride    int64 // blockSize plus trailer when checksummed
	checksum  ChecksumAlgorithm

	nalloc atomic.Int64 // next unallocated slot
	closed atomic.Bool
}

// CreateFileStore creates (or truncates) a block file at path.
func CreateFileStore(path string, blockSize int, opts ...StoreOption) (*FileStore, error) {
	if blockSize <= 0 {
		return nil, bserrors.ErrInvalidBlockSize
	}

	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create block file: %w", err)
	}

	s := newFileStore(file, path, blockSize, cfg.checksum)

	if cfg.preallocate > 0 {
		// Reserve disk blocks upfront so write-behind does not hit ENOSPC
		// mid-stream.
		if err := fallocateFile(file, int64(cfg.preallocate)*s.stride); err != nil {
			primaryErr := fmt.Errorf("preallocate block file: %w", err)
			return nil, errors.Join(primaryErr, file.Close())
		}
	}
	return s, nil
}

// OpenFileStore opens an existing block file. blockSize and the checksum
// option must match the values the file was created with. Already-present
// blocks count as allocated, so Allocate continues past them.
func OpenFileStore(path string, blockSize int, opts ...StoreOption) (*FileStore, error) {
	if blockSize <= 0 {
		return nil, bserrors.ErrInvalidBlockSize
	}

	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open block file: %w", err)
	}

	s := newFileStore(file, path, blockSize, cfg.checksum)

	info, err := file.Stat()
	if err != nil {
		primaryErr := fmt.Errorf("stat block file: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}
	s.nalloc.Store(info.Size() / s.stride)
	return s, nil
}

func newFileStore(file *os.File, path string, blockSize int, checksum ChecksumAlgorithm) *FileStore {
	stride := int64(blockSize)
	if checksum != ChecksumNone {
		stride += checksumTrailerSize
	}
	return &FileStore{
		file:      file,
		path:      path,
		blockSize: blockSize,
		stride:    stride,
		checksum:  checksum,
	}
}

// BlockSize returns the store's block size in bytes.
func (s *FileStore) BlockSize() int { return s.blockSize }

// Allocate reserves n fresh BIDs. Allocation is strictly sequential; disk
// placement policy beyond that is out of scope.
func (s *FileStore) Allocate(n int) ([]BID, error) {
	if s.closed.Load() {
		return nil, bserrors.ErrStoreClosed
	}
	first := s.nalloc.Add(int64(n)) - int64(n)
	bids := make([]BID, n)
	for i := range bids {
		bids[i] = BID(first + int64(i))
	}
	return bids, nil
}

// ReadBlockAt reads the block at bid into dst, verifying the checksum
// trailer when enabled.
func (s *FileStore) ReadBlockAt(bid BID, dst []byte) error {
	if s.closed.Load() {
		return bserrors.ErrStoreClosed
	}
	if len(dst) != s.blockSize {
		return bserrors.ErrShortBlock
	}
	if bid < 0 || int64(bid) >= s.nalloc.Load() {
		return bserrors.ErrInvalidBID
	}

	off := int64(bid) * s.stride
	if _, err := s.file.ReadAt(dst, off); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return bserrors.ErrUnknownBID
		}
		return fmt.Errorf("read block %d: %w", bid, err)
	}

	if s.checksum != ChecksumNone {
		var trailer [checksumTrailerSize]byte
		if _, err := s.file.ReadAt(trailer[:], off+int64(s.blockSize)); err != nil {
			return fmt.Errorf("read block %d checksum: %w", bid, err)
		}
		if binary.LittleEndian.Uint64(trailer[:]) != s.checksum.sum(dst) {
			return fmt.Errorf("block %d: %w", bid, bserrors.ErrChecksumMismatch)
		}
	}
	return nil
}

// WriteBlockAt writes src as the block at bid, appending a checksum trailer
// when enabled.
func (s *FileStore) WriteBlockAt(bid BID, src []byte) error {
	if s.closed.Load() {
		return bserrors.ErrStoreClosed
	}
	if len(src) != s.blockSize {
		return bserrors.ErrShortBlock
	}
	if bid < 0 || int64(bid) >= s.nalloc.Load() {
		return bserrors.ErrInvalidBID
	}

	off := int64(bid) * s.stride
	if _, err := s.file.WriteAt(src, off); err != nil {
		return fmt.Errorf("write block %d: %w", bid, err)
	}

	if s.checksum != ChecksumNone {
		var trailer [checksumTrailerSize]byte
		binary.LittleEndian.PutUint64(trailer[:], s.checksum.sum(src))
		if _, err := s.file.WriteAt(trailer[:], off+int64(s.blockSize)); err != nil {
			return fmt.Errorf("write block %d checksum: %w", bid, err)
		}
	}
	return nil
}

// AdviseSequential hints to the kernel that the file will be read
// sequentially. Best-effort, no-op outside Linux.
func (s *FileStore) AdviseSequential() {
	fadviseSequential(int(s.file.Fd()), 0, 0)
}

// Sync flushes file contents to stable storage.
func (s *FileStore) Sync() error {
	if s.closed.Load() {
		return bserrors.ErrStoreClosed
	}
	return s.file.Sync()
}

// Close closes the underlying file. The caller must have drained any Queue
// serving this store first. Safe to call more than once.
func (s *FileStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.file.Close()
}
