// Package errors defines all exported error sentinels for the blockstream library.
//
// This is the single source of truth for error values. The top-level blockstream
// package returns these so that errors.Is checks work across package boundaries.
package errors

import "errors"

// Construction errors
var (
	ErrEmptySequence      = errors.New("blockstream: consumption sequence is empty")
	ErrZeroBuffers        = errors.New("blockstream: buffer count must be at least 1")
	ErrInvalidFetchOrder  = errors.New("blockstream: fetch order is not a permutation of the consumption sequence")
	ErrUnschedulableOrder = errors.New("blockstream: fetch order would deadlock with the given buffer count")
	ErrInvalidBlockSize   = errors.New("blockstream: block size must be positive")
	ErrInvalidRecordSize  = errors.New("blockstream: record size must be positive and divide the block size")
)

// Engine errors
var (
	ErrForeignBlock = errors.New("blockstream: block is not owned by this engine")
	ErrClosed       = errors.New("blockstream: engine is closed")
	ErrPartialBlock = errors.New("blockstream: stream closed with an unflushed partial block")
	ErrOutOfBlocks  = errors.New("blockstream: destination block sequence exhausted")
)

// Store errors
var (
	ErrStoreClosed      = errors.New("blockstream: store is closed")
	ErrUnknownBID       = errors.New("blockstream: block was never written")
	ErrInvalidBID       = errors.New("blockstream: block identifier out of range")
	ErrChecksumMismatch = errors.New("blockstream: block checksum mismatch")
	ErrShortBlock       = errors.New("blockstream: buffer length does not match store block size")
	ErrStoreFull        = errors.New("blockstream: store capacity exhausted")
)
