package blockstream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"testing"
)

// allocBackend is a Backend that can also hand out fresh BIDs. All three
// bundled stores satisfy it.
type allocBackend interface {
	Backend
	Allocate(n int) ([]BID, error)
}

// TestRoundTrip drives the full pipeline over every bundled backend: records
// go out through an OutputStream with write-behind buffering and come back
// through a Prefetcher with an out-of-order fetch schedule. The stream of
// records read must equal the stream of records written.
func TestRoundTrip(t *testing.T) {
	const (
		blockSize  = 128
		recordSize = 16
		nrecords   = 90 // deliberately not a multiple of records per block
		maxBlocks  = 16
	)

	backends := []struct {
		name string
		open func(t *testing.T) (allocBackend, func() error)
	}{
		{"mem", func(t *testing.T) (allocBackend, func() error) {
			s, err := NewMemStore(blockSize)
			if err != nil {
				t.Fatal(err)
			}
			return s, func() error { return nil }
		}},
		{"file", func(t *testing.T) (allocBackend, func() error) {
			path := filepath.Join(t.TempDir(), "blocks.dat")
			s, err := CreateFileStore(path, blockSize, WithChecksum(ChecksumXXH3))
			if err != nil {
				t.Fatal(err)
			}
			return s, s.Close
		}},
		{"mmap", func(t *testing.T) (allocBackend, func() error) {
			path := filepath.Join(t.TempDir(), "blocks.mmap")
			s, err := CreateMmapStore(path, blockSize, maxBlocks)
			if err != nil {
				t.Fatal(err)
			}
			return s, s.Close
		}},
	}

	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			backend, closeBackend := be.open(t)
			ctx := context.Background()
			q := NewQueue(ctx, backend, WithWorkers(3))

			perBlock := blockSize / recordSize
			nblocks := (nrecords + perBlock - 1) / perBlock
			bids, err := backend.Allocate(nblocks)
			if err != nil {
				t.Fatal(err)
			}

			// ---------------------------------------------------------------
			// Write path
			// ---------------------------------------------------------------

			s, err := NewOutputStream(ctx, q, bids, recordSize, WithWriteBuffers(4))
			if err != nil {
				t.Fatal(err)
			}
			for i := range nrecords {
				if err := s.Append(roundTripRecord(uint64(i), recordSize)); err != nil {
					t.Fatal(err)
				}
			}
			pad := roundTripRecord(^uint64(0), recordSize)
			if err := s.Fill(pad); err != nil {
				t.Fatal(err)
			}
			if got := s.BlocksWritten(); got != nblocks {
				t.Fatalf("BlocksWritten() = %d, want %d", got, nblocks)
			}
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}

			// ---------------------------------------------------------------
			// Read path, with a shuffled but admissible fetch schedule
			// ---------------------------------------------------------------

			const buffers = 4
			rng := newTestRNG(t)
			order := randomAdmissibleOrder(rng, nblocks, min(buffers, nblocks))

			p, err := NewPrefetcher(q, bids, order, buffers)
			if err != nil {
				t.Fatal(err)
			}

			var got []byte
			b, err := p.Pull()
			for {
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, b.Data...)
				b, err = p.Consumed(b)
				if errors.Is(err, io.EOF) {
					break
				}
			}
			if err := p.Close(); err != nil {
				t.Fatal(err)
			}

			for i := range nrecords {
				want := roundTripRecord(uint64(i), recordSize)
				rec := got[i*recordSize : (i+1)*recordSize]
				if !bytes.Equal(rec, want) {
					t.Fatalf("record %d mismatch after round trip", i)
				}
			}
			for i := nrecords; i < nblocks*perBlock; i++ {
				rec := got[i*recordSize : (i+1)*recordSize]
				if !bytes.Equal(rec, pad) {
					t.Fatalf("padding record %d mismatch", i)
				}
			}

			if err := q.Close(); err != nil {
				t.Fatal(err)
			}
			if err := closeBackend(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func roundTripRecord(v uint64, size int) []byte {
	rec := make([]byte, size)
	binary.LittleEndian.PutUint64(rec, v)
	binary.LittleEndian.PutUint64(rec[8:], ^v)
	return rec
}
