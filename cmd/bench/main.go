// bench measures write-behind and prefetch throughput over the bundled
// block store backends:
//
//  1. "file": positioned I/O on a regular file, optionally checksummed
//  2. "mmap": memory-mapped file, plain memory copies
//
// Each run streams N blocks out through an OutputStream, then reads them
// back through a Prefetcher, and reports MB/s for both phases. A rolling
// digest over the data read back keeps the read loop honest.
//
// Usage:
//
//	go run ./cmd/bench -size 2 -block 1m
//	go run ./cmd/bench -size 10 -block 256k -backend file -checksum xxh3
//	go run ./cmd/bench -size 4 -buffers 16 -workers 8
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/tamirms/blockstream"
)

func main() {
	sizeGB := flag.Float64("size", 2.0, "total data size in GB")
	blockArg := flag.String("block", "1m", "block size (supports k/m suffix)")
	backend := flag.String("backend", "both", "backend: file, mmap, or both")
	checksum := flag.String("checksum", "none", "file backend checksum: none, xxhash64, xxh3, murmur3")
	buffers := flag.Int("buffers", 8, "engine buffers for each phase")
	workers := flag.Int("workers", 4, "queue worker goroutines")
	tmpDir := flag.String("dir", "", "temp directory (default: os.TempDir())")
	flag.Parse()

	blockSize, err := parseSize(*blockArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -block: %v\n", err)
		os.Exit(1)
	}
	alg, err := parseChecksum(*checksum)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -checksum: %v\n", err)
		os.Exit(1)
	}

	if *tmpDir == "" {
		*tmpDir = os.TempDir()
	}

	totalBytes := int64(*sizeGB * 1024 * 1024 * 1024)
	nblocks := int(totalBytes / int64(blockSize))
	if nblocks < 1 {
		fmt.Fprintln(os.Stderr, "data size smaller than one block")
		os.Exit(1)
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Data size:    %.1f GB (%d blocks × %d bytes)\n", *sizeGB, nblocks, blockSize)
	fmt.Printf("  Buffers:      %d\n", *buffers)
	fmt.Printf("  Workers:      %d\n", *workers)
	fmt.Printf("  Temp dir:     %s\n", *tmpDir)
	fmt.Printf("  GOMAXPROCS:   %d\n", runtime.GOMAXPROCS(0))
	fmt.Println()

	if *backend == "file" || *backend == "both" {
		fmt.Printf("=== file backend (checksum=%s) ===\n", alg)
		benchFile(*tmpDir, blockSize, nblocks, *buffers, *workers, alg)
		fmt.Println()
	}
	if *backend == "mmap" || *backend == "both" {
		fmt.Println("=== mmap backend ===")
		benchMmap(*tmpDir, blockSize, nblocks, *buffers, *workers)
		fmt.Println()
	}
}

func benchFile(dir string, blockSize, nblocks, buffers, workers int, alg blockstream.ChecksumAlgorithm) {
	path := filepath.Join(dir, fmt.Sprintf("bench-file-%d.tmp", os.Getpid()))
	defer func() { _ = os.Remove(path) }()

	store, err := blockstream.CreateFileStore(path, blockSize,
		blockstream.WithChecksum(alg),
		blockstream.WithPreallocate(nblocks))
	if err != nil {
		fmt.Printf("  ERROR: create store: %v\n", err)
		return
	}
	defer func() { _ = store.Close() }()

	bids, err := store.Allocate(nblocks)
	if err != nil {
		fmt.Printf("  ERROR: allocate: %v\n", err)
		return
	}
	store.AdviseSequential()
	runPhases(store, bids, blockSize, nblocks, buffers, workers, store.Sync)
}

func benchMmap(dir string, blockSize, nblocks, buffers, workers int) {
	path := filepath.Join(dir, fmt.Sprintf("bench-mmap-%d.tmp", os.Getpid()))
	defer func() { _ = os.Remove(path) }()

	store, err := blockstream.CreateMmapStore(path, blockSize, nblocks)
	if err != nil {
		fmt.Printf("  ERROR: create store: %v\n", err)
		return
	}
	defer func() { _ = store.Close() }()

	bids, err := store.Allocate(nblocks)
	if err != nil {
		fmt.Printf("  ERROR: allocate: %v\n", err)
		return
	}
	runPhases(store, bids, blockSize, nblocks, buffers, workers, store.Flush)
}

// runPhases writes every block through the write-behind engine, syncs, then
// streams the blocks back through the prefetch engine.
func runPhases(backend blockstream.Backend, bids []blockstream.BID, blockSize, nblocks, buffers, workers int, sync func() error) {
	ctx := context.Background()
	q := blockstream.NewQueue(ctx, backend, blockstream.WithWorkers(workers))
	defer func() { _ = q.Close() }()

	totalMB := float64(int64(nblocks)*int64(blockSize)) / (1024 * 1024)
	rng := rand.New(rand.NewPCG(42, 0))

	// Write phase
	w, err := blockstream.NewWriter(ctx, q, buffers)
	if err != nil {
		fmt.Printf("  ERROR: writer: %v\n", err)
		return
	}
	cur, err := w.GetFreeBlock()
	if err != nil {
		fmt.Printf("  ERROR: writer: %v\n", err)
		return
	}

	writeStart := time.Now()
	for _, bid := range bids {
		fillBlock(cur.Data, rng)
		if cur, err = w.Write(cur, bid); err != nil {
			fmt.Printf("  ERROR: write block %d: %v\n", bid, err)
			return
		}
	}
	if err := w.Close(); err != nil {
		fmt.Printf("  ERROR: drain writes: %v\n", err)
		return
	}
	writeDur := time.Since(writeStart)
	fmt.Printf("  Write:  %6.2fs (%7.1f MB/s)\n", writeDur.Seconds(), totalMB/writeDur.Seconds())

	syncStart := time.Now()
	if err := sync(); err != nil {
		fmt.Printf("  ERROR: sync: %v\n", err)
		return
	}
	syncDur := time.Since(syncStart)
	fmt.Printf("  Sync:   %6.2fs\n", syncDur.Seconds())

	// Read phase: sequential consumption, sequential fetch schedule
	p, err := blockstream.NewPrefetcher(q, bids, blockstream.SequentialOrder(nblocks), buffers)
	if err != nil {
		fmt.Printf("  ERROR: prefetcher: %v\n", err)
		return
	}
	defer func() { _ = p.Close() }()

	digest := murmur3.New64()
	readStart := time.Now()
	b, err := p.Pull()
	for err == nil {
		_, _ = digest.Write(b.Data)
		b, err = p.Consumed(b)
	}
	if err != io.EOF {
		fmt.Printf("  ERROR: read back: %v\n", err)
		return
	}
	readDur := time.Since(readStart)

	fmt.Printf("  Read:   %6.2fs (%7.1f MB/s) [digest=%x]\n",
		readDur.Seconds(), totalMB/readDur.Seconds(), digest.Sum64())
	fmt.Printf("  Total:  %6.2fs\n", (writeDur + syncDur + readDur).Seconds())
}

func fillBlock(dst []byte, rng *rand.Rand) {
	for i := 0; i+8 <= len(dst); i += 8 {
		binary.LittleEndian.PutUint64(dst[i:], rng.Uint64())
	}
}

func parseSize(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := 1
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return n * mult, nil
}

func parseChecksum(s string) (blockstream.ChecksumAlgorithm, error) {
	switch s {
	case "none":
		return blockstream.ChecksumNone, nil
	case "xxhash64":
		return blockstream.ChecksumXXHash64, nil
	case "xxh3":
		return blockstream.ChecksumXXH3, nil
	case "murmur3":
		return blockstream.ChecksumMurmur3, nil
	}
	return blockstream.ChecksumNone, fmt.Errorf("unknown algorithm %q", s)
}
