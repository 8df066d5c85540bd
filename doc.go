// Package blockstream implements block-level I/O overlap for external-memory
// computation: algorithms that operate on datasets larger than memory stream
// blocks to and from storage while I/O latency is hidden behind computation.
//
// Two engines form the core. The Prefetcher keeps a bounded pool of read
// buffers populated ahead of consumption, executing a caller-supplied fetch
// order while always delivering blocks in consumption order. The Writer (and
// the OutputStream record adapter over it) lets a producer keep filling one
// buffer while previously filled blocks are written behind its back.
//
// # Basic Usage
//
// Writing records:
//
//	store, err := blockstream.CreateFileStore("data.blk", 1<<20)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	q := blockstream.NewQueue(ctx, store)
//	bids, _ := store.Allocate(numBlocks)
//
//	out, err := blockstream.NewOutputStream(ctx, q, bids, recordSize)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, rec := range records {
//	    if err := out.Append(rec); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	if err := out.Fill(padding); err != nil {
//	    log.Fatal(err)
//	}
//	if err := out.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
// Reading them back with prefetch:
//
//	p, err := blockstream.NewPrefetcher(q, bids, blockstream.SequentialOrder(len(bids)), 8)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	b, err := p.Pull()
//	for {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    consume(b.Data)
//	    if b, err = p.Consumed(b); errors.Is(err, io.EOF) {
//	        break
//	    }
//	}
//
// # Package Structure
//
//   - Engines: prefetcher.go (Prefetcher), writer.go (Writer), stream.go (OutputStream)
//   - Async substrate: request.go (Request, AsyncStore), queue.go (Queue over Backend), switch.go (Switch)
//   - Backends: file_store.go, mmap_store.go, mem_store.go; checksum.go (per-block checksums)
//   - Configuration: options.go (functional options per constructor)
//   - Scheduling: order.go (fetch-order helpers; optimal orders come from external schedulers)
//   - Platform: fallocate_*.go, fadvise_*.go, prefault_*.go (OS-specific optimizations)
package blockstream
