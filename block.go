package blockstream

// BID identifies a block's location within a store. It is an opaque slot
// number: stores map it to a physical position (file offset, mmap offset,
// map key) themselves. BIDs are comparable and copyable and carry no I/O
// state.
type BID int64

// Block is a loan handle for one engine-owned block buffer.
//
// Engines (Prefetcher, Writer) own the backing memory for the lifetime of the
// engine; a Block lends it to the caller between the call that returned it and
// the next call that hands it back (Consumed for reads, Write for writes).
// After handing a Block back, the caller must not touch Data until the same
// handle is returned to it again.
type Block struct {
	// Data is the block's payload, exactly one store block in length.
	Data []byte

	slot  int
	owner any
}

// Record returns the i-th record slot of the block for records of the given
// size. The returned slice aliases Data, so writes through it mutate the block
// in place.
func (b *Block) Record(i, size int) []byte {
	off := i * size
	return b.Data[off : off+size : off+size]
}

// NumRecords returns how many records of the given size fit in the block.
func (b *Block) NumRecords(size int) int {
	return len(b.Data) / size
}
