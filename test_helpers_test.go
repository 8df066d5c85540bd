package blockstream

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	bserrors "github.com/tamirms/blockstream/errors"
)

// newTestRNG returns a deterministic RNG so failures reproduce across runs.
func newTestRNG(tb testing.TB) *rand.Rand {
	tb.Helper()
	const seed = 0x5eedb10c
	tb.Logf("test RNG seed: %#x", seed)
	return rand.New(rand.NewPCG(seed, 0))
}

// blockPayload returns the deterministic content of the block identified by
// bid, used to verify that engines deliver the right block regardless of
// physical completion order.
func blockPayload(bid BID, blockSize int) []byte {
	buf := make([]byte, blockSize)
	for i := 0; i+8 <= len(buf); i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], uint64(bid)*0x9e3779b97f4a7c15+uint64(i))
	}
	return buf
}

// fakeStore is an instrumented AsyncStore for engine tests. By default it
// completes requests on background goroutines after a small random delay,
// exercising out-of-order completion. In manual mode requests stay pending
// until the test releases them, giving full control over completion order.
//
// It tracks the high-water mark of concurrently outstanding reads and writes
// and flags any buffer that receives a new operation while a previous one is
// still in flight (the slot-reuse hazard the engines must prevent).
type fakeStore struct {
	blockSize int
	manual    bool
	maxDelay  time.Duration

	mu                sync.Mutex
	blocks            map[BID][]byte
	failures          map[BID]error
	pending           []*Request
	inflightReads     int
	maxInflightReads  int
	inflightWrites    int
	maxInflightWrites int
	bufOps            map[*byte]int
	violation         error
	reads             int
	writes            int
	wg                sync.WaitGroup
}

func newFakeStore(blockSize int) *fakeStore {
	return &fakeStore{
		blockSize: blockSize,
		maxDelay:  2 * time.Millisecond,
		blocks:    make(map[BID][]byte),
		failures:  make(map[BID]error),
		bufOps:    make(map[*byte]int),
	}
}

// newManualStore returns a fakeStore whose requests complete only when the
// test calls release or releaseAll.
func newManualStore(blockSize int) *fakeStore {
	f := newFakeStore(blockSize)
	f.manual = true
	return f
}

// seed populates the store with blockPayload content for each bid.
func (f *fakeStore) seed(bids ...BID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, bid := range bids {
		f.blocks[bid] = blockPayload(bid, f.blockSize)
	}
}

// failBID makes operations on bid complete with err.
func (f *fakeStore) failBID(bid BID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[bid] = err
}

func (f *fakeStore) BlockSize() int { return f.blockSize }

func (f *fakeStore) Read(bid BID, dst []byte, on CompletionFunc) *Request {
	r := newRequest(opRead, bid, dst, on)
	f.begin(r)
	return r
}

func (f *fakeStore) Write(bid BID, src []byte, on CompletionFunc) *Request {
	r := newRequest(opWrite, bid, src, on)
	f.begin(r)
	return r
}

func (f *fakeStore) begin(r *Request) {
	f.mu.Lock()
	key := &r.buf[0]
	if f.bufOps[key] > 0 && f.violation == nil {
		f.violation = fmt.Errorf("buffer given to bid %d while a previous operation is still in flight", r.bid)
	}
	f.bufOps[key]++

	if r.op == opRead {
		f.reads++
		f.inflightReads++
		if f.inflightReads > f.maxInflightReads {
			f.maxInflightReads = f.inflightReads
		}
	} else {
		f.writes++
		f.inflightWrites++
		if f.inflightWrites > f.maxInflightWrites {
			f.maxInflightWrites = f.inflightWrites
		}
	}

	if f.manual {
		f.pending = append(f.pending, r)
		f.mu.Unlock()
		return
	}

	delay := time.Duration(rand.Int64N(int64(f.maxDelay) + 1))
	f.wg.Add(1)
	f.mu.Unlock()
	go func() {
		defer f.wg.Done()
		time.Sleep(delay)
		f.finish(r)
	}()
}

// finish performs the operation against the in-memory block map and completes
// the request.
func (f *fakeStore) finish(r *Request) {
	var err error
	f.mu.Lock()
	if ferr, ok := f.failures[r.bid]; ok {
		err = ferr
	} else if r.op == opRead {
		src, ok := f.blocks[r.bid]
		if !ok {
			err = bserrors.ErrUnknownBID
		} else {
			copy(r.buf, src)
		}
	} else {
		blk, ok := f.blocks[r.bid]
		if !ok {
			blk = make([]byte, f.blockSize)
			f.blocks[r.bid] = blk
		}
		copy(blk, r.buf)
	}

	f.bufOps[&r.buf[0]]--
	if r.op == opRead {
		f.inflightReads--
	} else {
		f.inflightWrites--
	}
	f.mu.Unlock()

	r.complete(err)
}

// release completes the oldest pending request for bid. Manual mode only.
func (f *fakeStore) release(t *testing.T, bid BID) {
	t.Helper()
	f.mu.Lock()
	for i, r := range f.pending {
		if r.bid == bid {
			f.pending = append(f.pending[:i:i], f.pending[i+1:]...)
			f.mu.Unlock()
			f.finish(r)
			return
		}
	}
	f.mu.Unlock()
	t.Fatalf("no pending request for bid %d", bid)
}

// releaseAll completes every pending request in submission order.
func (f *fakeStore) releaseAll() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, r := range pending {
		f.finish(r)
	}
}

// pendingBIDs returns the bids of pending requests in submission order.
func (f *fakeStore) pendingBIDs() []BID {
	f.mu.Lock()
	defer f.mu.Unlock()
	bids := make([]BID, len(f.pending))
	for i, r := range f.pending {
		bids[i] = r.bid
	}
	return bids
}

// settle waits for all background completions to run.
func (f *fakeStore) settle() {
	f.wg.Wait()
}

// checkInvariants fails the test if a buffer-reuse hazard was observed.
func (f *fakeStore) checkInvariants(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.violation != nil {
		t.Fatal(f.violation)
	}
}

// randomAdmissibleOrder returns a random fetch-order permutation of [0, n)
// satisfying the admissibility constraint for nreadblocks buffers: position
// of index i is < i + nreadblocks. Built by always picking uniformly among
// the currently admissible unplaced indices.
func randomAdmissibleOrder(rng *rand.Rand, n, nreadblocks int) []int {
	order := make([]int, 0, n)
	unused := make([]int, n)
	for i := range unused {
		unused[i] = i
	}
	for pos := 0; pos < n; pos++ {
		// Admissible at this position: idx > pos - nreadblocks. unused is
		// kept sorted, so only its smallest element can be at its deadline,
		// and deadlines are strictly increasing in idx.
		if pos == unused[0]+nreadblocks-1 {
			order = append(order, unused[0])
			unused = unused[1:]
			continue
		}
		k := rng.IntN(len(unused))
		order = append(order, unused[k])
		unused = append(unused[:k:k], unused[k+1:]...)
	}
	return order
}
