package blockstream

// CompletionFunc is invoked exactly once when an asynchronous block operation
// finishes, not necessarily on the goroutine that issued it. err is nil on
// success and carries the I/O failure otherwise.
//
// Engines compose caller-supplied hooks with their own bookkeeping so that the
// hook always runs before any completion switch for the same operation is
// signaled: a waiter can therefore rely on the hook having finished by the
// time a blocking call observes the operation as complete.
type CompletionFunc func(r *Request, err error)

// AsyncStore is the asynchronous storage contract the engines are built on.
// Read and Write issue an operation and return immediately; the returned
// Request can be waited on, and the completion function (if any) is invoked
// exactly once when the operation finishes.
//
// Queue adapts any synchronous Backend to this interface.
type AsyncStore interface {
	// BlockSize returns the fixed transfer unit in bytes.
	BlockSize() int

	// Read asynchronously reads the block identified by bid into dst.
	// len(dst) must equal BlockSize().
	Read(bid BID, dst []byte, on CompletionFunc) *Request

	// Write asynchronously writes src to the block identified by bid.
	// The caller must not mutate src until the request completes.
	Write(bid BID, src []byte, on CompletionFunc) *Request
}

type reqOp uint8

const (
	opRead reqOp = iota
	opWrite
)

// Request is a handle to one outstanding asynchronous block operation.
type Request struct {
	op   reqOp
	bid  BID
	buf  []byte
	on   CompletionFunc
	done *Switch
	err  error // written once, before done is signaled
}

func newRequest(op reqOp, bid BID, buf []byte, on CompletionFunc) *Request {
	return &Request{op: op, bid: bid, buf: buf, on: on, done: NewSwitch()}
}

// BID returns the block identifier the request operates on.
func (r *Request) BID() BID { return r.bid }

// Wait blocks until the request has completed and returns its I/O error,
// if any. Safe to call multiple times and from multiple goroutines.
func (r *Request) Wait() error {
	r.done.Wait()
	return r.err
}

// Done reports whether the request has completed.
func (r *Request) Done() bool { return r.done.Signaled() }

// complete records the outcome, runs the completion function, then signals
// the request's switch. The hook-before-signal order is load-bearing: callers
// waiting on the request must never observe it as done before the hook has run.
func (r *Request) complete(err error) {
	r.err = err
	if r.on != nil {
		r.on(r, err)
	}
	r.done.Signal()
}
