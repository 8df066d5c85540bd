package blockstream

const (
	defaultQueueWorkers = 4
	defaultQueueDepth   = 64

	defaultStreamBuffers = 4
)

// QueueOption is a functional option for configuring a Queue.
type QueueOption func(*queueConfig)

type queueConfig struct {
	workers int
	depth   int
}

func defaultQueueConfig() *queueConfig {
	return &queueConfig{
		workers: defaultQueueWorkers,
		depth:   defaultQueueDepth,
	}
}

// WithWorkers sets the number of I/O worker goroutines.
func WithWorkers(n int) QueueOption {
	return func(c *queueConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueDepth sets the request channel capacity. Submitting beyond the
// depth blocks the submitter until a worker drains a request.
func WithQueueDepth(n int) QueueOption {
	return func(c *queueConfig) {
		if n > 0 {
			c.depth = n
		}
	}
}

// PrefetchOption is a functional option for configuring a Prefetcher.
type PrefetchOption func(*prefetchConfig)

type prefetchConfig struct {
	onFetch CompletionFunc
}

// WithFetchHook installs a hook invoked once per completed read, before the
// completion switch for that consumption index is signaled. The hook runs on
// the I/O completion goroutine and is the only place a read failure can be
// observed before Pull or Consumed return it.
func WithFetchHook(fn CompletionFunc) PrefetchOption {
	return func(c *prefetchConfig) {
		c.onFetch = fn
	}
}

// WriterOption is a functional option for configuring a Writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	maxInflight int // 0 means total/2
}

// WithMaxInflight overrides the bound on concurrently outstanding writes.
// The default is half the buffer total, keeping the other half free for the
// producer to fill without blocking.
func WithMaxInflight(n int) WriterOption {
	return func(c *writerConfig) {
		if n > 0 {
			c.maxInflight = n
		}
	}
}

// StreamOption is a functional option for configuring an OutputStream.
type StreamOption func(*streamConfig)

type streamConfig struct {
	buffers    int
	writerOpts []WriterOption
}

func defaultStreamConfig() *streamConfig {
	return &streamConfig{buffers: defaultStreamBuffers}
}

// WithWriteBuffers sets the number of write-behind buffers the stream's
// internal Writer owns.
func WithWriteBuffers(n int) StreamOption {
	return func(c *streamConfig) {
		if n > 0 {
			c.buffers = n
		}
	}
}

// WithWriterOptions forwards options to the stream's internal Writer.
func WithWriterOptions(opts ...WriterOption) StreamOption {
	return func(c *streamConfig) {
		c.writerOpts = append(c.writerOpts, opts...)
	}
}

// StoreOption is a functional option for configuring a FileStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	checksum    ChecksumAlgorithm
	preallocate int // blocks to fallocate upfront
}

// WithChecksum enables per-block checksums using the given algorithm.
func WithChecksum(algo ChecksumAlgorithm) StoreOption {
	return func(c *storeConfig) {
		c.checksum = algo
	}
}

// WithPreallocate pre-allocates space for n blocks at creation to avoid
// fragmentation and late ENOSPC surprises during write-behind.
func WithPreallocate(n int) StoreOption {
	return func(c *storeConfig) {
		if n > 0 {
			c.preallocate = n
		}
	}
}
