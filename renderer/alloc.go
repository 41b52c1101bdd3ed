package renderer

import (
	"math/bits"
	"sync"
)

// minBucketSize is the smallest allocation bucket; anything smaller is
// rounded up to it.
const minBucketSize = 16

// GPUBuffer is the device-specific handle a BufferAllocator hands out
// and recycles. Device backends implement this over their own buffer
// object type.
type GPUBuffer interface {
	Size() int
}

// Device is the narrow surface BufferAllocator needs from a GPU backend
// to create and write buffers, chosen once from whether the device can
// map its primary buffers directly or needs a staging copy.
type Device interface {
	MappablePrimaryBuffers() bool
	NewBuffer(size int, hostVisible bool) GPUBuffer
	WriteAndUnmap(buf GPUBuffer, data []byte)
	CopyBufferToBuffer(src, dst GPUBuffer, size int)
}

// bucketFor returns the power-of-two bucket index for size, matching
// ilog2(nextPow2(size)) - 4 with a 16-byte floor.
func bucketFor(size int) int {
	if size < minBucketSize {
		size = minBucketSize
	}
	return bits.Len(uint(nextPow2(size))) - 1 - 4
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

type bufferPair struct {
	primary   GPUBuffer
	secondary GPUBuffer // nil when the device supports mappable primaries
}

// BufferAllocator recycles GPU upload buffers by power-of-two bucket,
// using either a direct map-for-write (when the device supports
// mappable primary buffers) or a staging-buffer-then-copy strategy
// otherwise. Freed buffers are not released back to the device; they
// are asynchronously re-mapped and returned to the pool for reuse.
type BufferAllocator struct {
	dev    Device
	mu     sync.Mutex
	avail  [][]bufferPair
	recall chan bufferPair
}

// NewBufferAllocator constructs an allocator bound to dev.
func NewBufferAllocator(dev Device) *BufferAllocator {
	return &BufferAllocator{dev: dev, recall: make(chan bufferPair, 256)}
}

func (a *BufferAllocator) ensureBucket(bucket int) {
	for len(a.avail) <= bucket {
		a.avail = append(a.avail, nil)
	}
}

// Recall drains any buffers the device finished re-mapping since the
// last call, making them available for the next Allocate in their
// bucket.
func (a *BufferAllocator) Recall() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		select {
		case pair := <-a.recall:
			bucket := bucketFor(pair.primary.Size())
			a.ensureBucket(bucket)
			a.avail[bucket] = append(a.avail[bucket], pair)
		default:
			return
		}
	}
}

// Allocate returns a GPUBuffer containing data, reusing a pooled buffer
// of the matching bucket size when one is available.
func (a *BufferAllocator) Allocate(data []byte) GPUBuffer {
	size := nextPow2(len(data))
	if size < minBucketSize {
		size = minBucketSize
	}
	bucket := bucketFor(size)

	a.mu.Lock()
	a.ensureBucket(bucket)
	var pair bufferPair
	if n := len(a.avail[bucket]); n > 0 {
		pair = a.avail[bucket][n-1]
		a.avail[bucket] = a.avail[bucket][:n-1]
		a.mu.Unlock()
	} else {
		a.mu.Unlock()
		a.Recall()
		a.mu.Lock()
		if n := len(a.avail[bucket]); n > 0 {
			pair = a.avail[bucket][n-1]
			a.avail[bucket] = a.avail[bucket][:n-1]
			a.mu.Unlock()
		} else {
			a.mu.Unlock()
			pair = a.newPair(size)
		}
	}

	a.write(pair, data)
	return pair.primary
}

func (a *BufferAllocator) newPair(size int) bufferPair {
	if a.dev.MappablePrimaryBuffers() {
		return bufferPair{primary: a.dev.NewBuffer(size, true)}
	}
	return bufferPair{
		primary:   a.dev.NewBuffer(size, false),
		secondary: a.dev.NewBuffer(size, true),
	}
}

func (a *BufferAllocator) write(pair bufferPair, data []byte) {
	if pair.secondary != nil {
		a.dev.WriteAndUnmap(pair.secondary, data)
		a.dev.CopyBufferToBuffer(pair.secondary, pair.primary, len(data))
		return
	}
	a.dev.WriteAndUnmap(pair.primary, data)
}

// Free returns a buffer pair to the pool once the device has finished
// an asynchronous re-map for write; mapAsync is the device's
// callback-based remap primitive.
func (a *BufferAllocator) Free(primary GPUBuffer, secondary GPUBuffer, mapAsync func(GPUBuffer, func())) {
	pair := bufferPair{primary: primary, secondary: secondary}
	target := primary
	if secondary != nil {
		target = secondary
	}
	mapAsync(target, func() {
		select {
		case a.recall <- pair:
		default:
			// Pool backlog full: drop the pair rather than block the
			// device's completion callback.
		}
	})
}
