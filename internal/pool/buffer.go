package pool

import "sync"

// ChunkSize is the fixed read size used when streaming media to disk
const ChunkSize = 8 * 1024

// ByteSlicePool manages a pool of reusable fixed-size byte slices
type ByteSlicePool struct {
	pool sync.Pool
	size int
}

// NewByteSlicePool creates a new byte slice pool
func NewByteSlicePool(size int) *ByteSlicePool {
	return &ByteSlicePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				slice := make([]byte, size)
				return &slice
			},
		},
	}
}

// Get retrieves a byte slice from the pool
func (bsp *ByteSlicePool) Get() []byte {
	slicePtr := bsp.pool.Get().(*[]byte)
	return (*slicePtr)[:bsp.size]
}

// Put returns a byte slice to the pool
func (bsp *ByteSlicePool) Put(slice []byte) {
	if cap(slice) != bsp.size {
		return
	}
	bsp.pool.Put(&slice)
}

// Chunks is the shared pool of streaming buffers
var Chunks = NewByteSlicePool(ChunkSize)
