// File: api/chunk.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Seams towards the external gateway: chunk allocation and hand-off.

package api

// ChunkIndex identifies a chunk inside the gateway's shared pool.
type ChunkIndex uint32

// InvalidChunk terminates a chunk chain.
const InvalidChunk ChunkIndex = ^ChunkIndex(0)

// Chunk is a reference to one fixed-size gateway memory block.
// Data always spans the whole chunk.
type Chunk struct {
	Index ChunkIndex
	Data  []byte
}

// ChunkPool is the gateway's chunk allocator.
type ChunkPool interface {
	// Obtain returns a free chunk or an error wrapping ErrResourceExhausted.
	Obtain() (Chunk, error)

	// Free returns a single chunk to the pool. Freeing a chunk that is not
	// allocated reports ErrDoubleFree.
	Free(idx ChunkIndex) error

	// Bytes resolves an index to its memory, used to follow chains.
	Bytes(idx ChunkIndex) ([]byte, error)
}

// Gateway owns the sockets. Send transfers ownership of the chain starting
// at idx; the caller must not touch the chain afterwards.
type Gateway interface {
	ChunkPool
	Send(idx ChunkIndex) error
}

// ChunkPoolStats aggregates chunk allocation accounting.
type ChunkPoolStats struct {
	Capacity   int64
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
	Exhausted  int64
}
