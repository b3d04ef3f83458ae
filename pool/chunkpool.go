// File: pool/chunkpool.go
// Package pool implements a fixed-capacity chunk allocator.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/layout"
)

// PoisonByte fills released chunks.
const PoisonByte = 0xDB

// Observer receives allocation events; control.Metrics satisfies it.
type Observer interface {
	ChunkObtained()
	ChunkFreed()
	ChunkExhausted()
}

type nopObserver struct{}

func (nopObserver) ChunkObtained()  {}
func (nopObserver) ChunkFreed()     {}
func (nopObserver) ChunkExhausted() {}

// ChunkPool is an arena of layout.ChunkSize chunks.
type ChunkPool struct {
	mu     sync.Mutex
	arena  []byte
	inUse  []bool
	free   *RingBuffer[api.ChunkIndex]
	obs    Observer
	poison bool

	totalAlloc atomic.Int64
	totalFree  atomic.Int64
	exhausted  atomic.Int64
}

// Option customizes a ChunkPool.
type Option func(*ChunkPool)

// WithObserver attaches an allocation observer.
func WithObserver(o Observer) Option {
	return func(p *ChunkPool) {
		if o != nil {
			p.obs = o
		}
	}
}

// WithoutPoison disables poisoning of released chunks.
func WithoutPoison() Option {
	return func(p *ChunkPool) { p.poison = false }
}

// NewChunkPool allocates capacity chunks up front.
func NewChunkPool(capacity int, opts ...Option) *ChunkPool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &ChunkPool{
		arena:  make([]byte, capacity*layout.ChunkSize),
		inUse:  make([]bool, capacity),
		free:   NewRingBuffer[api.ChunkIndex](uint64(capacity)),
		obs:    nopObserver{},
		poison: true,
	}
	for i := 0; i < capacity; i++ {
		p.free.Enqueue(api.ChunkIndex(i))
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *ChunkPool) slice(idx api.ChunkIndex) []byte {
	off := int(idx) * layout.ChunkSize
	return p.arena[off : off+layout.ChunkSize : off+layout.ChunkSize]
}

// Obtain returns a zeroed-header chunk or a ResourceExhausted error.
func (p *ChunkPool) Obtain() (api.Chunk, error) {
	p.mu.Lock()
	idx, ok := p.free.Dequeue()
	if ok {
		p.inUse[idx] = true
	}
	p.mu.Unlock()
	if !ok {
		p.exhausted.Add(1)
		p.obs.ChunkExhausted()
		return api.Chunk{Index: api.InvalidChunk}, api.Exhausted("chunk")
	}
	data := p.slice(idx)
	clear(data[:layout.FirstPayloadOffset])
	layout.SetNext(data, layout.InvalidChunkIndex)
	layout.SetChainLen(data, 1)
	p.totalAlloc.Add(1)
	p.obs.ChunkObtained()
	return api.Chunk{Index: idx, Data: data}, nil
}

// Free releases one chunk. Releasing a free chunk reports api.ErrDoubleFree.
func (p *ChunkPool) Free(idx api.ChunkIndex) error {
	if int(idx) >= len(p.inUse) {
		return fmt.Errorf("free chunk %d: %w", idx, api.ErrInvalidArgument)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inUse[idx] {
		return fmt.Errorf("free chunk %d: %w", idx, api.ErrDoubleFree)
	}
	p.inUse[idx] = false
	if p.poison {
		data := p.slice(idx)
		for i := range data {
			data[i] = PoisonByte
		}
	}
	p.free.Enqueue(idx)
	p.totalFree.Add(1)
	p.obs.ChunkFreed()
	return nil
}

// Bytes resolves an allocated chunk index.
func (p *ChunkPool) Bytes(idx api.ChunkIndex) ([]byte, error) {
	if int(idx) >= len(p.inUse) {
		return nil, fmt.Errorf("chunk %d: %w", idx, api.ErrInvalidArgument)
	}
	p.mu.Lock()
	live := p.inUse[idx]
	p.mu.Unlock()
	if !live {
		return nil, fmt.Errorf("chunk %d: %w", idx, api.ErrStreamReleased)
	}
	return p.slice(idx), nil
}

// InUse reports whether idx is currently allocated.
func (p *ChunkPool) InUse(idx api.ChunkIndex) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(idx) < len(p.inUse) && p.inUse[idx]
}

// Poisoned reports whether a free chunk still carries the poison pattern.
func (p *ChunkPool) Poisoned(idx api.ChunkIndex) bool {
	if p.InUse(idx) || int(idx) >= len(p.inUse) {
		return false
	}
	for _, b := range p.slice(idx) {
		if b != PoisonByte {
			return false
		}
	}
	return true
}

// Stats exposes allocation accounting.
func (p *ChunkPool) Stats() api.ChunkPoolStats {
	alloc := p.totalAlloc.Load()
	freed := p.totalFree.Load()
	return api.ChunkPoolStats{
		Capacity:   int64(len(p.inUse)),
		TotalAlloc: alloc,
		TotalFree:  freed,
		InUse:      alloc - freed,
		Exhausted:  p.exhausted.Load(),
	}
}

var _ api.ChunkPool = (*ChunkPool)(nil)
