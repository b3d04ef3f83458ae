// File: stream/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package stream

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/layout"
)

const (
	stateLive int32 = iota
	stateSent
	stateDestroyed
)

// DataStream wraps one gateway chunk chain.
type DataStream struct {
	gw     api.Gateway
	first  api.Chunk
	single bool
	state  atomic.Int32
}

// New takes ownership of chunk. single reports whether the inbound message
// fits the first chunk.
func New(gw api.Gateway, chunk api.Chunk, single bool) *DataStream {
	return &DataStream{gw: gw, first: chunk, single: single}
}

// Header is the socket identity written into an out-of-band chunk.
type Header struct {
	Protocol    layout.ProtocolType
	SocketIndex uint32
	UniqueID    uint64
	BoundWorker uint8
	HandlerSlot uint16
	ChannelID   uint32
	CargoID     uint64
}

// Obtain allocates a fresh chunk addressed to the socket in hdr. It is used
// for pushes that happen outside a request/response cycle; running out of
// chunks is reported as api.ErrResourceExhausted.
func Obtain(gw api.Gateway, hdr Header) (*DataStream, error) {
	c, err := gw.Obtain()
	if err != nil {
		return nil, fmt.Errorf("obtain out-of-band chunk: %w", err)
	}
	sd, err := layout.SocketDataOf(c.Data)
	if err != nil {
		_ = gw.Free(c.Index)
		return nil, err
	}
	sd.SetProtocolType(hdr.Protocol)
	sd.SetSocketIndex(hdr.SocketIndex)
	sd.SetSocketUniqueID(hdr.UniqueID)
	sd.SetBoundWorker(hdr.BoundWorker)
	sd.SetHandlerSlot(hdr.HandlerSlot)
	sd.SetChannelID(hdr.ChannelID)
	sd.SetCargoID(hdr.CargoID)
	sd.SetFlags(0)
	sd.ResetParams()
	return New(gw, c, true), nil
}

// Alive reports whether the stream still owns its chunk.
func (ds *DataStream) Alive() bool { return ds.state.Load() == stateLive }

// Single reports whether the inbound message was a single chunk.
func (ds *DataStream) Single() bool { return ds.single }

// ChunkIndex returns the first chunk index, or api.InvalidChunk once released.
func (ds *DataStream) ChunkIndex() api.ChunkIndex {
	if !ds.Alive() {
		return api.InvalidChunk
	}
	return ds.first.Index
}

// SocketData returns the socket-data view of the first chunk.
func (ds *DataStream) SocketData() (layout.SocketData, error) {
	if !ds.Alive() {
		return nil, api.ErrStreamReleased
	}
	return layout.SocketDataOf(ds.first.Data)
}

func (ds *DataStream) payloadStart(sd layout.SocketData) int {
	off := int(sd.UserDataOffset())
	if off < layout.PayloadMarker || layout.SocketDataOffset+off > layout.ChunkSize {
		off = layout.PayloadMarker
	}
	return layout.SocketDataOffset + off
}

// PayloadLen returns the total inbound payload length.
func (ds *DataStream) PayloadLen() int {
	sd, err := ds.SocketData()
	if err != nil {
		return 0
	}
	return int(sd.UserDataLen())
}

// Payload returns the inbound payload. A payload held by the first chunk is
// returned without copying and is only valid while the stream is alive; a
// chained payload is assembled into a fresh buffer.
func (ds *DataStream) Payload() ([]byte, error) {
	sd, err := ds.SocketData()
	if err != nil {
		return nil, err
	}
	start := ds.payloadStart(sd)
	total := int(sd.UserDataLen())
	if start+total <= layout.ChunkSize {
		return ds.first.Data[start : start+total : start+total], nil
	}
	buf := make([]byte, total)
	n, err := ds.Read(buf, 0)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Read copies payload bytes starting at offset into dst, following the chain.
func (ds *DataStream) Read(dst []byte, offset int) (int, error) {
	sd, err := ds.SocketData()
	if err != nil {
		return 0, err
	}
	total := int(sd.UserDataLen())
	if offset < 0 || offset > total {
		return 0, fmt.Errorf("read at %d of %d: %w", offset, total, api.ErrInvalidArgument)
	}
	want := min(len(dst), total-offset)

	chunk := ds.first.Data
	start := ds.payloadStart(sd)
	room := layout.ChunkSize - start
	pos := 0 // payload position of chunk[start]
	n := 0
	links, maxLinks := 0, int(layout.ChainLen(ds.first.Data))-1
	for n < want {
		if offset+n < pos+room {
			from := start + offset + n - pos
			n += copy(dst[n:want], chunk[from:start+room])
			continue
		}
		next := layout.Next(chunk)
		if next == layout.InvalidChunkIndex || links >= maxLinks {
			return n, fmt.Errorf("chain ends at payload byte %d of %d: %w", pos+room, total, api.ErrInvalidArgument)
		}
		chunk, err = ds.gw.Bytes(api.ChunkIndex(next))
		if err != nil {
			return n, err
		}
		links++
		pos += room
		start = layout.ContinuationPayloadOffset
		room = layout.ContinuationPayloadCapacity
	}
	return n, nil
}

// Send writes buf[offset:offset+n] as the outbound payload, applies the
// connection-control flags and hands the chain to the gateway. The first
// chunk is reused; longer payloads obtain continuation chunks. If the pool
// cannot supply them, the stream keeps its chunk and the caller still owns
// the Destroy.
func (ds *DataStream) Send(buf []byte, offset, n int, flags layout.ConnFlags) error {
	sd, err := ds.SocketData()
	if err != nil {
		return err
	}
	if offset < 0 || n < 0 || offset+n > len(buf) {
		return fmt.Errorf("send [%d:%d] of %d: %w", offset, offset+n, len(buf), api.ErrInvalidArgument)
	}
	data := buf[offset : offset+n]
	first := ds.first.Data

	if err := ds.freeTail(); err != nil {
		return err
	}

	need := layout.ChunksFor(n)
	extra := make([]api.Chunk, 0, need-1)
	for i := 1; i < need; i++ {
		c, err := ds.gw.Obtain()
		if err != nil {
			for _, e := range extra {
				_ = ds.gw.Free(e.Index)
			}
			return fmt.Errorf("send %d bytes in %d chunks: %w", n, need, err)
		}
		extra = append(extra, c)
	}

	w := copy(first[layout.FirstPayloadOffset:], data)
	prev := first
	for _, c := range extra {
		layout.SetNext(prev, uint32(c.Index))
		w += copy(c.Data[layout.ContinuationPayloadOffset:], data[w:])
		prev = c.Data
	}
	layout.SetNext(prev, layout.InvalidChunkIndex)
	layout.SetChainLen(first, uint32(need))

	sd.SetUserDataOffset(layout.PayloadMarker)
	sd.SetUserDataLen(uint32(n))
	sd.SetMaxUserData(layout.FirstPayloadCapacity)
	sd.SetConnFlags(flags)
	if need > 1 {
		sd.AddFlags(layout.FlagMultiChunk)
	} else {
		sd.ClearFlags(layout.FlagMultiChunk)
	}

	if !ds.state.CompareAndSwap(stateLive, stateSent) {
		for _, e := range extra {
			_ = ds.gw.Free(e.Index)
		}
		return api.ErrStreamReleased
	}
	idx := ds.first.Index
	ds.first = api.Chunk{Index: api.InvalidChunk}
	if err := ds.gw.Send(idx); err != nil {
		return errors.Join(fmt.Errorf("hand off chunk %d: %w", idx, err), freeChain(ds.gw, idx, first))
	}
	return nil
}

// Destroy releases the chain. It is idempotent and a no-op after Send.
func (ds *DataStream) Destroy() error {
	if !ds.state.CompareAndSwap(stateLive, stateDestroyed) {
		return nil
	}
	idx, data := ds.first.Index, ds.first.Data
	ds.first = api.Chunk{Index: api.InvalidChunk}
	return freeChain(ds.gw, idx, data)
}

// freeTail releases inbound continuation chunks so the first chunk can be
// reused for the reply.
func (ds *DataStream) freeTail() error {
	first := ds.first.Data
	next := layout.Next(first)
	if next == layout.InvalidChunkIndex {
		return nil
	}
	tail, err := ds.gw.Bytes(api.ChunkIndex(next))
	if err != nil {
		return err
	}
	err = freeChainN(ds.gw, api.ChunkIndex(next), tail, int(layout.ChainLen(first)))
	layout.SetNext(first, layout.InvalidChunkIndex)
	layout.SetChainLen(first, 1)
	return err
}

func freeChain(pool api.ChunkPool, idx api.ChunkIndex, data []byte) error {
	limit := 1
	if data != nil {
		limit = max(int(layout.ChainLen(data)), 1)
	}
	return freeChainN(pool, idx, data, limit)
}

// freeChainN frees at most limit chunks starting at idx. Links are read
// before each Free since released memory is poisoned.
func freeChainN(pool api.ChunkPool, idx api.ChunkIndex, data []byte, limit int) error {
	var errs []error
	for i := 0; idx != api.InvalidChunk && i < limit; i++ {
		next := api.InvalidChunk
		if data != nil {
			if n := layout.Next(data); n != layout.InvalidChunkIndex {
				next = api.ChunkIndex(n)
			}
		}
		if err := pool.Free(idx); err != nil {
			errs = append(errs, err)
		}
		idx, data = next, nil
		if idx != api.InvalidChunk {
			b, err := pool.Bytes(idx)
			if err != nil {
				errs = append(errs, err)
				break
			}
			data = b
		}
	}
	return errors.Join(errs...)
}
