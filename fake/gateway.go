// File: fake/gateway.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-memory gateway: builds inbound chunk chains, captures sent chains and
// returns their chunks to the pool the way the real gateway does after
// transmission.

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/identity"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/pool"
)

// Inbound describes a message the fake gateway delivers to the core.
type Inbound struct {
	Protocol    layout.ProtocolType
	SocketIndex uint32
	UniqueID    uint64
	BoundWorker uint8
	Session     identity.Identity
	HandlerSlot uint16
	ChannelID   uint32
	CargoID     uint64
	Payload     []byte
}

// Sent is one captured outbound chain.
type Sent struct {
	Index       api.ChunkIndex
	Protocol    layout.ProtocolType
	SocketIndex uint32
	UniqueID    uint64
	Session     identity.Identity
	Flags       uint32
	Conn        layout.ConnFlags
	ChannelID   uint32
	CargoID     uint64
	Chunks      int
	Payload     []byte
}

// Gateway implements api.Gateway on top of pool.ChunkPool.
type Gateway struct {
	*pool.ChunkPool

	mu      sync.Mutex
	sent    []Sent
	sendErr error
	onSend  func(Sent)
}

// NewGateway creates a gateway with capacity chunks.
func NewGateway(capacity int, opts ...pool.Option) *Gateway {
	return &Gateway{ChunkPool: pool.NewChunkPool(capacity, opts...)}
}

// FailSends makes every later Send return err without taking the chain.
func (g *Gateway) FailSends(err error) {
	g.mu.Lock()
	g.sendErr = err
	g.mu.Unlock()
}

// OnSend installs a callback invoked for each captured chain.
func (g *Gateway) OnSend(fn func(Sent)) {
	g.mu.Lock()
	g.onSend = fn
	g.mu.Unlock()
}

// Send captures the chain starting at idx and frees it.
func (g *Gateway) Send(idx api.ChunkIndex) error {
	g.mu.Lock()
	failErr := g.sendErr
	g.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	first, err := g.Bytes(idx)
	if err != nil {
		return err
	}
	sd, err := layout.SocketDataOf(first)
	if err != nil {
		return err
	}
	s := Sent{
		Index:       idx,
		Protocol:    sd.ProtocolType(),
		SocketIndex: sd.SocketIndex(),
		UniqueID:    sd.SocketUniqueID(),
		Session:     identity.Read(sd),
		Flags:       sd.Flags(),
		Conn:        sd.ConnFlags(),
		ChannelID:   sd.ChannelID(),
		CargoID:     sd.CargoID(),
		Payload:     make([]byte, 0, sd.UserDataLen()),
	}
	total := int(sd.UserDataLen())
	chunk := first
	start := layout.SocketDataOffset + int(sd.UserDataOffset())
	cur := idx
	for {
		s.Chunks++
		room := layout.ChunkSize - start
		take := min(room, total-len(s.Payload))
		s.Payload = append(s.Payload, chunk[start:start+take]...)
		next := layout.Next(chunk)
		if err := g.Free(cur); err != nil {
			return err
		}
		if next == layout.InvalidChunkIndex {
			break
		}
		cur = api.ChunkIndex(next)
		if chunk, err = g.Bytes(cur); err != nil {
			return err
		}
		start = layout.ContinuationPayloadOffset
	}
	if len(s.Payload) != total {
		return fmt.Errorf("fake gateway: chain carried %d of %d bytes", len(s.Payload), total)
	}

	g.mu.Lock()
	g.sent = append(g.sent, s)
	cb := g.onSend
	g.mu.Unlock()
	if cb != nil {
		cb(s)
	}
	return nil
}

// Sent returns a copy of all captured chains.
func (g *Gateway) Sent() []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Sent(nil), g.sent...)
}

// Last returns the most recently captured chain.
func (g *Gateway) Last() (Sent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return Sent{}, false
	}
	return g.sent[len(g.sent)-1], true
}

// Deliver builds an inbound chain for msg and reports whether it fits a
// single chunk.
func (g *Gateway) Deliver(msg Inbound) (api.Chunk, bool, error) {
	need := layout.ChunksFor(len(msg.Payload))
	first, err := g.Obtain()
	if err != nil {
		return first, false, err
	}
	sd, _ := layout.SocketDataOf(first.Data)
	sd.SetProtocolType(msg.Protocol)
	sd.SetSocketIndex(msg.SocketIndex)
	sd.SetSocketUniqueID(msg.UniqueID)
	sd.SetBoundWorker(msg.BoundWorker)
	sess := msg.Session
	if sess == (identity.Identity{}) {
		sess = identity.Invalid
	}
	sess.Write(sd)
	sd.SetHandlerSlot(msg.HandlerSlot)
	sd.SetChannelID(msg.ChannelID)
	sd.SetCargoID(msg.CargoID)
	sd.ResetParams()
	sd.SetUserDataLen(uint32(len(msg.Payload)))

	w := copy(first.Data[layout.FirstPayloadOffset:], msg.Payload)
	prev := first.Data
	for i := 1; i < need; i++ {
		c, err := g.Obtain()
		if err != nil {
			layout.SetChainLen(first.Data, uint32(i))
			g.release(first.Index)
			return api.Chunk{Index: api.InvalidChunk}, false, err
		}
		layout.SetNext(prev, uint32(c.Index))
		w += copy(c.Data[layout.ContinuationPayloadOffset:], msg.Payload[w:])
		prev = c.Data
	}
	layout.SetChainLen(first.Data, uint32(need))
	return first, need == 1, nil
}

func (g *Gateway) release(idx api.ChunkIndex) {
	for idx != api.InvalidChunk {
		data, err := g.Bytes(idx)
		if err != nil {
			return
		}
		next := layout.Next(data)
		_ = g.Free(idx)
		if next == layout.InvalidChunkIndex {
			return
		}
		idx = api.ChunkIndex(next)
	}
}

var _ api.Gateway = (*Gateway)(nil)
