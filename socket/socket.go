// File: socket/socket.go
// Package socket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Addressable socket handles for pushes outside the request/response
// cycle. A handle is plain data copied from the socket-data block; every
// push obtains a fresh chunk, so a handle never pins gateway memory.

package socket

import (
	"fmt"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/stream"
	"github.com/momentics/hioload-gateway/websocket"
)

// Handle identifies a live gateway socket.
type Handle struct {
	Protocol    layout.ProtocolType
	SocketIndex uint32
	UniqueID    uint64
	BoundWorker uint8
	CargoID     uint64
	GroupID     uint32
	Slot        uint16
}

// FromSocketData copies the addressing fields of sd.
func FromSocketData(sd layout.SocketData) Handle {
	return Handle{
		Protocol:    sd.ProtocolType(),
		SocketIndex: sd.SocketIndex(),
		UniqueID:    sd.SocketUniqueID(),
		BoundWorker: sd.BoundWorker(),
		CargoID:     sd.CargoID(),
		GroupID:     sd.ChannelID(),
		Slot:        sd.HandlerSlot(),
	}
}

// FromStream reads the handle of the socket ds arrived on.
func FromStream(ds *stream.DataStream) (Handle, error) {
	sd, err := ds.SocketData()
	if err != nil {
		return Handle{}, err
	}
	return FromSocketData(sd), nil
}

func (h Handle) header() stream.Header {
	return stream.Header{
		Protocol:    h.Protocol,
		SocketIndex: h.SocketIndex,
		UniqueID:    h.UniqueID,
		BoundWorker: h.BoundWorker,
		HandlerSlot: h.Slot,
		ChannelID:   h.GroupID,
		CargoID:     h.CargoID,
	}
}

// Push obtains a chunk addressed to h and sends payload through it. Pool
// exhaustion is returned as api.ErrResourceExhausted.
func (h Handle) Push(gw api.Gateway, payload []byte, flags layout.ConnFlags) error {
	ds, err := stream.Obtain(gw, h.header())
	if err != nil {
		return fmt.Errorf("push to socket %d: %w", h.SocketIndex, err)
	}
	if err := ds.Send(payload, 0, len(payload), flags); err != nil {
		_ = ds.Destroy()
		return fmt.Errorf("push to socket %d: %w", h.SocketIndex, err)
	}
	return nil
}

// Raw is a raw TCP socket.
type Raw struct {
	Handle
	gw api.Gateway
}

// NewRaw binds h to gw.
func NewRaw(gw api.Gateway, h Handle) *Raw { return &Raw{Handle: h, gw: gw} }

// Send pushes payload.
func (r *Raw) Send(payload []byte) error {
	return r.Push(r.gw, payload, layout.NoSpecialFlags)
}

// SendAndClose pushes payload and closes once it is written.
func (r *Raw) SendAndClose(payload []byte) error {
	return r.Push(r.gw, payload, layout.DisconnectAfterSend)
}

// Disconnect closes the socket without sending data.
func (r *Raw) Disconnect() error {
	return r.Push(r.gw, nil, layout.DisconnectImmediately)
}

// WebSocket is an upgraded socket; it satisfies websocket.Peer.
type WebSocket struct {
	Handle
	gw api.Gateway
}

// NewWebSocket binds h to gw.
func NewWebSocket(gw api.Gateway, h Handle) *WebSocket { return &WebSocket{Handle: h, gw: gw} }

var _ websocket.Peer = (*WebSocket)(nil)

// Send pushes one frame.
func (w *WebSocket) Send(opcode byte, payload []byte) error {
	return w.Push(w.gw, websocket.EncodeFrame(opcode, payload), layout.NoSpecialFlags)
}

// SendText pushes a text frame.
func (w *WebSocket) SendText(s string) error { return w.Send(websocket.OpcodeText, []byte(s)) }

// SendBinary pushes a binary frame.
func (w *WebSocket) SendBinary(b []byte) error { return w.Send(websocket.OpcodeBinary, b) }

// Close sends a close frame and asks the gateway to close gracefully.
func (w *WebSocket) Close(code uint16, reason string) error {
	return w.Push(w.gw, websocket.CloseFrame(code, reason), layout.GracefullyCloseConnection)
}
