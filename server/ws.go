// File: server/ws.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/request"
	"github.com/momentics/hioload-gateway/response"
	"github.com/momentics/hioload-gateway/socket"
	"github.com/momentics/hioload-gateway/stream"
	"github.com/momentics/hioload-gateway/websocket"
)

// Upgrade approves the WebSocket upgrade requested by req onto the channel
// (port, group) and returns the response carrying the handshake. The socket
// joins the socket table under cargo. Only gateway requests can be
// upgraded.
func (s *Server) Upgrade(req *request.Request, port uint16, group string, cargo uint64) (*response.Response, error) {
	ds := req.Stream()
	if ds == nil {
		return nil, fmt.Errorf("upgrade %q: internal request: %w", group, api.ErrInvalidArgument)
	}
	sd, err := ds.SocketData()
	if err != nil {
		return nil, fmt.Errorf("upgrade %q: %w", group, err)
	}
	hs, reg, err := s.registry.Upgrade(req, sd, port, group, cargo)
	if err != nil {
		return nil, err
	}
	h := socket.FromSocketData(sd)
	h.Protocol = layout.ProtocolWebSocket
	s.sockets.Add(h)
	s.log.Debug("websocket upgraded",
		zap.Uint32("socket", h.SocketIndex),
		zap.String("group", reg.GroupName),
		zap.Uint16("slot", reg.Slot),
		zap.Uint64("cargo", cargo))
	return response.New().SetStatus(101).SetHandshake(hs), nil
}

func (s *Server) serveWebSocket(ctx context.Context, ds *stream.DataStream, h socket.Handle) {
	defer func() { _ = ds.Destroy() }()
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "websocket.frame",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int("websocket.slot", int(h.Slot)),
			attribute.Int64("websocket.group_id", int64(h.GroupID))))
	defer span.End()

	raw, err := ds.Payload()
	if err != nil {
		s.fail(span, "websocket payload unreadable", err)
		return
	}
	peer := socket.NewWebSocket(s.gw, h)
	f, _, err := websocket.DecodeFrame(raw)
	if err != nil {
		s.fail(span, "websocket frame rejected", err)
		code := websocket.CloseProtocolError
		if errors.Is(err, websocket.ErrFrameTooLarge) {
			code = websocket.CloseMessageTooBig
		}
		if cerr := peer.Close(code, "bad frame"); cerr != nil {
			s.log.Warn("close after bad frame failed", zap.Error(cerr))
		}
		s.sockets.Remove(h)
		return
	}
	span.SetAttributes(attribute.Int("websocket.opcode", int(f.Opcode)))

	err = s.registry.Dispatch(ctx, h.Slot, h.GroupID, f, peer)
	if f.Opcode == websocket.OpcodeClose || errors.Is(err, api.ErrChannelNotRegistered) {
		s.sockets.Remove(h)
	}
	if err != nil {
		s.fail(span, "websocket dispatch failed", err)
		return
	}
	s.metrics.RequestDuration(ctx, s.now().Sub(start).Seconds(), "websocket")
}

func (s *Server) fail(span trace.Span, msg string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	s.log.Debug(msg, zap.Error(err))
}
