// File: server/raw.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/socket"
	"github.com/momentics/hioload-gateway/stream"
)

func (s *Server) serveRaw(ctx context.Context, ds *stream.DataStream, h socket.Handle) {
	defer func() { _ = ds.Destroy() }()
	s.mu.RLock()
	fn := s.raw
	s.mu.RUnlock()
	sock := socket.NewRaw(s.gw, h)
	if fn == nil {
		s.log.Warn("no raw handler, disconnecting", zap.Uint32("socket", h.SocketIndex))
		if err := sock.Disconnect(); err != nil {
			s.log.Warn("disconnect failed", zap.Uint32("socket", h.SocketIndex), zap.Error(err))
		}
		return
	}
	s.sockets.Add(h)
	payload, err := ds.Payload()
	if err != nil {
		s.log.Warn("raw payload unreadable", zap.Uint32("socket", h.SocketIndex), zap.Error(err))
		return
	}
	start := s.now()
	if err := fn(ctx, sock, payload); err != nil {
		s.log.Error("raw handler failed", zap.Uint32("socket", h.SocketIndex), zap.Error(err))
	}
	s.metrics.RequestDuration(ctx, s.now().Sub(start).Seconds(), "raw")
}

// Forget drops h from the socket table, e.g. after the application closed
// it.
func (s *Server) Forget(h socket.Handle) bool { return s.sockets.Remove(h) }

// Broadcast runs fn on the owning scheduler of every socket under cargo.
// Called from a handler, sockets of the handler's scheduler are served
// inline and the rest are queued; their failures are logged and only the
// inline failures are returned. Called from elsewhere, it waits for every
// socket.
func (s *Server) Broadcast(ctx context.Context, cargo uint64, fn func(ctx context.Context, h socket.Handle) error) error {
	f := s.sockets.Broadcast(ctx, cargo, s.sched, fn)
	if _, onScheduler := socket.FromContext(ctx); !onScheduler {
		return errors.Join(f.Local, f.Wait())
	}
	go func() {
		if err := f.Wait(); err != nil {
			s.log.Warn("broadcast incomplete", zap.Uint64("cargo", cargo), zap.Error(err))
		}
	}()
	return f.Local
}

// BroadcastText sends a text frame to every WebSocket under cargo.
func (s *Server) BroadcastText(ctx context.Context, cargo uint64, text string) error {
	return s.Broadcast(ctx, cargo, func(_ context.Context, h socket.Handle) error {
		if h.Protocol != layout.ProtocolWebSocket {
			return nil
		}
		return socket.NewWebSocket(s.gw, h).SendText(text)
	})
}
