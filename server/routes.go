// File: server/routes.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/request"
	"github.com/momentics/hioload-gateway/response"
	"github.com/momentics/hioload-gateway/session"
	"github.com/momentics/hioload-gateway/socket"
)

// HandlerFunc serves one HTTP request. A returned error becomes a 500;
// a nil response with a nil error becomes a 204.
type HandlerFunc func(ctx context.Context, req *request.Request) (*response.Response, error)

// RawHandler serves one payload from a raw TCP socket.
type RawHandler func(ctx context.Context, sock *socket.Raw, payload []byte) error

type routeKey struct {
	method api.Method
	path   string
}

// Handle routes requests for path to h. MethodUnknown matches any method;
// a route with an explicit method wins over it.
func (s *Server) Handle(method api.Method, path string, h HandlerFunc) {
	if h == nil || !strings.HasPrefix(path, "/") {
		panic(fmt.Sprintf("server: invalid route %s %q", method, path))
	}
	s.mu.Lock()
	s.routes[routeKey{method, path}] = h
	s.mu.Unlock()
}

// HandleNotFound replaces the default 404 handler.
func (s *Server) HandleNotFound(h HandlerFunc) {
	s.mu.Lock()
	s.notFound = h
	s.mu.Unlock()
}

// HandleRaw sets the handler for raw TCP sockets.
func (s *Server) HandleRaw(h RawHandler) {
	s.mu.Lock()
	s.raw = h
	s.mu.Unlock()
}

func pathOf(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		return uri[:i]
	}
	return uri
}

func (s *Server) route(req *request.Request) HandlerFunc {
	p := pathOf(req.URI())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.routes[routeKey{req.Method(), p}]; ok {
		return h
	}
	if h, ok := s.routes[routeKey{api.MethodUnknown, p}]; ok {
		return h
	}
	if s.notFound != nil {
		return s.notFound
	}
	return notFound
}

func notFound(context.Context, *request.Request) (*response.Response, error) {
	return response.New().SetStatus(404).SetContentType("text/plain").SetBody("not found"), nil
}

type (
	sessionKey struct{}
	valuesKey  struct{}
)

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func withValues(ctx context.Context, v api.Values) context.Context {
	return context.WithValue(ctx, valuesKey{}, v)
}

// ValuesFrom returns the key/value state visible to the request in ctx:
// the session's own store for gateway requests, and a copy holding only
// the propagated keys for loopback requests. It is nil without a session.
func ValuesFrom(ctx context.Context) api.Values {
	v, _ := ctx.Value(valuesKey{}).(api.Values)
	return v
}

// SessionFrom returns the live session the request in ctx belongs to, or
// nil.
func SessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// StartSession creates a session on the scheduler serving ctx. Attach it
// with response.AttachSession so the client receives its cookie.
func (s *Server) StartSession(ctx context.Context, value any) (*session.Session, error) {
	sched := 0
	if sc, ok := socket.FromContext(ctx); ok {
		sched = sc.Scheduler
	}
	return s.sessions.Create(uint8(sched), value)
}

// EndSession destroys the session in ctx, if any.
func (s *Server) EndSession(ctx context.Context) error {
	sess := SessionFrom(ctx)
	if sess == nil {
		return nil
	}
	return s.sessions.Destroy(sess.ID())
}
