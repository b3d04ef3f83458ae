// File: server/http.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/request"
	"github.com/momentics/hioload-gateway/response"
	"github.com/momentics/hioload-gateway/session"
	"github.com/momentics/hioload-gateway/stream"
)

func badRequest() *response.Response {
	return response.New().SetStatus(400).SetContentType("text/plain").
		SetBody("malformed request").SetConnFlags(layout.DisconnectAfterSend)
}

func internalError() *response.Response {
	return response.New().SetStatus(500).SetContentType("text/plain").SetBody("internal error")
}

func (s *Server) serveHTTP(ctx context.Context, ds *stream.DataStream, sd layout.SocketData) {
	start := s.now()
	defer func() { _ = ds.Destroy() }()
	ctx, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	req, err := request.NewExternal(ds, s.parser)
	if err != nil {
		code := api.ParseErrorCode(err)
		s.metrics.ParseError(code)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed request")
		s.log.Debug("malformed request", zap.Int("code", code), zap.Error(err))
		s.reply(ctx, span, ds, nil, badRequest(), start)
		return
	}
	span.SetAttributes(
		attribute.String("http.request.method", req.Method().String()),
		attribute.String("url.path", pathOf(req.URI())))

	resp := s.handle(ctx, req)
	if id := resp.Session(); id.Valid() {
		id.Write(sd)
	}
	s.reply(ctx, span, ds, req, resp, start)
}

// handle resolves the session of req and runs its route. It never returns
// nil.
func (s *Server) handle(ctx context.Context, req *request.Request) (resp *response.Response) {
	if sess := s.resolveSession(req); sess != nil {
		ctx = withSession(ctx, sess)
		if req.External() {
			ctx = withValues(ctx, sess.Values())
		} else {
			ctx = withValues(ctx, sess.Values().Clone())
		}
	} else if v := ValuesFrom(ctx); v != nil && !req.External() {
		ctx = withValues(ctx, v.Clone())
	}
	h := s.route(req)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panicked",
				zap.String("uri", req.URI()), zap.Any("panic", r), zap.Stack("stack"))
			resp = internalError()
		}
	}()
	resp, err := h(ctx, req)
	if err != nil {
		s.log.Error("handler failed", zap.String("uri", req.URI()), zap.Error(err))
		return internalError()
	}
	if resp == nil {
		resp = response.New().SetStatus(204)
	}
	return resp
}

// resolveSession prefers the identity the gateway bound to the socket and
// falls back to the session cookie. Stale identities resolve to nil.
func (s *Server) resolveSession(req *request.Request) *session.Session {
	id := req.Session()
	if !id.Valid() {
		var ok bool
		if id, ok = req.SessionFromCookie(); !ok {
			return nil
		}
	}
	sess, err := s.sessions.Lookup(id)
	if err != nil {
		if errors.Is(err, api.ErrSessionMismatch) {
			s.log.Debug("stale session identity", zap.Stringer("session", id))
		}
		return nil
	}
	return sess
}

func (s *Server) reply(ctx context.Context, span trace.Span, ds *stream.DataStream, req *request.Request, resp *response.Response, start time.Time) {
	err := resp.SendTo(ds, req)
	if err != nil && ds.Alive() && !errors.Is(err, api.ErrResourceExhausted) {
		s.log.Error("response not serialized", zap.Int("status", resp.StatusCode()), zap.Error(err))
		resp = internalError()
		err = resp.SendTo(ds, req)
	}
	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response not sent")
		s.log.Warn("response not sent", zap.Int("status", status), zap.Error(err))
		return
	}
	if status >= 500 {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
	}
	s.metrics.Response(status)
	s.metrics.RequestDuration(ctx, s.now().Sub(start).Seconds(), "http")
}
