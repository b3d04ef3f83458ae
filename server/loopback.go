// File: server/loopback.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-process calls: requests built by the application itself are routed
// exactly like gateway requests, and the serialized answer is parsed back
// instead of being sent.

package server

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/request"
	"github.com/momentics/hioload-gateway/response"
)

// Do serves raw as an internal request on the calling goroutine.
func (s *Server) Do(ctx context.Context, raw []byte, opts ...request.Option) (*response.View, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "http.internal", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	req, err := request.NewInternal(raw, s.parser, opts...)
	if err != nil {
		s.metrics.ParseError(api.ParseErrorCode(err))
		s.fail(span, "malformed internal request", err)
		return nil, fmt.Errorf("loopback: %w", err)
	}
	defer func() { _ = req.Destroy() }()
	span.SetAttributes(
		attribute.String("http.request.method", req.Method().String()),
		attribute.String("url.path", pathOf(req.URI())))

	resp := s.handle(ctx, req)
	buf, err := resp.Serialize(req)
	if err != nil {
		s.fail(span, "internal response not serialized", err)
		return nil, fmt.Errorf("loopback %s: %w", req.URI(), err)
	}
	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	s.metrics.Response(status)
	s.metrics.RequestDuration(ctx, s.now().Sub(start).Seconds(), "internal")
	return response.Parse(buf, s.parser)
}

// Call performs an internal GET of uri.
func (s *Server) Call(ctx context.Context, uri string) (*response.View, error) {
	return s.Do(ctx, request.RawGet(uri))
}
