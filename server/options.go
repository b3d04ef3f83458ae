// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/momentics/hioload-gateway/control"
	"github.com/momentics/hioload-gateway/websocket"
)

// Option customizes server initialization.
type Option func(*Server)

// WithConfig replaces control.DefaultConfig.
func WithConfig(cfg control.Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithLogger sets the root logger. Without it the server logs nothing.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAtomicLevel hands the server the level of its logger so that a
// reload of log.level takes effect. See control.NewLogger.
func WithAtomicLevel(lvl zap.AtomicLevel) Option {
	return func(s *Server) {
		s.level = lvl
		s.hasLevel = true
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider; the global one
// is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Server) { s.mp = mp }
}

// WithTracerProvider sets the OpenTelemetry tracer provider; the global one
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tp = tp }
}

// WithRegistrar sets the gateway side of WebSocket channel registration.
// By default the gateway itself is used when it implements
// websocket.Registrar, else slots are allocated locally.
func WithRegistrar(r websocket.Registrar) Option {
	return func(s *Server) { s.registrar = r }
}

// WithClock overrides time.Now for session bookkeeping and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionSalts overrides the random salt source of the session
// directory. Intended for tests.
func WithSessionSalts(fn func() uint64) Option {
	return func(s *Server) { s.salts = fn }
}
