// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server facade: receives chunks from the gateway, routes them to the
// owning scheduler and runs HTTP, WebSocket and raw TCP handlers there.

package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/control"
	"github.com/momentics/hioload-gateway/core/identity"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/internal/concurrency"
	"github.com/momentics/hioload-gateway/session"
	"github.com/momentics/hioload-gateway/socket"
	"github.com/momentics/hioload-gateway/stream"
	"github.com/momentics/hioload-gateway/websocket"
)

const instrumentationName = "github.com/momentics/hioload-gateway/server"

// Server is the high-level facade over the transport core.
type Server struct {
	cfg       control.Config
	log       *zap.Logger
	level     zap.AtomicLevel
	hasLevel  bool
	mp        metric.MeterProvider
	tp        trace.TracerProvider
	tracer    trace.Tracer
	now       func() time.Time
	salts     func() uint64
	registrar websocket.Registrar

	gw       api.Gateway
	parser   api.WireParser
	metrics  *control.Metrics
	ctrl     *control.Controller
	sessions *session.Directory
	registry *websocket.Registry
	sockets  *socket.Table
	sched    *concurrency.Pool

	mu       sync.RWMutex
	routes   map[routeKey]HandlerFunc
	notFound HandlerFunc
	raw      RawHandler

	closed atomic.Bool
}

// New builds a Server on top of gw, using parser for HTTP wire input.
func New(gw api.Gateway, parser api.WireParser, opts ...Option) (*Server, error) {
	if gw == nil || parser == nil {
		return nil, fmt.Errorf("server: gateway and parser are required: %w", api.ErrInvalidArgument)
	}
	s := &Server{
		cfg:    control.DefaultConfig(),
		log:    zap.NewNop(),
		now:    time.Now,
		parser: parser,
		routes: make(map[routeKey]HandlerFunc),
	}
	for _, o := range opts {
		o(s)
	}

	store, err := control.NewConfigStore(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if s.metrics, err = control.NewMetrics(s.mp); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if s.tp == nil {
		s.tp = otel.GetTracerProvider()
	}
	s.tracer = s.tp.Tracer(instrumentationName)
	s.gw = observe(gw, s.metrics)

	s.sessions = session.NewDirectory(s.cfg.Schedulers, s.cfg.SessionsPerScheduler,
		session.WithObserver(s.metrics),
		session.WithLogger(s.log.Named("session")),
		session.WithIdleTimeout(s.cfg.SessionIdleTimeout),
		session.WithClock(s.now),
		session.WithSaltSource(s.salts))

	reg := s.registrar
	if reg == nil {
		if r, ok := gw.(websocket.Registrar); ok {
			reg = r
		} else {
			reg = newLocalRegistrar()
		}
	}
	s.registry = websocket.NewRegistry(s.cfg.Namespace, reg,
		websocket.WithLogger(s.log.Named("websocket")),
		websocket.WithObserver(s.metrics))
	s.sockets = socket.NewTable()

	s.sched = concurrency.NewPool(s.cfg.Schedulers,
		concurrency.WithLogger(s.log.Named("scheduler")),
		concurrency.WithPinning(s.cfg.PinSchedulers),
		concurrency.WithPanicHandler(func(sched int, _ any) { s.metrics.TaskPanicked(sched) }))

	s.ctrl = &control.Controller{Store: store, Metrics: s.metrics, Probes: control.NewDebugProbes()}
	s.registerProbes(gw)
	store.OnReload(s.reload)

	s.log.Info("server started",
		zap.Int("schedulers", s.cfg.Schedulers),
		zap.Int("sessions_per_scheduler", s.cfg.SessionsPerScheduler),
		zap.String("namespace", s.cfg.Namespace))
	return s, nil
}

func (s *Server) registerProbes(gw api.Gateway) {
	p := s.ctrl.Probes
	if st, ok := gw.(interface{ Stats() api.ChunkPoolStats }); ok {
		p.RegisterProbe("chunk_pool", func() any {
			cs := st.Stats()
			s.metrics.Set(control.StatChunksInUse, cs.InUse)
			return cs
		})
	}
	p.RegisterProbe("sessions", func() any {
		per := make([]int, s.sessions.Schedulers())
		for i := range per {
			per[i] = s.sessions.PartitionLen(uint8(i))
		}
		live := s.sessions.Len()
		s.metrics.Set(control.StatLiveSessions, int64(live))
		return map[string]any{"live": live, "per_scheduler": per}
	})
	p.RegisterProbe("websocket.channels", func() any { return s.registry.Len() })
	p.RegisterProbe("sockets", func() any { return s.sockets.Len() })
	p.RegisterProbe("scheduler", func() any {
		depth := make([]int, s.sched.Schedulers())
		for i := range depth {
			depth[i] = s.sched.QueueDepth(i)
		}
		st := s.sched.Stats()
		s.metrics.Set(control.StatPendingTasks, st["pending_tasks"])
		out := make(map[string]any, len(st)+1)
		for k, v := range st {
			out[k] = v
		}
		out["queue_depth"] = depth
		return out
	})
}

func (s *Server) reload(cfg control.Config) {
	s.sessions.SetIdleTimeout(cfg.SessionIdleTimeout)
	if s.hasLevel {
		if err := control.SetLevel(s.level, cfg.LogLevel); err != nil {
			s.log.Warn("log level not applied", zap.String("level", cfg.LogLevel), zap.Error(err))
		}
	}
	s.log.Info("configuration reloaded",
		zap.Duration("session_idle_timeout", cfg.SessionIdleTimeout),
		zap.String("log_level", cfg.LogLevel))
}

// Control exposes configuration, statistics and debug probes.
func (s *Server) Control() api.Control { return s.ctrl }

// Gateway returns the instrumented gateway the server sends through.
func (s *Server) Gateway() api.Gateway { return s.gw }

// Sessions returns the session directory.
func (s *Server) Sessions() *session.Directory { return s.sessions }

// Registry returns the WebSocket channel registry.
func (s *Server) Registry() *websocket.Registry { return s.registry }

// Sockets returns the table of known raw and WebSocket sockets.
func (s *Server) Sockets() *socket.Table { return s.sockets }

// Schedulers returns the number of schedulers.
func (s *Server) Schedulers() int { return s.sched.Schedulers() }

// Sweep evicts idle sessions and returns how many were evicted. The core
// has no timers; callers drive Sweep from their own ticker.
func (s *Server) Sweep() int { return s.sessions.Sweep(s.now()) }

// Close stops the schedulers after the queued work has run. It is
// idempotent.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.sched.Close()
	s.log.Info("server stopped", zap.Any("stats", s.ctrl.Stats()))
	return nil
}

// Deliver takes ownership of an inbound chunk and queues it on its
// scheduler: the session's scheduler when the socket is bound to a
// session, else the gateway worker's. On error the chunk is released.
func (s *Server) Deliver(chunk api.Chunk, single bool) error {
	ds := stream.New(s.gw, chunk, single)
	sd, err := ds.SocketData()
	if err != nil {
		_ = ds.Destroy()
		return fmt.Errorf("deliver chunk %d: %w", chunk.Index, err)
	}
	if s.closed.Load() {
		_ = ds.Destroy()
		return api.ErrClosed
	}
	sched := s.schedulerFor(sd)
	if err := s.sched.Submit(sched, func() { s.serve(sched, ds) }); err != nil {
		_ = ds.Destroy()
		return fmt.Errorf("deliver chunk %d: %w", chunk.Index, err)
	}
	return nil
}

func (s *Server) schedulerFor(sd layout.SocketData) int {
	n := s.sched.Schedulers()
	if id := identity.Read(sd); id.Valid() && int(id.SchedulerID) < n {
		return int(id.SchedulerID)
	}
	return socket.SchedulerOf(socket.FromSocketData(sd), n)
}

func (s *Server) serve(sched int, ds *stream.DataStream) {
	sd, err := ds.SocketData()
	if err != nil {
		return
	}
	h := socket.FromSocketData(sd)
	ctx := socket.WithContext(context.Background(), socket.Context{Socket: h, Scheduler: sched})
	switch h.Protocol {
	case layout.ProtocolHTTP1:
		s.serveHTTP(ctx, ds, sd)
	case layout.ProtocolWebSocket:
		s.serveWebSocket(ctx, ds, h)
	case layout.ProtocolRawTCP:
		s.serveRaw(ctx, ds, h)
	default:
		s.log.Warn("dropping chunk of unknown protocol",
			zap.Stringer("protocol", h.Protocol),
			zap.Uint32("socket", h.SocketIndex))
		_ = ds.Destroy()
	}
}
