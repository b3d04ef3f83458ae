// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// OpenTelemetry counters for the chunk pool, parser, responses, sessions,
// WebSocket dispatch and schedulers. Every increment is mirrored into a
// local snapshot so Stats works without an exporter.

package control

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/momentics/hioload-gateway"

// Snapshot keys.
const (
	StatChunkObtained     = "chunk.obtained"
	StatChunkFreed        = "chunk.freed"
	StatChunkExhausted    = "chunk.exhausted"
	StatParseErrors       = "http.parse_errors"
	StatResponses         = "http.responses"
	StatNotAcceptable     = "http.not_acceptable"
	StatSessionsCreated   = "session.created"
	StatSessionsDestroyed = "session.destroyed"
	StatSessionsEvicted   = "session.evicted"
	StatFramesDispatched  = "websocket.frames"
	StatPeersDisconnected = "websocket.disconnects"
	StatTaskPanics        = "scheduler.panics"

	// Gauges sampled by the server's debug probes.
	StatChunksInUse  = "chunk.in_use"
	StatLiveSessions = "session.live"
	StatPendingTasks = "scheduler.pending_tasks"
)

type counter struct {
	inst metric.Int64Counter
	val  atomic.Int64
}

// Metrics implements pool.Observer, session.Observer and
// websocket.DispatchObserver.
type Metrics struct {
	counters map[string]*counter
	duration metric.Float64Histogram

	mu    sync.Mutex
	extra map[string]int64
}

// NewMetrics creates instruments from mp; nil means otel.GetMeterProvider().
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	m := &Metrics{counters: make(map[string]*counter), extra: make(map[string]int64)}
	defs := []struct{ key, unit, desc string }{
		{StatChunkObtained, "{chunk}", "Chunks obtained from the pool"},
		{StatChunkFreed, "{chunk}", "Chunks returned to the pool"},
		{StatChunkExhausted, "{event}", "Chunk requests refused because the pool was empty"},
		{StatParseErrors, "{request}", "Requests rejected by the wire parser"},
		{StatResponses, "{response}", "Responses serialized"},
		{StatNotAcceptable, "{response}", "Responses forced to 406 by content negotiation"},
		{StatSessionsCreated, "{session}", "Sessions created"},
		{StatSessionsDestroyed, "{session}", "Sessions destroyed"},
		{StatSessionsEvicted, "{session}", "Sessions evicted after idling"},
		{StatFramesDispatched, "{frame}", "WebSocket frames delivered to handlers"},
		{StatPeersDisconnected, "{peer}", "WebSocket peers disconnected by dispatch"},
		{StatTaskPanics, "{task}", "Scheduler tasks that panicked"},
	}
	for _, d := range defs {
		inst, err := meter.Int64Counter("hioload."+d.key, metric.WithUnit(d.unit), metric.WithDescription(d.desc))
		if err != nil {
			return nil, fmt.Errorf("metrics: counter %s: %w", d.key, err)
		}
		m.counters[d.key] = &counter{inst: inst}
	}
	var err error
	m.duration, err = meter.Float64Histogram("hioload.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time from chunk delivery to response hand-off"))
	if err != nil {
		return nil, fmt.Errorf("metrics: duration histogram: %w", err)
	}
	return m, nil
}

func (m *Metrics) add(key string, opts ...metric.AddOption) {
	c := m.counters[key]
	c.val.Add(1)
	c.inst.Add(context.Background(), 1, opts...)
}

func (m *Metrics) ChunkObtained()  { m.add(StatChunkObtained) }
func (m *Metrics) ChunkFreed()     { m.add(StatChunkFreed) }
func (m *Metrics) ChunkExhausted() { m.add(StatChunkExhausted) }

func (m *Metrics) SessionCreated()   { m.add(StatSessionsCreated) }
func (m *Metrics) SessionDestroyed() { m.add(StatSessionsDestroyed) }
func (m *Metrics) SessionEvicted()   { m.add(StatSessionsEvicted) }

func (m *Metrics) FrameDispatched()  { m.add(StatFramesDispatched) }
func (m *Metrics) PeerDisconnected() { m.add(StatPeersDisconnected) }

// TaskPanicked counts a recovered scheduler panic.
func (m *Metrics) TaskPanicked(sched int) {
	m.add(StatTaskPanics, metric.WithAttributes(attribute.Int("scheduler", sched)))
}

// ParseError counts a request rejected with parser status code.
func (m *Metrics) ParseError(code int) {
	m.add(StatParseErrors, metric.WithAttributes(attribute.Int("code", code)))
}

// Response counts a serialized response by status.
func (m *Metrics) Response(status int) {
	m.add(StatResponses, metric.WithAttributes(attribute.Int("http.status_code", status)))
	if status == 406 {
		m.add(StatNotAcceptable)
	}
}

// RequestDuration records the handling time of one request in seconds.
func (m *Metrics) RequestDuration(ctx context.Context, seconds float64, protocol string) {
	m.duration.Record(ctx, seconds, metric.WithAttributes(attribute.String("protocol", protocol)))
}

// Set records the latest sample of a gauge. Gauges appear in the snapshot
// only and are not exported as instruments.
func (m *Metrics) Set(key string, v int64) {
	m.mu.Lock()
	m.extra[key] = v
	m.mu.Unlock()
}

// GetSnapshot returns all counter values.
func (m *Metrics) GetSnapshot() map[string]int64 {
	out := make(map[string]int64, len(m.counters)+len(m.extra))
	for k, c := range m.counters {
		out[k] = c.val.Load()
	}
	m.mu.Lock()
	for k, v := range m.extra {
		out[k] = v
	}
	m.mu.Unlock()
	return out
}
