// File: server/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// End-to-end tests of the facade over the fake gateway and parser.

package server_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/control"
	"github.com/momentics/hioload-gateway/core/identity"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/fake"
	"github.com/momentics/hioload-gateway/request"
	"github.com/momentics/hioload-gateway/resource"
	"github.com/momentics/hioload-gateway/response"
	"github.com/momentics/hioload-gateway/server"
	"github.com/momentics/hioload-gateway/socket"
	"github.com/momentics/hioload-gateway/websocket"
)

type harness struct {
	srv  *server.Server
	gw   *fake.Gateway
	sent chan fake.Sent
}

func newHarness(t *testing.T, opts ...server.Option) *harness {
	t.Helper()
	cfg := control.DefaultConfig()
	cfg.Schedulers = 2
	cfg.SessionsPerScheduler = 8
	h := &harness{gw: fake.NewGateway(64), sent: make(chan fake.Sent, 32)}
	h.gw.OnSend(func(s fake.Sent) { h.sent <- s })
	opts = append([]server.Option{
		server.WithConfig(cfg),
		server.WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	srv, err := server.New(h.gw, fake.Parser{}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	h.srv = srv
	return h
}

func (h *harness) deliver(t *testing.T, in fake.Inbound) {
	t.Helper()
	c, single, err := h.gw.Deliver(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.srv.Deliver(c, single); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) next(t *testing.T) fake.Sent {
	t.Helper()
	select {
	case s := <-h.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("nothing sent")
		return fake.Sent{}
	}
}

func (h *harness) get(t *testing.T, raw string, sess identity.Identity, worker uint8) (fake.Sent, *response.View) {
	t.Helper()
	h.deliver(t, fake.Inbound{
		Protocol:    layout.ProtocolHTTP1,
		SocketIndex: 7,
		UniqueID:    77,
		BoundWorker: worker,
		Session:     sess,
		Payload:     []byte(raw),
	})
	s := h.next(t)
	v, err := response.Parse(s.Payload, fake.Parser{})
	if err != nil {
		t.Fatalf("parse %q: %v", s.Payload, err)
	}
	return s, v
}

func hello(context.Context, *request.Request) (*response.Response, error) {
	return response.New().SetContentType("text/plain").SetBody("hello"), nil
}

func TestHTTPRequestIsAnsweredInPlace(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(api.MethodGET, "/hello", hello)

	s, v := h.get(t, string(request.RawGet("/hello?x=1")), identity.Invalid, 0)
	if v.Status() != 200 || string(v.Body()) != "hello" {
		t.Fatalf("got %d %q", v.Status(), v.Body())
	}
	if s.SocketIndex != 7 || s.UniqueID != 77 || s.Conn != layout.NoSpecialFlags {
		t.Errorf("sent to %+v", s)
	}
	if s.Session.Valid() {
		t.Errorf("unexpected session %v", s.Session)
	}
	if st := h.gw.Stats(); st.InUse != 0 {
		t.Errorf("chunks in use after send: %d", st.InUse)
	}
}

func TestRoutesByMethod(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(api.MethodUnknown, "/thing", hello)
	h.srv.Handle(api.MethodPOST, "/thing", func(context.Context, *request.Request) (*response.Response, error) {
		return response.New().SetStatus(201), nil
	})
	ctx := context.Background()

	v, err := h.srv.Do(ctx, []byte("POST /thing HTTP/1.1\r\nContent-Length: 0\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Status() != 201 {
		t.Errorf("POST = %d", v.Status())
	}
	if v, _ = h.srv.Call(ctx, "/thing"); v.Status() != 200 {
		t.Errorf("GET = %d", v.Status())
	}
	if v, _ = h.srv.Call(ctx, "/missing"); v.Status() != 404 {
		t.Errorf("missing = %d", v.Status())
	}
}

func TestHandlerOutcomes(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(api.MethodGET, "/err", func(context.Context, *request.Request) (*response.Response, error) {
		return nil, errors.New("boom")
	})
	h.srv.Handle(api.MethodGET, "/panic", func(context.Context, *request.Request) (*response.Response, error) {
		panic("bug")
	})
	h.srv.Handle(api.MethodGET, "/empty", func(context.Context, *request.Request) (*response.Response, error) {
		return nil, nil
	})
	for uri, want := range map[string]int{"/err": 500, "/panic": 500, "/empty": 204} {
		v, err := h.srv.Call(context.Background(), uri)
		if err != nil {
			t.Fatal(err)
		}
		if v.Status() != want {
			t.Errorf("%s = %d, want %d", uri, v.Status(), want)
		}
	}
}

func TestMalformedRequestGets400(t *testing.T) {
	h := newHarness(t)
	s, v := h.get(t, "BROKEN\r\n\r\n", identity.Invalid, 0)
	if v.Status() != 400 {
		t.Fatalf("status = %d", v.Status())
	}
	if s.Conn != layout.DisconnectAfterSend {
		t.Errorf("conn flags = %v", s.Conn)
	}
	_ = h.srv.Close()
	stats := h.srv.Control().Stats()
	if stats[control.StatParseErrors] != int64(1) || stats[control.StatResponses] != int64(1) {
		t.Errorf("stats = %v", stats)
	}
}

func TestNotAcceptable(t *testing.T) {
	h := newHarness(t)
	res, err := resource.JSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	h.srv.Handle(api.MethodGET, "/data", func(context.Context, *request.Request) (*response.Response, error) {
		return response.New().SetResource(res), nil
	})

	_, v := h.get(t, "GET /data HTTP/1.1\r\nAccept: image/png\r\n\r\n", identity.Invalid, 0)
	if v.Status() != 406 || len(v.Body()) != 0 {
		t.Fatalf("got %d %q", v.Status(), v.Body())
	}
	_, v = h.get(t, "GET /data HTTP/1.1\r\nAccept: application/json\r\n\r\n", identity.Invalid, 0)
	if v.Status() != 200 || string(v.Body()) != `{"a":1}` {
		t.Fatalf("got %d %q", v.Status(), v.Body())
	}
	_ = h.srv.Close()
	if n := h.srv.Control().Stats()[control.StatNotAcceptable]; n != int64(1) {
		t.Errorf("406 count = %v", n)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(api.MethodGET, "/login", func(ctx context.Context, _ *request.Request) (*response.Response, error) {
		sess, err := h.srv.StartSession(ctx, "alice")
		if err != nil {
			return nil, err
		}
		return response.New().AttachSession(sess.ID()), nil
	})
	h.srv.Handle(api.MethodGET, "/me", func(ctx context.Context, _ *request.Request) (*response.Response, error) {
		sc, _ := socket.FromContext(ctx)
		sess := server.SessionFrom(ctx)
		if sess == nil {
			return response.New().SetStatus(401), nil
		}
		r := response.New().SetBody(sess.Value().(string))
		r.SetHeader("X-Scheduler", string(rune('0'+sc.Scheduler)))
		return r, nil
	})
	h.srv.Handle(api.MethodGET, "/logout", func(ctx context.Context, _ *request.Request) (*response.Response, error) {
		return nil, h.srv.EndSession(ctx)
	})

	s, v := h.get(t, "GET /login HTTP/1.1\r\n\r\n", identity.Invalid, 1)
	id := s.Session
	if !id.Valid() || id.SchedulerID != 1 {
		t.Fatalf("session written to socket data = %v", id)
	}
	cookies := v.SetCookies()
	if len(cookies) != 1 || !strings.HasPrefix(cookies[0], "ScSsnId="+id.String()) {
		t.Fatalf("cookies = %q", cookies)
	}

	// Bound to worker 0 but owned by scheduler 1.
	_, v = h.get(t, "GET /me HTTP/1.1\r\n\r\n", id, 0)
	if string(v.Body()) != "alice" {
		t.Fatalf("me = %d %q", v.Status(), v.Body())
	}
	if sch, _ := v.Header("X-Scheduler"); sch != "1" {
		t.Errorf("served on scheduler %q", sch)
	}

	// The cookie alone identifies the session for internal calls.
	raw := "GET /me HTTP/1.1\r\nCookie: ScSsnId=" + id.String() + "\r\n\r\n"
	if v, _ := h.srv.Do(context.Background(), []byte(raw)); string(v.Body()) != "alice" {
		t.Fatalf("cookie lookup = %d %q", v.Status(), v.Body())
	}

	h.get(t, "GET /logout HTTP/1.1\r\n\r\n", id, 0)
	if _, v = h.get(t, "GET /me HTTP/1.1\r\n\r\n", id, 0); v.Status() != 401 {
		t.Fatalf("stale session accepted: %d", v.Status())
	}
}

func TestLoopbackSeesPropagatedValuesOnly(t *testing.T) {
	h := newHarness(t)
	sess, err := h.srv.StartSession(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	sess.Values().Set("tenant", "acme", true)
	sess.Values().Set("csrf", "secret", false)

	var inner api.Values
	h.srv.Handle(api.MethodGET, "/inner", func(ctx context.Context, _ *request.Request) (*response.Response, error) {
		inner = server.ValuesFrom(ctx)
		if inner != nil {
			inner.Set("scratch", 1, true)
		}
		return nil, nil
	})
	h.srv.Handle(api.MethodGET, "/outer", func(ctx context.Context, _ *request.Request) (*response.Response, error) {
		if v := server.ValuesFrom(ctx); v == nil || v != sess.Values() {
			t.Errorf("gateway request sees %v", v)
		}
		if _, err := h.srv.Call(ctx, "/inner"); err != nil {
			return nil, err
		}
		return response.New().SetBody("ok"), nil
	})

	if _, v := h.get(t, "GET /outer HTTP/1.1\r\n\r\n", sess.ID(), 0); string(v.Body()) != "ok" {
		t.Fatalf("outer = %d %q", v.Status(), v.Body())
	}
	if inner == nil {
		t.Fatal("loopback handler saw no values")
	}
	if got, ok := inner.Get("tenant"); !ok || got != "acme" {
		t.Errorf("tenant = %v %v", got, ok)
	}
	if _, ok := inner.Get("csrf"); ok {
		t.Error("local key leaked into loopback request")
	}
	if _, ok := sess.Values().Get("scratch"); ok {
		t.Error("loopback write reached the session store")
	}

	if _, err := h.srv.Do(context.Background(), request.RawGet("/inner"), request.WithSession(sess.ID())); err != nil {
		t.Fatal(err)
	}
	if _, ok := inner.Get("csrf"); ok || inner == sess.Values() {
		t.Error("session-bound loopback got the live store")
	}
}

func TestSweepFollowsReloadedTimeout(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	h := newHarness(t, server.WithClock(clock))
	if _, err := h.srv.StartSession(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := h.srv.Control().SetConfig(map[string]any{control.KeySessionIdleTimeout: "1m"}); err != nil {
		t.Fatal(err)
	}
	if got := h.srv.Sessions().IdleTimeout(); got != time.Minute {
		t.Fatalf("idle timeout = %v", got)
	}
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	if n := h.srv.Sweep(); n != 1 {
		t.Fatalf("evicted %d", n)
	}
	if h.srv.Sessions().Len() != 0 {
		t.Fatal("session survived sweep")
	}
}

func TestReloadAppliesLogLevel(t *testing.T) {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	h := newHarness(t, server.WithAtomicLevel(lvl))
	if err := h.srv.Control().SetConfig(map[string]any{control.KeyLogLevel: "debug"}); err != nil {
		t.Fatal(err)
	}
	if lvl.Level() != zapcore.DebugLevel {
		t.Fatalf("level = %v", lvl.Level())
	}
	if err := h.srv.Control().SetConfig(map[string]any{control.KeySchedulers: 4}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("fixed key accepted: %v", err)
	}
}

func TestControlProbes(t *testing.T) {
	h := newHarness(t)
	stats := h.srv.Control().Stats()
	for _, k := range []string{"debug.chunk_pool", "debug.sessions", "debug.websocket.channels", "debug.scheduler", "debug.sockets"} {
		if _, ok := stats[k]; !ok {
			t.Errorf("missing %s in %v", k, stats)
		}
	}
	if cfg := h.srv.Control().GetConfig(); cfg[control.KeySchedulers] != 2 {
		t.Errorf("config = %v", cfg)
	}

	if _, err := h.srv.StartSession(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	stats = h.srv.Control().Stats()
	if n := stats[control.StatLiveSessions]; n != int64(1) {
		t.Errorf("live sessions gauge = %v", n)
	}
	if n := stats[control.StatChunksInUse]; n != int64(0) {
		t.Errorf("chunks in use gauge = %v", n)
	}
	if _, ok := stats[control.StatPendingTasks]; !ok {
		t.Error("pending tasks gauge missing")
	}
}

const upgradeRequest = "GET /chat HTTP/1.1\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: keep-alive, Upgrade\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"

func maskedText(s string) []byte {
	key := [4]byte{1, 2, 3, 4}
	return websocket.AppendFrame(nil, websocket.OpcodeText, []byte(s), &key)
}

func TestWebSocketUpgradeAndDispatch(t *testing.T) {
	rr := fake.NewRegistrar()
	h := newHarness(t, server.WithRegistrar(rr))
	reg, err := h.srv.Registry().RegisterText(80, "chat", func(_ context.Context, m websocket.Message) error {
		return m.Peer.Send(websocket.OpcodeText, append([]byte("echo:"), m.Payload...))
	})
	if err != nil {
		t.Fatal(err)
	}
	h.srv.Handle(api.MethodGET, "/chat", func(_ context.Context, req *request.Request) (*response.Response, error) {
		return h.srv.Upgrade(req, 80, "chat", 42)
	})

	s, v := h.get(t, upgradeRequest, identity.Invalid, 0)
	if v.Status() != 101 {
		t.Fatalf("status = %d", v.Status())
	}
	if acc, _ := v.Header("Sec-WebSocket-Accept"); acc != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("accept = %q", acc)
	}
	if s.Flags&layout.FlagUpgradeApproved == 0 || s.CargoID != 42 || s.ChannelID != reg.GroupID {
		t.Errorf("socket data = %+v", s)
	}
	if h.srv.Sockets().Len() != 1 {
		t.Fatalf("socket table = %d", h.srv.Sockets().Len())
	}

	h.deliver(t, fake.Inbound{
		Protocol:    layout.ProtocolWebSocket,
		SocketIndex: 7,
		UniqueID:    77,
		HandlerSlot: reg.Slot,
		ChannelID:   reg.GroupID,
		CargoID:     42,
		Payload:     maskedText("hi"),
	})
	f, _, err := websocket.DecodeFrame(h.next(t).Payload)
	if err != nil {
		t.Fatal(err)
	}
	if f.Opcode != websocket.OpcodeText || string(f.Payload) != "echo:hi" {
		t.Fatalf("echo = %#x %q", f.Opcode, f.Payload)
	}

	h.deliver(t, fake.Inbound{
		Protocol:    layout.ProtocolWebSocket,
		SocketIndex: 7,
		UniqueID:    77,
		HandlerSlot: reg.Slot,
		ChannelID:   reg.GroupID + 1,
		CargoID:     42,
		Payload:     maskedText("stale"),
	})
	closed := h.next(t)
	f, _, err = websocket.DecodeFrame(closed.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if websocket.CloseCode(f) != websocket.CloseUnsupportedData || closed.Conn != layout.GracefullyCloseConnection {
		t.Fatalf("close = %d %v", websocket.CloseCode(f), closed.Conn)
	}
	_ = h.srv.Close()
	if h.srv.Sockets().Len() != 0 {
		t.Error("disconnected socket still in table")
	}
}

func TestUpgradeUnknownChannel(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(api.MethodGET, "/chat", func(_ context.Context, req *request.Request) (*response.Response, error) {
		resp, err := h.srv.Upgrade(req, 80, "nobody", 1)
		if errors.Is(err, api.ErrChannelNotRegistered) {
			return response.New().SetStatus(404), nil
		}
		return resp, err
	})
	if _, v := h.get(t, upgradeRequest, identity.Invalid, 0); v.Status() != 404 {
		t.Fatalf("status = %d", v.Status())
	}
	if _, err := h.srv.Do(context.Background(), []byte(upgradeRequest)); err != nil {
		t.Fatal(err)
	}
}

func TestLargeRequestSpanningManyChunks(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(api.MethodPOST, "/echo", func(_ context.Context, req *request.Request) (*response.Response, error) {
		return response.New().SetContentType("application/octet-stream").SetBodyBytes(req.BodyBytes()), nil
	})
	body := strings.Repeat("abcdefghij", 1600)
	raw := "POST /echo HTTP/1.1\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body

	s, v := h.get(t, raw, identity.Invalid, 1)
	if v.Status() != 200 || string(v.Body()) != body {
		t.Fatalf("status=%d body len=%d", v.Status(), len(v.Body()))
	}
	if s.Conn != layout.NoSpecialFlags || s.Chunks < 5 {
		t.Fatalf("conn=%v chunks=%d", s.Conn, s.Chunks)
	}
	if st := h.gw.Stats(); st.InUse != 0 {
		t.Fatalf("leaked %d chunks", st.InUse)
	}
}

func TestInjectedHeaderBecomesInternalError(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(api.MethodGET, "/split", func(context.Context, *request.Request) (*response.Response, error) {
		return response.New().SetHeader("X-User", "eve\r\nSet-Cookie: admin=1").SetBody("hi"), nil
	})
	_, v := h.get(t, string(request.RawGet("/split")), identity.Invalid, 0)
	if v.Status() != 500 {
		t.Fatalf("status = %d", v.Status())
	}
	if c := v.SetCookies(); len(c) != 0 {
		t.Fatalf("cookies = %q", c)
	}
}

func TestBroadcastReachesEveryWebSocket(t *testing.T) {
	h := newHarness(t)
	for i := range 3 {
		h.srv.Sockets().Add(socket.Handle{
			Protocol:    layout.ProtocolWebSocket,
			SocketIndex: uint32(i),
			UniqueID:    uint64(100 + i),
			BoundWorker: uint8(i),
			CargoID:     9,
		})
	}
	h.srv.Sockets().Add(socket.Handle{Protocol: layout.ProtocolRawTCP, SocketIndex: 50, CargoID: 9})
	h.srv.Sockets().Add(socket.Handle{Protocol: layout.ProtocolWebSocket, SocketIndex: 60, CargoID: 10})

	if err := h.srv.BroadcastText(context.Background(), 9, "news"); err != nil {
		t.Fatal(err)
	}
	seen := map[uint32]bool{}
	for _, s := range h.gw.Sent() {
		f, _, err := websocket.DecodeFrame(s.Payload)
		if err != nil || string(f.Payload) != "news" {
			t.Fatalf("frame %q: %v", s.Payload, err)
		}
		seen[s.SocketIndex] = true
	}
	if len(seen) != 3 || !seen[0] || !seen[1] || !seen[2] {
		t.Fatalf("reached %v", seen)
	}
}

func TestBroadcastFromTextHandler(t *testing.T) {
	h := newHarness(t, server.WithRegistrar(fake.NewRegistrar()))
	for i := range 3 {
		h.srv.Sockets().Add(socket.Handle{
			Protocol:    layout.ProtocolWebSocket,
			SocketIndex: uint32(i),
			UniqueID:    uint64(100 + i),
			BoundWorker: uint8(i),
			CargoID:     42,
		})
	}
	handled := make(chan error, 1)
	reg, err := h.srv.Registry().RegisterText(80, "room", func(ctx context.Context, m websocket.Message) error {
		err := h.srv.BroadcastText(ctx, 42, string(m.Payload))
		handled <- err
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	h.deliver(t, fake.Inbound{
		Protocol:    layout.ProtocolWebSocket,
		SocketIndex: 0,
		UniqueID:    100,
		HandlerSlot: reg.Slot,
		ChannelID:   reg.GroupID,
		CargoID:     42,
		Payload:     maskedText("hello room"),
	})
	select {
	case err := <-handled:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked in broadcast")
	}
	seen := map[uint32]bool{}
	for range 3 {
		s := h.next(t)
		f, _, err := websocket.DecodeFrame(s.Payload)
		if err != nil || string(f.Payload) != "hello room" {
			t.Fatalf("frame %q: %v", s.Payload, err)
		}
		seen[s.SocketIndex] = true
	}
	if len(seen) != 3 {
		t.Fatalf("reached %v", seen)
	}

	closed := make(chan struct{})
	go func() {
		_ = h.srv.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close hung after broadcast")
	}
}

func TestRawSockets(t *testing.T) {
	h := newHarness(t)
	in := fake.Inbound{Protocol: layout.ProtocolRawTCP, SocketIndex: 3, UniqueID: 33, CargoID: 5, Payload: []byte("ping")}

	h.deliver(t, in)
	if s := h.next(t); s.Conn != layout.DisconnectImmediately || len(s.Payload) != 0 {
		t.Fatalf("unhandled raw socket got %+v", s)
	}

	h.srv.HandleRaw(func(ctx context.Context, sock *socket.Raw, payload []byte) error {
		if sc, ok := socket.FromContext(ctx); !ok || sc.Socket.SocketIndex != 3 {
			t.Errorf("context = %+v", sc)
		}
		return sock.Send(append([]byte("pong:"), payload...))
	})
	h.deliver(t, in)
	if s := h.next(t); string(s.Payload) != "pong:ping" {
		t.Fatalf("reply = %q", s.Payload)
	}
	if got := h.srv.Sockets().ByCargo(5); len(got) != 1 || !h.srv.Forget(got[0]) {
		t.Fatalf("table = %+v", got)
	}
}

func TestDeliverAfterClose(t *testing.T) {
	h := newHarness(t)
	_ = h.srv.Close()
	c, single, err := h.gw.Deliver(fake.Inbound{Protocol: layout.ProtocolHTTP1, Payload: request.RawGet("/")})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.srv.Deliver(c, single); !errors.Is(err, api.ErrClosed) {
		t.Fatalf("err = %v", err)
	}
	if h.gw.Stats().InUse != 0 {
		t.Fatal("refused chunk not released")
	}
	if err := h.srv.Close(); err != nil {
		t.Fatal("second Close:", err)
	}
}

func TestSpansCarryStatus(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h := newHarness(t, server.WithTracerProvider(tp))
	h.srv.Handle(api.MethodGET, "/hello", hello)

	if _, err := h.srv.Call(context.Background(), "/hello"); err != nil {
		t.Fatal(err)
	}
	h.get(t, string(request.RawGet("/hello")), identity.Invalid, 0)
	_ = h.srv.Close()

	ended := sr.Ended()
	if len(ended) != 2 {
		t.Fatalf("%d spans", len(ended))
	}
	names := map[string]bool{}
	for _, sp := range ended {
		names[sp.Name()] = true
		found := false
		for _, kv := range sp.Attributes() {
			if kv.Key == "http.response.status_code" && kv.Value.AsInt64() == 200 {
				found = true
			}
		}
		if !found {
			t.Errorf("span %s lacks status: %v", sp.Name(), sp.Attributes())
		}
	}
	if !names["http.internal"] || !names["http.request"] {
		t.Errorf("spans = %v", names)
	}
}

func TestNewRequiresSeams(t *testing.T) {
	if _, err := server.New(nil, fake.Parser{}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
	cfg := control.DefaultConfig()
	cfg.Schedulers = 0
	if _, err := server.New(fake.NewGateway(4), fake.Parser{}, server.WithConfig(cfg)); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}
