package response_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/identity"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/fake"
	"github.com/momentics/hioload-gateway/request"
	"github.com/momentics/hioload-gateway/resource"
	"github.com/momentics/hioload-gateway/response"
	"github.com/momentics/hioload-gateway/stream"
)

func internal(t *testing.T, raw string) *request.Request {
	t.Helper()
	req, err := request.NewInternal([]byte(raw), fake.Parser{})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func parse(t *testing.T, raw []byte) *response.View {
	t.Helper()
	v, err := response.Parse(raw, fake.Parser{})
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return v
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		status  int
		headers []response.Header
		body    string
	}{
		{200, nil, "hello"},
		{201, []response.Header{{Name: "Location", Value: "/users/1"}}, ""},
		{404, []response.Header{{Name: "X-A", Value: "1"}, {Name: "X-B", Value: "two words"}}, "not here"},
		{500, nil, strings.Repeat("x", 10000)},
	}
	for _, c := range cases {
		r := response.New().SetStatus(c.status).SetBody(c.body)
		for _, h := range c.headers {
			r.SetHeader(h.Name, h.Value)
		}
		raw, err := r.Serialize(nil)
		if err != nil {
			t.Fatal(err)
		}
		v := parse(t, raw)
		if v.Status() != c.status || v.Reason() != response.StatusText(c.status) {
			t.Errorf("status = %d %q", v.Status(), v.Reason())
		}
		for _, h := range c.headers {
			if got, ok := v.Header(h.Name); !ok || got != h.Value {
				t.Errorf("%s = %q %v", h.Name, got, ok)
			}
		}
		if string(v.Body()) != c.body {
			t.Errorf("body len %d, want %d", len(v.Body()), len(c.body))
		}
	}
}

func TestRoundTripGenerated(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	statuses := []int{200, 201, 202, 400, 401, 403, 404, 409, 500, 503}
	const tokenChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_.!#$%&'*+^`|~"

	for i := range 200 {
		status := statuses[rng.IntN(len(statuses))]
		headers := make([]response.Header, rng.IntN(8))
		for j := range headers {
			name := make([]byte, 1+rng.IntN(12))
			for k := range name {
				name[k] = tokenChars[rng.IntN(len(tokenChars))]
			}
			value := make([]byte, rng.IntN(40))
			for k := range value {
				value[k] = byte(0x21 + rng.IntN(0x7e-0x21+1))
				if k > 0 && k < len(value)-1 && rng.IntN(6) == 0 {
					value[k] = ' '
				}
			}
			headers[j] = response.Header{Name: "X-" + strconv.Itoa(j) + "-" + string(name), Value: string(value)}
		}
		var body []byte
		switch i % 4 {
		case 0:
		case 1:
			body = make([]byte, rng.IntN(64))
		default:
			body = make([]byte, rng.IntN(3*layout.ChunkSize))
		}
		for k := range body {
			body[k] = byte(rng.Uint32())
		}

		r := response.New().SetStatus(status).SetBodyBytes(body)
		for _, h := range headers {
			r.SetHeader(h.Name, h.Value)
		}
		raw, err := r.Serialize(nil)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		v := parse(t, raw)
		if v.Status() != status || v.Reason() != response.StatusText(status) {
			t.Fatalf("case %d: status = %d %q", i, v.Status(), v.Reason())
		}
		for _, h := range headers {
			if got, ok := v.Header(h.Name); !ok || got != h.Value {
				t.Fatalf("case %d: %s = %q %v, want %q", i, h.Name, got, ok, h.Value)
			}
		}
		if !bytes.Equal(v.Body(), body) {
			t.Fatalf("case %d: body len %d, want %d", i, len(v.Body()), len(body))
		}
	}
}

func TestLineBreaksInFieldsAreRejected(t *testing.T) {
	cases := map[string]func(*response.Response){
		"header value":  func(r *response.Response) { r.SetHeader("X-Next", "a\r\nSet-Cookie: evil=1") },
		"bare LF":       func(r *response.Response) { r.SetHeader("X-Next", "a\nb") },
		"header name":   func(r *response.Response) { r.SetHeader("X-Bad\r\nName", "v") },
		"name colon":    func(r *response.Response) { r.SetHeader("X:Y", "v") },
		"empty name":    func(r *response.Response) { r.SetHeader("", "v") },
		"cookie":        func(r *response.Response) { r.AddCookie("k=v\r\nX-Injected: 1") },
		"content type":  func(r *response.Response) { r.SetContentType("text/plain\r\n\r\nbody") },
		"cache control": func(r *response.Response) { r.SetCacheControl("no-store\n") },
		"reason":        func(r *response.Response) { r.SetReason("OK\r\nX: 1") },
	}
	for name, set := range cases {
		r := response.New().SetHeader("X-Good", "1")
		set(r)
		r.SetBody("ok")
		if raw, err := r.Serialize(nil); !errors.Is(err, api.ErrInvalidArgument) {
			t.Errorf("%s: serialized %q, err %v", name, raw, err)
		}
	}

	r := response.New().SetHeader("X-Good", "1").SetBody("ok")
	raw, err := r.Serialize(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := parse(t, raw).Header("X-Good"); !ok || got != "1" {
		t.Fatalf("X-Good = %q %v", got, ok)
	}
}

func TestHeaderOrder(t *testing.T) {
	id := identity.Identity{SchedulerID: 1, LinearIndex: 5, Salt: 7}
	raw, err := response.New().
		SetContentType("text/plain").
		SetHeader("X-One", "1").
		AddCookie("pref=a").
		AttachSession(id).
		SetBody("ok").
		Serialize(nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "HTTP/1.1 200 OK\r\n" +
		"Server: SC\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Content-Type: text/plain\r\n" +
		"X-One: 1\r\n" +
		"Set-Cookie: ScSsnId=" + id.String() + "; Path=/; HttpOnly\r\n" +
		"Set-Cookie: pref=a\r\n" +
		"Content-Length: 2\r\n\r\nok"
	if string(raw) != want {
		t.Fatalf("got\n%q\nwant\n%q", raw, want)
	}
}

func TestSetHeaderReplacesInPlace(t *testing.T) {
	raw, _ := response.New().SetHeader("A", "1").SetHeader("B", "2").SetHeader("A", "3").Serialize(nil)
	hs := parse(t, raw).Headers()
	var names []string
	for _, h := range hs {
		names = append(names, h.Name+"="+h.Value)
	}
	want := []string{"Server=SC", "Cache-Control=no-cache", "A=3", "B=2", "Content-Length=0"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("headers = %q", names)
	}
}

func TestNotAcceptable(t *testing.T) {
	res, err := resource.JSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	req := internal(t, "GET /x HTTP/1.1\r\nAccept: application/xml\r\n\r\n")
	r := response.New().SetResource(res)
	raw, err := r.Serialize(req)
	if err != nil {
		t.Fatal(err)
	}
	v := parse(t, raw)
	if v.Status() != 406 || r.StatusCode() != 406 {
		t.Fatalf("status = %d", v.Status())
	}
	if cl, _ := v.Header("Content-Length"); cl != "0" || len(v.Body()) != 0 {
		t.Fatalf("content-length = %q body = %q", cl, v.Body())
	}
	if _, ok := v.Header("Content-Type"); ok {
		t.Fatal("406 carries a content type")
	}
}

// recorder answers only for one type and records every attempt.
type recorder struct {
	tried []string
	only  string
}

func (r *recorder) Render(mime string) ([]byte, string, bool) {
	r.tried = append(r.tried, mime)
	if mime == r.only {
		return []byte("picked " + mime), mime, true
	}
	return nil, "", false
}

func TestNegotiationOrder(t *testing.T) {
	rec := &recorder{only: "text/csv"}
	req := internal(t, "GET / HTTP/1.1\r\nAccept: application/xml, application/yaml;q=0.8, text/csv, text/plain\r\n\r\n")
	raw, err := response.New().SetResource(rec).Serialize(req)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"application/xml", "application/yaml", "text/csv"}
	if !reflect.DeepEqual(rec.tried, want) {
		t.Fatalf("tried %q, want %q", rec.tried, want)
	}
	v := parse(t, raw)
	if ct, _ := v.Header("Content-Type"); ct != "text/csv" || string(v.Body()) != "picked text/csv" {
		t.Fatalf("ct=%q body=%q", ct, v.Body())
	}
}

func TestNegotiationDefaultsToWildcard(t *testing.T) {
	rec := &recorder{only: "*/*"}
	if _, err := response.New().SetResource(rec).Serialize(internal(t, string(request.RawGet("/")))); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rec.tried, []string{"*/*"}) {
		t.Fatalf("tried %q", rec.tried)
	}
}

func TestGzipNegotiation(t *testing.T) {
	body := strings.Repeat("abcdef", 500)
	res, _ := resource.Text(body)
	req := internal(t, "GET / HTTP/1.1\r\nAccept-Encoding: gzip\r\n\r\n")
	raw, err := response.New().SetResource(res).Serialize(req)
	if err != nil {
		t.Fatal(err)
	}
	v := parse(t, raw)
	if enc, ok := v.Header("Content-Encoding"); !ok || enc != "gzip" {
		t.Fatalf("encoding = %q %v", enc, ok)
	}
	gz, _, _ := res.RenderGzip("*/*")
	if !bytes.Equal(v.Body(), gz) {
		t.Fatal("body is not the gzip representation")
	}

	raw, _ = response.New().SetResource(res).Serialize(internal(t, string(request.RawGet("/"))))
	if _, ok := parse(t, raw).Header("Content-Encoding"); ok {
		t.Fatal("gzip used without Accept-Encoding")
	}
}

func TestSessionCookieRule(t *testing.T) {
	id := identity.Identity{SchedulerID: 0, LinearIndex: 3, Salt: 0xabc}
	other := identity.Identity{SchedulerID: 0, LinearIndex: 3, Salt: 0xdef}

	cases := []struct {
		name   string
		req    string
		attach identity.Identity
		want   bool
	}{
		{"no session", string(request.RawGet("/")), identity.Invalid, false},
		{"fresh session", string(request.RawGet("/")), id, true},
		{"already carried", "GET / HTTP/1.1\r\nCookie: ScSsnId=" + id.String() + "\r\n\r\n", id, false},
		{"stale cookie", "GET / HTTP/1.1\r\nCookie: ScSsnId=" + other.String() + "\r\n\r\n", id, true},
	}
	for _, c := range cases {
		raw, err := response.New().AttachSession(c.attach).Serialize(internal(t, c.req))
		if err != nil {
			t.Fatal(err)
		}
		got := len(parse(t, raw).SetCookies()) > 0
		if got != c.want {
			t.Errorf("%s: cookie emitted = %v", c.name, got)
		}
	}
}

func TestBodyMixingPanics(t *testing.T) {
	res, _ := resource.Text("r")
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: no panic", name)
			}
		}()
		fn()
	}
	mustPanic("string then resource", func() { response.New().SetBody("a").SetResource(res) })
	mustPanic("bytes then resource", func() { response.New().SetBodyBytes([]byte("a")).SetResource(res) })
	mustPanic("resource then string", func() { response.New().SetResource(res).SetBody("a") })

	raw, _ := response.New().SetBody("first").SetBodyBytes([]byte("second")).Serialize(nil)
	if string(parse(t, raw).Body()) != "second" {
		t.Fatal("later bytes body did not replace the string body")
	}
	raw, _ = response.New().SetBodyBytes([]byte("first")).SetBody("second").Serialize(nil)
	if string(parse(t, raw).Body()) != "second" {
		t.Fatal("later string body did not replace the bytes body")
	}
}

func TestHandshakeReplacesStatusLine(t *testing.T) {
	hs := []byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n")
	raw, err := response.New().SetHandshake(hs).Serialize(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, append(hs, "Server: SC\r\n"...)) {
		t.Fatalf("raw = %q", raw)
	}
	if v := parse(t, raw); v.Status() != 101 {
		t.Fatalf("status = %d", v.Status())
	}
}

func TestCustomReasonAndCache(t *testing.T) {
	raw, _ := response.New().SetStatus(299).SetReason("Custom Thing").SetCacheControl("max-age=60").Serialize(nil)
	v := parse(t, raw)
	if v.Status() != 299 || v.Reason() != "Custom Thing" {
		t.Fatalf("status = %d %q", v.Status(), v.Reason())
	}
	if cc, _ := v.Header("Cache-Control"); cc != "max-age=60" {
		t.Fatalf("cache-control = %q", cc)
	}
}

func TestSendTo(t *testing.T) {
	gw := fake.NewGateway(4)
	c, single, _ := gw.Deliver(fake.Inbound{Protocol: layout.ProtocolHTTP1, SocketIndex: 8, Payload: request.RawGet("/")})
	ds := stream.New(gw, c, single)
	req, err := request.NewExternal(ds, fake.Parser{})
	if err != nil {
		t.Fatal(err)
	}
	r := response.New().SetBody(strings.Repeat("y", 6000)).SetConnFlags(layout.DisconnectAfterSend)
	if err := r.SendTo(ds, req); err != nil {
		t.Fatal(err)
	}
	s, _ := gw.Last()
	if s.Conn != layout.DisconnectAfterSend || s.Chunks != 2 || s.SocketIndex != 8 {
		t.Fatalf("sent = %+v", s)
	}
	if v := parse(t, s.Payload); len(v.Body()) != 6000 {
		t.Fatalf("body = %d", len(v.Body()))
	}
	if err := req.Destroy(); err != nil {
		t.Fatal(err)
	}
	if st := gw.Stats(); st.InUse != 0 {
		t.Fatalf("in use = %d", st.InUse)
	}
}
