// File: request/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package request

import (
	"fmt"
	"strings"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/identity"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/stream"
)

// Request is a read-only view produced by a single parser call.
type Request struct {
	b backing
	f api.ParsedFields
}

// Header is a materialized header table entry.
type Header struct {
	Name  string
	Value string
}

// Option customizes internal requests.
type Option func(*owned)

// WithSession attaches a session identity to an internal request, the way
// the socket-data block does for external ones.
func WithSession(id identity.Identity) Option {
	return func(o *owned) { o.sess = id }
}

// NewExternal parses the payload of ds. On failure ds is left untouched and
// remains owned by the caller. A nonzero parser status is returned as
// *api.ParseError.
func NewExternal(ds *stream.DataStream, parser api.WireParser) (*Request, error) {
	if ds == nil || parser == nil {
		return nil, fmt.Errorf("new external request: %w", api.ErrInvalidArgument)
	}
	if p := protocolOf(ds); p != layout.ProtocolHTTP1 {
		return nil, fmt.Errorf("new external request: protocol %s: %w", p, api.ErrInvalidArgument)
	}
	buf, err := ds.Payload()
	if err != nil {
		return nil, fmt.Errorf("new external request: %w", err)
	}
	f, code := parser.ParseRequest(buf)
	if code != 0 {
		return nil, &api.ParseError{Code: code}
	}
	return &Request{b: &borrowed{ds: ds, buf: buf}, f: f}, nil
}

// NewInternal copies raw into a private buffer and parses the copy.
func NewInternal(raw []byte, parser api.WireParser, opts ...Option) (*Request, error) {
	if parser == nil {
		return nil, fmt.Errorf("new internal request: %w", api.ErrInvalidArgument)
	}
	o := &owned{buf: append(make([]byte, 0, len(raw)), raw...), sess: identity.Invalid}
	for _, opt := range opts {
		opt(o)
	}
	f, code := parser.ParseRequest(o.buf)
	if code != 0 {
		return nil, &api.ParseError{Code: code}
	}
	return &Request{b: o, f: f}, nil
}

// Alive reports whether the backing buffer is still readable.
func (r *Request) Alive() bool { return r.b.bytes() != nil }

// External reports whether the request borrows a gateway chunk.
func (r *Request) External() bool {
	_, ok := r.b.(*borrowed)
	return ok
}

// Stream returns the owning data stream of an external request, or nil.
func (r *Request) Stream() *stream.DataStream {
	if b, ok := r.b.(*borrowed); ok {
		return b.ds
	}
	return nil
}

// Destroy releases the backing. External requests defer to the stream,
// which makes a second call or a call after the reply was sent a no-op.
func (r *Request) Destroy() error { return r.b.release() }

func (r *Request) text(s api.Span) string {
	return string(s.Of(r.b.bytes()))
}

// URI returns the request target.
func (r *Request) URI() string { return r.text(r.f.URI) }

// Method returns the decoded method, MethodUnknown once released.
func (r *Request) Method() api.Method {
	if !r.Alive() {
		return api.MethodUnknown
	}
	return r.f.Method
}

// RequestLine returns the first line without its terminator.
func (r *Request) RequestLine() string { return r.text(r.f.RequestLine) }

// Header returns the value of the first header whose name, with surrounding
// whitespace removed, equals name exactly.
func (r *Request) Header(name string) (string, bool) {
	buf := r.b.bytes()
	if buf == nil {
		return "", false
	}
	for _, h := range r.f.HeaderTable() {
		if string(trimSpace(h.Name.Of(buf))) == name {
			return string(h.Value.Of(buf)), true
		}
	}
	return "", false
}

// Headers returns every header in wire order.
func (r *Request) Headers() []Header {
	buf := r.b.bytes()
	if buf == nil {
		return nil
	}
	table := r.f.HeaderTable()
	out := make([]Header, 0, len(table))
	for _, h := range table {
		out = append(out, Header{
			Name:  string(trimSpace(h.Name.Of(buf))),
			Value: string(h.Value.Of(buf)),
		})
	}
	return out
}

// BodyBytes returns the body without copying. The slice is valid only
// while the request is alive.
func (r *Request) BodyBytes() []byte { return r.f.Body.Of(r.b.bytes()) }

// BodyString returns a copy of the body decoded as UTF-8.
func (r *Request) BodyString() string { return r.text(r.f.Body) }

// Accept returns the raw Accept header value.
func (r *Request) Accept() string { return r.text(r.f.Accept) }

// AcceptedTypes lists the Accept entries in header order with parameters
// such as q-values removed.
func (r *Request) AcceptedTypes() []string {
	v := r.Accept()
	if v == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if i := strings.IndexByte(part, ';'); i >= 0 {
			part = part[:i]
		}
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// PreferredType is the first accepted type, "*/*" when none is declared.
func (r *Request) PreferredType() string {
	if t := r.AcceptedTypes(); len(t) > 0 {
		return t[0]
	}
	return "*/*"
}

// GzipAccepted reports Accept-Encoding: gzip.
func (r *Request) GzipAccepted() bool { return r.Alive() && r.f.GzipAccepted }

// IsWebSocketUpgrade reports Upgrade: websocket.
func (r *Request) IsWebSocketUpgrade() bool { return r.Alive() && r.f.Upgrade }

// Session returns the identity carried by the socket-data block, or the one
// attached with WithSession for internal requests.
func (r *Request) Session() identity.Identity { return r.b.session() }

// SessionFromCookie decodes the session cookie, if present and well formed.
func (r *Request) SessionFromCookie() (identity.Identity, bool) {
	v, ok := r.Cookie(SessionCookieName)
	if !ok {
		return identity.Invalid, false
	}
	id, err := identity.Parse(v)
	if err != nil {
		return identity.Invalid, false
	}
	return id, true
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
