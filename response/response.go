// File: response/response.go
// Package response
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Response builder. A Response is filled by the application, serialized
// once into a single allocation and then discarded.

package response

import (
	"fmt"
	"strings"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/identity"
	"github.com/momentics/hioload-gateway/core/layout"
)

type bodyKind uint8

const (
	bodyNone bodyKind = iota
	bodyString
	bodyBytes
	bodyResource
)

// Header is one entry of the ordered header map.
type Header struct {
	Name  string
	Value string
}

// Response accumulates status, headers, cookies and one body source.
type Response struct {
	status       int
	reason       string
	contentType  string
	cacheControl string

	kind     bodyKind
	str      string
	raw      []byte
	resource api.Resource

	headers   []Header
	cookies   []string
	handshake []byte
	conn      layout.ConnFlags
	session   identity.Identity

	err error // first rejected field, reported by Serialize
}

// New returns an empty 200 response.
func New() *Response {
	return &Response{session: identity.Invalid}
}

// SetStatus sets the status code; the reason defaults to the standard phrase.
func (r *Response) SetStatus(code int) *Response {
	r.status = code
	return r
}

// SetReason overrides the reason phrase.
func (r *Response) SetReason(reason string) *Response {
	if r.accept("reason", reason) {
		r.reason = reason
	}
	return r
}

// SetContentType sets Content-Type. Resource bodies override it with the
// negotiated type.
func (r *Response) SetContentType(ct string) *Response {
	if r.accept("Content-Type", ct) {
		r.contentType = ct
	}
	return r
}

// SetCacheControl replaces the default "no-cache".
func (r *Response) SetCacheControl(cc string) *Response {
	if r.accept("Cache-Control", cc) {
		r.cacheControl = cc
	}
	return r
}

// SetHeader sets a header, replacing an earlier value for the same name and
// keeping its position.
//
// A name that is not an HTTP token, or a value holding CR or LF, is not
// added and makes Serialize fail.
func (r *Response) SetHeader(name, value string) *Response {
	if !validName(name) {
		r.reject(fmt.Errorf("header name %q: %w", name, api.ErrInvalidArgument))
		return r
	}
	if !r.accept(name, value) {
		return r
	}
	for i := range r.headers {
		if r.headers[i].Name == name {
			r.headers[i].Value = value
			return r
		}
	}
	r.headers = append(r.headers, Header{Name: name, Value: value})
	return r
}

// AddCookie appends a raw Set-Cookie value such as "k=v; Path=/".
// A cookie holding CR or LF is not added and makes Serialize fail.
func (r *Response) AddCookie(cookie string) *Response {
	if r.accept("Set-Cookie", cookie) {
		r.cookies = append(r.cookies, cookie)
	}
	return r
}

// accept reports whether value is safe to write on a header line, and
// records the rejection otherwise.
func (r *Response) accept(field, value string) bool {
	for i := 0; i < len(value); i++ {
		if b := value[i]; b == '\r' || b == '\n' {
			r.reject(fmt.Errorf("%s value holds a line break: %w", field, api.ErrInvalidArgument))
			return false
		}
	}
	return true
}

func (r *Response) reject(err error) {
	if r.err == nil {
		r.err = err
	}
}

// validName reports whether name is an RFC 9110 token.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", b) >= 0:
		default:
			return false
		}
	}
	return true
}

// SetBody sets a string body, clearing a bytes body. Panics when a resource
// body is already set.
func (r *Response) SetBody(s string) *Response {
	r.mustNotMix(bodyString)
	r.kind, r.str, r.raw = bodyString, s, nil
	return r
}

// SetBodyBytes sets a bytes body, clearing a string body. The slice is not
// copied until serialization. Panics when a resource body is already set.
func (r *Response) SetBodyBytes(b []byte) *Response {
	r.mustNotMix(bodyBytes)
	r.kind, r.raw, r.str = bodyBytes, b, ""
	return r
}

// SetResource sets a negotiated body. Panics when a string or bytes body is
// already set.
func (r *Response) SetResource(res api.Resource) *Response {
	r.mustNotMix(bodyResource)
	r.kind, r.resource = bodyResource, res
	return r
}

func (r *Response) mustNotMix(k bodyKind) {
	if r.kind == bodyNone || r.kind == k {
		return
	}
	if r.kind == bodyResource || k == bodyResource {
		panic("response: resource body cannot be combined with a string or bytes body")
	}
}

// SetHandshake replaces the status line with a prepared WebSocket handshake.
// hs must end with CRLF and must not contain the blank line.
func (r *Response) SetHandshake(hs []byte) *Response {
	r.handshake = hs
	return r
}

// SetConnFlags selects what the gateway does with the connection after send.
func (r *Response) SetConnFlags(f layout.ConnFlags) *Response {
	r.conn = f
	return r
}

// AttachSession makes the response carry a session cookie unless the
// request already presented the same identity.
func (r *Response) AttachSession(id identity.Identity) *Response {
	r.session = id
	return r
}

// StatusCode is the effective status; after Serialize it reflects a 406
// forced by content negotiation.
func (r *Response) StatusCode() int {
	if r.status == 0 {
		return 200
	}
	return r.status
}

// ConnFlags returns the connection-control flag.
func (r *Response) ConnFlags() layout.ConnFlags { return r.conn }

// Session returns the attached identity.
func (r *Response) Session() identity.Identity { return r.session }
