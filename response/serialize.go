// File: response/serialize.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package response

import (
	"fmt"
	"strconv"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/request"
)

const (
	crlf          = "\r\n"
	serverHeader  = "Server: SC\r\n"
	defaultCache  = "no-cache"
	maxLenDigits  = 20
	cookieAttrs   = "; Path=/; HttpOnly"
	setCookie     = "Set-Cookie: "
	sessionPrefix = setCookie + request.SessionCookieName + "="
)

// rendered is the body decision taken before sizing.
type rendered struct {
	status      int
	reason      string
	contentType string
	gzip        bool
	body        []byte
	bodyStr     string
}

// negotiate picks a representation for the resource body: the preferred
// type first, then the remaining accepted types in header order.
func negotiate(res api.Resource, req *request.Request) (body []byte, ct string, gz bool, err error) {
	types := []string{"*/*"}
	gzipOK := false
	if req != nil {
		if t := req.AcceptedTypes(); len(t) > 0 {
			types = t
		}
		gzipOK = req.GzipAccepted()
	}
	cres, compressed := res.(api.CompressedResource)
	for _, t := range types {
		if gzipOK && compressed {
			if b, ct, ok := cres.RenderGzip(t); ok {
				return b, ct, true, nil
			}
		}
		if b, ct, ok := res.Render(t); ok {
			return b, ct, false, nil
		}
	}
	return nil, "", false, fmt.Errorf("accept %q: %w", types, api.ErrUnsupportedRepresentation)
}

func (r *Response) render(req *request.Request) rendered {
	out := rendered{status: r.StatusCode(), reason: r.reason, contentType: r.contentType}
	switch r.kind {
	case bodyString:
		out.bodyStr = r.str
	case bodyBytes:
		out.body = r.raw
	case bodyResource:
		body, ct, gz, err := negotiate(r.resource, req)
		if err != nil {
			r.status = 406
			out.status, out.reason, out.contentType = 406, "", ""
			break
		}
		out.body, out.gzip = body, gz
		if ct != "" {
			out.contentType = ct
		}
	}
	if out.reason == "" {
		out.reason = StatusText(out.status)
	}
	return out
}

func (r *Response) needSessionCookie(req *request.Request) bool {
	if !r.session.Valid() {
		return false
	}
	if req == nil {
		return true
	}
	carried, ok := req.SessionFromCookie()
	return !ok || carried != r.session
}

// upperBound sizes the output buffer. Go strings are already byte counted,
// so no expansion factor is applied.
func (r *Response) upperBound(out *rendered, sessionCookie bool) int {
	n := 0
	if r.handshake != nil {
		n += len(r.handshake)
	} else {
		n += len("HTTP/1.1 ") + 3 + 1 + len(out.reason) + len(crlf)
		if out.status > 999 || out.status < 0 {
			n += maxLenDigits
		}
	}
	n += len(serverHeader)
	cc := r.cacheControl
	if cc == "" {
		cc = defaultCache
	}
	n += len("Cache-Control: ") + len(cc) + len(crlf)
	if out.contentType != "" {
		n += len("Content-Type: ") + len(out.contentType) + len(crlf)
	}
	if out.gzip {
		n += len("Content-Encoding: gzip\r\n")
	}
	for _, h := range r.headers {
		n += len(h.Name) + len(": ") + len(h.Value) + len(crlf)
	}
	if sessionCookie {
		n += len(sessionPrefix) + 26 + len(cookieAttrs) + len(crlf)
	}
	for _, c := range r.cookies {
		n += len(setCookie) + len(c) + len(crlf)
	}
	n += len("Content-Length: ") + maxLenDigits + 2*len(crlf)
	n += len(out.body) + len(out.bodyStr)
	return n
}

// Serialize renders the response into one buffer allocated once. req drives
// content negotiation and the session cookie rule; it may be nil.
func (r *Response) Serialize(req *request.Request) ([]byte, error) {
	if r.err != nil {
		return nil, fmt.Errorf("serialize: %w", r.err)
	}
	out := r.render(req)
	sessionCookie := r.needSessionCookie(req)
	size := r.upperBound(&out, sessionCookie)
	buf := make([]byte, 0, size)

	if r.handshake != nil {
		buf = append(buf, r.handshake...)
	} else {
		buf = appendStatusLine(buf, out.status, out.reason)
	}
	buf = append(buf, serverHeader...)
	buf = append(buf, "Cache-Control: "...)
	if r.cacheControl != "" {
		buf = append(buf, r.cacheControl...)
	} else {
		buf = append(buf, defaultCache...)
	}
	buf = append(buf, crlf...)
	if out.contentType != "" {
		buf = appendHeader(buf, "Content-Type", out.contentType)
	}
	if out.gzip {
		buf = append(buf, "Content-Encoding: gzip\r\n"...)
	}
	for _, h := range r.headers {
		buf = appendHeader(buf, h.Name, h.Value)
	}
	if sessionCookie {
		buf = append(buf, sessionPrefix...)
		buf = append(buf, r.session.String()...)
		buf = append(buf, cookieAttrs...)
		buf = append(buf, crlf...)
	}
	for _, c := range r.cookies {
		buf = append(buf, setCookie...)
		buf = append(buf, c...)
		buf = append(buf, crlf...)
	}
	buf = append(buf, "Content-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(out.body)+len(out.bodyStr)), 10)
	buf = append(buf, crlf+crlf...)
	buf = append(buf, out.body...)
	buf = append(buf, out.bodyStr...)

	if cap(buf) != size {
		return nil, fmt.Errorf("serialize: buffer grew past %d bytes: %w", size, api.ErrInvalidArgument)
	}
	return buf, nil
}

func appendHeader(dst []byte, name, value string) []byte {
	dst = append(dst, name...)
	dst = append(dst, ": "...)
	dst = append(dst, value...)
	return append(dst, crlf...)
}
