// File: response/view.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package response

import (
	"strings"

	"github.com/momentics/hioload-gateway/api"
)

// View is a parsed serialized response, used by loopback callers.
type View struct {
	buf []byte
	f   api.ParsedFields
}

// Parse copies raw and parses it through the response half of the wire
// parser. A nonzero status is returned as *api.ParseError.
func Parse(raw []byte, parser api.WireParser) (*View, error) {
	buf := append([]byte(nil), raw...)
	f, code := parser.ParseResponse(buf)
	if code != 0 {
		return nil, &api.ParseError{Code: code}
	}
	return &View{buf: buf, f: f}, nil
}

// Status returns the status code.
func (v *View) Status() int { return int(v.f.StatusCode) }

// Reason returns the reason phrase.
func (v *View) Reason() string { return string(v.f.Reason.Of(v.buf)) }

// Header returns the first header named name, ignoring whitespace around
// the stored name.
func (v *View) Header(name string) (string, bool) {
	for _, h := range v.f.HeaderTable() {
		if strings.TrimSpace(string(h.Name.Of(v.buf))) == name {
			return string(h.Value.Of(v.buf)), true
		}
	}
	return "", false
}

// Headers returns all headers in wire order.
func (v *View) Headers() []Header {
	table := v.f.HeaderTable()
	out := make([]Header, 0, len(table))
	for _, h := range table {
		out = append(out, Header{
			Name:  strings.TrimSpace(string(h.Name.Of(v.buf))),
			Value: string(h.Value.Of(v.buf)),
		})
	}
	return out
}

// SetCookies returns every Set-Cookie value in order.
func (v *View) SetCookies() []string {
	var out []string
	for _, h := range v.Headers() {
		if h.Name == "Set-Cookie" {
			out = append(out, h.Value)
		}
	}
	return out
}

// Body returns the body bytes.
func (v *View) Body() []byte { return v.f.Body.Of(v.buf) }
