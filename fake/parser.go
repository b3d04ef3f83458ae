// File: fake/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reference HTTP/1.x parser behind api.WireParser. Produces offsets only,
// never copies, and reports failures as nonzero status codes like the
// native parser does.

package fake

import (
	"bytes"

	"github.com/momentics/hioload-gateway/api"
)

// Parser status codes.
const (
	ParseOK = iota
	ParseIncomplete
	ParseBadRequestLine
	ParseBadHeader
	ParseTooManyHeaders
	ParseBadContentLength
	ParseTruncatedBody
	ParseBadStatusLine
)

// Parser is a stateless reference parser.
type Parser struct{}

var _ api.WireParser = Parser{}

// line returns the line starting at pos without its terminator and the
// position after the terminator.
func line(buf []byte, pos int) (from, to, next int, ok bool) {
	i := bytes.IndexByte(buf[pos:], '\n')
	if i < 0 {
		return 0, 0, 0, false
	}
	to = pos + i
	next = to + 1
	if to > pos && buf[to-1] == '\r' {
		to--
	}
	return pos, to, next, true
}

func span(from, to int) api.Span {
	return api.Span{Off: uint32(from), Len: uint32(to - from)}
}

func trim(buf []byte, from, to int) (int, int) {
	for from < to && (buf[from] == ' ' || buf[from] == '\t') {
		from++
	}
	for to > from && (buf[to-1] == ' ' || buf[to-1] == '\t') {
		to--
	}
	return from, to
}

// ParseRequest parses a request line, headers and a Content-Length body.
// The version token is optional.
func (Parser) ParseRequest(buf []byte) (api.ParsedFields, int) {
	var f api.ParsedFields
	from, to, next, ok := line(buf, 0)
	if !ok {
		return f, ParseIncomplete
	}
	f.RequestLine = span(from, to)
	rl := buf[from:to]
	sp := bytes.IndexByte(rl, ' ')
	if sp <= 0 {
		return f, ParseBadRequestLine
	}
	f.Method = api.MethodFromString(string(rl[:sp]))
	if f.Method == api.MethodUnknown {
		return f, ParseBadRequestLine
	}
	uriFrom := from + sp + 1
	uriTo := to
	if sp2 := bytes.IndexByte(buf[uriFrom:to], ' '); sp2 >= 0 {
		uriTo = uriFrom + sp2
		if !bytes.HasPrefix(buf[uriTo+1:to], []byte("HTTP/")) {
			return f, ParseBadRequestLine
		}
	}
	if uriTo == uriFrom || (buf[uriFrom] != '/' && buf[uriFrom] != '*') {
		return f, ParseBadRequestLine
	}
	f.URI = span(uriFrom, uriTo)

	pos, code := parseHeaders(buf, next, &f)
	if code != ParseOK {
		return f, code
	}
	return f, parseBody(buf, pos, &f, false)
}

// ParseResponse parses a status line, headers and the body.
func (Parser) ParseResponse(buf []byte) (api.ParsedFields, int) {
	var f api.ParsedFields
	from, to, next, ok := line(buf, 0)
	if !ok {
		return f, ParseIncomplete
	}
	f.RequestLine = span(from, to)
	sl := buf[from:to]
	if !bytes.HasPrefix(sl, []byte("HTTP/1.")) || len(sl) < 12 || sl[8] != ' ' {
		return f, ParseBadStatusLine
	}
	code := 0
	for _, c := range sl[9:12] {
		if c < '0' || c > '9' {
			return f, ParseBadStatusLine
		}
		code = code*10 + int(c-'0')
	}
	f.StatusCode = uint16(code)
	if len(sl) > 13 {
		f.Reason = span(from+13, to)
	}
	pos, st := parseHeaders(buf, next, &f)
	if st != ParseOK {
		return f, st
	}
	return f, parseBody(buf, pos, &f, true)
}

const noContentLength = -1

func parseHeaders(buf []byte, pos int, f *api.ParsedFields) (int, int) {
	blockFrom := pos
	blockTo := pos
	for {
		from, to, next, ok := line(buf, pos)
		if !ok {
			return 0, ParseIncomplete
		}
		if from == to {
			f.HeaderBlock = span(blockFrom, blockTo)
			return next, ParseOK
		}
		colon := bytes.IndexByte(buf[from:to], ':')
		if colon <= 0 {
			return 0, ParseBadHeader
		}
		if int(f.HeaderCount) == api.MaxHeaders {
			return 0, ParseTooManyHeaders
		}
		vf, vt := trim(buf, from+colon+1, to)
		h := api.HeaderField{Name: span(from, from+colon), Value: span(vf, vt)}
		f.Headers[f.HeaderCount] = h
		f.HeaderCount++

		nf, nt := trim(buf, from, from+colon)
		name := buf[nf:nt]
		switch {
		case bytes.EqualFold(name, []byte("Cookie")):
			f.Cookies = h.Value
		case bytes.EqualFold(name, []byte("Accept")):
			f.Accept = h.Value
		case bytes.EqualFold(name, []byte("Accept-Encoding")):
			f.GzipAccepted = bytes.Contains(bytes.ToLower(buf[vf:vt]), []byte("gzip"))
		case bytes.EqualFold(name, []byte("Upgrade")):
			f.Upgrade = bytes.EqualFold(buf[vf:vt], []byte("websocket"))
		}
		blockTo = next
		pos = next
	}
}

func parseBody(buf []byte, pos int, f *api.ParsedFields, toEnd bool) int {
	n := noContentLength
	for _, h := range f.HeaderTable() {
		nf, nt := trim(buf, int(h.Name.Off), int(h.Name.Off+h.Name.Len))
		if !bytes.EqualFold(buf[nf:nt], []byte("Content-Length")) {
			continue
		}
		v := h.Value.Of(buf)
		if len(v) == 0 {
			return ParseBadContentLength
		}
		n = 0
		for _, c := range v {
			if c < '0' || c > '9' {
				return ParseBadContentLength
			}
			n = n*10 + int(c-'0')
		}
	}
	switch {
	case n < 0 && toEnd:
		n = len(buf) - pos
	case n < 0:
		n = 0
	}
	if pos+n > len(buf) {
		return ParseTruncatedBody
	}
	f.Body = span(pos, pos+n)
	return ParseOK
}
