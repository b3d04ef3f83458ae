// File: resource/resource.go
// Package resource
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ready-made response bodies that negotiate their representation. Every
// representation is encoded once at construction, together with a gzip
// copy, so negotiation only selects bytes.

package resource

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sugawarayuuta/sonnet"

	"github.com/momentics/hioload-gateway/api"
)

// Common content types.
const (
	TypeJSON  = "application/json"
	TypeText  = "text/plain; charset=utf-8"
	TypeHTML  = "text/html; charset=utf-8"
	TypeOctet = "application/octet-stream"
)

// Representation is one encoded form of a resource.
type Representation struct {
	ContentType string
	Body        []byte
}

type entry struct {
	ct    string
	mime  string // content type without parameters
	plain []byte
	gz    []byte
}

// Static is an immutable set of representations. The first one is the
// default served for "*/*".
type Static struct {
	entries []entry
}

// Option tunes NewStatic.
type Option func(*options)

type options struct {
	level   int
	minGzip int
}

// WithGzipLevel sets the compression level (gzip.BestSpeed..gzip.BestCompression).
func WithGzipLevel(level int) Option {
	return func(o *options) { o.level = level }
}

// WithMinGzipSize skips compression for bodies shorter than n bytes.
func WithMinGzipSize(n int) Option {
	return func(o *options) { o.minGzip = n }
}

// NewStatic precompresses every representation.
func NewStatic(reps []Representation, opts ...Option) (*Static, error) {
	if len(reps) == 0 {
		return nil, fmt.Errorf("static resource: no representations: %w", api.ErrInvalidArgument)
	}
	o := options{level: gzip.DefaultCompression}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Static{entries: make([]entry, 0, len(reps))}
	for _, r := range reps {
		e := entry{ct: r.ContentType, mime: baseType(r.ContentType), plain: r.Body}
		if e.mime == "" {
			return nil, fmt.Errorf("static resource: empty content type: %w", api.ErrInvalidArgument)
		}
		if len(r.Body) >= o.minGzip {
			gz, err := compress(r.Body, o.level)
			if err != nil {
				return nil, fmt.Errorf("static resource %s: %w", e.mime, err)
			}
			e.gz = gz
		}
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Text is a single text/plain representation.
func Text(s string, opts ...Option) (*Static, error) {
	return NewStatic([]Representation{{ContentType: TypeText, Body: []byte(s)}}, opts...)
}

// JSON encodes v once and serves it as application/json, with an optional
// text fallback for clients that only accept text/plain.
func JSON(v any, opts ...Option) (*Static, error) {
	body, err := sonnet.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json resource: %w", err)
	}
	return NewStatic([]Representation{
		{ContentType: TypeJSON, Body: body},
		{ContentType: TypeText, Body: body},
	}, opts...)
}

func compress(body []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func baseType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// match finds the entry for an Accept media range: exact type, "type/*"
// or "*/*".
func (s *Static) match(mime string) *entry {
	want := baseType(mime)
	if want == "*/*" || want == "*" {
		return &s.entries[0]
	}
	if major, ok := strings.CutSuffix(want, "/*"); ok {
		for i := range s.entries {
			if strings.HasPrefix(s.entries[i].mime, major+"/") {
				return &s.entries[i]
			}
		}
		return nil
	}
	for i := range s.entries {
		if s.entries[i].mime == want {
			return &s.entries[i]
		}
	}
	return nil
}

// Render implements api.Resource.
func (s *Static) Render(mime string) ([]byte, string, bool) {
	e := s.match(mime)
	if e == nil {
		return nil, "", false
	}
	return e.plain, e.ct, true
}

// RenderGzip implements api.CompressedResource. Representations below the
// minimum gzip size report ok=false so the plain form is used.
func (s *Static) RenderGzip(mime string) ([]byte, string, bool) {
	e := s.match(mime)
	if e == nil || e.gz == nil {
		return nil, "", false
	}
	return e.gz, e.ct, true
}

// Types lists the content types served, default first.
func (s *Static) Types() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.ct
	}
	return out
}

var _ api.CompressedResource = (*Static)(nil)
