// File: api/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Narrow seam in front of the native HTTP byte parser.

package api

// MaxHeaders bounds the parser's header table.
const MaxHeaders = 32

// Span addresses bytes relative to the buffer handed to the parser.
type Span struct {
	Off uint32
	Len uint32
}

// Empty reports a zero-length span.
func (s Span) Empty() bool { return s.Len == 0 }

// Of returns the bytes covered by s, or nil when s falls outside buf.
func (s Span) Of(buf []byte) []byte {
	end := uint64(s.Off) + uint64(s.Len)
	if s.Len == 0 || end > uint64(len(buf)) {
		return nil
	}
	return buf[s.Off:end:end]
}

// HeaderField is one entry of the parsed header table.
type HeaderField struct {
	Name  Span
	Value Span
}

// Method enumerates request methods decoded by the parser.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGET
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodHEAD
	MethodOPTIONS
	MethodPATCH
	MethodCONNECT
	MethodTRACE
)

var methodNames = [...]string{
	MethodUnknown: "UNKNOWN",
	MethodGET:     "GET",
	MethodPOST:    "POST",
	MethodPUT:     "PUT",
	MethodDELETE:  "DELETE",
	MethodHEAD:    "HEAD",
	MethodOPTIONS: "OPTIONS",
	MethodPATCH:   "PATCH",
	MethodCONNECT: "CONNECT",
	MethodTRACE:   "TRACE",
}

func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return methodNames[MethodUnknown]
}

// MethodFromString maps a request-line token to a Method.
func MethodFromString(s string) Method {
	for i, name := range methodNames {
		if i != 0 && name == s {
			return Method(i)
		}
	}
	return MethodUnknown
}

// ParsedFields is the parser's output: offsets into the parsed buffer plus
// decoded scalars. The same layout serves requests and responses.
type ParsedFields struct {
	RequestLine Span // request line, or status line for responses
	URI         Span
	HeaderBlock Span
	Cookies     Span // value of the Cookie header
	Accept      Span // value of the Accept header
	Body        Span

	Headers     [MaxHeaders]HeaderField
	HeaderCount uint8

	Method       Method
	GzipAccepted bool
	Upgrade      bool // Upgrade: websocket present

	StatusCode uint16 // responses only
	Reason     Span   // responses only
}

// HeaderTable returns the populated part of the header table.
func (f *ParsedFields) HeaderTable() []HeaderField {
	n := int(f.HeaderCount)
	if n > MaxHeaders {
		n = MaxHeaders
	}
	return f.Headers[:n]
}

// WireParser is the foreign parser. A status of 0 means success; any other
// value is a parser-specific error code and the fields must be ignored.
type WireParser interface {
	ParseRequest(buf []byte) (ParsedFields, int)
	ParseResponse(buf []byte) (ParsedFields, int)
}
