// File: request/rawget.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package request

// RawGet builds the minimal synthetic request used for loopback calls:
// "GET <uri>" followed by an empty header block, without a version token.
func RawGet(uri string) []byte {
	b := make([]byte, 0, len("GET ")+len(uri)+len("\r\n\r\n"))
	b = append(b, "GET "...)
	b = append(b, uri...)
	return append(b, "\r\n\r\n"...)
}
