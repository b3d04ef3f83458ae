// File: request/doc.go
// Package request
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package request exposes a parsed HTTP request as offsets over the buffer
// the wire parser saw. External requests borrow a gateway chunk through a
// stream.DataStream; internal requests own a private copy of the caller's
// bytes. Once the backing is released every accessor returns a zero value.
package request
