// Package layout
// Author: momentics <momentics@gmail.com>
//
// Fixed byte layout of a gateway chunk and its socket-data block.
// Every offset is a compile-time constant anchored either at the chunk start
// or at the socket-data start; all multi-byte integers are little-endian.
package layout
