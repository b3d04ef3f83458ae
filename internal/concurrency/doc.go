// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler pool: a fixed set of workers, each draining its own FIFO run
// queue on one goroutine, optionally pinned to a CPU. Submit is the only
// way work crosses from one scheduler to another.
package concurrency
