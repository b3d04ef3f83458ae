// File: internal/concurrency/pin_linux.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentThread locks the goroutine to its OS thread and restricts that
// thread to cpu.
func pinCurrentThread(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
