// File: internal/concurrency/pin_other.go
//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "runtime"

// pinCurrentThread only locks the OS thread on platforms without
// sched_setaffinity.
func pinCurrentThread(int) error {
	runtime.LockOSThread()
	return nil
}
