// File: api/control.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control is the runtime control plane of a server.
//
// GetConfig returns the flat key/value view of the active configuration.
// SetConfig applies a partial update atomically: only the session idle
// timeout and the log level may change at runtime, any other key or an
// invalid value rejects the whole update with ErrInvalidArgument, and
// OnReload callbacks run after a successful update.
//
// Stats merges the counter snapshot (chunks, sessions, responses, parse
// errors, panics) with every debug probe, the probes keyed as
// "debug.<name>".
type Control interface {
	GetConfig() map[string]any
	SetConfig(cfg map[string]any) error
	Stats() map[string]any
	OnReload(fn func())
	RegisterDebugProbe(name string, fn func() any)
}
