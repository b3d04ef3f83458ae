// File: api/context.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-session key/value state with explicit propagation semantics.
// Propagated keys survive Clone into loopback requests issued on behalf of
// the session; the rest stay local.

package api

// Values provides a lightweight key-value store with explicit propagation semantics.
type Values interface {
	// Set assigns a value for a key, optionally marking it as propagated.
	Set(key string, value any, propagated bool)
	// Get fetches a value, returning (value, exists).
	Get(key string) (any, bool)
	// Delete removes a value/key.
	Delete(key string)
	// Clone returns a copy holding only propagated keys.
	Clone() Values
	// WithExpiration sets a TTL for a key.
	WithExpiration(key string, ttlNanos int64)
	// IsPropagated checks if a key is marked for propagation.
	IsPropagated(key string) bool
	// Keys returns all present keys.
	Keys() []string
}
