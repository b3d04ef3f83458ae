// File: session/values.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-safe, propagation-aware key/value store for sessions.

package session

import (
	"sync"
	"time"

	"github.com/momentics/hioload-gateway/api"
)

type entry struct {
	val        any
	propagated bool
	expiry     time.Time
}

type valueStore struct {
	mu    sync.RWMutex
	store map[string]entry
}

var _ api.Values = (*valueStore)(nil)

// NewValues creates an empty store.
func NewValues() api.Values {
	return &valueStore{store: make(map[string]entry)}
}

// Set stores a key-value pair with optional propagation flag.
func (c *valueStore) Set(key string, value any, propagated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry{val: value, propagated: propagated}
}

// Get retrieves a live value.
func (c *valueStore) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e.val, true
}

func (e entry) expired(now time.Time) bool {
	return !e.expiry.IsZero() && now.After(e.expiry)
}

// Delete removes a key.
func (c *valueStore) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// Clone copies the propagated, unexpired keys only.
func (c *valueStore) Clone() api.Values {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make(map[string]entry, len(c.store))
	for k, v := range c.store {
		if v.propagated && !v.expired(now) {
			cp[k] = v
		}
	}
	return &valueStore{store: cp}
}

// WithExpiration sets a TTL for an existing key.
func (c *valueStore) WithExpiration(key string, ttlNanos int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.store[key]; ok {
		e.expiry = time.Now().Add(time.Duration(ttlNanos))
		c.store[key] = e
	}
}

// IsPropagated reports the propagation flag.
func (c *valueStore) IsPropagated(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	return ok && e.propagated
}

// Keys returns all unexpired keys.
func (c *valueStore) Keys() []string {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.store))
	for k, e := range c.store {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}
