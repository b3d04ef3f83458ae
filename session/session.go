// File: session/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/identity"
)

// Session is one bound directory record.
type Session struct {
	id       identity.Identity
	value    any
	values   api.Values
	created  time.Time
	lastSeen atomic.Int64
	done     chan struct{}
	once     sync.Once
}

func newSession(id identity.Identity, value any, now time.Time) *Session {
	s := &Session{
		id:      id,
		value:   value,
		values:  NewValues(),
		created: now,
		done:    make(chan struct{}),
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// ID returns the identity the session was bound with.
func (s *Session) ID() identity.Identity { return s.id }

// Value returns the application object passed to Create.
func (s *Session) Value() any { return s.value }

// Values exposes the session key/value store.
func (s *Session) Values() api.Values { return s.values }

// Created returns the creation time.
func (s *Session) Created() time.Time { return s.created }

// Touch records activity at now.
func (s *Session) Touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

// LastSeen returns the last recorded activity.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Cancel closes Done. Safe to call more than once.
func (s *Session) Cancel() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once the session is destroyed or evicted.
func (s *Session) Done() <-chan struct{} { return s.done }
