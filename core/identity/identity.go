// File: core/identity/identity.go
// Package identity names a logical session across schedulers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// An Identity is embedded verbatim in the socket-data session block and
// travels to browsers as a fixed-width hex cookie value.

package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/momentics/hioload-gateway/core/layout"
)

const (
	// InvalidLinearIndex marks "no session".
	InvalidLinearIndex uint32 = math.MaxUint32
	// InvalidScheduler is stored in the scheduler byte of an unset identity.
	InvalidScheduler uint8 = math.MaxUint8

	// EncodedLen is the length of the cookie form: 1+4+8 bytes as hex.
	EncodedLen = 2 * (1 + 4 + 8)
)

// ErrMalformed is returned by Parse for values that are not an encoded identity.
var ErrMalformed = errors.New("identity: malformed session value")

// Identity is the (scheduler, linear index, salt) triple.
type Identity struct {
	SchedulerID uint8
	LinearIndex uint32
	Salt        uint64
}

// Invalid is the "no session" sentinel.
var Invalid = Identity{SchedulerID: InvalidScheduler, LinearIndex: InvalidLinearIndex}

// Valid reports whether the identity denotes a session.
func (id Identity) Valid() bool { return id.LinearIndex != InvalidLinearIndex }

// Destroy resets the identity to the sentinel.
func (id *Identity) Destroy() { *id = Invalid }

// String returns the cookie encoding: scheduler, index and salt as big-endian hex.
func (id Identity) String() string {
	var raw [EncodedLen / 2]byte
	raw[0] = id.SchedulerID
	for i := 0; i < 4; i++ {
		raw[1+i] = byte(id.LinearIndex >> (24 - 8*i))
	}
	for i := 0; i < 8; i++ {
		raw[5+i] = byte(id.Salt >> (56 - 8*i))
	}
	return hex.EncodeToString(raw[:])
}

// GoString keeps identities readable in test failures.
func (id Identity) GoString() string {
	return fmt.Sprintf("identity{sched:%d idx:%d salt:%#x}", id.SchedulerID, id.LinearIndex, id.Salt)
}

// Parse decodes the cookie encoding produced by String.
func Parse(s string) (Identity, error) {
	if len(s) != EncodedLen {
		return Invalid, ErrMalformed
	}
	var raw [EncodedLen / 2]byte
	if _, err := hex.Decode(raw[:], []byte(s)); err != nil {
		return Invalid, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	id := Identity{SchedulerID: raw[0]}
	for i := 0; i < 4; i++ {
		id.LinearIndex = id.LinearIndex<<8 | uint32(raw[1+i])
	}
	for i := 0; i < 8; i++ {
		id.Salt = id.Salt<<8 | uint64(raw[5+i])
	}
	return id, nil
}

// Read extracts the identity stored in a socket-data block.
func Read(sd layout.SocketData) Identity {
	s, idx, salt := sd.SessionFields()
	return Identity{SchedulerID: s, LinearIndex: idx, Salt: salt}
}

// Write stores the identity into a socket-data block.
func (id Identity) Write(sd layout.SocketData) {
	sd.SetSessionFields(id.SchedulerID, id.LinearIndex, id.Salt)
}
