// File: fake/registrar.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-gateway/api"
)

// Registrar hands out gateway handler slots for WebSocket channels.
type Registrar struct {
	mu     sync.Mutex
	next   uint16
	live   map[uint16]uint32
	fail   error
	Calls  int
	Unregs int
}

// NewRegistrar creates a registrar whose first slot is 1.
func NewRegistrar() *Registrar {
	return &Registrar{next: 1, live: make(map[uint16]uint32)}
}

// Fail makes later registrations return err.
func (r *Registrar) Fail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// RegisterHandler allocates a slot for (port, channelID).
func (r *Registrar) RegisterHandler(port uint16, channelID uint32) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.fail != nil {
		return 0, r.fail
	}
	if r.next == 0 {
		return 0, api.Exhausted("handler slot")
	}
	slot := r.next
	r.next++
	r.live[slot] = channelID
	return slot, nil
}

// UnregisterHandler releases a slot.
func (r *Registrar) UnregisterHandler(port uint16, slot uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[slot]; !ok {
		return fmt.Errorf("slot %d on port %d: %w", slot, port, api.ErrNotFound)
	}
	delete(r.live, slot)
	r.Unregs++
	return nil
}
