// File: server/gateway.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/pool"
)

// observedGateway counts the chunks the core obtains and frees itself.
// Chunks freed by the gateway after transmission are not seen here.
type observedGateway struct {
	api.Gateway
	obs pool.Observer
}

func observe(gw api.Gateway, obs pool.Observer) api.Gateway {
	return &observedGateway{Gateway: gw, obs: obs}
}

func (g *observedGateway) Obtain() (api.Chunk, error) {
	c, err := g.Gateway.Obtain()
	switch {
	case err == nil:
		g.obs.ChunkObtained()
	case errors.Is(err, api.ErrResourceExhausted):
		g.obs.ChunkExhausted()
	}
	return c, err
}

func (g *observedGateway) Free(idx api.ChunkIndex) error {
	err := g.Gateway.Free(idx)
	if err == nil {
		g.obs.ChunkFreed()
	}
	return err
}

// localRegistrar allocates handler slots when the gateway does not.
type localRegistrar struct {
	mu   sync.Mutex
	next uint16
	live map[uint16]struct{}
}

func newLocalRegistrar() *localRegistrar {
	return &localRegistrar{next: 1, live: make(map[uint16]struct{})}
}

func (r *localRegistrar) RegisterHandler(port uint16, channelID uint32) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range 1 << 16 {
		slot := r.next
		r.next++
		if slot == 0 {
			continue
		}
		if _, used := r.live[slot]; !used {
			r.live[slot] = struct{}{}
			return slot, nil
		}
	}
	return 0, api.Exhausted(fmt.Sprintf("handler slots for port %d channel %#x", port, channelID))
}

func (r *localRegistrar) UnregisterHandler(_, slot uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[slot]; !ok {
		return fmt.Errorf("handler slot %d: %w", slot, api.ErrNotFound)
	}
	delete(r.live, slot)
	return nil
}
