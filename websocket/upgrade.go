// File: websocket/upgrade.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package websocket

import (
	"fmt"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/request"
)

// Upgrade approves a WebSocket upgrade of req onto the channel (port, group).
// It writes the handler slot, group id, cargo id and the approval flag into
// sd and returns the handshake block for response.SetHandshake.
func (r *Registry) Upgrade(req *request.Request, sd layout.SocketData, port uint16, group string, cargoID uint64) ([]byte, *Registration, error) {
	reg, ok := r.Lookup(port, group)
	if !ok {
		return nil, nil, fmt.Errorf("upgrade to %q on port %d: %w", group, port, api.ErrChannelNotRegistered)
	}
	hs, err := Handshake(req)
	if err != nil {
		return nil, nil, fmt.Errorf("upgrade to %q: %w", group, err)
	}
	sd.SetHandlerSlot(reg.Slot)
	sd.SetChannelID(reg.GroupID)
	sd.SetCargoID(cargoID)
	sd.AddFlags(layout.FlagUpgradeApproved)
	return hs, reg, nil
}
