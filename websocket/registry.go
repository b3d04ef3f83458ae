// File: websocket/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel registry: maps (port, group name) to a gateway handler slot and
// the binary/text/disconnect handlers attached to it.

package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/momentics/hioload-gateway/api"
)

// Registrar is the gateway's handler-slot allocator.
type Registrar interface {
	RegisterHandler(port uint16, channelID uint32) (slot uint16, err error)
	UnregisterHandler(port, slot uint16) error
}

// Peer is the remote end of a WebSocket connection.
type Peer interface {
	Send(opcode byte, payload []byte) error
	Close(code uint16, reason string) error
}

// Message is what handlers receive.
type Message struct {
	Channel *Registration
	Opcode  byte
	Payload []byte
	Peer    Peer
}

// Handler processes one message. ctx carries the scheduler context.
type Handler func(ctx context.Context, m Message) error

// Kind selects which handler of a registration is set.
type Kind uint8

const (
	KindBinary Kind = iota
	KindText
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	case KindDisconnect:
		return "disconnect"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Registration is one live channel.
type Registration struct {
	Port      uint16
	GroupName string
	GroupID   uint32
	Slot      uint16

	handlers [3]Handler
}

// Has reports whether a handler of kind k is attached.
func (r *Registration) Has(k Kind) bool { return int(k) < len(r.handlers) && r.handlers[k] != nil }

// DispatchObserver counts dispatch outcomes; control.Metrics satisfies it.
type DispatchObserver interface {
	FrameDispatched()
	PeerDisconnected()
}

type nopObserver struct{}

func (nopObserver) FrameDispatched()  {}
func (nopObserver) PeerDisconnected() {}

type key struct {
	port uint16
	name string
}

// Registry is safe for concurrent use.
type Registry struct {
	namespace string
	registrar Registrar
	log       *zap.Logger
	obs       DispatchObserver

	mu     sync.RWMutex
	byKey  map[key]*Registration
	bySlot map[uint16]*Registration
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithObserver attaches dispatch counters.
func WithObserver(o DispatchObserver) Option {
	return func(r *Registry) {
		if o != nil {
			r.obs = o
		}
	}
}

// NewRegistry creates a registry whose group ids are scoped to namespace.
func NewRegistry(namespace string, registrar Registrar, opts ...Option) *Registry {
	r := &Registry{
		namespace: namespace,
		registrar: registrar,
		log:       zap.NewNop(),
		obs:       nopObserver{},
		byKey:     make(map[key]*Registration),
		bySlot:    make(map[uint16]*Registration),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// GroupIDFor hashes a group name within a namespace into the 32-bit id
// carried in socket data. The id is stable across restarts.
func GroupIDFor(namespace, group string) uint32 {
	d := xxhash.New()
	_, _ = d.WriteString(namespace)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(group)
	h := d.Sum64()
	id := uint32(h) ^ uint32(h>>32)
	if id == 0 {
		id = 1
	}
	return id
}

// Namespace returns the registry namespace.
func (r *Registry) Namespace() string { return r.namespace }

// Register attaches fn as the kind handler of (port, group). The first
// registration for a key obtains a slot from the registrar; later ones only
// attach handlers to the existing slot.
func (r *Registry) Register(port uint16, group string, kind Kind, fn Handler) (*Registration, error) {
	if fn == nil || kind > KindDisconnect || group == "" {
		return nil, fmt.Errorf("register %s handler for %q: %w", kind, group, api.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{port, group}
	reg, ok := r.byKey[k]
	if !ok {
		gid := GroupIDFor(r.namespace, group)
		slot, err := r.registrar.RegisterHandler(port, gid)
		if err != nil {
			return nil, fmt.Errorf("register channel %q on port %d: %w", group, port, err)
		}
		if prev, dup := r.bySlot[slot]; dup {
			return nil, fmt.Errorf("slot %d already held by %q: %w", slot, prev.GroupName, api.ErrAlreadyExists)
		}
		reg = &Registration{Port: port, GroupName: group, GroupID: gid, Slot: slot}
		r.byKey[k] = reg
		r.bySlot[slot] = reg
		r.log.Info("websocket channel registered",
			zap.Uint16("port", port), zap.String("group", group),
			zap.Uint32("group_id", gid), zap.Uint16("slot", slot))
	}
	reg.handlers[kind] = fn
	return reg, nil
}

// RegisterBinary attaches a binary-frame handler.
func (r *Registry) RegisterBinary(port uint16, group string, fn Handler) (*Registration, error) {
	return r.Register(port, group, KindBinary, fn)
}

// RegisterText attaches a text-frame handler.
func (r *Registry) RegisterText(port uint16, group string, fn Handler) (*Registration, error) {
	return r.Register(port, group, KindText, fn)
}

// RegisterDisconnect attaches a handler run when the peer closes.
func (r *Registry) RegisterDisconnect(port uint16, group string, fn Handler) (*Registration, error) {
	return r.Register(port, group, KindDisconnect, fn)
}

// Unregister releases the slot of (port, group).
func (r *Registry) Unregister(port uint16, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{port, group}
	reg, ok := r.byKey[k]
	if !ok {
		return fmt.Errorf("unregister %q on port %d: %w", group, port, api.ErrChannelNotRegistered)
	}
	if err := r.registrar.UnregisterHandler(port, reg.Slot); err != nil {
		return fmt.Errorf("unregister %q on port %d: %w", group, port, err)
	}
	delete(r.byKey, k)
	delete(r.bySlot, reg.Slot)
	return nil
}

// Lookup finds the registration of (port, group).
func (r *Registry) Lookup(port uint16, group string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byKey[key{port, group}]
	return reg, ok
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// resolve returns the registration and handler for a frame, or nil when
// the slot is unknown, the group id is stale or the handler is unset.
func (r *Registry) resolve(slot uint16, groupID uint32, kind Kind) (*Registration, Handler) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.bySlot[slot]
	if !ok || reg.GroupID != groupID {
		return nil, nil
	}
	return reg, reg.handlers[kind]
}

// Dispatch routes f to the handler registered under slot. A dead slot, a
// group id mismatch or a missing handler closes the peer with
// CloseUnsupportedData and returns api.ErrChannelNotRegistered.
func (r *Registry) Dispatch(ctx context.Context, slot uint16, groupID uint32, f Frame, peer Peer) error {
	var kind Kind
	switch f.Opcode {
	case OpcodeText:
		kind = KindText
	case OpcodeBinary, OpcodeContinuation:
		kind = KindBinary
	case OpcodeClose:
		kind = KindDisconnect
	case OpcodePing:
		return peer.Send(OpcodePong, f.Payload)
	case OpcodePong:
		return nil
	default:
		return r.disconnect(peer, CloseProtocolError, fmt.Errorf("opcode %#x: %w", f.Opcode, ErrControlFrame))
	}

	reg, h := r.resolve(slot, groupID, kind)
	if kind == KindDisconnect {
		if reg != nil && h != nil {
			r.obs.FrameDispatched()
			return h(ctx, Message{Channel: reg, Opcode: f.Opcode, Payload: f.Payload, Peer: peer})
		}
		return nil
	}
	if h == nil {
		return r.disconnect(peer, CloseUnsupportedData,
			fmt.Errorf("slot %d group %#x %s frame: %w", slot, groupID, kind, api.ErrChannelNotRegistered))
	}
	r.obs.FrameDispatched()
	return h(ctx, Message{Channel: reg, Opcode: f.Opcode, Payload: f.Payload, Peer: peer})
}

func (r *Registry) disconnect(peer Peer, code uint16, cause error) error {
	r.obs.PeerDisconnected()
	r.log.Debug("websocket peer disconnected", zap.Uint16("code", code), zap.Error(cause))
	if err := peer.Close(code, "cannot accept data"); err != nil {
		return fmt.Errorf("%w (close: %v)", cause, err)
	}
	return cause
}
