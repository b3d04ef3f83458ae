// File: request/backing.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package request

import (
	"github.com/momentics/hioload-gateway/core/identity"
	"github.com/momentics/hioload-gateway/core/layout"
	"github.com/momentics/hioload-gateway/stream"
)

// backing is the storage a Request projects over. The two implementations
// are borrowed (gateway chunk) and owned (private heap copy).
type backing interface {
	bytes() []byte
	session() identity.Identity
	release() error
}

// borrowed views the payload of a live data stream. For multi-chunk
// messages buf is the assembled copy, still bounded by the stream lifetime.
type borrowed struct {
	ds  *stream.DataStream
	buf []byte
}

func (b *borrowed) bytes() []byte {
	if !b.ds.Alive() {
		b.buf = nil
		return nil
	}
	return b.buf
}

func (b *borrowed) session() identity.Identity {
	sd, err := b.ds.SocketData()
	if err != nil {
		return identity.Invalid
	}
	return identity.Read(sd)
}

func (b *borrowed) release() error {
	b.buf = nil
	return b.ds.Destroy()
}

// owned holds a private copy; release drops it.
type owned struct {
	buf  []byte
	sess identity.Identity
}

func (o *owned) bytes() []byte { return o.buf }

func (o *owned) session() identity.Identity {
	if o.buf == nil {
		return identity.Invalid
	}
	return o.sess
}

func (o *owned) release() error {
	o.buf = nil
	return nil
}

// protocolOf is used to reject non-HTTP chunks early.
func protocolOf(ds *stream.DataStream) layout.ProtocolType {
	sd, err := ds.SocketData()
	if err != nil {
		return layout.ProtocolUnknown
	}
	return sd.ProtocolType()
}
