// File: core/layout/socketdata.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounds-checked accessors over the socket-data block of a chunk.

package layout

import (
	"encoding/binary"
	"errors"
)

// ErrShortChunk is returned when a buffer cannot hold the addressed block.
var ErrShortChunk = errors.New("layout: chunk shorter than fixed layout")

// SocketData is a view over the socket-data block of the first chunk.
type SocketData []byte

// SocketDataOf returns the socket-data view of a first chunk.
func SocketDataOf(chunk []byte) (SocketData, error) {
	if len(chunk) < FirstPayloadOffset {
		return nil, ErrShortChunk
	}
	return SocketData(chunk[SocketDataOffset : SocketDataOffset+SocketDataSize : SocketDataOffset+SocketDataSize]), nil
}

func (sd SocketData) ProtocolType() ProtocolType     { return ProtocolType(sd[ProtocolTypeOffset]) }
func (sd SocketData) SetProtocolType(p ProtocolType) { sd[ProtocolTypeOffset] = byte(p) }

func (sd SocketData) SocketIndex() uint32 {
	return binary.LittleEndian.Uint32(sd[SocketIndexOffset:])
}

func (sd SocketData) SetSocketIndex(v uint32) {
	binary.LittleEndian.PutUint32(sd[SocketIndexOffset:], v)
}

func (sd SocketData) SocketUniqueID() uint64 {
	return binary.LittleEndian.Uint64(sd[SocketUniqueIDOffset:])
}

func (sd SocketData) SetSocketUniqueID(v uint64) {
	binary.LittleEndian.PutUint64(sd[SocketUniqueIDOffset:], v)
}

func (sd SocketData) BoundWorker() uint8     { return sd[BoundWorkerOffset] }
func (sd SocketData) SetBoundWorker(v uint8) { sd[BoundWorkerOffset] = v }

// SessionFields returns the raw session block.
func (sd SocketData) SessionFields() (scheduler uint8, index uint32, salt uint64) {
	return sd[SessionSchedulerOffset],
		binary.LittleEndian.Uint32(sd[SessionLinearIndexOffset:]),
		binary.LittleEndian.Uint64(sd[SessionSaltOffset:])
}

// SetSessionFields overwrites the session block and clears its reserved tail.
func (sd SocketData) SetSessionFields(scheduler uint8, index uint32, salt uint64) {
	sd[SessionSchedulerOffset] = scheduler
	binary.LittleEndian.PutUint32(sd[SessionLinearIndexOffset:], index)
	binary.LittleEndian.PutUint64(sd[SessionSaltOffset:], salt)
	binary.LittleEndian.PutUint32(sd[SessionReservedOffset:], 0)
}

func (sd SocketData) Flags() uint32 {
	return binary.LittleEndian.Uint32(sd[FlagsOffset:])
}

func (sd SocketData) SetFlags(v uint32) {
	binary.LittleEndian.PutUint32(sd[FlagsOffset:], v)
}

// AddFlags ORs bits into the flags word.
func (sd SocketData) AddFlags(bits uint32) { sd.SetFlags(sd.Flags() | bits) }

// ClearFlags removes bits from the flags word.
func (sd SocketData) ClearFlags(bits uint32) { sd.SetFlags(sd.Flags() &^ bits) }

// ConnFlags returns the connection-control bits.
func (sd SocketData) ConnFlags() ConnFlags { return ConnFlags(sd.Flags()) & connFlagsMask }

// SetConnFlags replaces the connection-control bits, keeping the others.
func (sd SocketData) SetConnFlags(f ConnFlags) {
	sd.SetFlags(sd.Flags()&^uint32(connFlagsMask) | uint32(f&connFlagsMask))
}

func (sd SocketData) HandlerSlot() uint16 {
	return binary.LittleEndian.Uint16(sd[HandlerSlotOffset:])
}

func (sd SocketData) SetHandlerSlot(v uint16) {
	binary.LittleEndian.PutUint16(sd[HandlerSlotOffset:], v)
}

func (sd SocketData) ChannelID() uint32 {
	return binary.LittleEndian.Uint32(sd[ChannelIDOffset:])
}

func (sd SocketData) SetChannelID(v uint32) {
	binary.LittleEndian.PutUint32(sd[ChannelIDOffset:], v)
}

func (sd SocketData) CargoID() uint64 {
	return binary.LittleEndian.Uint64(sd[CargoIDOffset:])
}

func (sd SocketData) SetCargoID(v uint64) {
	binary.LittleEndian.PutUint64(sd[CargoIDOffset:], v)
}

// UserDataOffset is the payload start relative to the socket-data start.
func (sd SocketData) UserDataOffset() uint32 {
	return binary.LittleEndian.Uint32(sd[UserDataOffsetOffset:])
}

func (sd SocketData) SetUserDataOffset(v uint32) {
	binary.LittleEndian.PutUint32(sd[UserDataOffsetOffset:], v)
}

// UserDataLen is the total payload length across the whole chain.
func (sd SocketData) UserDataLen() uint32 {
	return binary.LittleEndian.Uint32(sd[UserDataLenOffset:])
}

func (sd SocketData) SetUserDataLen(v uint32) {
	binary.LittleEndian.PutUint32(sd[UserDataLenOffset:], v)
}

func (sd SocketData) MaxUserData() uint32 {
	return binary.LittleEndian.Uint32(sd[MaxUserDataOffset:])
}

func (sd SocketData) SetMaxUserData(v uint32) {
	binary.LittleEndian.PutUint32(sd[MaxUserDataOffset:], v)
}

// ResetParams points params-info at the default payload marker with no data.
func (sd SocketData) ResetParams() {
	sd.SetUserDataOffset(PayloadMarker)
	sd.SetUserDataLen(0)
	sd.SetMaxUserData(FirstPayloadCapacity)
}

// Next returns the next chunk index stored in a chunk's link header.
func Next(chunk []byte) uint32 {
	return binary.LittleEndian.Uint32(chunk[ChunkNextOffset:])
}

// SetNext links chunk to next.
func SetNext(chunk []byte, next uint32) {
	binary.LittleEndian.PutUint32(chunk[ChunkNextOffset:], next)
}

// ChainLen returns the chain length stored in a first chunk.
func ChainLen(chunk []byte) uint32 {
	return binary.LittleEndian.Uint32(chunk[ChunkChainLenOffset:])
}

// SetChainLen stores the chain length in a first chunk.
func SetChainLen(chunk []byte, n uint32) {
	binary.LittleEndian.PutUint32(chunk[ChunkChainLenOffset:], n)
}

// ChunksFor returns how many chunks a payload of n bytes occupies.
func ChunksFor(n int) int {
	if n <= FirstPayloadCapacity {
		return 1
	}
	rest := n - FirstPayloadCapacity
	return 1 + (rest+ContinuationPayloadCapacity-1)/ContinuationPayloadCapacity
}
