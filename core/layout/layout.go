// File: core/layout/layout.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Chunk and socket-data offset table.

package layout

import "math"

// Chunk geometry (anchor: chunk start).
const (
	ChunkSize = 4096

	// ChunkNextOffset holds the index of the next chunk in a chain.
	ChunkNextOffset = 0
	// ChunkChainLenOffset holds the number of chunks in the chain (first chunk only).
	ChunkChainLenOffset = 4
	// ChunkLinkSize is the size of the link header present in every chunk.
	ChunkLinkSize = 8

	// SocketDataOffset is where the socket-data block starts in the first chunk.
	SocketDataOffset = ChunkLinkSize
	// SocketDataSize is the padded size of the socket-data block.
	SocketDataSize = 64

	// FirstPayloadOffset is the default payload start in the first chunk.
	FirstPayloadOffset = SocketDataOffset + SocketDataSize
	// FirstPayloadCapacity is the payload room of the first chunk.
	FirstPayloadCapacity = ChunkSize - FirstPayloadOffset
	// ContinuationPayloadOffset is the payload start in every chained chunk.
	ContinuationPayloadOffset = ChunkLinkSize
	// ContinuationPayloadCapacity is the payload room of a chained chunk.
	ContinuationPayloadCapacity = ChunkSize - ContinuationPayloadOffset

	// InvalidChunkIndex terminates a chain.
	InvalidChunkIndex = math.MaxUint32
)

// Socket-data block (anchor: socket-data start).
const (
	ProtocolTypeOffset   = 0  // 1 byte
	SocketIndexOffset    = 1  // 4 bytes
	SocketUniqueIDOffset = 5  // 8 bytes
	BoundWorkerOffset    = 13 // 1 byte

	SessionOffset            = 14
	SessionSchedulerOffset   = SessionOffset + 0  // 1 byte
	SessionLinearIndexOffset = SessionOffset + 1  // 4 bytes
	SessionSaltOffset        = SessionOffset + 5  // 8 bytes
	SessionReservedOffset    = SessionOffset + 13 // 4 bytes
	SessionBlockSize         = 17

	FlagsOffset       = SessionOffset + SessionBlockSize // 4 bytes
	HandlerSlotOffset = FlagsOffset + 4                  // 2 bytes
	ChannelIDOffset   = HandlerSlotOffset + 2            // 4 bytes
	CargoIDOffset     = ChannelIDOffset + 4              // 8 bytes

	ParamsInfoOffset     = CargoIDOffset + 8
	UserDataOffsetOffset = ParamsInfoOffset + 0 // 4 bytes, relative to socket-data start
	UserDataLenOffset    = ParamsInfoOffset + 4 // 4 bytes, total payload length
	MaxUserDataOffset    = ParamsInfoOffset + 8 // 4 bytes
	ParamsInfoSize       = 12

	// PayloadMarker is the default user data offset relative to socket-data start.
	PayloadMarker = SocketDataSize
)

// ProtocolType tags the socket a chunk belongs to.
type ProtocolType uint8

const (
	ProtocolUnknown ProtocolType = iota
	ProtocolHTTP1
	ProtocolWebSocket
	ProtocolRawTCP
)

func (p ProtocolType) String() string {
	switch p {
	case ProtocolHTTP1:
		return "http1"
	case ProtocolWebSocket:
		return "websocket"
	case ProtocolRawTCP:
		return "rawtcp"
	default:
		return "unknown"
	}
}

// ConnFlags is the connection-control part of the flags word.
type ConnFlags uint32

const (
	NoSpecialFlags            ConnFlags = 0
	DisconnectAfterSend       ConnFlags = 1 << 0
	DisconnectImmediately     ConnFlags = 1 << 1
	GracefullyCloseConnection ConnFlags = 1 << 2

	connFlagsMask = DisconnectAfterSend | DisconnectImmediately | GracefullyCloseConnection
)

// Remaining bits of the flags word.
const (
	FlagUpgradeApproved uint32 = 1 << 8
	FlagMultiChunk      uint32 = 1 << 9
)

func (f ConnFlags) String() string {
	switch f {
	case NoSpecialFlags:
		return "none"
	case DisconnectAfterSend:
		return "disconnect-after-send"
	case DisconnectImmediately:
		return "disconnect-immediately"
	case GracefullyCloseConnection:
		return "graceful-close"
	default:
		return "mixed"
	}
}
