// Package websocket
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame encoding/decoding over flat byte slices. Inbound chunk
// payloads carry whole frames; outbound pushes encode one frame per chunk
// chain.

package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Opcodes
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA

	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14

	finBit  = 0x80
	maskBit = 0x80

	// MaxFramePayload bounds a single decoded frame.
	MaxFramePayload = 1 << 20
)

// Close codes.
const (
	CloseNormalClosure     uint16 = 1000
	CloseGoingAway         uint16 = 1001
	CloseProtocolError     uint16 = 1002
	CloseUnsupportedData   uint16 = 1003
	ClosePolicyViolation   uint16 = 1008
	CloseMessageTooBig     uint16 = 1009
	CloseInternalServerErr uint16 = 1011
)

var (
	ErrFrameTruncated = errors.New("websocket: frame truncated")
	ErrFrameTooLarge  = errors.New("websocket: frame payload exceeds limit")
	ErrControlFrame   = errors.New("websocket: invalid control frame")
)

// Frame is a decoded frame. Payload is unmasked and owned by the caller.
type Frame struct {
	Fin     bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// IsControl reports close, ping and pong frames.
func (f Frame) IsControl() bool { return f.Opcode&0x8 != 0 }

// DecodeFrame parses one frame from raw and returns it with the number of
// bytes consumed. The payload is copied so raw may be released afterwards.
func DecodeFrame(raw []byte) (Frame, int, error) {
	var f Frame
	if len(raw) < 2 {
		return f, 0, ErrFrameTruncated
	}
	f.Fin = raw[0]&finBit != 0
	f.Opcode = raw[0] & 0x0F
	f.Masked = raw[1]&maskBit != 0
	length := uint64(raw[1] & 0x7F)
	off := 2

	switch length {
	case 126:
		if len(raw) < off+2 {
			return f, 0, ErrFrameTruncated
		}
		length = uint64(binary.BigEndian.Uint16(raw[off:]))
		off += 2
	case 127:
		if len(raw) < off+8 {
			return f, 0, ErrFrameTruncated
		}
		length = binary.BigEndian.Uint64(raw[off:])
		off += 8
	}
	if length > MaxFramePayload {
		return f, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	if f.IsControl() && (length > MaxControlPayloadLen || !f.Fin) {
		return f, 0, ErrControlFrame
	}
	if f.Masked {
		if len(raw) < off+4 {
			return f, 0, ErrFrameTruncated
		}
		copy(f.MaskKey[:], raw[off:off+4])
		off += 4
	}
	if uint64(len(raw)-off) < length {
		return f, 0, ErrFrameTruncated
	}
	n := int(length)
	f.Payload = make([]byte, n)
	copy(f.Payload, raw[off:off+n])
	if f.Masked {
		maskInPlace(f.Payload, f.MaskKey)
	}
	return f, off + n, nil
}

// FrameLen returns the encoded size of a frame with n payload bytes.
func FrameLen(n int, masked bool) int {
	h := 2
	switch {
	case n > 0xFFFF:
		h += 8
	case n > 125:
		h += 2
	}
	if masked {
		h += 4
	}
	return h + n
}

// AppendFrame appends a final frame to dst. A non-nil key masks the
// payload copy; payload itself is left untouched.
func AppendFrame(dst []byte, opcode byte, payload []byte, key *[4]byte) []byte {
	var mb byte
	if key != nil {
		mb = maskBit
	}
	dst = append(dst, finBit|opcode&0x0F)
	n := len(payload)
	switch {
	case n <= 125:
		dst = append(dst, byte(n)|mb)
	case n <= 0xFFFF:
		dst = append(dst, 126|mb)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, 127|mb)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}
	if key == nil {
		return append(dst, payload...)
	}
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	maskInPlace(dst[start:], *key)
	return dst
}

// EncodeFrame returns a single allocation holding one unmasked frame.
func EncodeFrame(opcode byte, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, FrameLen(len(payload), false)), opcode, payload, nil)
}

// CloseFrame encodes a close frame carrying code and a reason truncated to
// fit the control payload limit.
func CloseFrame(code uint16, reason string) []byte {
	if len(reason) > MaxControlPayloadLen-2 {
		reason = reason[:MaxControlPayloadLen-2]
	}
	p := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(p, code)
	p = append(p, reason...)
	return EncodeFrame(OpcodeClose, p)
}

// CloseCode extracts the status code of a close frame, 1005 when absent.
func CloseCode(f Frame) uint16 {
	if f.Opcode != OpcodeClose || len(f.Payload) < 2 {
		return 1005
	}
	return binary.BigEndian.Uint16(f.Payload)
}

func maskInPlace(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}
