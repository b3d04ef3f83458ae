// File: websocket/handshake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/momentics/hioload-gateway/request"
)

const (
	webSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	requiredWebSocketVersion = "13"
)

// Handshake validation errors.
var (
	ErrInvalidUpgradeHeaders = errors.New("websocket: invalid upgrade headers")
	ErrMissingWebSocketKey   = errors.New("websocket: missing Sec-WebSocket-Key header")
	ErrBadWebSocketVersion   = errors.New("websocket: unsupported version, only 13 is supported")
)

// AcceptKey computes Sec-WebSocket-Accept for a client key.
func AcceptKey(key string) string {
	h := sha1.Sum([]byte(key + webSocketGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

// Handshake validates an upgrade request and returns the status line and
// upgrade headers of the 101 reply. The block ends with CRLF and leaves the
// terminating blank line to the response serializer.
func Handshake(req *request.Request) ([]byte, error) {
	if !req.IsWebSocketUpgrade() || !headerHasToken(req, "Connection", "upgrade") {
		return nil, ErrInvalidUpgradeHeaders
	}
	if v, _ := req.Header("Sec-WebSocket-Version"); v != requiredWebSocketVersion {
		return nil, ErrBadWebSocketVersion
	}
	key, _ := req.Header("Sec-WebSocket-Key")
	if key == "" {
		return nil, ErrMissingWebSocketKey
	}
	accept := AcceptKey(key)
	const head = "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: "
	b := make([]byte, 0, len(head)+len(accept)+2)
	b = append(b, head...)
	b = append(b, accept...)
	return append(b, "\r\n"...), nil
}

func headerHasToken(req *request.Request, name, token string) bool {
	v, ok := req.Header(name)
	if !ok {
		return false
	}
	for part := range strings.SplitSeq(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
