// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Facade over the transport core. The gateway hands chunks to Deliver; the
// server queues each on the scheduler that owns the socket's session,
// parses HTTP requests, runs the registered route, serializes the response
// back into the same chunk and dispatches WebSocket frames to registered
// channels. Do and Call run the same routes for requests built in process.
package server
