// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations of the external collaborators for testing and
// loopback runs: an in-memory gateway over pool.ChunkPool, a pure-Go
// reference HTTP/1.x parser behind api.WireParser, and a channel registrar.
// Provides predictable, controllable behavior for all core seams.
package fake
