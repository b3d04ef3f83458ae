// Package stream
// Author: momentics <momentics@gmail.com>
//
// DataStream owns exactly one gateway chunk chain for the lifetime of one
// inbound message. It either hands the chain back to the gateway through
// Send (reusing the first chunk for the reply) or releases it through
// Destroy. Both transitions happen once; every later call is a no-op or
// reports api.ErrStreamReleased, so the chain can never be freed twice or
// touched after the gateway owns it again.
package stream
