// Package pool
// Author: momentics <momentics@gmail.com>
//
// In-process chunk memory for the gateway seam.
// ChunkPool hands out fixed-size chunks from one contiguous arena, keeps
// freed indexes in a FIFO ring so a released chunk is the last one to be
// reused, and poisons released memory so late readers see garbage instead
// of another message.
package pool
